package engine

import (
	"maps"
	"slices"
)

func NewEmptyRoom() Room {
	return Room{
		Status:  StatusLobby,
		State:   GameState{LastDice: []int{}, StoredDice: []int{}},
		Players: map[string]Player{},
		Chat:    map[string]ChatMessage{},
	}
}

// Clone returns a deep copy so callers can mutate the result freely.
func (s Room) Clone() Room {
	n := s
	n.State.LastDice = slices.Clone(s.State.LastDice)
	n.State.StoredDice = slices.Clone(s.State.StoredDice)
	if n.State.LastDice == nil {
		n.State.LastDice = []int{}
	}
	if n.State.StoredDice == nil {
		n.State.StoredDice = []int{}
	}
	n.Players = maps.Clone(s.Players)
	if n.Players == nil {
		n.Players = map[string]Player{}
	}
	n.Chat = maps.Clone(s.Chat)
	if n.Chat == nil {
		n.Chat = map[string]ChatMessage{}
	}
	return n
}

// FreshDice is the resting set shown at the start of a turn.
func FreshDice(n int) []int {
	dice := make([]int, n)
	for i := range dice {
		dice[i] = i%6 + 1
	}
	return dice
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func nextSeat(s Room) int {
	seat := 0
	for _, p := range s.Players {
		if p.Seat >= seat {
			seat = p.Seat + 1
		}
	}
	return seat
}

func nextChatSeq(s Room) int {
	seq := 0
	for _, m := range s.Chat {
		if m.Seq >= seq {
			seq = m.Seq + 1
		}
	}
	return seq
}

// ChatLog returns the messages in insertion order.
func ChatLog(s Room) []ChatMessage {
	log := slices.Collect(maps.Values(s.Chat))
	slices.SortFunc(log, func(a, b ChatMessage) int { return a.Seq - b.Seq })
	return log
}

func trimChat(chat map[string]ChatMessage, keep int) {
	if len(chat) <= keep {
		return
	}
	ids := slices.Collect(maps.Keys(chat))
	slices.SortFunc(ids, func(a, b string) int { return chat[a].Seq - chat[b].Seq })
	for _, id := range ids[:len(ids)-keep] {
		delete(chat, id)
	}
}
