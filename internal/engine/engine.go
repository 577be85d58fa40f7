package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrWrongTurn = errors.New("not your turn")
var ErrWrongStatus = errors.New("action not allowed in current status")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrRoomFull = errors.New("room is full")
var ErrNotEnoughPlayers = errors.New("not enough players")
var ErrAnimating = errors.New("roll is still animating")
var ErrNotAnimating = errors.New("no roll to settle")
var ErrMirrorActive = errors.New("bonus event in progress")
var ErrNoMirror = errors.New("no bonus event to resolve")
var ErrMustTake = errors.New("take a die before rolling again")
var ErrNoRoll = errors.New("roll before taking dice")
var ErrIllegalTake = errors.New("die cannot be taken")
var ErrBankFloor = errors.New("not enough points to bank")
var ErrEmptyMessage = errors.New("empty chat message")
var ErrUnsupportedCommand = errors.New("unsupported command")

// ErrNoChange marks a command that was valid but did not alter the room.
var ErrNoChange = errors.New("no change")

type Status string

const (
	StatusLobby   Status = "lobby"
	StatusPlaying Status = "playing"
	StatusStats   Status = "stats"
)

// Room is the shared document of one game room. Its JSON form is the stored
// room_data and the broadcast payload.
type Room struct {
	Status  Status                 `json:"status"`
	State   GameState              `json:"state"`
	Players map[string]Player      `json:"players"`
	Visuals Visuals                `json:"visuals"`
	Chat    map[string]ChatMessage `json:"chat"`
}

type GameState struct {
	Turn             string `json:"turn"`
	LastDice         []int  `json:"lastDice"`
	StoredDice       []int  `json:"storedDice"`
	RollCount        int    `json:"rollCount"`
	IsAnimating      bool   `json:"isAnimating"`
	TurnBasePoints   int    `json:"turnBasePoints"`
	SixCount         int    `json:"sixCount"`
	MirrorActive     bool   `json:"mirrorActive"`
	HasTakenThisRoll bool   `json:"hasTakenThisRoll"`
	BonusActive      bool   `json:"bonusActive"`
}

type Player struct {
	Name    string `json:"name"`
	Seat    int    `json:"seat"`
	Score   int    `json:"score"`
	Strikes int    `json:"strikes"`
	Coins   int    `json:"coins"`
	Resets  int    `json:"resets"`
}

// Visuals are one-shot effect triggers. Clients fire an effect whenever a
// value changes.
type Visuals struct {
	ResetFlash  int64 `json:"resetFlash"`
	MirrorFlash int64 `json:"mirrorFlash"`
}

type ChatMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Seq       int    `json:"seq"`
}

type CommandType string

const (
	CmdJoin          CommandType = "Join"
	CmdLeave         CommandType = "Leave"
	CmdStartGame     CommandType = "StartGame"
	CmdRoll          CommandType = "Roll"
	CmdSettleRoll    CommandType = "SettleRoll"
	CmdTakeDie       CommandType = "TakeDie"
	CmdBank          CommandType = "Bank"
	CmdResolveMirror CommandType = "ResolveMirror"
	CmdChat          CommandType = "Chat"
	CmdResetLobby    CommandType = "ResetLobby"
)

/*
	CmdRoll          -> EvtRolled [-> EvtMirrorTriggered], or EvtBust -> pass when the roll limit is hit
	CmdSettleRoll    -> EvtRollSettled, or EvtBust -> pass
	CmdTakeDie       -> EvtDiceTaken
	CmdBank          -> EvtBanked -> pass
	pass             -> [EvtStrike [-> EvtScoreReset]] -> EvtTurnPassed or EvtGameCompleted
*/

type Command struct {
	Type  CommandType
	Actor string
	Index int    // TakeDie
	Name  string // Join
	Text  string // Chat
	MsgID string // Chat
	At    time.Time
}

type EventType string

const (
	EvtPlayerJoined    EventType = "PlayerJoined"
	EvtPlayerLeft      EventType = "PlayerLeft"
	EvtGameStarted     EventType = "GameStarted"
	EvtRolled          EventType = "Rolled"
	EvtRollSettled     EventType = "RollSettled"
	EvtDiceTaken       EventType = "DiceTaken"
	EvtBanked          EventType = "Banked"
	EvtBust            EventType = "Bust"
	EvtStrike          EventType = "Strike"
	EvtScoreReset      EventType = "ScoreReset"
	EvtTurnPassed      EventType = "TurnPassed"
	EvtMirrorTriggered EventType = "MirrorTriggered"
	EvtMirrorResolved  EventType = "MirrorResolved"
	EvtGameCompleted   EventType = "GameCompleted"
	EvtChat            EventType = "Chat"
	EvtLobbyReset      EventType = "LobbyReset"
)

type Event struct {
	Type   EventType `json:"type"`
	Player string    `json:"player,omitempty"`
	Points int       `json:"points,omitempty"`
	Dice   []int     `json:"dice,omitempty"`
}

type Engine struct {
	Rules  Rules
	Roller Roller
}

func New(rules Rules, roller Roller) *Engine {
	if roller == nil {
		roller = RandomRoller{}
	}
	return &Engine{Rules: rules, Roller: roller}
}

// Apply computes the room that results from cmd. On error the input room is
// returned unchanged and no events are produced.
func (e *Engine) Apply(s Room, cmd Command) ([]Event, Room, error) {
	var (
		events []Event
		next   Room
		err    error
	)

	switch cmd.Type {
	case CmdJoin:
		events, next, err = e.join(s, cmd)
	case CmdLeave:
		events, next, err = e.leave(s, cmd)
	case CmdStartGame:
		events, next, err = e.start(s, cmd)
	case CmdRoll:
		events, next, err = e.roll(s, cmd)
	case CmdSettleRoll:
		events, next, err = e.settle(s, cmd)
	case CmdTakeDie:
		events, next, err = e.take(s, cmd)
	case CmdBank:
		events, next, err = e.bank(s, cmd)
	case CmdResolveMirror:
		events, next, err = e.resolveMirror(s, cmd)
	case CmdChat:
		events, next, err = e.chat(s, cmd)
	case CmdResetLobby:
		events, next, err = e.resetLobby(s, cmd)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedCommand, cmd.Type)
	}

	if err != nil {
		return nil, s, err
	}
	return events, next, nil
}

func (e *Engine) join(s Room, cmd Command) ([]Event, Room, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = "Player"
	}

	if p, ok := s.Players[cmd.Actor]; ok {
		if p.Name == name {
			return nil, s, ErrNoChange
		}
		n := s.Clone()
		p.Name = name
		n.Players[cmd.Actor] = p
		return []Event{{Type: EvtPlayerJoined, Player: cmd.Actor}}, n, nil
	}

	if cmd.Actor == "" {
		return nil, s, ErrUnknownPlayer
	}
	if s.Status != StatusLobby {
		return nil, s, ErrWrongStatus
	}
	if len(s.Players) >= e.Rules.MaxPlayers {
		return nil, s, ErrRoomFull
	}

	n := s.Clone()
	n.Players[cmd.Actor] = Player{Name: name, Seat: nextSeat(s)}
	return []Event{{Type: EvtPlayerJoined, Player: cmd.Actor}}, n, nil
}

func (e *Engine) leave(s Room, cmd Command) ([]Event, Room, error) {
	if _, ok := s.Players[cmd.Actor]; !ok {
		return nil, s, ErrUnknownPlayer
	}
	if s.Status != StatusLobby {
		return nil, s, ErrWrongStatus
	}

	n := s.Clone()
	delete(n.Players, cmd.Actor)
	return []Event{{Type: EvtPlayerLeft, Player: cmd.Actor}}, n, nil
}

func (e *Engine) start(s Room, cmd Command) ([]Event, Room, error) {
	if s.Status == StatusPlaying {
		return nil, s, ErrWrongStatus
	}
	if _, ok := s.Players[cmd.Actor]; !ok {
		return nil, s, ErrUnknownPlayer
	}
	if len(s.Players) < e.Rules.MinPlayers {
		return nil, s, ErrNotEnoughPlayers
	}

	n := s.Clone()
	clearGameCounters(&n)
	first := SeatOrder(n)[0]
	n.Status = StatusPlaying
	n.State = e.freshTurn(first, 0, false)
	return []Event{{Type: EvtGameStarted, Player: first}}, n, nil
}

// checkTurn applies the guards shared by every in-turn action.
func checkTurn(s Room, actor string) error {
	if s.Status != StatusPlaying {
		return ErrWrongStatus
	}
	if _, ok := s.Players[actor]; !ok {
		return ErrUnknownPlayer
	}
	if s.State.Turn != actor {
		return ErrWrongTurn
	}
	if s.State.MirrorActive {
		return ErrMirrorActive
	}
	if s.State.IsAnimating {
		return ErrAnimating
	}
	return nil
}

func (e *Engine) roll(s Room, cmd Command) ([]Event, Room, error) {
	if err := checkTurn(s, cmd.Actor); err != nil {
		return nil, s, err
	}
	if s.State.RollCount > 0 && !s.State.HasTakenThisRoll {
		return nil, s, ErrMustTake
	}

	n := s.Clone()

	if s.State.RollCount >= e.Rules.MaxRolls && s.State.TurnBasePoints < e.Rules.BankFloor {
		events := []Event{{Type: EvtBust, Player: cmd.Actor}}
		events = append(events, e.passTurn(&n, 0, cmd.At)...)
		return events, n, nil
	}

	count := len(s.State.LastDice)
	if count == 0 {
		count = e.Rules.DiceCount
	}
	dice := e.Roller.Roll(count)

	n.State.LastDice = dice
	n.State.RollCount++
	n.State.HasTakenThisRoll = false
	n.State.IsAnimating = true

	events := []Event{{Type: EvtRolled, Player: cmd.Actor, Dice: append([]int(nil), dice...)}}

	for _, d := range dice {
		if d == 6 {
			n.State.SixCount++
		}
	}
	if n.State.SixCount >= e.Rules.SixTrigger {
		n.State.SixCount %= e.Rules.SixTrigger
		n.State.MirrorActive = true
		n.Visuals.MirrorFlash = bump(n.Visuals.MirrorFlash, cmd.At)
		events = append(events, Event{Type: EvtMirrorTriggered, Player: cmd.Actor})
	}

	return events, n, nil
}

// settle ends the roll animation window and resolves a roll with nothing to
// take as a bust.
func (e *Engine) settle(s Room, cmd Command) ([]Event, Room, error) {
	if s.Status != StatusPlaying {
		return nil, s, ErrWrongStatus
	}
	if !s.State.IsAnimating {
		return nil, s, ErrNotAnimating
	}

	n := s.Clone()
	n.State.IsAnimating = false

	if HasScoring(n.State.LastDice) {
		return []Event{{Type: EvtRollSettled, Player: n.State.Turn}}, n, nil
	}

	events := []Event{{Type: EvtBust, Player: n.State.Turn, Dice: append([]int(nil), n.State.LastDice...)}}
	events = append(events, e.passTurn(&n, 0, cmd.At)...)
	return events, n, nil
}

func (e *Engine) take(s Room, cmd Command) ([]Event, Room, error) {
	if err := checkTurn(s, cmd.Actor); err != nil {
		return nil, s, err
	}
	if s.State.RollCount == 0 {
		return nil, s, ErrNoRoll
	}

	res, err := ScoreTake(e.Rules, s.State.LastDice, cmd.Index)
	if err != nil {
		return nil, s, err
	}
	if s.State.BonusActive {
		res.Points *= e.Rules.BonusMultiplier
	}

	n := s.Clone()
	n.State.TurnBasePoints += res.Points
	n.State.StoredDice = append(n.State.StoredDice, res.Taken...)
	n.State.LastDice = res.Remaining
	n.State.HasTakenThisRoll = true

	return []Event{{Type: EvtDiceTaken, Player: cmd.Actor, Points: res.Points, Dice: res.Taken}}, n, nil
}

func (e *Engine) bank(s Room, cmd Command) ([]Event, Room, error) {
	if err := checkTurn(s, cmd.Actor); err != nil {
		return nil, s, err
	}
	if s.State.TurnBasePoints < e.Rules.BankFloor {
		return nil, s, ErrBankFloor
	}

	n := s.Clone()
	banked := n.State.TurnBasePoints
	p := n.Players[cmd.Actor]
	p.Score += banked
	p.Strikes = 0
	n.Players[cmd.Actor] = p

	events := []Event{{Type: EvtBanked, Player: cmd.Actor, Points: banked}}
	events = append(events, e.passTurn(&n, banked, cmd.At)...)
	return events, n, nil
}

func (e *Engine) resolveMirror(s Room, cmd Command) ([]Event, Room, error) {
	if s.Status != StatusPlaying {
		return nil, s, ErrWrongStatus
	}
	if !s.State.MirrorActive {
		return nil, s, ErrNoMirror
	}
	if s.State.Turn != cmd.Actor {
		return nil, s, ErrWrongTurn
	}
	if s.State.IsAnimating {
		return nil, s, ErrAnimating
	}

	n := s.Clone()
	n.State.MirrorActive = false
	n.State.BonusActive = true
	p := n.Players[cmd.Actor]
	p.Coins++
	n.Players[cmd.Actor] = p

	return []Event{{Type: EvtMirrorResolved, Player: cmd.Actor}}, n, nil
}

func (e *Engine) chat(s Room, cmd Command) ([]Event, Room, error) {
	if cmd.Actor == "" {
		return nil, s, ErrUnknownPlayer
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return nil, s, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > e.Rules.MaxChatLength {
		text = string([]rune(text)[:e.Rules.MaxChatLength])
	}

	sender := cmd.Actor
	if p, ok := s.Players[cmd.Actor]; ok {
		sender = p.Name
	}

	n := s.Clone()
	seq := nextChatSeq(s)
	id := cmd.MsgID
	if id == "" {
		id = fmt.Sprintf("m%d", seq)
	}
	n.Chat[id] = ChatMessage{Sender: sender, Text: text, Timestamp: cmd.At.UnixMilli(), Seq: seq}
	trimChat(n.Chat, e.Rules.MaxChatMessages)

	return []Event{{Type: EvtChat, Player: cmd.Actor}}, n, nil
}

func (e *Engine) resetLobby(s Room, cmd Command) ([]Event, Room, error) {
	if _, ok := s.Players[cmd.Actor]; !ok {
		return nil, s, ErrUnknownPlayer
	}
	if s.Status == StatusLobby {
		return nil, s, ErrNoChange
	}

	n := s.Clone()
	clearGameCounters(&n)
	n.Status = StatusLobby
	n.State = GameState{LastDice: []int{}, StoredDice: []int{}}
	return []Event{{Type: EvtLobbyReset, Player: cmd.Actor}}, n, nil
}

// passTurn closes the active turn. banked is what the turn committed to the
// player's score; zero counts as a strike.
func (e *Engine) passTurn(n *Room, banked int, at time.Time) []Event {
	current := n.State.Turn
	p := n.Players[current]
	var events []Event

	if banked == 0 {
		p.Strikes++
		events = append(events, Event{Type: EvtStrike, Player: current, Points: p.Strikes})
		if p.Strikes >= e.Rules.StrikeLimit {
			p.Score = 0
			p.Strikes = 0
			p.Resets++
			n.Visuals.ResetFlash = bump(n.Visuals.ResetFlash, at)
			events = append(events, Event{Type: EvtScoreReset, Player: current})
		}
	}
	n.Players[current] = p

	if p.Score >= e.Rules.WinScore {
		n.Status = StatusStats
		n.State.IsAnimating = false
		n.State.TurnBasePoints = 0
		n.State.HasTakenThisRoll = false
		n.State.BonusActive = false
		return append(events, Event{Type: EvtGameCompleted, Player: current, Points: p.Score})
	}

	next := nextPlayer(*n, current)
	n.State = e.freshTurn(next, n.State.SixCount, n.State.MirrorActive)
	return append(events, Event{Type: EvtTurnPassed, Player: next})
}

// clearGameCounters zeroes what belongs to a single game. Coins outlive games.
func clearGameCounters(n *Room) {
	for id, p := range n.Players {
		p.Score, p.Strikes, p.Resets = 0, 0, 0
		n.Players[id] = p
	}
}

func (e *Engine) freshTurn(turn string, sixCount int, mirror bool) GameState {
	return GameState{
		Turn:         turn,
		LastDice:     FreshDice(e.Rules.DiceCount),
		StoredDice:   []int{},
		SixCount:     sixCount,
		MirrorActive: mirror,
	}
}

// bump advances a visual trigger so that it changes even when the clock
// has not moved.
func bump(prev int64, at time.Time) int64 {
	ms := at.UnixMilli()
	if ms <= prev {
		return prev + 1
	}
	return ms
}
