package leaderboard

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/engine"
)

// Entry is one player's final standing in a finished game.
type Entry struct {
	RoomCode   string    `json:"roomCode"`
	PlayerID   string    `json:"playerId"`
	Name       string    `json:"name"`
	Score      int       `json:"score"`
	Won        bool      `json:"won"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Entries turns a finished room into one entry per seated player. The
// player whose turn ended the game is the winner.
func Entries(code string, room engine.Room, at time.Time) []Entry {
	order := engine.SeatOrder(room)
	entries := make([]Entry, 0, len(order))
	for _, id := range order {
		p := room.Players[id]
		entries = append(entries, Entry{
			RoomCode:   code,
			PlayerID:   id,
			Name:       p.Name,
			Score:      p.Score,
			Won:        id == room.State.Turn,
			FinishedAt: at,
		})
	}
	return entries
}

func sortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return a.FinishedAt.Compare(b.FinishedAt)
	})
}

type Memory struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) RecordGame(ctx context.Context, code string, room engine.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entries(code, room, m.now())...)
	return nil
}

func (m *Memory) Top(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := slices.Clone(m.entries)
	m.mu.RUnlock()

	sortEntries(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
