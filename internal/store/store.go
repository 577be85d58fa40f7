package store

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/engine"
)

var ErrNotFound = errors.New("room not found")

// Document is one stored room. Saves replace the whole document; there is
// no partial update and no version check.
type Document struct {
	Code      string
	Version   int
	Room      engine.Room
	UpdatedAt time.Time
}

type RoomStore interface {
	Load(ctx context.Context, code string) (Document, error)
	Save(ctx context.Context, doc Document) error
}
