package store

import (
	"context"
	"sync"
	"time"
)

type Memory struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]Document)}
}

func (m *Memory) Load(ctx context.Context, code string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[code]
	if !ok {
		return Document{}, ErrNotFound
	}
	doc.Room = doc.Room.Clone()
	return doc, nil
}

func (m *Memory) Save(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}
	doc.Room = doc.Room.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.Code] = doc
	return nil
}
