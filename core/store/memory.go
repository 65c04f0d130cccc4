package store

import (
	"context"
	"sync"
)

type record struct {
	session  string
	botToken string
}

// Memory keeps records in process memory.
type Memory struct {
	mu   sync.RWMutex
	rows map[int64]record
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[int64]record)}
}

func (m *Memory) GetSession(_ context.Context, userID int64) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[userID]
	if !ok || r.session == "" {
		return "", false, nil
	}
	return r.session, true, nil
}

func (m *Memory) SaveSession(_ context.Context, userID int64, blob string) error {
	m.update(userID, func(r *record) { r.session = blob })
	return nil
}

func (m *Memory) RemoveSession(_ context.Context, userID int64) error {
	m.update(userID, func(r *record) { r.session = "" })
	return nil
}

func (m *Memory) GetBotToken(_ context.Context, userID int64) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[userID]
	if !ok || r.botToken == "" {
		return "", false, nil
	}
	return r.botToken, true, nil
}

func (m *Memory) SaveBotToken(_ context.Context, userID int64, token string) error {
	m.update(userID, func(r *record) { r.botToken = token })
	return nil
}

func (m *Memory) RemoveBotToken(_ context.Context, userID int64) error {
	m.update(userID, func(r *record) { r.botToken = "" })
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) update(userID int64, fn func(*record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rows[userID]
	fn(&r)
	if r == (record{}) {
		delete(m.rows, userID)
		return
	}
	m.rows[userID] = r
}
