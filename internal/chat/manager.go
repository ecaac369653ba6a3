package chat

import (
	"context"
	"sync"

	"github.com/mosaicchat/mosaic/internal/models"
)

// Manager hands out one Session per conversation. Handlers go through it so
// a conversation opened from two tabs shares a single projection and the
// one-turn-at-a-time rule holds across them.
type Manager struct {
	store  Storage
	gen    Generator
	notify func(conversationID, status, detail string)

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(store Storage, gen Generator, notify func(conversationID, status, detail string)) *Manager {
	if notify == nil {
		notify = func(string, string, string) {}
	}
	return &Manager{
		store:    store,
		gen:      gen,
		notify:   notify,
		sessions: make(map[string]*Session),
	}
}

// Session returns the live session for the conversation, creating it on
// first use.
func (m *Manager) Session(ctx context.Context, conv models.Conversation) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[conv.ID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	// Built outside the lock; ListMessages hits storage.
	s, err := NewSession(ctx, m.store, m.gen, conv, func(status, detail string) {
		m.notify(conv.ID, status, detail)
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[conv.ID]; ok {
		s.Close()
		return existing, nil
	}
	m.sessions[conv.ID] = s
	return s, nil
}

// Close tears down the session for a conversation, if one exists. Called
// when the conversation is deleted.
func (m *Manager) Close(conversationID string) {
	m.mu.Lock()
	s, ok := m.sessions[conversationID]
	delete(m.sessions, conversationID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Shutdown closes every session and waits for in-flight turns to finish.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Wait()
		s.Close()
	}
}
