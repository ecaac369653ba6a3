package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mosaicchat/mosaic/internal/blocks"
	"github.com/mosaicchat/mosaic/internal/models"
	"github.com/mosaicchat/mosaic/internal/prompt"
)

// FallbackReply is persisted as the agent's answer when generation fails,
// so the conversation record never ends on a dangling user message.
const FallbackReply = "I encountered an error while processing your request. Please try again later."

// typingContent marks the transient placeholder bubble. It lives only in the
// session projection and is never persisted or fed into a prompt.
const typingContent = "..."

// Turn status values pushed to subscribers while a turn is in flight.
const (
	StatusGenerating = "generating"
	StatusError      = "error"
	StatusIdle       = "idle"
)

// Storage is the slice of Store that a session needs. Split out so session
// tests can run against an in-memory fake.
type Storage interface {
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	Append(ctx context.Context, conversationID, senderType, content string) (models.Message, error)
	AgentBlocks(ctx context.Context, agentID string) ([]models.Block, error)
	SubscribeInserts(conversationID string, fn func(models.Message)) func()
}

// Generator produces the agent's reply for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, promptText, model string) (string, error)
}

// Session maintains a live projection of one conversation: the persisted
// history plus optimistic entries for in-flight work. Submitting a message
// inserts a synthetic draft immediately, swaps it for the canonical row once
// storage confirms it, shows a typing placeholder while the agent reply is
// generated, and settles when the reply row lands. Inserts arriving via the
// store feed are deduplicated by canonical id, so a row observed both through
// the synchronous append and the feed appears exactly once.
type Session struct {
	store  Storage
	gen    Generator
	conv   models.Conversation
	notify func(status, detail string)

	mu          sync.Mutex
	projection  []models.Message
	present     map[string]bool
	turnActive  bool
	closed      bool
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewSession loads the conversation's history and subscribes to its insert
// feed. notify may be nil.
func NewSession(ctx context.Context, store Storage, gen Generator, conv models.Conversation, notify func(status, detail string)) (*Session, error) {
	history, err := store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if notify == nil {
		notify = func(string, string) {}
	}
	s := &Session{
		store:      store,
		gen:        gen,
		conv:       conv,
		notify:     notify,
		projection: history,
		present:    make(map[string]bool, len(history)),
	}
	for _, m := range history {
		s.present[m.ID] = true
	}
	s.unsubscribe = store.SubscribeInserts(conv.ID, s.applyInsert)
	return s, nil
}

// Messages returns a snapshot of the current projection, synthetic entries
// included, in display order.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.projection))
	copy(out, s.projection)
	return out
}

// Generating reports whether a turn is in flight.
func (s *Session) Generating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnActive
}

// Submit starts a turn. It persists the user's message synchronously and
// returns the canonical row, then generates and persists the agent's reply in
// the background. Only one turn may be in flight per session.
func (s *Session) Submit(ctx context.Context, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.Message{}, ErrClosed
	}
	if s.turnActive {
		s.mu.Unlock()
		return models.Message{}, ErrTurnActive
	}
	s.turnActive = true

	// The prompt is built from history as it stood before this turn; the
	// user's new message is appended as the utterance, not as history.
	history := make([]models.Message, len(s.projection))
	copy(history, s.projection)

	draft := models.Message{
		ID:             "draft-" + uuid.New().String(),
		ConversationID: s.conv.ID,
		SenderType:     models.SenderUser,
		Content:        text,
		CreatedAt:      time.Now().UTC(),
	}
	s.projection = append(s.projection, draft)
	s.mu.Unlock()

	canonical, err := s.store.Append(ctx, s.conv.ID, models.SenderUser, text)
	if err != nil {
		s.mu.Lock()
		s.remove(draft.ID)
		s.turnActive = false
		s.mu.Unlock()
		return models.Message{}, fmt.Errorf("persist user message: %w", err)
	}

	s.mu.Lock()
	if s.present[canonical.ID] {
		// Feed delivery beat us to the swap; the canonical row is already
		// in the projection, so the draft just disappears.
		s.remove(draft.ID)
	} else {
		s.replace(draft.ID, canonical)
		s.present[canonical.ID] = true
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTurn(history, text)
	}()
	return canonical, nil
}

// runTurn generates and persists the agent's reply. It uses a background
// context: the turn outlives the HTTP request that started it.
func (s *Session) runTurn(history []models.Message, utterance string) {
	ctx := context.Background()
	s.notify(StatusGenerating, "")

	placeholder := models.Message{
		ID:             "typing-" + uuid.New().String(),
		ConversationID: s.conv.ID,
		SenderType:     models.SenderAgent,
		Content:        typingContent,
		CreatedAt:      time.Now().UTC(),
	}
	s.mu.Lock()
	if !s.closed {
		s.projection = append(s.projection, placeholder)
	}
	s.mu.Unlock()

	settings := blocks.Resolve(nil)
	if bs, err := s.store.AgentBlocks(ctx, s.conv.AgentID); err == nil {
		settings = blocks.Resolve(bs)
	}

	promptText := prompt.Build(settings.SystemPrompt, history, settings.MemoryWindow, utterance)
	reply, genErr := s.gen.Generate(ctx, promptText, settings.Model)
	if genErr != nil {
		s.notify(StatusError, genErr.Error())
		reply = FallbackReply
	}

	s.mu.Lock()
	s.remove(placeholder.ID)
	s.mu.Unlock()

	persisted, err := s.store.Append(ctx, s.conv.ID, models.SenderAgent, reply)
	if err != nil {
		// The reply could not be stored; keep it visible in this session
		// so the exchange is not silently lost.
		persisted = models.Message{
			ID:             "draft-" + uuid.New().String(),
			ConversationID: s.conv.ID,
			SenderType:     models.SenderAgent,
			Content:        reply,
			CreatedAt:      time.Now().UTC(),
		}
		s.mu.Lock()
		if !s.closed {
			s.projection = append(s.projection, persisted)
		}
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		if !s.closed && !s.present[persisted.ID] {
			s.projection = append(s.projection, persisted)
			s.present[persisted.ID] = true
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.turnActive = false
	s.mu.Unlock()
	s.notify(StatusIdle, "")
}

// applyInsert folds a feed delivery into the projection. Rows already
// present, including ones added synchronously by Submit or runTurn, are
// dropped by id.
func (s *Session) applyInsert(m models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.present[m.ID] {
		return
	}
	s.projection = append(s.projection, m)
	s.present[m.ID] = true
}

// remove drops the message with the given id from the projection.
// Caller holds s.mu.
func (s *Session) remove(id string) {
	for i, m := range s.projection {
		if m.ID == id {
			s.projection = append(s.projection[:i], s.projection[i+1:]...)
			return
		}
	}
}

// replace swaps the message with the given id for its canonical row in
// place, preserving display order. Caller holds s.mu.
func (s *Session) replace(id string, canonical models.Message) {
	for i, m := range s.projection {
		if m.ID == id {
			s.projection[i] = canonical
			return
		}
	}
	// Draft already gone (removed concurrently); append instead.
	s.projection = append(s.projection, canonical)
}

// Close tears the session down. The feed subscription is dropped and the
// projection stops mutating; an in-flight turn still runs to completion so
// the agent's reply is persisted.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsubscribe
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Wait blocks until any in-flight turn has finished. Used during shutdown.
func (s *Session) Wait() {
	s.wg.Wait()
}
