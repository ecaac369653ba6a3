package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mosaicchat/mosaic/internal/database"
	"github.com/mosaicchat/mosaic/internal/models"
)

// Store owns durable conversation state. It is the only writer of the
// conversations and messages tables, and every insert it performs is also
// published on the in-process feed so subscribers see the same row that the
// caller gets back (at-least-once; consumers dedup by id).
type Store struct {
	db   *database.DB
	feed *feed
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db, feed: newFeed()}
}

// Resolve returns the active conversation for the (agent, user) pair: the
// most recently created one if any exist, otherwise a new conversation
// titled after the agent. Nothing enforces uniqueness transactionally, so
// concurrent first opens can race and create two rows; the most recent one
// wins on the next resolve.
func (s *Store) Resolve(ctx context.Context, agentID, userID string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, user_id, title, created_at, updated_at
		 FROM conversations WHERE agent_id = ? AND user_id = ?
		 ORDER BY created_at DESC LIMIT 1`,
		agentID, userID,
	).Scan(&conv.ID, &conv.AgentID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return models.Conversation{}, fmt.Errorf("%w: resolve conversation: %v", ErrStorage, err)
	}

	var agentName string
	if err := s.db.QueryRowContext(ctx, "SELECT name FROM agents WHERE id = ?", agentID).Scan(&agentName); err != nil {
		return models.Conversation{}, fmt.Errorf("%w: look up agent %s: %v", ErrStorage, agentID, err)
	}

	now := time.Now().UTC()
	conv = models.Conversation{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		UserID:    userID,
		Title:     agentName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, agent_id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		conv.ID, conv.AgentID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt,
	); err != nil {
		return models.Conversation{}, fmt.Errorf("%w: create conversation: %v", ErrStorage, err)
	}
	return conv, nil
}

func (s *Store) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx,
		"SELECT id, agent_id, user_id, title, created_at, updated_at FROM conversations WHERE id = ?",
		conversationID,
	).Scan(&conv.ID, &conv.AgentID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Conversation{}, ErrNotFound
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("%w: get conversation: %v", ErrStorage, err)
	}
	return conv, nil
}

// ListConversations returns the user's conversations for the history view,
// newest activity first, each with the agent name and a last-message preview.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.agent_id, c.user_id, c.title, c.created_at, c.updated_at,
		        COALESCE(a.name, ''),
		        COALESCE((SELECT content FROM messages m WHERE m.conversation_id = c.id ORDER BY m.created_at DESC LIMIT 1), '')
		 FROM conversations c
		 LEFT JOIN agents a ON a.id = c.agent_id
		 WHERE c.user_id = ?
		 ORDER BY c.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", ErrStorage, err)
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var cs models.ConversationSummary
		if err := rows.Scan(&cs.ID, &cs.AgentID, &cs.UserID, &cs.Title, &cs.CreatedAt, &cs.UpdatedAt, &cs.AgentName, &cs.LastMessage); err != nil {
			return nil, fmt.Errorf("%w: scan conversation: %v", ErrStorage, err)
		}
		summaries = append(summaries, cs)
	}
	return summaries, nil
}

// Delete removes a conversation and its messages. Scoped by owner so a user
// cannot delete someone else's history.
func (s *Store) Delete(ctx context.Context, conversationID, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id = ? AND EXISTS (SELECT 1 FROM conversations WHERE id = ? AND user_id = ?)",
		conversationID, conversationID, userID,
	); err != nil {
		return fmt.Errorf("%w: delete messages: %v", ErrStorage, err)
	}
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE id = ? AND user_id = ?",
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("%w: delete conversation: %v", ErrStorage, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessages returns the full message history ascending by creation time.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, sender_type, content, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", ErrStorage, err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderType, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", ErrStorage, err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Append persists a message, bumps the conversation's updated_at, publishes
// the insert on the feed, and returns the canonical row.
func (s *Store) Append(ctx context.Context, conversationID, senderType, content string) (models.Message, error) {
	m := models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderType:     senderType,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, sender_type, content, created_at) VALUES (?, ?, ?, ?, ?)",
		m.ID, m.ConversationID, m.SenderType, m.Content, m.CreatedAt,
	); err != nil {
		return models.Message{}, fmt.Errorf("%w: append message: %v", ErrStorage, err)
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?", m.CreatedAt, conversationID,
	); err != nil {
		return models.Message{}, fmt.Errorf("%w: bump conversation: %v", ErrStorage, err)
	}

	s.feed.publish(m)
	return m, nil
}

// SubscribeInserts registers fn for every message inserted into the given
// conversation and returns the teardown function. Delivery is at-least-once
// relative to Append's own return value: the same row can arrive both ways.
func (s *Store) SubscribeInserts(conversationID string, fn func(models.Message)) func() {
	return s.feed.subscribe(conversationID, fn)
}

// SubscribeAllInserts registers fn for inserts in every conversation. The
// websocket layer uses it to relay rows to topic subscribers.
func (s *Store) SubscribeAllInserts(fn func(models.Message)) func() {
	return s.feed.subscribeAll(fn)
}

// AgentBlocks returns the configuration blocks attached to an agent.
func (s *Store) AgentBlocks(ctx context.Context, agentID string) ([]models.Block, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, agent_id, type, config, created_at, updated_at FROM blocks WHERE agent_id = ? ORDER BY created_at ASC",
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list blocks: %v", ErrStorage, err)
	}
	defer rows.Close()

	bs := []models.Block{}
	for rows.Next() {
		var b models.Block
		if err := rows.Scan(&b.ID, &b.AgentID, &b.Type, &b.Config, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan block: %v", ErrStorage, err)
		}
		bs = append(bs, b)
	}
	return bs, nil
}
