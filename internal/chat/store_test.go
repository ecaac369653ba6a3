package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mosaicchat/mosaic/internal/database"
	"github.com/mosaicchat/mosaic/internal/models"
)

func newTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	db, err := database.New(t.TempDir())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	userID := uuid.New().String()
	agentID := uuid.New().String()
	now := time.Now().UTC()
	if _, err := db.Exec(
		"INSERT INTO users (id, username, password_hash, display_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		userID, "tester", "x", "Tester", now, now,
	); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := db.Exec(
		"INSERT INTO agents (id, user_id, name, description, is_public, created_at, updated_at) VALUES (?, ?, ?, ?, 0, ?, ?)",
		agentID, userID, "Research Buddy", "", now, now,
	); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return NewStore(db), agentID, userID
}

func TestResolveCreatesThenReuses(t *testing.T) {
	store, agentID, userID := newTestStore(t)
	ctx := context.Background()

	first, err := store.Resolve(ctx, agentID, userID)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if first.Title != "Research Buddy" {
		t.Errorf("new conversation title = %q, want agent name", first.Title)
	}
	if first.AgentID != agentID || first.UserID != userID {
		t.Errorf("conversation scoped to (%s, %s), want (%s, %s)", first.AgentID, first.UserID, agentID, userID)
	}

	second, err := store.Resolve(ctx, agentID, userID)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second resolve created a new conversation %s, want %s reused", second.ID, first.ID)
	}
}

func TestResolvePicksNewest(t *testing.T) {
	store, agentID, userID := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	oldID, newID := uuid.New().String(), uuid.New().String()
	for _, row := range []struct {
		id string
		at time.Time
	}{{oldID, old}, {newID, newer}} {
		if _, err := store.db.Exec(
			"INSERT INTO conversations (id, agent_id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, 'Chat', ?, ?)",
			row.id, agentID, userID, row.at, row.at,
		); err != nil {
			t.Fatalf("seed conversation: %v", err)
		}
	}

	conv, err := store.Resolve(ctx, agentID, userID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if conv.ID != newID {
		t.Errorf("resolve returned %s, want most recently created %s", conv.ID, newID)
	}
}

func TestAppendAndListMessages(t *testing.T) {
	store, agentID, userID := newTestStore(t)
	ctx := context.Background()

	conv, err := store.Resolve(ctx, agentID, userID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	sent := []struct {
		sender  string
		content string
	}{
		{models.SenderUser, "hello"},
		{models.SenderAgent, "hi there"},
		{models.SenderUser, "what can you do?"},
	}
	for _, m := range sent {
		if _, err := store.Append(ctx, conv.ID, m.sender, m.content); err != nil {
			t.Fatalf("append %q: %v", m.content, err)
		}
	}

	got, err := store.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(got) != len(sent) {
		t.Fatalf("got %d messages, want %d", len(got), len(sent))
	}
	for i, m := range got {
		if m.SenderType != sent[i].sender || m.Content != sent[i].content {
			t.Errorf("message %d = (%s, %q), want (%s, %q)", i, m.SenderType, m.Content, sent[i].sender, sent[i].content)
		}
		if m.ID == "" || m.ConversationID != conv.ID {
			t.Errorf("message %d has id %q conversation %q", i, m.ID, m.ConversationID)
		}
	}
}

func TestAppendPublishesToFeed(t *testing.T) {
	store, agentID, userID := newTestStore(t)
	ctx := context.Background()

	conv, err := store.Resolve(ctx, agentID, userID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var received []models.Message
	unsubscribe := store.SubscribeInserts(conv.ID, func(m models.Message) {
		received = append(received, m)
	})

	appended, err := store.Append(ctx, conv.ID, models.SenderUser, "ping")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(received) != 1 || received[0].ID != appended.ID {
		t.Fatalf("feed delivered %v, want the appended row %s", received, appended.ID)
	}

	unsubscribe()
	if _, err := store.Append(ctx, conv.ID, models.SenderUser, "pong"); err != nil {
		t.Fatalf("append after unsubscribe: %v", err)
	}
	if len(received) != 1 {
		t.Errorf("received %d deliveries after unsubscribe, want 1", len(received))
	}
}

func TestListConversationsSummaries(t *testing.T) {
	store, agentID, userID := newTestStore(t)
	ctx := context.Background()

	conv, err := store.Resolve(ctx, agentID, userID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := store.Append(ctx, conv.ID, models.SenderUser, "first"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ctx, conv.ID, models.SenderAgent, "latest reply"); err != nil {
		t.Fatalf("append: %v", err)
	}

	summaries, err := store.ListConversations(ctx, userID)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	s := summaries[0]
	if s.AgentName != "Research Buddy" {
		t.Errorf("agent name = %q", s.AgentName)
	}
	if s.LastMessage != "latest reply" {
		t.Errorf("last message = %q, want newest message content", s.LastMessage)
	}
}

func TestDeleteScopedToOwner(t *testing.T) {
	store, agentID, userID := newTestStore(t)
	ctx := context.Background()

	conv, err := store.Resolve(ctx, agentID, userID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := store.Append(ctx, conv.ID, models.SenderUser, "keep me safe"); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := store.Delete(ctx, conv.ID, "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete by non-owner = %v, want ErrNotFound", err)
	}
	if msgs, _ := store.ListMessages(ctx, conv.ID); len(msgs) != 1 {
		t.Fatalf("messages survived non-owner delete: got %d, want 1", len(msgs))
	}

	if err := store.Delete(ctx, conv.ID, userID); err != nil {
		t.Fatalf("delete by owner: %v", err)
	}
	if _, err := store.Get(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
	if msgs, _ := store.ListMessages(ctx, conv.ID); len(msgs) != 0 {
		t.Errorf("messages remain after delete: %d", len(msgs))
	}
}

func TestAgentBlocks(t *testing.T) {
	store, agentID, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if _, err := store.db.Exec(
		"INSERT INTO blocks (id, agent_id, type, config, created_at, updated_at) VALUES (?, ?, 'prompt', '{\"prompt\":\"Be terse.\"}', ?, ?)",
		uuid.New().String(), agentID, now, now,
	); err != nil {
		t.Fatalf("seed block: %v", err)
	}

	bs, err := store.AgentBlocks(ctx, agentID)
	if err != nil {
		t.Fatalf("agent blocks: %v", err)
	}
	if len(bs) != 1 || bs[0].Type != "prompt" {
		t.Fatalf("blocks = %+v, want single prompt block", bs)
	}
}
