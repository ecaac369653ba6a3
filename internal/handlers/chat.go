package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mosaicchat/mosaic/internal/chat"
	"github.com/mosaicchat/mosaic/internal/database"
	"github.com/mosaicchat/mosaic/internal/middleware"
	"github.com/mosaicchat/mosaic/internal/models"
	"github.com/mosaicchat/mosaic/internal/websocket"
)

type ChatHandler struct {
	db       *database.DB
	store    *chat.Store
	sessions *chat.Manager
	hub      *websocket.Hub
}

func NewChatHandler(db *database.DB, store *chat.Store, sessions *chat.Manager, hub *websocket.Hub) *ChatHandler {
	return &ChatHandler{db: db, store: store, sessions: sessions, hub: hub}
}

// Open resolves the caller's conversation with an agent and returns it along
// with the full message history, so the chat view renders in one round trip.
func (h *ChatHandler) Open(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	agentID := chi.URLParam(r, "id")

	agent, err := loadAgent(h.db, agentID)
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if agent.UserID != userID && !agent.IsPublic {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	conv, err := h.store.Resolve(r.Context(), agentID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open conversation")
		return
	}

	session, err := h.sessions.Session(r.Context(), conv)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": conv,
		"messages":     session.Messages(),
		"generating":   session.Generating(),
	})
}

// List returns the caller's conversation history, newest activity first.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	summaries, err := h.store.ListConversations(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": summaries})
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")

	h.sessions.Close(convID)
	if err := h.store.Delete(r.Context(), convID, userID); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}

	h.hub.ConversationDeleted(convID)
	h.db.LogAudit(userID, "conversation_deleted", "chat", "conversation", convID, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "conversation deleted"})
}

// Messages returns the live projection for a conversation: persisted history
// plus any in-flight optimistic entries.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")

	conv, err := h.ownedConversation(r, convID, userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	session, err := h.sessions.Session(r.Context(), conv)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages":   session.Messages(),
		"generating": session.Generating(),
	})
}

// Send submits a user message and starts a turn. The canonical user row is
// returned immediately; the agent's reply arrives over the websocket topic.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")

	conv, err := h.ownedConversation(r, convID, userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessions.Session(r.Context(), conv)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	message, err := session.Submit(r.Context(), req.Content)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "message content is required")
		case errors.Is(err, chat.ErrTurnActive):
			writeError(w, http.StatusConflict, "a reply is already being generated")
		case errors.Is(err, chat.ErrClosed):
			writeError(w, http.StatusNotFound, "conversation not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"message": message})
}

func (h *ChatHandler) ownedConversation(r *http.Request, convID, userID string) (models.Conversation, error) {
	conv, err := h.store.Get(r.Context(), convID)
	if err != nil {
		return models.Conversation{}, err
	}
	if conv.UserID != userID {
		return models.Conversation{}, chat.ErrNotFound
	}
	return conv, nil
}
