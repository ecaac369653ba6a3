package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mosaicchat/mosaic/internal/blocks"
	"github.com/mosaicchat/mosaic/internal/chat"
	"github.com/mosaicchat/mosaic/internal/database"
	"github.com/mosaicchat/mosaic/internal/middleware"
	"github.com/mosaicchat/mosaic/internal/models"
)

type AgentHandler struct {
	db       *database.DB
	sessions *chat.Manager
}

func NewAgentHandler(db *database.DB, sessions *chat.Manager) *AgentHandler {
	return &AgentHandler{db: db, sessions: sessions}
}

// List returns the caller's agents plus any public ones, own first.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	rows, err := h.db.Query(
		`SELECT id, user_id, name, description, is_public, created_at, updated_at
		 FROM agents WHERE user_id = ? OR is_public = 1
		 ORDER BY (user_id = ?) DESC, created_at DESC`,
		userID, userID,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	defer rows.Close()

	agents := []models.Agent{}
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.IsPublic, &a.CreatedAt, &a.UpdatedAt); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to scan agent")
			return
		}
		agents = append(agents, a)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPublic    bool   `json:"is_public"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "agent name is required")
		return
	}

	now := time.Now().UTC()
	agent := models.Agent{
		ID:          generateID(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    req.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := h.db.Exec(
		"INSERT INTO agents (id, user_id, name, description, is_public, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		agent.ID, agent.UserID, agent.Name, agent.Description, agent.IsPublic, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	h.db.LogAudit(userID, "agent_created", "agents", "agent", agent.ID, "Created agent "+agent.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"agent": agent})
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, map[string]interface{}{"agent": agent})
}

func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	agentID := chi.URLParam(r, "id")

	agent, err := loadAgent(h.db, agentID)
	if err != nil || agent.UserID != userID {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsPublic    *bool   `json:"is_public"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "agent name is required")
			return
		}
		agent.Name = name
	}
	if req.Description != nil {
		agent.Description = *req.Description
	}
	if req.IsPublic != nil {
		agent.IsPublic = *req.IsPublic
	}
	agent.UpdatedAt = time.Now().UTC()

	_, err = h.db.Exec(
		"UPDATE agents SET name = ?, description = ?, is_public = ?, updated_at = ? WHERE id = ?",
		agent.Name, agent.Description, agent.IsPublic, agent.UpdatedAt, agent.ID,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update agent")
		return
	}

	h.db.LogAudit(userID, "agent_updated", "agents", "agent", agent.ID, "")
	writeJSON(w, http.StatusOK, map[string]interface{}{"agent": agent})
}

func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	agentID := chi.URLParam(r, "id")

	agent, err := loadAgent(h.db, agentID)
	if err != nil || agent.UserID != userID {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	// Tear down live sessions before the cascade removes their rows.
	convRows, err := h.db.Query("SELECT id FROM conversations WHERE agent_id = ?", agentID)
	if err == nil {
		for convRows.Next() {
			var convID string
			if convRows.Scan(&convID) == nil {
				h.sessions.Close(convID)
			}
		}
		convRows.Close()
	}

	if _, err := h.db.Exec("DELETE FROM agents WHERE id = ?", agentID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete agent")
		return
	}

	h.db.LogAudit(userID, "agent_deleted", "agents", "agent", agentID, "Deleted agent "+agent.Name)
	writeJSON(w, http.StatusOK, map[string]string{"message": "agent deleted"})
}

// Settings returns the effective chat configuration for an agent, with block
// defaults applied. The editor uses it to preview what the agent will run with.
func (h *AgentHandler) Settings(w http.ResponseWriter, r *http.Request) {
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

	bs, err := loadAgentBlocks(h.db, agentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load blocks")
		return
	}
	settings := blocks.Resolve(bs)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"system_prompt": settings.SystemPrompt,
		"memory_window": settings.MemoryWindow,
		"model":         settings.Model,
	})
}

func loadAgent(db *database.DB, agentID string) (models.Agent, error) {
	var a models.Agent
	err := db.QueryRow(
		"SELECT id, user_id, name, description, is_public, created_at, updated_at FROM agents WHERE id = ?",
		agentID,
	).Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.IsPublic, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Agent{}, err
	}
	return a, nil
}

func loadAgentBlocks(db *database.DB, agentID string) ([]models.Block, error) {
	rows, err := db.Query(
		"SELECT id, agent_id, type, config, created_at, updated_at FROM blocks WHERE agent_id = ? ORDER BY created_at ASC",
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bs := []models.Block{}
	for rows.Next() {
		var b models.Block
		if err := rows.Scan(&b.ID, &b.AgentID, &b.Type, &b.Config, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bs = append(bs, b)
	}
	return bs, nil
}
