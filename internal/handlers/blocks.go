package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mosaicchat/mosaic/internal/blocks"
	"github.com/mosaicchat/mosaic/internal/database"
	"github.com/mosaicchat/mosaic/internal/middleware"
	"github.com/mosaicchat/mosaic/internal/models"
)

type BlockHandler struct {
	db *database.DB
}

func NewBlockHandler(db *database.DB) *BlockHandler {
	return &BlockHandler{db: db}
}

// List returns an agent's blocks. Owners see blocks of their own agents;
// public agents expose theirs read-only so the gallery can show how an agent
// is put together.
func (h *BlockHandler) List(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, map[string]interface{}{"blocks": bs})
}

// Create attaches a new block of the requested kind with its default config.
// An agent carries at most one block of each kind.
func (h *BlockHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	agentID := chi.URLParam(r, "id")

	agent, err := loadAgent(h.db, agentID)
	if err != nil || agent.UserID != userID {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	var req struct {
		Type string `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !blocks.ValidKind(req.Type) {
		writeError(w, http.StatusBadRequest, "unknown block type")
		return
	}

	var existingID string
	if err := h.db.QueryRow("SELECT id FROM blocks WHERE agent_id = ? AND type = ?", agentID, req.Type).Scan(&existingID); err == nil {
		writeError(w, http.StatusConflict, "agent already has a block of this type")
		return
	}

	cfg, err := blocks.DefaultConfig(blocks.Kind(req.Type))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown block type")
		return
	}

	now := time.Now().UTC()
	block := models.Block{
		ID:        generateID(),
		AgentID:   agentID,
		Type:      req.Type,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = h.db.Exec(
		"INSERT INTO blocks (id, agent_id, type, config, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		block.ID, block.AgentID, block.Type, block.Config, block.CreatedAt, block.UpdatedAt,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create block")
		return
	}

	h.db.LogAudit(userID, "block_created", "blocks", "block", block.ID, "Added "+req.Type+" block to agent "+agent.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"block": block})
}

// Update replaces a block's config. The payload must parse as the block
// kind's config shape; broken JSON is rejected here rather than silently
// falling back to defaults at chat time.
func (h *BlockHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	blockID := chi.URLParam(r, "id")

	block, agentUserID, err := h.loadBlockWithOwner(blockID)
	if err != nil || agentUserID != userID {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}

	var req struct {
		Config json.RawMessage `json:"config"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Config) == 0 {
		writeError(w, http.StatusBadRequest, "config is required")
		return
	}

	block.Config = string(req.Config)
	if _, err := blocks.Parse(block); err != nil {
		writeError(w, http.StatusBadRequest, "config does not match block type")
		return
	}
	block.UpdatedAt = time.Now().UTC()

	_, err = h.db.Exec(
		"UPDATE blocks SET config = ?, updated_at = ? WHERE id = ?",
		block.Config, block.UpdatedAt, block.ID,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update block")
		return
	}

	h.db.LogAudit(userID, "block_updated", "blocks", "block", block.ID, "")
	writeJSON(w, http.StatusOK, map[string]interface{}{"block": block})
}

func (h *BlockHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	blockID := chi.URLParam(r, "id")

	block, agentUserID, err := h.loadBlockWithOwner(blockID)
	if err != nil || agentUserID != userID {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}

	if _, err := h.db.Exec("DELETE FROM blocks WHERE id = ?", blockID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete block")
		return
	}

	h.db.LogAudit(userID, "block_deleted", "blocks", "block", blockID, "Removed "+block.Type+" block")
	writeJSON(w, http.StatusOK, map[string]string{"message": "block deleted"})
}

func (h *BlockHandler) loadBlockWithOwner(blockID string) (models.Block, string, error) {
	var b models.Block
	var ownerID string
	err := h.db.QueryRow(
		`SELECT b.id, b.agent_id, b.type, b.config, b.created_at, b.updated_at, a.user_id
		 FROM blocks b JOIN agents a ON a.id = b.agent_id
		 WHERE b.id = ?`,
		blockID,
	).Scan(&b.ID, &b.AgentID, &b.Type, &b.Config, &b.CreatedAt, &b.UpdatedAt, &ownerID)
	if err != nil {
		return models.Block{}, "", err
	}
	return b, ownerID, nil
}
