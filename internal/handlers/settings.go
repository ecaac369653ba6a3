package handlers

import (
	"net/http"
	"os"

	"github.com/mosaicchat/mosaic/internal/database"
	"github.com/mosaicchat/mosaic/internal/genai"
	"github.com/mosaicchat/mosaic/internal/logger"
	"github.com/mosaicchat/mosaic/internal/middleware"
	"github.com/mosaicchat/mosaic/internal/secrets"
)

// googleAIKeySetting is the settings row holding the encrypted generation
// API key.
const googleAIKeySetting = "google_ai_api_key"

type SettingsHandler struct {
	db         *database.DB
	secretsMgr *secrets.Manager
	client     *genai.Client
}

func NewSettingsHandler(db *database.DB, secretsMgr *secrets.Manager, client *genai.Client) *SettingsHandler {
	return &SettingsHandler{db: db, secretsMgr: secretsMgr, client: client}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query("SELECT key, value FROM settings ORDER BY key ASC")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	defer rows.Close()

	settings := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			logger.Warn("scan setting row: %v", err)
			continue
		}
		// Don't expose the encrypted API key in general settings
		if key == googleAIKeySetting {
			continue
		}
		settings[key] = value
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	for key, value := range req {
		// The API key travels through its own endpoint only
		if key == googleAIKeySetting {
			continue
		}
		h.upsertSetting(key, value)
	}

	userID := middleware.GetUserID(r.Context())
	h.db.LogAudit(userID, "settings_updated", "settings", "settings", "", "")

	h.Get(w, r)
}

// GetAPIKey reports whether generation is configured and where the key came
// from. The key itself never leaves the server.
func (h *SettingsHandler) GetAPIKey(w http.ResponseWriter, r *http.Request) {
	source := h.apiKeySource()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configured": source != "none",
		"source":     source,
	})
}

func (h *SettingsHandler) UpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	encrypted, err := h.secretsMgr.Encrypt(req.APIKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encrypt API key")
		return
	}

	h.upsertSetting(googleAIKeySetting, encrypted)

	// Hot-reload the client unless the environment overrides it
	if h.client != nil && os.Getenv("GOOGLE_AI_API_KEY") == "" {
		h.client.UpdateAPIKey(req.APIKey)
	}

	userID := middleware.GetUserID(r.Context())
	h.db.LogAudit(userID, "api_key_updated", "settings", "settings", googleAIKeySetting, "")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configured": true,
		"source":     h.apiKeySource(),
	})
}

func (h *SettingsHandler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	h.db.Exec("DELETE FROM settings WHERE key = ?", googleAIKeySetting)

	if h.client != nil && os.Getenv("GOOGLE_AI_API_KEY") == "" {
		h.client.UpdateAPIKey("")
	}

	userID := middleware.GetUserID(r.Context())
	h.db.LogAudit(userID, "api_key_deleted", "settings", "settings", googleAIKeySetting, "")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configured": h.apiKeySource() != "none",
		"source":     h.apiKeySource(),
	})
}

func (h *SettingsHandler) apiKeySource() string {
	if os.Getenv("GOOGLE_AI_API_KEY") != "" {
		return "env"
	}
	if h.client != nil && h.client.IsConfigured() {
		return "database"
	}
	return "none"
}

func (h *SettingsHandler) upsertSetting(key, value string) {
	var existingID string
	err := h.db.QueryRow("SELECT id FROM settings WHERE key = ?", key).Scan(&existingID)
	if err == nil {
		h.db.Exec("UPDATE settings SET value = ? WHERE id = ?", value, existingID)
		return
	}
	h.db.Exec("INSERT INTO settings (id, key, value) VALUES (?, ?, ?)", generateID(), key, value)
}
