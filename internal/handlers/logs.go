package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/mosaicchat/mosaic/internal/database"
	"github.com/mosaicchat/mosaic/internal/middleware"
	"github.com/mosaicchat/mosaic/internal/models"
)

type LogsHandler struct {
	db *database.DB
}

func NewLogsHandler(db *database.DB) *LogsHandler {
	return &LogsHandler{db: db}
}

// List returns the caller's audit trail, newest first. Entries are always
// scoped to the authenticated user.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := 100
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}

	conditions := []string{"a.user_id = ?"}
	args := []interface{}{userID}

	if action := r.URL.Query().Get("action"); action != "" {
		conditions = append(conditions, "a.action = ?")
		args = append(args, action)
	}
	if category := r.URL.Query().Get("category"); category != "" {
		conditions = append(conditions, "a.category = ?")
		args = append(args, category)
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM audit_logs a "+where, args...).Scan(&total); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count logs")
		return
	}

	query := `SELECT a.id, a.user_id, COALESCE(u.username, a.user_id), a.action, a.category, a.target, a.target_id, a.details, a.created_at
		FROM audit_logs a LEFT JOIN users u ON a.user_id = u.id
		` + where + ` ORDER BY a.created_at DESC LIMIT ? OFFSET ?`
	queryArgs := append(args, limit, offset)

	rows, err := h.db.Query(query, queryArgs...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		var username sql.NullString
		if err := rows.Scan(&l.ID, &l.UserID, &username, &l.Action, &l.Category, &l.Target, &l.TargetID, &l.Details, &l.CreatedAt); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to scan log")
			return
		}
		if username.Valid {
			l.Username = username.String
		} else {
			l.Username = l.UserID
		}
		logs = append(logs, l)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"total": total,
	})
}
