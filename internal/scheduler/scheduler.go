package scheduler

import (
	"fmt"

	"github.com/mosaicchat/mosaic/internal/database"
	"github.com/mosaicchat/mosaic/internal/logger"
	"github.com/robfig/cron/v3"
)

// Retention windows. Audit entries age out; conversations are only removed
// when they never got a single message.
const (
	auditRetentionDays        = 90
	emptyConversationHoldDays = 7
)

// Scheduler runs the background maintenance jobs: pruning old audit logs and
// sweeping conversations that were opened but never used.
type Scheduler struct {
	cron *cron.Cron
	db   *database.DB
}

func New(db *database.DB) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		db:   db,
	}
}

func (s *Scheduler) Start() {
	// Run once at startup, then daily
	s.pruneAuditLogs()
	s.sweepEmptyConversations()

	s.cron.AddFunc("@daily", s.pruneAuditLogs)
	s.cron.AddFunc("@daily", s.sweepEmptyConversations)
	s.cron.Start()
	logger.Success("Scheduler started")
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Success("Scheduler stopped")
}

func (s *Scheduler) pruneAuditLogs() {
	result, err := s.db.Exec(
		"DELETE FROM audit_logs WHERE created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", auditRetentionDays),
	)
	if err != nil {
		logger.Error("Audit log retention failed: %v", err)
		return
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		logger.Info("Retention: pruned %d audit log entries older than %d days", rows, auditRetentionDays)
	}
}

func (s *Scheduler) sweepEmptyConversations() {
	result, err := s.db.Exec(
		`DELETE FROM conversations
		 WHERE created_at < datetime('now', ?)
		   AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = conversations.id)`,
		fmt.Sprintf("-%d days", emptyConversationHoldDays),
	)
	if err != nil {
		logger.Error("Empty conversation sweep failed: %v", err)
		return
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		logger.Info("Retention: swept %d empty conversations older than %d days", rows, emptyConversationHoldDays)
	}
}
