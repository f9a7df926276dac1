package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmribeiro/ambientd/internal/storage"
)

// Handshake statuses. The audit log is append-only: events are never edited
// or deleted, a status is assigned once at creation.
const (
	StatusPendingConfirmation = "pending_confirmation"
	StatusApproved            = "approved"
	StatusRejected            = "rejected"
	StatusFailed              = "failed"
	StatusAutoCommitted       = "auto_committed"
)

// HandshakeEvent is the durable audit record of one decision.
type HandshakeEvent struct {
	ID        string         `json:"id"`
	SignalID  string         `json:"signal_id"`
	UserID    string         `json:"user_id"`
	Module    string         `json:"module"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// HandshakeStore appends and reads audit records.
type HandshakeStore struct {
	db *storage.DB
}

// NewHandshakeStore returns a handshake store over db.
func NewHandshakeStore(db *storage.DB) *HandshakeStore {
	return &HandshakeStore{db: db}
}

// Append writes one audit record and returns its id.
func (s *HandshakeStore) Append(ctx context.Context, ev HandshakeEvent) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	payload := []byte("{}")
	if ev.Payload != nil {
		var err error
		payload, err = json.Marshal(ev.Payload)
		if err != nil {
			return "", fmt.Errorf("failed to marshal handshake payload: %w", err)
		}
	}
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO handshake_events (id, signal_id, user_id, module, status, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.SignalID, ev.UserID, ev.Module, ev.Status, string(payload), time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to append handshake event: %w", err)
	}
	return ev.ID, nil
}

// Recent returns the newest audit records for a user, newest first.
func (s *HandshakeStore) Recent(ctx context.Context, userID string, limit int) ([]HandshakeEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, signal_id, user_id, module, status, payload, created_at
		FROM handshake_events WHERE user_id = ?
		ORDER BY created_at DESC, id LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("handshake query failed: %w", err)
	}
	defer rows.Close()

	var events []HandshakeEvent
	for rows.Next() {
		var ev HandshakeEvent
		var payload string
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.SignalID, &ev.UserID, &ev.Module, &ev.Status, &payload, &createdAt); err != nil {
			return nil, err
		}
		ev.CreatedAt = time.Unix(createdAt, 0)
		if payload != "" {
			_ = json.Unmarshal([]byte(payload), &ev.Payload)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
