package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmribeiro/ambientd/internal/deduce"
	"github.com/dmribeiro/ambientd/internal/memory"
	"github.com/dmribeiro/ambientd/internal/storage"
)

const (
	bioDateKeyPrefix = "biodate:"
	routineKeyPrefix = "routine:"
)

// History implements the deduction engine's lookup interface: biographical
// dates and routine patterns from profile_kv, historical finance matches,
// spend rates, and similarity memory search.
type History struct {
	db       *storage.DB
	memories *memory.Service
	now      func() time.Time
}

// NewHistory returns a history lookup over db.
func NewHistory(db *storage.DB, memories *memory.Service) *History {
	return &History{db: db, memories: memories, now: time.Now}
}

// SetClock overrides the lookup's notion of now. Test hook.
func (h *History) SetClock(now func() time.Time) { h.now = now }

// routinePattern is the profile_kv value for a detected routine.
type routinePattern struct {
	Merchant   string  `json:"merchant"`
	PeriodDays float64 `json:"period_days"`
	LastSeen   int64   `json:"last_seen"`
	Count      int     `json:"count"`
}

// BiographicalDates lists the stored year-agnostic dates for a user.
func (h *History) BiographicalDates(ctx context.Context, userID string) ([]deduce.BioDate, error) {
	rows, err := h.db.Conn().QueryContext(ctx, `
		SELECT value FROM profile_kv WHERE user_id = ? AND key LIKE ?
	`, userID, bioDateKeyPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("biographical date query failed: %w", err)
	}
	defer rows.Close()

	var dates []deduce.BioDate
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		var d deduce.BioDate
		if err := json.Unmarshal([]byte(value), &d); err != nil {
			continue
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// SetBiographicalDate upserts one stored date, keyed by its label.
func (h *History) SetBiographicalDate(ctx context.Context, userID string, d deduce.BioDate) error {
	value, err := json.Marshal(d)
	if err != nil {
		return err
	}
	key := bioDateKeyPrefix + strings.ToLower(d.Label)
	_, err = h.db.Conn().ExecContext(ctx, `
		INSERT INTO profile_kv (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, userID, key, string(value), h.now().Unix())
	return err
}

// FinanceMatches searches historical finance entries by merchant/description
// keyword overlap.
func (h *History) FinanceMatches(ctx context.Context, userID, query string) ([]deduce.FinanceMatch, error) {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}
	var conditions []string
	args := []any{userID}
	for _, kw := range keywords {
		conditions = append(conditions, "(LOWER(merchant) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, "%"+kw+"%", "%"+kw+"%")
	}
	rows, err := h.db.Conn().QueryContext(ctx, `
		SELECT merchant, amount FROM finance_entries
		WHERE user_id = ? AND (`+strings.Join(conditions, " OR ")+`)
		ORDER BY created_at DESC LIMIT 50
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("finance match query failed: %w", err)
	}
	defer rows.Close()

	var matches []deduce.FinanceMatch
	for rows.Next() {
		var m deduce.FinanceMatch
		if err := rows.Scan(&m.Merchant, &m.Amount); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DailySpendRate returns the mean daily spend over the trailing window.
func (h *History) DailySpendRate(ctx context.Context, userID string, days int, now time.Time) (float64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("window must be positive, got %d days", days)
	}
	since := now.AddDate(0, 0, -days).Unix()
	var sum float64
	err := h.db.Conn().QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM finance_entries
		WHERE user_id = ? AND created_at >= ?
	`, userID, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("spend rate query failed: %w", err)
	}
	return sum / float64(days), nil
}

// SearchMemories adapts the memory service to the deduction engine's shape.
func (h *History) SearchMemories(ctx context.Context, userID, query string, kinds []string, limit int) ([]deduce.MemoryHit, error) {
	records, err := h.memories.Search(ctx, userID, query, kinds, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]deduce.MemoryHit, 0, len(records))
	for _, r := range records {
		hits = append(hits, deduce.MemoryHit{
			Kind:      r.Kind,
			Text:      r.Content,
			Metadata:  r.Metadata,
			CreatedAt: r.CreatedAt,
		})
	}
	return hits, nil
}

// UpsertRoutinePattern writes the detected routine into profile state.
func (h *History) UpsertRoutinePattern(ctx context.Context, userID, merchant string, periodDays float64, lastSeen time.Time, count int) error {
	value, err := json.Marshal(routinePattern{
		Merchant:   merchant,
		PeriodDays: periodDays,
		LastSeen:   lastSeen.Unix(),
		Count:      count,
	})
	if err != nil {
		return err
	}
	key := routineKeyPrefix + strings.ToLower(merchant)
	_, err = h.db.Conn().ExecContext(ctx, `
		INSERT INTO profile_kv (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, userID, key, string(value), h.now().Unix())
	return err
}
