package store

import (
	"context"
	"time"

	"github.com/dmribeiro/ambientd/internal/draft"
	"github.com/dmribeiro/ambientd/internal/shadow"
	"github.com/dmribeiro/ambientd/internal/storage"
)

// Aggregates reads the shadow-plan pre/post snapshots. The clock is
// injectable so tests can pin "today".
type Aggregates struct {
	db  *storage.DB
	now func() time.Time
}

// NewAggregates returns an aggregate reader over db.
func NewAggregates(db *storage.DB) *Aggregates {
	return &Aggregates{db: db, now: time.Now}
}

// SetClock overrides the reader's notion of now. Test hook.
func (a *Aggregates) SetClock(now func() time.Time) { a.now = now }

// Snapshot reads the aggregate scoped to the draft's entity set: today's
// finance entries for user+category, or the open-todo count. Reading twice
// without an intervening write yields identical snapshots.
func (a *Aggregates) Snapshot(ctx context.Context, userID string, d draft.Draft) (shadow.Snapshot, error) {
	switch d.Kind {
	case draft.KindFinance:
		return a.financeToday(ctx, userID, financeCategory(d))
	case draft.KindTodo:
		return a.openTodos(ctx, userID)
	default:
		return shadow.Snapshot{}, nil
	}
}

func financeCategory(d draft.Draft) string {
	if d.Finance != nil {
		return d.Finance.Category
	}
	return ""
}

func (a *Aggregates) financeToday(ctx context.Context, userID, category string) (shadow.Snapshot, error) {
	now := a.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Unix()

	var snap shadow.Snapshot
	err := a.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM finance_entries
		WHERE user_id = ? AND category = ? AND created_at >= ?
	`, userID, category, dayStart).Scan(&snap.EntryCount, &snap.AmountSum)
	return snap, err
}

func (a *Aggregates) openTodos(ctx context.Context, userID string) (shadow.Snapshot, error) {
	var snap shadow.Snapshot
	err := a.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM todos WHERE user_id = ? AND status = 'open'
	`, userID).Scan(&snap.EntryCount)
	return snap, err
}
