// Package store implements the narrow persistence interfaces the core
// consumes: one writer per domain, the shadow-plan aggregate reader, the
// history/profile lookup and the handshake audit log. All of it is plain SQL
// over the shared SQLite connection.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmribeiro/ambientd/internal/draft"
	"github.com/dmribeiro/ambientd/internal/risk"
	"github.com/dmribeiro/ambientd/internal/storage"
)

// FinanceWriter inserts finance entries.
type FinanceWriter struct {
	db *storage.DB
}

func NewFinanceWriter(db *storage.DB) *FinanceWriter { return &FinanceWriter{db: db} }

func (w *FinanceWriter) Insert(ctx context.Context, userID string, d draft.Draft) risk.WriteResult {
	f := d.Finance
	var missing []string
	if f == nil || f.Merchant == "" {
		missing = append(missing, "merchant")
	}
	if f == nil || f.Amount == nil {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return refused(missing)
	}
	currency := f.Currency
	if currency == "" {
		currency = "EUR"
	}
	id := uuid.New().String()
	_, err := w.db.Conn().ExecContext(ctx, `
		INSERT INTO finance_entries (id, user_id, merchant, category, amount, currency, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, userID, f.Merchant, f.Category, *f.Amount, currency, f.Description, time.Now().Unix())
	if err != nil {
		return failed(err)
	}
	return committed(id)
}

// TodoWriter inserts tasks.
type TodoWriter struct {
	db *storage.DB
}

func NewTodoWriter(db *storage.DB) *TodoWriter { return &TodoWriter{db: db} }

func (w *TodoWriter) Insert(ctx context.Context, userID string, d draft.Draft) risk.WriteResult {
	t := d.Todo
	if t == nil || t.Title == "" {
		return refused([]string{"title"})
	}
	priority := t.Priority
	if priority == "" {
		priority = "normal"
	}
	dueHint := t.DueHint
	if dueHint == "" {
		dueHint = "none"
	}
	id := uuid.New().String()
	_, err := w.db.Conn().ExecContext(ctx, `
		INSERT INTO todos (id, user_id, title, priority, due_hint, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'open', ?)
	`, id, userID, t.Title, priority, dueHint, time.Now().Unix())
	if err != nil {
		return failed(err)
	}
	return committed(id)
}

// LinkWriter inserts bookmarks.
type LinkWriter struct {
	db *storage.DB
}

func NewLinkWriter(db *storage.DB) *LinkWriter { return &LinkWriter{db: db} }

func (w *LinkWriter) Insert(ctx context.Context, userID string, d draft.Draft) risk.WriteResult {
	l := d.Link
	if l == nil || l.URL == "" {
		return refused([]string{"url"})
	}
	id := uuid.New().String()
	_, err := w.db.Conn().ExecContext(ctx, `
		INSERT INTO links (id, user_id, url, title, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, userID, l.URL, l.Title, time.Now().Unix())
	if err != nil {
		return failed(err)
	}
	return committed(id)
}

// CryptoWriter logs crypto intents. It never touches an exchange or a chain;
// the intent row is the entire effect.
type CryptoWriter struct {
	db *storage.DB
}

func NewCryptoWriter(db *storage.DB) *CryptoWriter { return &CryptoWriter{db: db} }

func (w *CryptoWriter) Insert(ctx context.Context, userID string, d draft.Draft) risk.WriteResult {
	c := d.Crypto
	var missing []string
	if c == nil || c.Action == "" {
		missing = append(missing, "action")
	}
	if c == nil || c.Symbol == "" {
		missing = append(missing, "symbol")
	}
	if len(missing) > 0 {
		return refused(missing)
	}
	id := uuid.New().String()
	_, err := w.db.Conn().ExecContext(ctx, `
		INSERT INTO crypto_intents (id, user_id, action, symbol, quantity, unit_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, userID, c.Action, c.Symbol, c.Quantity, c.UnitPrice, time.Now().Unix())
	if err != nil {
		return failed(err)
	}
	return committed(id + ":intent_logged")
}

// Writers returns the writer registry keyed by draft kind.
func Writers(db *storage.DB) map[draft.Kind]risk.Writer {
	return map[draft.Kind]risk.Writer{
		draft.KindFinance: NewFinanceWriter(db),
		draft.KindTodo:    NewTodoWriter(db),
		draft.KindLink:    NewLinkWriter(db),
		draft.KindCrypto:  NewCryptoWriter(db),
	}
}

func refused(missing []string) risk.WriteResult {
	return risk.WriteResult{Reason: "missing required fields: " + strings.Join(missing, ", ")}
}

func failed(err error) risk.WriteResult {
	return risk.WriteResult{Reason: fmt.Sprintf("insert failed: %v", err)}
}

func committed(id string) risk.WriteResult {
	return risk.WriteResult{Executed: true, ExternalID: id, Reason: "committed"}
}
