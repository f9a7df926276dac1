// Package deduce runs cross-domain heuristics over a resolved draft:
// calendar proximity, historical-average prefill, routine detection and
// spending-velocity anomaly. Each heuristic fires at most once per signal and
// only returns suggestions; the caller merges mutations and decides what to
// do with them. Lookup failures degrade to "no deduction", never an error.
package deduce

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dmribeiro/ambientd/internal/draft"
	"github.com/dmribeiro/ambientd/internal/lexicon"
)

// Kind tags the heuristic that produced a deduction.
type Kind string

const (
	KindCalendarCorrelation Kind = "calendar_correlation"
	KindFinancialPrefill    Kind = "financial_prefill"
	KindRoutineDetected     Kind = "routine_detected"
	KindSpendingVelocity    Kind = "spending_velocity"
)

// minConfidence is the floor below which deductions are discarded.
const minConfidence = 0.6

// BioDate is a stored biographical date (year-agnostic).
type BioDate struct {
	Label string `json:"label"`
	Month int    `json:"month"`
	Day   int    `json:"day"`
	Type  string `json:"type"`
}

// FinanceMatch is one historical financial record matched by description.
type FinanceMatch struct {
	Merchant string
	Amount   float64
}

// MemoryHit is one recalled memory record.
type MemoryHit struct {
	Kind      string
	Text      string
	Metadata  map[string]any
	CreatedAt time.Time
}

// HistoryLookup is the narrow read/write interface into persisted history and
// profile state. Injected so tests can use isolated fixtures.
type HistoryLookup interface {
	BiographicalDates(ctx context.Context, userID string) ([]BioDate, error)
	FinanceMatches(ctx context.Context, userID, query string) ([]FinanceMatch, error)
	DailySpendRate(ctx context.Context, userID string, days int, now time.Time) (float64, error)
	SearchMemories(ctx context.Context, userID, query string, kinds []string, limit int) ([]MemoryHit, error)
	UpsertRoutinePattern(ctx context.Context, userID, merchant string, periodDays float64, lastSeen time.Time, count int) error
}

// MemorySink persists follow-up memory records. Best-effort: callers must
// tolerate failures.
type MemorySink interface {
	Store(ctx context.Context, userID, kind, text string, metadata map[string]any) error
}

// MemoryRecord is a memory write attached to a deduction.
type MemoryRecord struct {
	Kind     string
	Text     string
	Metadata map[string]any
}

// Deduction is one side-computation result.
type Deduction struct {
	Kind       Kind           `json:"kind"`
	Confidence float64        `json:"confidence"`
	Summary    string         `json:"summary"`
	Mutations  map[string]any `json:"mutations,omitempty"`
	Memory     *MemoryRecord  `json:"-"`
}

// Engine evaluates the heuristics. It never mutates the draft.
type Engine struct {
	lookup HistoryLookup
	sink   MemorySink
	lex    *lexicon.Table
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine wires a deduction engine. The clock is injectable for tests.
func NewEngine(lookup HistoryLookup, sink MemorySink, lex *lexicon.Table, logger *zap.Logger) *Engine {
	return &Engine{lookup: lookup, sink: sink, lex: lex, logger: logger, now: time.Now}
}

// SetClock overrides the engine's notion of now. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Deduce runs the domain-gated heuristics and returns surviving deductions
// sorted descending by confidence.
func (e *Engine) Deduce(ctx context.Context, userID string, d draft.Draft, rawText string) []Deduction {
	var candidates []*Deduction
	switch d.Kind {
	case draft.KindFinance:
		candidates = append(candidates,
			e.calendarCorrelation(ctx, userID, d, rawText),
			e.routineDetection(ctx, userID, d),
			e.spendingVelocity(ctx, userID),
		)
	case draft.KindTodo:
		candidates = append(candidates, e.financialPrefill(ctx, userID, d))
	}

	out := make([]Deduction, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.Confidence < minConfidence {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// Persist writes the memory records attached to the deductions. Errors are
// logged and swallowed; a failed memory write never aborts the pipeline.
func (e *Engine) Persist(ctx context.Context, userID string, deductions []Deduction) {
	for _, d := range deductions {
		if d.Memory == nil {
			continue
		}
		if err := e.sink.Store(ctx, userID, d.Memory.Kind, d.Memory.Text, d.Memory.Metadata); err != nil {
			e.logger.Warn("deduction memory write failed",
				zap.String("kind", string(d.Kind)), zap.Error(err))
		}
	}
}
