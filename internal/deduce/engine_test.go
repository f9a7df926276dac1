package deduce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmribeiro/ambientd/internal/draft"
	"github.com/dmribeiro/ambientd/internal/lexicon"
)

type fakeLookup struct {
	bioDates []BioDate
	bioErr   error
	finance  []FinanceMatch
	rates    map[int]float64
	memories []MemoryHit
	upserted []string
}

func (f *fakeLookup) BiographicalDates(ctx context.Context, userID string) ([]BioDate, error) {
	return f.bioDates, f.bioErr
}

func (f *fakeLookup) FinanceMatches(ctx context.Context, userID, query string) ([]FinanceMatch, error) {
	return f.finance, nil
}

func (f *fakeLookup) DailySpendRate(ctx context.Context, userID string, days int, now time.Time) (float64, error) {
	return f.rates[days], nil
}

func (f *fakeLookup) SearchMemories(ctx context.Context, userID, query string, kinds []string, limit int) ([]MemoryHit, error) {
	return f.memories, nil
}

func (f *fakeLookup) UpsertRoutinePattern(ctx context.Context, userID, merchant string, periodDays float64, lastSeen time.Time, count int) error {
	f.upserted = append(f.upserted, merchant)
	return nil
}

type fakeSink struct {
	stored []string
	err    error
}

func (f *fakeSink) Store(ctx context.Context, userID, kind, text string, metadata map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, kind)
	return nil
}

func newTestEngine(t *testing.T, lookup *fakeLookup, sink *fakeSink) *Engine {
	t.Helper()
	lex, err := lexicon.Default()
	require.NoError(t, err)
	e := NewEngine(lookup, sink, lex, zap.NewNop())
	e.SetClock(func() time.Time {
		return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	})
	return e
}

func financeDraft(merchant string, amount float64) draft.Draft {
	return draft.Draft{
		Kind:    draft.KindFinance,
		Finance: &draft.Finance{Merchant: merchant, Category: "groceries", Amount: &amount},
	}
}

func todoDraft(title string) draft.Draft {
	return draft.Draft{Kind: draft.KindTodo, Todo: &draft.Todo{Title: title}}
}

func TestCalendarCorrelation(t *testing.T) {
	lookup := &fakeLookup{
		bioDates: []BioDate{{Label: "aniversario da mae", Month: 3, Day: 12, Type: "birthday"}},
	}
	e := newTestEngine(t, lookup, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", financeDraft("fnac", 35), "comprei um presente na fnac")

	require.Len(t, out, 1)
	assert.Equal(t, KindCalendarCorrelation, out[0].Kind)
	assert.InDelta(t, 0.78, out[0].Confidence, 0.001)
	assert.Equal(t, "aniversario da mae", out[0].Mutations["occasion"])
	require.NotNil(t, out[0].Memory)
}

func TestCalendarCorrelationOutsideWindow(t *testing.T) {
	lookup := &fakeLookup{
		bioDates: []BioDate{{Label: "natal", Month: 12, Day: 25, Type: "holiday"}},
	}
	e := newTestEngine(t, lookup, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", financeDraft("fnac", 35), "comprei um presente na fnac")
	assert.Empty(t, out)
}

func TestCalendarCorrelationNeedsGiftWord(t *testing.T) {
	lookup := &fakeLookup{
		bioDates: []BioDate{{Label: "aniversario da mae", Month: 3, Day: 12}},
	}
	e := newTestEngine(t, lookup, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", financeDraft("fnac", 35), "comprei um carregador na fnac")
	assert.Empty(t, out)
}

func TestFinancialPrefill(t *testing.T) {
	lookup := &fakeLookup{
		finance: []FinanceMatch{
			{Merchant: "seguradora", Amount: 95},
			{Merchant: "seguradora", Amount: 105},
		},
	}
	e := newTestEngine(t, lookup, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", todoDraft("pagar seguro da carrinha"), "lembra me pagar o seguro")

	require.Len(t, out, 1)
	assert.Equal(t, KindFinancialPrefill, out[0].Kind)
	assert.InDelta(t, 0.70, out[0].Confidence, 0.001)
	assert.InDelta(t, 100.0, out[0].Mutations["suggested_amount"].(float64), 0.001)
	assert.Equal(t, 2, out[0].Mutations["history_matches"])
}

func TestFinancialPrefillConfidenceCapped(t *testing.T) {
	var matches []FinanceMatch
	for i := 0; i < 10; i++ {
		matches = append(matches, FinanceMatch{Merchant: "seguradora", Amount: 100})
	}
	e := newTestEngine(t, &fakeLookup{finance: matches}, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", todoDraft("pagar seguro"), "")
	require.Len(t, out, 1)
	assert.InDelta(t, 0.90, out[0].Confidence, 0.001)
}

func TestFinancialPrefillNeedsPaymentVerb(t *testing.T) {
	lookup := &fakeLookup{finance: []FinanceMatch{{Merchant: "x", Amount: 1}}}
	e := newTestEngine(t, lookup, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", todoDraft("comprar fruta"), "")
	assert.Empty(t, out)
}

func TestRoutineDetection(t *testing.T) {
	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	var hits []MemoryHit
	for i := 0; i < 4; i++ {
		hits = append(hits, MemoryHit{
			Kind:      kindRecurringMerchant,
			Text:      "continente",
			Metadata:  map[string]any{"merchant": "continente"},
			CreatedAt: base.AddDate(0, 0, 7*i),
		})
	}
	lookup := &fakeLookup{memories: hits}
	e := newTestEngine(t, lookup, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", financeDraft("continente", 42), "compras continente")

	require.Len(t, out, 1)
	assert.Equal(t, KindRoutineDetected, out[0].Kind)
	assert.InDelta(t, 0.81, out[0].Confidence, 0.001)
	assert.InDelta(t, 7.0, out[0].Mutations["routine_period_days"].(float64), 0.001)
	assert.Equal(t, 4, out[0].Mutations["routine_count"])
	assert.Equal(t, []string{"continente"}, lookup.upserted)
}

func TestRoutineDetectionBelowMinOccurrences(t *testing.T) {
	hits := []MemoryHit{
		{Metadata: map[string]any{"merchant": "continente"}, CreatedAt: time.Now()},
		{Metadata: map[string]any{"merchant": "continente"}, CreatedAt: time.Now()},
	}
	e := newTestEngine(t, &fakeLookup{memories: hits}, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", financeDraft("continente", 42), "compras")
	assert.Empty(t, out)
}

func TestRoutineDetectionIgnoresOtherMerchants(t *testing.T) {
	var hits []MemoryHit
	for i := 0; i < 5; i++ {
		hits = append(hits, MemoryHit{
			Metadata:  map[string]any{"merchant": "lidl"},
			CreatedAt: time.Now().AddDate(0, 0, -i),
		})
	}
	e := newTestEngine(t, &fakeLookup{memories: hits}, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", financeDraft("continente", 42), "compras")
	assert.Empty(t, out)
}

func TestSpendingVelocity(t *testing.T) {
	lookup := &fakeLookup{rates: map[int]float64{7: 30, 30: 10}}
	e := newTestEngine(t, lookup, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", financeDraft("continente", 42), "compras")

	require.Len(t, out, 1)
	assert.Equal(t, KindSpendingVelocity, out[0].Kind)
	assert.InDelta(t, 0.825, out[0].Confidence, 0.001)
	assert.InDelta(t, 3.0, out[0].Mutations["velocity_ratio"].(float64), 0.001)
}

func TestSpendingVelocityBelowRatio(t *testing.T) {
	lookup := &fakeLookup{rates: map[int]float64{7: 14, 30: 10}}
	e := newTestEngine(t, lookup, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", financeDraft("continente", 42), "compras")
	assert.Empty(t, out)
}

func TestSpendingVelocityNoBaseline(t *testing.T) {
	lookup := &fakeLookup{rates: map[int]float64{7: 30, 30: 0}}
	e := newTestEngine(t, lookup, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", financeDraft("continente", 42), "compras")
	assert.Empty(t, out)
}

func TestDeduceSortsByConfidenceDescending(t *testing.T) {
	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	var hits []MemoryHit
	for i := 0; i < 4; i++ {
		hits = append(hits, MemoryHit{
			Metadata:  map[string]any{"merchant": "fnac"},
			CreatedAt: base.AddDate(0, 0, 7*i),
		})
	}
	lookup := &fakeLookup{
		bioDates: []BioDate{{Label: "aniversario da mae", Month: 3, Day: 12}},
		rates:    map[int]float64{7: 30, 30: 10},
		memories: hits,
	}
	e := newTestEngine(t, lookup, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", financeDraft("fnac", 35), "presente para a mae")

	require.Len(t, out, 3)
	assert.Equal(t, KindSpendingVelocity, out[0].Kind)
	assert.Equal(t, KindRoutineDetected, out[1].Kind)
	assert.Equal(t, KindCalendarCorrelation, out[2].Kind)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Confidence, out[i].Confidence)
	}
}

func TestDeduceLookupFailureDegrades(t *testing.T) {
	lookup := &fakeLookup{bioErr: assert.AnError}
	e := newTestEngine(t, lookup, &fakeSink{})

	out := e.Deduce(context.Background(), "u1", financeDraft("fnac", 35), "presente para a mae")
	assert.Empty(t, out)
}

func TestPersistStoresAttachedMemories(t *testing.T) {
	sink := &fakeSink{}
	e := newTestEngine(t, &fakeLookup{}, sink)

	e.Persist(context.Background(), "u1", []Deduction{
		{Kind: KindCalendarCorrelation, Memory: &MemoryRecord{Kind: "calendar_correlation", Text: "x"}},
		{Kind: KindFinancialPrefill},
	})
	assert.Equal(t, []string{"calendar_correlation"}, sink.stored)
}

func TestPersistSwallowsSinkErrors(t *testing.T) {
	sink := &fakeSink{err: assert.AnError}
	e := newTestEngine(t, &fakeLookup{}, sink)

	e.Persist(context.Background(), "u1", []Deduction{
		{Kind: KindRoutineDetected, Memory: &MemoryRecord{Kind: "routine_detected", Text: "x"}},
	})
	assert.Empty(t, sink.stored)
}

func TestDaysToOccasion(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	// December 30 of the previous year is closer than the next one.
	assert.LessOrEqual(t, daysToOccasion(now, 12, 30), 3)
	assert.Equal(t, 0, daysToOccasion(now, 1, 2))
}
