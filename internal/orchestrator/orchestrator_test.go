package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmribeiro/ambientd/internal/deduce"
	"github.com/dmribeiro/ambientd/internal/dispatch"
	"github.com/dmribeiro/ambientd/internal/draft"
	"github.com/dmribeiro/ambientd/internal/lexicon"
	"github.com/dmribeiro/ambientd/internal/memory"
	"github.com/dmribeiro/ambientd/internal/risk"
	"github.com/dmribeiro/ambientd/internal/shadow"
	"github.com/dmribeiro/ambientd/internal/signal"
	"github.com/dmribeiro/ambientd/internal/storage"
	"github.com/dmribeiro/ambientd/internal/store"
)

type testEnv struct {
	orch       *Orchestrator
	handshakes *store.HandshakeStore
	memories   *memory.Service
	db         *storage.DB
}

func newTestEnv(t *testing.T, fallback FallbackClient) *testEnv {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "ambientd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	lex, err := lexicon.Default()
	require.NoError(t, err)

	logger := zap.NewNop()
	memories := memory.NewService(db)
	history := store.NewHistory(db, memories)
	handshakes := store.NewHandshakeStore(db)

	orch := New(Params{
		Dispatcher: dispatch.New(lex),
		Deducer:    deduce.NewEngine(history, memories, lex, logger),
		Thresholds: risk.DefaultThresholds(),
		Writers:    store.Writers(db),
		Verifier:   shadow.NewVerifier(store.NewAggregates(db), logger),
		Handshakes: handshakes,
		Memories:   memories,
		Fallback:   fallback,
		Logger:     logger,
	})
	return &testEnv{orch: orch, handshakes: handshakes, memories: memories, db: db}
}

func routeText(t *testing.T, env *testEnv, userID, text string) RouteResult {
	t.Helper()
	res, err := env.orch.Route(context.Background(), userID, signal.New(signal.TypeText, text, nil))
	require.NoError(t, err)
	return res
}

func TestRouteFinanceAutoCommit(t *testing.T) {
	env := newTestEnv(t, nil)
	res := routeText(t, env, "u1", "ya fatura continente 12,50 eur foi hoje")

	assert.Equal(t, dispatch.ModuleFinance, res.Route)
	assert.Equal(t, dispatch.StrategyTacticalReflex, res.Strategy)
	assert.Equal(t, NextAutoCommitted, res.NextAction)

	require.NotNil(t, res.AutoCommit)
	assert.True(t, res.AutoCommit.Executed)
	assert.Equal(t, risk.TierLow, res.AutoCommit.RiskTier)
	assert.Equal(t, 0.88, res.AutoCommit.DynamicThreshold)

	require.NotNil(t, res.Verification)
	assert.Equal(t, shadow.VerdictVerified, res.Verification.Verdict)
	assert.Equal(t, 1, res.Verification.ActualDelta.EntryCount)
	assert.InDelta(t, 12.5, res.Verification.ActualDelta.AmountSum, 0.01)

	assert.Equal(t, store.StatusAutoCommitted, res.HandshakeStatus)
	assert.NotEmpty(t, res.HandshakeID)

	var count int
	require.NoError(t, env.db.Conn().QueryRow(`
		SELECT COUNT(*) FROM finance_entries WHERE user_id = 'u1' AND merchant = 'continente'
	`).Scan(&count))
	assert.Equal(t, 1, count)

	// The committed entry seeds the routine detector.
	hits, err := env.memories.Search(context.Background(), "u1", "continente",
		[]string{"recurring_merchant"}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRouteTodoAutoCommit(t *testing.T) {
	env := newTestEnv(t, nil)
	res := routeText(t, env, "u1", "mano lembra me pagar o seguro da carrinha amanha")

	assert.Equal(t, dispatch.ModuleTodo, res.Route)
	assert.Equal(t, NextAutoCommitted, res.NextAction)
	require.NotNil(t, res.Verification)
	assert.Equal(t, shadow.VerdictVerified, res.Verification.Verdict)

	var title, priority, dueHint string
	require.NoError(t, env.db.Conn().QueryRow(`
		SELECT title, priority, due_hint FROM todos WHERE user_id = 'u1'
	`).Scan(&title, &priority, &dueHint))
	assert.Equal(t, "pagar o seguro da carrinha", title)
	assert.Equal(t, "high", priority)
	assert.Equal(t, "tomorrow", dueHint)
}

func TestRouteLinkAutoCommit(t *testing.T) {
	env := newTestEnv(t, nil)
	res := routeText(t, env, "u1", "guarda ai este site interessante www.openai.com/research")

	assert.Equal(t, dispatch.ModuleLinks, res.Route)
	assert.Equal(t, NextAutoCommitted, res.NextAction)
	require.NotNil(t, res.Verification)
	assert.Equal(t, shadow.VerdictVerified, res.Verification.Verdict)
	assert.Contains(t, res.Verification.ForensicNote, "write-ack")

	var url string
	require.NoError(t, env.db.Conn().QueryRow(`SELECT url FROM links WHERE user_id = 'u1'`).Scan(&url))
	assert.Equal(t, "https://www.openai.com/research", url)
}

func TestRouteCryptoHighTierNeedsHandshake(t *testing.T) {
	env := newTestEnv(t, nil)
	res := routeText(t, env, "u1", "bro comprar 0.05 btc a 62000 usd em dca")

	assert.Equal(t, dispatch.ModuleCrypto, res.Route)
	assert.True(t, res.StrictParametersMet)
	assert.Equal(t, NextAction("ambient_crypto_handshake"), res.NextAction)
	assert.Nil(t, res.AutoCommit)
	assert.Equal(t, store.StatusPendingConfirmation, res.HandshakeStatus)

	var count int
	require.NoError(t, env.db.Conn().QueryRow(`SELECT COUNT(*) FROM crypto_intents`).Scan(&count))
	assert.Zero(t, count, "a pending handshake must not log an intent")
}

func TestRouteMediumTierBelowThresholdNeedsHandshake(t *testing.T) {
	env := newTestEnv(t, nil)
	// Merchant and amount resolve but with little corroboration: 0.80 < 0.92.
	res := routeText(t, env, "u1", "continente 120")

	assert.Equal(t, dispatch.ModuleFinance, res.Route)
	assert.True(t, res.StrictParametersMet)
	assert.Equal(t, NextAction("ambient_finance_handshake"), res.NextAction)
	assert.Nil(t, res.AutoCommit)

	var count int
	require.NoError(t, env.db.Conn().QueryRow(`SELECT COUNT(*) FROM finance_entries`).Scan(&count))
	assert.Zero(t, count)
}

func TestRouteUnresolvedWithoutFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	res := routeText(t, env, "u1", "xyzzy plugh")

	assert.Equal(t, dispatch.ModuleUnresolved, res.Route)
	assert.Equal(t, NextQueryFallback, res.NextAction)
	assert.Equal(t, store.StatusPendingConfirmation, res.HandshakeStatus)
}

func TestRouteDeepDiveWithoutFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	res := routeText(t, env, "u1", "quero comprar cripto")

	assert.Equal(t, dispatch.ModuleCrypto, res.Route)
	assert.Equal(t, dispatch.StrategySemanticDeepDive, res.Strategy)
	assert.False(t, res.StrictParametersMet)
	assert.Equal(t, NextQueryFallback, res.NextAction)
}

type staticFallback struct {
	reply string
	err   error
	calls int
}

func (f *staticFallback) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestRouteFallbackClosesFieldGap(t *testing.T) {
	fb := &staticFallback{
		reply: `{"module":"crypto","crypto_action":"buy","crypto_symbol":"eth","confidence":0.9}`,
	}
	env := newTestEnv(t, fb)
	res := routeText(t, env, "u1", "quero comprar cripto")

	assert.Equal(t, 1, fb.calls)
	assert.Equal(t, dispatch.ModuleCrypto, res.Route)
	assert.Equal(t, dispatch.StrategySemanticDeepDive, res.Strategy)
	assert.True(t, res.StrictParametersMet)
	assert.InDelta(t, 0.9, res.Confidence, 0.001)
	assert.Contains(t, res.Reason, "fallback=llm")
	// Still below the high-tier bar, so the commit waits for the user.
	assert.Equal(t, NextAction("ambient_crypto_handshake"), res.NextAction)
}

func TestRouteFallbackConfidenceCeiling(t *testing.T) {
	fb := &staticFallback{
		reply: "```json\n" + `{"module":"links","link_url":"https://example.com","confidence":0.99}` + "\n```",
	}
	env := newTestEnv(t, fb)
	res := routeText(t, env, "u1", "guarda este link para mim")

	assert.Equal(t, dispatch.ModuleLinks, res.Route)
	assert.True(t, res.StrictParametersMet)
	assert.InDelta(t, fallbackCeiling, res.Confidence, 0.001)
	// 0.93 clears the low-tier bar: the link commits despite the deep dive.
	assert.Equal(t, NextAutoCommitted, res.NextAction)
}

func TestRouteFallbackFailureDegrades(t *testing.T) {
	fb := &staticFallback{err: assert.AnError}
	env := newTestEnv(t, fb)
	res := routeText(t, env, "u1", "quero comprar cripto")

	assert.Equal(t, dispatch.ModuleCrypto, res.Route)
	assert.False(t, res.StrictParametersMet)
	assert.Equal(t, NextClarification, res.NextAction)
}

func TestRouteFallbackUnparseableJSON(t *testing.T) {
	fb := &staticFallback{reply: "sorry, I cannot help with that"}
	env := newTestEnv(t, fb)
	res := routeText(t, env, "u1", "xyzzy plugh")

	assert.Equal(t, dispatch.ModuleUnresolved, res.Route)
	assert.Equal(t, NextClarification, res.NextAction)
}

func TestRouteUsersIsolated(t *testing.T) {
	env := newTestEnv(t, nil)
	routeText(t, env, "u1", "ya fatura continente 12,50 eur foi hoje")
	routeText(t, env, "u2", "ya fatura lidl 9,90 eur foi hoje")

	events, err := env.handshakes.Recent(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "finance", events[0].Module)

	var count int
	require.NoError(t, env.db.Conn().QueryRow(`
		SELECT COUNT(*) FROM finance_entries WHERE user_id = 'u2'
	`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestHandshakeActionNaming(t *testing.T) {
	assert.Equal(t, NextAction("ambient_finance_handshake"), handshakeAction(dispatch.ModuleFinance))
	assert.Equal(t, NextAction("ambient_todo_handshake"), handshakeAction(dispatch.ModuleTodo))
	assert.Equal(t, NextAction("ambient_crypto_handshake"), handshakeAction(dispatch.ModuleCrypto))
	assert.Equal(t, NextAction("ambient_links_handshake"), handshakeAction(dispatch.ModuleLinks))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`  {"a":1}  `))
}

func TestStrictCheck(t *testing.T) {
	strict, missing := strictCheck(dispatch.ModuleFinance, dispatch.Extracted{Merchant: "continente"})
	assert.False(t, strict)
	assert.Equal(t, []string{"amount"}, missing)

	v := 10.0
	strict, missing = strictCheck(dispatch.ModuleFinance, dispatch.Extracted{Merchant: "continente", Amount: &v})
	assert.True(t, strict)
	assert.Empty(t, missing)

	strict, _ = strictCheck(dispatch.ModuleCrypto, dispatch.Extracted{CryptoAction: "buy"})
	assert.False(t, strict)
}

func TestDraftKindMatchesRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	res := routeText(t, env, "u1", "ya fatura continente 12,50 eur foi hoje")

	require.NotNil(t, res.Draft)
	assert.Equal(t, draft.KindFinance, res.Draft.Kind)
	require.NotNil(t, res.Draft.Finance)
	assert.Equal(t, "ya fatura continente 12,50 eur foi hoje", res.Draft.Finance.Description)
}
