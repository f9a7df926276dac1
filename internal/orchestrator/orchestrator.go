// Package orchestrator sequences the full decision cycle for one inbound
// signal: dispatch, deduction, risk policy, shadow-verified execution, and
// the append-only handshake audit record. Cycles are serialized per user;
// different users run concurrently.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dmribeiro/ambientd/internal/deduce"
	"github.com/dmribeiro/ambientd/internal/dispatch"
	"github.com/dmribeiro/ambientd/internal/draft"
	"github.com/dmribeiro/ambientd/internal/risk"
	"github.com/dmribeiro/ambientd/internal/shadow"
	"github.com/dmribeiro/ambientd/internal/signal"
	"github.com/dmribeiro/ambientd/internal/store"
)

// NextAction tells the caller what happens after this decision.
type NextAction string

const (
	NextAutoCommitted NextAction = "auto_committed"
	NextClarification NextAction = "ambient_clarification"
	NextQueryFallback NextAction = "query_fallback_with_context"
)

// handshakeAction is the per-module confirmation tag
// (ambient_finance_handshake, ambient_todo_handshake, ...).
func handshakeAction(m dispatch.Module) NextAction {
	return NextAction(fmt.Sprintf("ambient_%s_handshake", m))
}

// FallbackClient is the language-model fallback consulted for
// semantic_deep_dive signals. Nil when the deployment disables it.
type FallbackClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// MemorySink persists best-effort memory records.
type MemorySink interface {
	Store(ctx context.Context, userID, kind, text string, metadata map[string]any) error
}

// RouteResult is the decision API response shape for one signal.
type RouteResult struct {
	SignalID            string                 `json:"signal_id"`
	Strategy            dispatch.Strategy      `json:"strategy"`
	Route               dispatch.Module        `json:"route"`
	Confidence          float64                `json:"confidence"`
	Reason              []string               `json:"reason"`
	StrictParametersMet bool                   `json:"strict_parameters_met"`
	Draft               *draft.Draft           `json:"draft,omitempty"`
	MissingFields       []string               `json:"missing_fields,omitempty"`
	NextAction          NextAction             `json:"next_action"`
	Deductions          []deduce.Deduction     `json:"deductions,omitempty"`
	AutoCommit          *risk.AutoCommitResult `json:"auto_commit,omitempty"`
	Verification        *shadow.Result         `json:"verification,omitempty"`
	HandshakeID         string                 `json:"handshake_id,omitempty"`
	HandshakeStatus     string                 `json:"handshake_status,omitempty"`
}

// Orchestrator owns the per-signal pipeline.
type Orchestrator struct {
	dispatcher *dispatch.Dispatcher
	deducer    *deduce.Engine
	thresholds risk.Thresholds
	writers    map[draft.Kind]risk.Writer
	verifier   *shadow.Verifier
	handshakes *store.HandshakeStore
	memories   MemorySink
	fallback   FallbackClient
	logger     *zap.Logger
	locks      userLocks
}

// Params carries the orchestrator's collaborators.
type Params struct {
	Dispatcher *dispatch.Dispatcher
	Deducer    *deduce.Engine
	Thresholds risk.Thresholds
	Writers    map[draft.Kind]risk.Writer
	Verifier   *shadow.Verifier
	Handshakes *store.HandshakeStore
	Memories   MemorySink
	Fallback   FallbackClient
	Logger     *zap.Logger
}

// New wires an orchestrator.
func New(p Params) *Orchestrator {
	return &Orchestrator{
		dispatcher: p.Dispatcher,
		deducer:    p.Deducer,
		thresholds: p.Thresholds,
		writers:    p.Writers,
		verifier:   p.Verifier,
		handshakes: p.Handshakes,
		memories:   p.Memories,
		fallback:   p.Fallback,
		logger:     p.Logger,
	}
}

// Route runs one full decision cycle. The four stages execute strictly in
// sequence; failures degrade to "ask for confirmation" rather than errors.
// Only the audit append can fail hard, since losing the audit trail is worse
// than losing one decision.
func (o *Orchestrator) Route(ctx context.Context, userID string, sig signal.RawSignal) (RouteResult, error) {
	unlock := o.locks.lock(userID)
	defer unlock()

	dec := o.dispatcher.Evaluate(sig)
	if dec.Strategy == dispatch.StrategySemanticDeepDive && o.fallback != nil {
		dec = o.fallbackResolve(ctx, sig, dec)
	}

	res := RouteResult{
		SignalID:            sig.ID,
		Strategy:            dec.Strategy,
		Route:               dec.Module,
		Confidence:          dec.Confidence,
		Reason:              dec.Reason,
		StrictParametersMet: dec.StrictParametersMet,
		MissingFields:       dec.MissingFields,
	}

	if dec.Module == dispatch.ModuleUnresolved {
		if o.fallback == nil {
			res.NextAction = NextQueryFallback
		} else {
			res.NextAction = NextClarification
		}
		o.appendHandshake(ctx, userID, sig, &res, store.StatusPendingConfirmation, nil)
		return res, nil
	}

	d, ok := dec.Draft(sig.RawText)
	if !ok {
		res.NextAction = NextClarification
		return res, nil
	}
	res.Draft = &d

	deductions := o.deducer.Deduce(ctx, userID, d, sig.RawText)
	res.Deductions = deductions
	o.deducer.Persist(ctx, userID, deductions)

	riskDec := risk.Evaluate(d, o.thresholds)
	payload := map[string]any{
		"risk_tier":         riskDec.Tier,
		"dynamic_threshold": riskDec.DynamicThreshold,
		"confidence":        d.Confidence,
		"deductions":        deductions,
	}

	if !riskDec.AutoCommit {
		if !dec.StrictParametersMet {
			if o.fallback == nil {
				res.NextAction = NextQueryFallback
			} else {
				res.NextAction = NextClarification
			}
		} else {
			res.NextAction = handshakeAction(dec.Module)
		}
		o.appendHandshake(ctx, userID, sig, &res, store.StatusPendingConfirmation, payload)
		return res, nil
	}

	writer, ok := o.writers[d.Kind]
	if !ok {
		res.NextAction = handshakeAction(dec.Module)
		o.appendHandshake(ctx, userID, sig, &res, store.StatusPendingConfirmation, payload)
		return res, nil
	}

	shadowRes, writeRes := o.verifier.Verify(ctx, userID, d, func(ctx context.Context) risk.WriteResult {
		return writer.Insert(ctx, userID, d)
	})
	res.Verification = &shadowRes
	res.AutoCommit = &risk.AutoCommitResult{
		Executed:         writeRes.Executed,
		Module:           d.Kind,
		RiskTier:         riskDec.Tier,
		DynamicThreshold: riskDec.DynamicThreshold,
		Confidence:       d.Confidence,
		ExternalID:       writeRes.ExternalID,
		Reason:           writeRes.Reason,
	}
	payload["verdict"] = shadowRes.Verdict
	payload["forensic_note"] = shadowRes.ForensicNote
	payload["write_reason"] = writeRes.Reason

	status := store.StatusAutoCommitted
	if writeRes.Executed {
		res.NextAction = NextAutoCommitted
		o.recordOccurrence(ctx, userID, d)
	} else {
		status = store.StatusFailed
		res.NextAction = handshakeAction(dec.Module)
		o.logger.Warn("autonomous write failed",
			zap.String("module", string(d.Kind)), zap.String("reason", writeRes.Reason))
	}
	o.appendHandshake(ctx, userID, sig, &res, status, payload)
	return res, nil
}

// recordOccurrence feeds the routine detector: every committed finance entry
// leaves a recurring_merchant memory behind. Best-effort.
func (o *Orchestrator) recordOccurrence(ctx context.Context, userID string, d draft.Draft) {
	if d.Kind != draft.KindFinance || d.Finance == nil || d.Finance.Merchant == "" {
		return
	}
	meta := map[string]any{"merchant": d.Finance.Merchant}
	if d.Finance.Amount != nil {
		meta["amount"] = *d.Finance.Amount
	}
	if err := o.memories.Store(ctx, userID, "recurring_merchant", d.Finance.Merchant, meta); err != nil {
		o.logger.Warn("occurrence memory write failed", zap.Error(err))
	}
}

func (o *Orchestrator) appendHandshake(ctx context.Context, userID string, sig signal.RawSignal, res *RouteResult, status string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["reason"] = res.Reason
	id, err := o.handshakes.Append(ctx, store.HandshakeEvent{
		SignalID: sig.ID,
		UserID:   userID,
		Module:   string(res.Route),
		Status:   status,
		Payload:  payload,
	})
	if err != nil {
		o.logger.Error("handshake append failed", zap.Error(err))
		return
	}
	res.HandshakeID = id
	res.HandshakeStatus = status
}
