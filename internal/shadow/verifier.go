// Package shadow wraps every autonomous write in an analyse -> plan ->
// execute -> observe cycle. It reads a pre-state aggregate, predicts the
// post-state, invokes the commit exactly once, re-reads the aggregate and
// classifies the outcome. It never retries and never rolls back: a race is
// exactly what it is designed to flag, not prevent.
package shadow

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmribeiro/ambientd/internal/draft"
	"github.com/dmribeiro/ambientd/internal/risk"
)

// Verdict classifies a verified write.
type Verdict string

const (
	VerdictVerified          Verdict = "verified"
	VerdictAnomalyDetected   Verdict = "anomaly_detected"
	VerdictObservationFailed Verdict = "observation_failed"
)

// amountTolerance absorbs floating-point drift in the sum invariant.
const amountTolerance = 0.01

// Snapshot is a domain-scoped aggregate, not full rows.
type Snapshot struct {
	EntryCount int     `json:"entry_count"`
	AmountSum  float64 `json:"amount_sum"`
}

// Delta is the difference between two snapshots.
type Delta struct {
	EntryCount int     `json:"entry_count"`
	AmountSum  float64 `json:"amount_sum"`
}

// AggregateReader reads the pre/post aggregate for a draft's entity scope
// (today's finance entries for user+category, open-todo count).
type AggregateReader interface {
	Snapshot(ctx context.Context, userID string, d draft.Draft) (Snapshot, error)
}

// CommitFunc performs the actual write. Called exactly once per Verify.
type CommitFunc func(ctx context.Context) risk.WriteResult

// Result is the outcome of one shadow-plan cycle. Created and discarded
// within a single commit attempt; callers persist only the verdict and the
// forensic note.
type Result struct {
	Verdict         Verdict  `json:"verdict"`
	PreState        Snapshot `json:"pre_state"`
	PostState       Snapshot `json:"post_state"`
	ExpectedDelta   Delta    `json:"expected_delta"`
	ActualDelta     Delta    `json:"actual_delta"`
	ForensicNote    string   `json:"forensic_note"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
}

// Verifier runs shadow-plan cycles against an aggregate reader.
type Verifier struct {
	reader AggregateReader
	logger *zap.Logger
}

// NewVerifier returns a verifier bound to the given reader.
func NewVerifier(reader AggregateReader, logger *zap.Logger) *Verifier {
	return &Verifier{reader: reader, logger: logger}
}

// Verify executes the full cycle for a draft. Link and crypto commits carry
// no aggregate invariant, so they get a lightweight write-ack check only.
func (v *Verifier) Verify(ctx context.Context, userID string, d draft.Draft, commit CommitFunc) (Result, risk.WriteResult) {
	start := time.Now()

	if d.Kind == draft.KindLink || d.Kind == draft.KindCrypto {
		write := commit(ctx)
		res := Result{ExecutionTimeMs: time.Since(start).Milliseconds()}
		if write.Executed {
			res.Verdict = VerdictVerified
			res.ForensicNote = "write-ack verification only; no aggregate invariant for this domain"
		} else {
			res.Verdict = VerdictObservationFailed
			res.ForensicNote = "commit reported executed=false: " + write.Reason
		}
		return res, write
	}

	// ANALYSE
	pre, preErr := v.reader.Snapshot(ctx, userID, d)
	// PLAN
	expected := expectedDelta(d)

	res := Result{PreState: pre, ExpectedDelta: expected}

	// EXECUTE
	write := commit(ctx)
	if !write.Executed {
		res.Verdict = VerdictObservationFailed
		res.ForensicNote = "commit reported executed=false: " + write.Reason
		res.ExecutionTimeMs = time.Since(start).Milliseconds()
		return res, write
	}
	if preErr != nil {
		res.Verdict = VerdictObservationFailed
		res.ForensicNote = fmt.Sprintf("pre-state snapshot failed: %v", preErr)
		res.ExecutionTimeMs = time.Since(start).Milliseconds()
		return res, write
	}

	// OBSERVE
	post, postErr := v.reader.Snapshot(ctx, userID, d)
	if postErr != nil {
		res.Verdict = VerdictObservationFailed
		res.ForensicNote = fmt.Sprintf("post-state snapshot failed: %v", postErr)
		res.ExecutionTimeMs = time.Since(start).Milliseconds()
		return res, write
	}
	res.PostState = post
	res.ActualDelta = Delta{
		EntryCount: post.EntryCount - pre.EntryCount,
		AmountSum:  post.AmountSum - pre.AmountSum,
	}

	violations := checkInvariants(d, expected, res.ActualDelta)
	if len(violations) == 0 {
		res.Verdict = VerdictVerified
		res.ForensicNote = "all tracked invariants held"
	} else {
		res.Verdict = VerdictAnomalyDetected
		res.ForensicNote = strings.Join(violations, "; ") +
			"; plausible causes: concurrent write, cascading trigger, floating-point drift"
		v.logger.Warn("shadow plan anomaly",
			zap.String("module", string(d.Kind)),
			zap.String("forensic_note", res.ForensicNote))
	}
	res.ExecutionTimeMs = time.Since(start).Milliseconds()
	return res, write
}

func expectedDelta(d draft.Draft) Delta {
	delta := Delta{EntryCount: 1}
	if d.Kind == draft.KindFinance && d.Finance != nil && d.Finance.Amount != nil {
		delta.AmountSum = *d.Finance.Amount
	}
	return delta
}

func checkInvariants(d draft.Draft, expected, actual Delta) []string {
	var violations []string
	if actual.EntryCount != expected.EntryCount {
		violations = append(violations, fmt.Sprintf(
			"entry-count delta %d, expected %d", actual.EntryCount, expected.EntryCount))
	}
	if d.Kind == draft.KindFinance {
		if math.Abs(actual.AmountSum-expected.AmountSum) > amountTolerance {
			violations = append(violations, fmt.Sprintf(
				"amount-sum delta %.4f, expected %.4f (tolerance %.2f)",
				actual.AmountSum, expected.AmountSum, amountTolerance))
		}
	}
	return violations
}
