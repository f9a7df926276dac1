// Package risk maps drafts to risk tiers and decides whether a draft may be
// written autonomously. Classification is purely rule-based and exhaustive
// over the closed draft set; thresholds are tunable per deployment but must
// stay monotonically increasing with tier.
package risk

import (
	"context"
	"fmt"

	"github.com/dmribeiro/ambientd/internal/draft"
)

// Tier grades how much autonomy a draft may be granted.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Finance amount bands.
const (
	financeLowMax    = 50.0
	financeMediumMax = 200.0
)

// Thresholds holds the per-tier confidence bars.
type Thresholds struct {
	Low    float64
	Medium float64
	High   float64
}

// DefaultThresholds returns the deployment defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.88, Medium: 0.92, High: 0.97}
}

// Validate rejects threshold sets that break the tier ordering invariant.
func (t Thresholds) Validate() error {
	if t.Low <= 0 || t.High > 1 {
		return fmt.Errorf("thresholds must lie in (0,1], got low=%.2f high=%.2f", t.Low, t.High)
	}
	if t.Low > t.Medium || t.Medium > t.High {
		return fmt.Errorf("thresholds must be monotonic: low=%.2f medium=%.2f high=%.2f", t.Low, t.Medium, t.High)
	}
	return nil
}

// For returns the confidence bar for a tier.
func (t Thresholds) For(tier Tier) float64 {
	switch tier {
	case TierLow:
		return t.Low
	case TierMedium:
		return t.Medium
	default:
		return t.High
	}
}

// Classify derives the risk tier from the draft's domain-specific rules.
// Never user-settable directly.
func Classify(d draft.Draft) Tier {
	switch d.Kind {
	case draft.KindFinance:
		if d.Finance == nil || d.Finance.Amount == nil {
			// No amount means strict parameters fail anyway; grade
			// conservatively for observability.
			return TierMedium
		}
		amt := *d.Finance.Amount
		switch {
		case amt <= financeLowMax:
			return TierLow
		case amt <= financeMediumMax:
			return TierMedium
		default:
			return TierHigh
		}
	case draft.KindTodo, draft.KindLink:
		return TierLow
	case draft.KindCrypto:
		if d.Crypto == nil {
			return TierHigh
		}
		switch d.Crypto.Action {
		case "hold":
			return TierLow
		case "swap":
			return TierMedium
		default: // buy, sell, anything unknown
			return TierHigh
		}
	default:
		return TierHigh
	}
}

// Decision is the auto-commit verdict for one draft.
type Decision struct {
	AutoCommit       bool    `json:"auto_commit"`
	Tier             Tier    `json:"risk_tier"`
	DynamicThreshold float64 `json:"dynamic_threshold"`
}

// Evaluate computes the tier and threshold and decides whether to commit
// autonomously. When strict parameters are not met the result always reports
// AutoCommit=false but still carries tier and threshold for observability.
func Evaluate(d draft.Draft, th Thresholds) Decision {
	tier := Classify(d)
	bar := th.For(tier)
	return Decision{
		AutoCommit:       d.StrictParametersMet && d.Confidence >= bar,
		Tier:             tier,
		DynamicThreshold: bar,
	}
}

// WriteResult is what a domain writer reports for one insert attempt.
type WriteResult struct {
	Executed   bool   `json:"executed"`
	ExternalID string `json:"external_id,omitempty"`
	Reason     string `json:"reason"`
}

// Writer persists one draft domain. The crypto writer logs intents only; it
// must never submit an on-chain or exchange order.
type Writer interface {
	Insert(ctx context.Context, userID string, d draft.Draft) WriteResult
}

// AutoCommitResult is the immutable record of one commit attempt. A failed or
// anomalous commit is never silently retried with different parameters.
type AutoCommitResult struct {
	Executed         bool       `json:"executed"`
	Module           draft.Kind `json:"module"`
	RiskTier         Tier       `json:"risk_tier"`
	DynamicThreshold float64    `json:"dynamic_threshold"`
	Confidence       float64    `json:"confidence"`
	ExternalID       string     `json:"external_id,omitempty"`
	Reason           string     `json:"reason"`
}
