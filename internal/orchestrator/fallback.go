package orchestrator

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/dmribeiro/ambientd/internal/dispatch"
	"github.com/dmribeiro/ambientd/internal/signal"
)

const fallbackSystemPrompt = `You extract structured action fields from short, noisy user messages (Portuguese or English).
Respond with a single JSON object and nothing else:
{"module":"finance|todo|crypto|links|unresolved","merchant":"","amount":null,"currency":"","todo_title":"","crypto_action":"","crypto_symbol":"","crypto_amount":null,"crypto_price":null,"link_url":"","link_title":"","confidence":0.0}
Leave fields you cannot determine empty or null. confidence is your own estimate in [0,1].`

// fallbackCeiling caps how much confidence a fallback extraction can claim;
// the model's self-estimate is not calibrated against our thresholds.
const fallbackCeiling = 0.93

type fallbackExtraction struct {
	Module       string   `json:"module"`
	Merchant     string   `json:"merchant"`
	Amount       *float64 `json:"amount"`
	Currency     string   `json:"currency"`
	TodoTitle    string   `json:"todo_title"`
	CryptoAction string   `json:"crypto_action"`
	CryptoSymbol string   `json:"crypto_symbol"`
	CryptoAmount *float64 `json:"crypto_amount"`
	CryptoPrice  *float64 `json:"crypto_price"`
	LinkURL      string   `json:"link_url"`
	LinkTitle    string   `json:"link_title"`
	Confidence   float64  `json:"confidence"`
}

// fallbackResolve asks the language model to close the field gap the reflex
// matchers left. Any failure degrades to the original decision; the strategy
// stays semantic_deep_dive either way, since the reflex path alone did not
// resolve the signal.
func (o *Orchestrator) fallbackResolve(ctx context.Context, sig signal.RawSignal, dec dispatch.Decision) dispatch.Decision {
	out, err := o.fallback.Complete(ctx, fallbackSystemPrompt, sig.RawText)
	if err != nil {
		o.logger.Debug("fallback completion failed", zap.Error(err))
		return dec
	}
	var fx fallbackExtraction
	if err := json.Unmarshal([]byte(stripFences(out)), &fx); err != nil {
		o.logger.Debug("fallback returned unparseable JSON", zap.Error(err))
		return dec
	}

	merged := dec
	if merged.Module == dispatch.ModuleUnresolved {
		if m, ok := parseModule(fx.Module); ok {
			merged.Module = m
		} else {
			return dec
		}
	}

	ex := &merged.Extracted
	if ex.Merchant == "" {
		ex.Merchant = signal.Normalize(fx.Merchant)
	}
	if ex.Amount == nil {
		ex.Amount = fx.Amount
	}
	if ex.Currency == "" {
		ex.Currency = strings.ToUpper(fx.Currency)
	}
	if ex.TodoTitle == "" {
		ex.TodoTitle = strings.TrimSpace(fx.TodoTitle)
	}
	if ex.CryptoAction == "" {
		ex.CryptoAction = strings.ToLower(fx.CryptoAction)
	}
	if ex.CryptoSymbol == "" {
		ex.CryptoSymbol = strings.ToUpper(fx.CryptoSymbol)
	}
	if ex.CryptoAmount == nil {
		ex.CryptoAmount = fx.CryptoAmount
	}
	if ex.CryptoPrice == nil {
		ex.CryptoPrice = fx.CryptoPrice
	}
	if ex.LinkURL == "" {
		ex.LinkURL = fx.LinkURL
	}
	if ex.LinkTitle == "" {
		ex.LinkTitle = fx.LinkTitle
	}

	merged.StrictParametersMet, merged.MissingFields = strictCheck(merged.Module, *ex)
	conf := fx.Confidence
	if conf > fallbackCeiling {
		conf = fallbackCeiling
	}
	if conf > merged.Confidence {
		merged.Confidence = conf
	}
	merged.Reason = append(merged.Reason, "fallback=llm")
	return merged
}

func parseModule(s string) (dispatch.Module, bool) {
	switch dispatch.Module(s) {
	case dispatch.ModuleFinance, dispatch.ModuleTodo, dispatch.ModuleCrypto, dispatch.ModuleLinks:
		return dispatch.Module(s), true
	default:
		return dispatch.ModuleUnresolved, false
	}
}

// strictCheck re-derives the strict-parameters verdict after a merge.
func strictCheck(m dispatch.Module, ex dispatch.Extracted) (bool, []string) {
	var missing []string
	switch m {
	case dispatch.ModuleFinance:
		if ex.Merchant == "" {
			missing = append(missing, "merchant")
		}
		if ex.Amount == nil {
			missing = append(missing, "amount")
		}
	case dispatch.ModuleTodo:
		if ex.TodoTitle == "" {
			missing = append(missing, "todo_title")
		}
	case dispatch.ModuleCrypto:
		if ex.CryptoAction == "" {
			missing = append(missing, "crypto_action")
		}
		if ex.CryptoSymbol == "" {
			missing = append(missing, "crypto_symbol")
		}
	case dispatch.ModuleLinks:
		if ex.LinkURL == "" {
			missing = append(missing, "link_url")
		}
	}
	return len(missing) == 0, missing
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
