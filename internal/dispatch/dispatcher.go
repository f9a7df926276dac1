// Package dispatch implements the reflex classifier: a pure, deterministic
// mapping from a normalized signal to one of the four action domains plus a
// structured field extraction and a calibrated confidence.
//
// Four independent matchers run against every signal; the highest local
// confidence wins. No I/O, no external calls, never an error: an empty or
// unparseable signal resolves to "unresolved" with confidence zero.
package dispatch

import (
	"strings"

	"github.com/dmribeiro/ambientd/internal/draft"
	"github.com/dmribeiro/ambientd/internal/lexicon"
	"github.com/dmribeiro/ambientd/internal/signal"
)

// Module is the resolved action domain.
type Module string

const (
	ModuleFinance    Module = "finance"
	ModuleTodo       Module = "todo"
	ModuleCrypto     Module = "crypto"
	ModuleLinks      Module = "links"
	ModuleUnresolved Module = "unresolved"
)

// Strategy selects the resolution path for a signal.
type Strategy string

const (
	// StrategyTacticalReflex means every field required for autonomous
	// action was extracted locally.
	StrategyTacticalReflex Strategy = "tactical_reflex"
	// StrategySemanticDeepDive means the fallback language model (or the
	// user) must close the gap.
	StrategySemanticDeepDive Strategy = "semantic_deep_dive"
)

// matcherFloor is the minimum local confidence a matcher must reach for its
// module to be considered resolved at all.
const matcherFloor = 0.35

// Extracted is the domain-tagged bag of nullable fields pulled from a signal.
type Extracted struct {
	Merchant     string   `json:"merchant,omitempty"`
	Category     string   `json:"category,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	TodoTitle    string   `json:"todo_title,omitempty"`
	TodoPriority string   `json:"todo_priority,omitempty"`
	TodoDueHint  string   `json:"todo_due_hint,omitempty"`
	CryptoAction string   `json:"crypto_action,omitempty"`
	CryptoSymbol string   `json:"crypto_symbol,omitempty"`
	CryptoAmount *float64 `json:"crypto_amount,omitempty"`
	CryptoPrice  *float64 `json:"crypto_price,omitempty"`
	LinkURL      string   `json:"link_url,omitempty"`
	LinkTitle    string   `json:"link_title,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
}

// Decision is the dispatcher's full verdict for one signal.
type Decision struct {
	Module              Module    `json:"module"`
	Strategy            Strategy  `json:"strategy"`
	Confidence          float64   `json:"confidence"`
	StrictParametersMet bool      `json:"strict_parameters_met"`
	Reason              []string  `json:"reason"`
	Extracted           Extracted `json:"extracted"`
	MissingFields       []string  `json:"missing_fields,omitempty"`
}

type matchResult struct {
	module    Module
	conf      float64
	strict    bool
	reasons   []string
	missing   []string
	extracted Extracted
}

// Dispatcher evaluates signals against the lexicon tables.
type Dispatcher struct {
	lex *lexicon.Table
}

// New returns a dispatcher bound to the given lexicon.
func New(lex *lexicon.Table) *Dispatcher {
	return &Dispatcher{lex: lex}
}

// Evaluate classifies one signal. Pure function of the signal and the lexicon.
func (d *Dispatcher) Evaluate(sig signal.RawSignal) Decision {
	text := sig.NormalizedText
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return unresolvedDecision("empty_signal")
	}

	candidates := []matchResult{
		d.matchFinance(tokens, sig.OCRTrace),
		d.matchTodo(text, tokens),
		d.matchCrypto(tokens),
		d.matchLinks(text, tokens),
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.conf > best.conf {
			best = c
		}
	}
	if best.conf < matcherFloor {
		return unresolvedDecision("no_matcher_above_floor")
	}

	strategy := StrategySemanticDeepDive
	if best.strict {
		strategy = StrategyTacticalReflex
	}
	return Decision{
		Module:              best.module,
		Strategy:            strategy,
		Confidence:          clamp01(best.conf),
		StrictParametersMet: best.strict,
		Reason:              best.reasons,
		Extracted:           best.extracted,
		MissingFields:       best.missing,
	}
}

func unresolvedDecision(reason string) Decision {
	return Decision{
		Module:   ModuleUnresolved,
		Strategy: StrategySemanticDeepDive,
		Reason:   []string{"matcher=none", reason},
	}
}

// Draft converts a resolved decision into its module draft. The raw text is
// kept as the finance description so original casing survives storage.
func (dec Decision) Draft(rawText string) (draft.Draft, bool) {
	base := draft.Draft{
		Confidence:          dec.Confidence,
		StrictParametersMet: dec.StrictParametersMet,
	}
	ex := dec.Extracted
	switch dec.Module {
	case ModuleFinance:
		base.Kind = draft.KindFinance
		base.Finance = &draft.Finance{
			Merchant:    ex.Merchant,
			Category:    ex.Category,
			Currency:    ex.Currency,
			Description: rawText,
			Amount:      ex.Amount,
		}
	case ModuleTodo:
		base.Kind = draft.KindTodo
		base.Todo = &draft.Todo{
			Title:    ex.TodoTitle,
			Priority: ex.TodoPriority,
			DueHint:  ex.TodoDueHint,
		}
	case ModuleCrypto:
		base.Kind = draft.KindCrypto
		base.Crypto = &draft.Crypto{
			Action:    ex.CryptoAction,
			Symbol:    ex.CryptoSymbol,
			Quantity:  ex.CryptoAmount,
			UnitPrice: ex.CryptoPrice,
		}
	case ModuleLinks:
		base.Kind = draft.KindLink
		base.Link = &draft.Link{URL: ex.LinkURL, Title: ex.LinkTitle}
	default:
		return draft.Draft{}, false
	}
	return base, true
}

// tokenize splits normalized text into tokens with edge punctuation trimmed.
// Interior separators stay intact so amounts ("45,90") and URLs survive.
func tokenize(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.Trim(f, ".,;:!?()[]{}\"'")
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var stopwords = map[string]bool{
	"o": true, "a": true, "os": true, "as": true, "um": true, "uma": true,
	"de": true, "do": true, "da": true, "dos": true, "das": true,
	"e": true, "em": true, "no": true, "na": true, "para": true, "por": true,
	"me": true, "te": true, "mim": true, "este": true, "esta": true,
	"esse": true, "essa": true, "isto": true, "isso": true, "que": true,
	"ai": true, "ya": true, "mano": true, "bro": true, "pa": true,
	"favor": true, "foi": true, "quero": true,
}
