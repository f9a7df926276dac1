package dispatch

import (
	"fmt"
	"strings"

	"github.com/dmribeiro/ambientd/internal/signal"
)

// Confidence contributions for the finance matcher. Amount and merchant carry
// the weight; currency and bill words are corroboration.
const (
	financeAmountWeight    = 0.40
	financeMerchantExact   = 0.40
	financeMerchantPlace   = 0.30
	financeMerchantPrep    = 0.28
	financeMerchantFuzzy   = 0.25
	financeCurrencyWeight  = 0.08
	financeBillWordWeight  = 0.05
	financeConfidenceCap   = 0.97
	ocrTraceConfidenceCap  = 0.95
	fuzzyMerchantMinRunes  = 5
	fuzzyMerchantMaxDist   = 2
)

// matchFinance detects currency/amount tokens, merchant mentions and a
// spending category. Strict parameters require both a merchant (or an
// equivalent place keyword) and a numeric amount.
func (d *Dispatcher) matchFinance(tokens []string, trace *signal.OCRTrace) matchResult {
	res := matchResult{module: ModuleFinance, reasons: []string{"matcher=finance"}}
	ex := &res.extracted

	for i, tok := range tokens {
		if v, ok := parseAmountToken(tok); ok {
			if ex.Amount == nil {
				amt := v
				ex.Amount = &amt
			}
			if i+1 < len(tokens) {
				if code, ok := d.lex.Currency(tokens[i+1]); ok && ex.Currency == "" {
					ex.Currency = code
				}
			}
			continue
		}
		if code, ok := d.lex.Currency(tok); ok && ex.Currency == "" {
			ex.Currency = code
		}
	}

	merchantKind := d.findMerchant(tokens, ex)

	billWord := ""
	for _, tok := range tokens {
		if d.lex.IsBillWord(tok) {
			billWord = tok
			break
		}
	}

	if trace != nil {
		if ex.Merchant == "" && trace.Merchant != "" {
			ex.Merchant = signal.Normalize(trace.Merchant)
			merchantKind = "ocr_trace"
			if m, ok := d.lex.MerchantByToken(ex.Merchant); ok {
				ex.Category = m.Category
			}
		}
		if ex.Amount == nil && trace.Amount > 0 {
			amt := trace.Amount
			ex.Amount = &amt
		}
	}

	conf := 0.0
	if ex.Amount != nil {
		conf += financeAmountWeight
		res.reasons = append(res.reasons, "amount_present")
	} else {
		res.missing = append(res.missing, "amount")
		res.reasons = append(res.reasons, "amount_missing")
	}
	switch merchantKind {
	case "exact":
		conf += financeMerchantExact
	case "place":
		conf += financeMerchantPlace
	case "preposition":
		conf += financeMerchantPrep
	case "fuzzy":
		conf += financeMerchantFuzzy
	}
	if ex.Merchant != "" {
		res.reasons = append(res.reasons, "merchant="+merchantKind)
		ex.Keywords = append(ex.Keywords, ex.Merchant)
	} else {
		res.missing = append(res.missing, "merchant")
		res.reasons = append(res.reasons, "merchant_missing")
	}
	if ex.Currency != "" {
		conf += financeCurrencyWeight
		res.reasons = append(res.reasons, "currency="+ex.Currency)
	}
	if billWord != "" {
		conf += financeBillWordWeight
		res.reasons = append(res.reasons, "bill_word="+billWord)
		ex.Keywords = append(ex.Keywords, billWord)
	}

	// An OCR trace that already carries merchant+amount is trusted up to the
	// vision model's own confidence, capped below full certainty.
	if trace != nil && trace.Merchant != "" && trace.Amount > 0 {
		traceConf := trace.Confidence
		if traceConf > ocrTraceConfidenceCap {
			traceConf = ocrTraceConfidenceCap
		}
		if traceConf > conf {
			conf = traceConf
		}
		res.reasons = append(res.reasons, fmt.Sprintf("ocr_trace=%.2f", trace.Confidence))
	}

	if conf > financeConfidenceCap {
		conf = financeConfidenceCap
	}
	res.conf = conf
	res.strict = ex.Merchant != "" && ex.Amount != nil
	return res
}

// findMerchant tries, in order: exact brand/alias (bigram then unigram),
// generic place noun, prepositional "no/na X" capture, fuzzy edit-distance
// against single-word brand names. Returns the match kind or "".
func (d *Dispatcher) findMerchant(tokens []string, ex *Extracted) string {
	for i := 0; i < len(tokens)-1; i++ {
		bigram := tokens[i] + " " + tokens[i+1]
		if m, ok := d.lex.MerchantByToken(bigram); ok {
			ex.Merchant = m.Name
			ex.Category = m.Category
			return "exact"
		}
	}
	for _, tok := range tokens {
		if m, ok := d.lex.MerchantByToken(tok); ok {
			ex.Merchant = m.Name
			ex.Category = m.Category
			return "exact"
		}
	}
	for _, tok := range tokens {
		if d.lex.IsPlaceNoun(tok) {
			ex.Merchant = tok
			return "place"
		}
	}
	for i, tok := range tokens {
		if (tok == "no" || tok == "na") && i+1 < len(tokens) {
			next := tokens[i+1]
			if _, isAmount := parseAmountToken(next); !isAmount && !stopwords[next] {
				ex.Merchant = next
				return "preposition"
			}
		}
	}
	for _, tok := range tokens {
		if len([]rune(tok)) < fuzzyMerchantMinRunes || stopwords[tok] {
			continue
		}
		for i := range d.lex.Merchants {
			name := d.lex.Merchants[i].Name
			if strings.Contains(name, " ") {
				continue
			}
			if levenshtein(tok, name) <= fuzzyMerchantMaxDist {
				ex.Merchant = name
				ex.Category = d.lex.Merchants[i].Category
				return "fuzzy"
			}
		}
	}
	return ""
}
