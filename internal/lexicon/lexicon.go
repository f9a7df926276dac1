// Package lexicon holds the data tables the reflex matchers run against:
// merchant brands, slang verbs, urgency/gift keywords, crypto symbols and
// currency tokens. The tables are plain YAML so deployments can localize or
// extend them without touching matcher code; compiled-in defaults cover the
// common Portuguese/English mix the assistant sees.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Merchant is one known brand with its spending category and spelling variants.
type Merchant struct {
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Aliases  []string `yaml:"aliases"`
}

// Table is the full set of matcher data tables.
type Table struct {
	Merchants     []Merchant          `yaml:"merchants"`
	PlaceNouns    []string            `yaml:"place_nouns"`
	BillWords     []string            `yaml:"bill_words"`
	PaymentVerbs  []string            `yaml:"payment_verbs"`
	ReminderVerbs []string            `yaml:"reminder_verbs"`
	UrgencyWords  []string            `yaml:"urgency_words"`
	GiftWords     []string            `yaml:"gift_words"`
	SaveWords     []string            `yaml:"save_words"`
	LinkNouns     []string            `yaml:"link_nouns"`
	CryptoActions map[string][]string `yaml:"crypto_actions"`
	CryptoSymbols []string            `yaml:"crypto_symbols"`
	Currencies    map[string]string   `yaml:"currencies"`
}

// Default returns the compiled-in table.
func Default() (*Table, error) {
	return parse(defaultsYAML)
}

// Load reads a table from path, or the compiled-in defaults when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon: %w", err)
	}
	if len(t.Merchants) == 0 {
		return nil, fmt.Errorf("lexicon has no merchants")
	}
	return &t, nil
}

// MerchantByToken resolves an exact brand or alias token to its merchant entry.
func (t *Table) MerchantByToken(token string) (*Merchant, bool) {
	for i := range t.Merchants {
		m := &t.Merchants[i]
		if m.Name == token {
			return m, true
		}
		for _, a := range m.Aliases {
			if a == token {
				return m, true
			}
		}
	}
	return nil, false
}

// CryptoAction resolves a verb token to its canonical action (buy/sell/swap/hold).
func (t *Table) CryptoAction(token string) (string, bool) {
	for action, verbs := range t.CryptoActions {
		for _, v := range verbs {
			if v == token {
				return action, true
			}
		}
	}
	return "", false
}

// CryptoSymbol reports whether token is a known ticker, returning it upper-cased.
func (t *Table) CryptoSymbol(token string) (string, bool) {
	for _, s := range t.CryptoSymbols {
		if s == token {
			return strings.ToUpper(token), true
		}
	}
	return "", false
}

// Currency resolves a currency token ("eur", "€", "usd") to its ISO code.
func (t *Table) Currency(token string) (string, bool) {
	code, ok := t.Currencies[token]
	return code, ok
}

func contains(list []string, token string) bool {
	for _, v := range list {
		if v == token {
			return true
		}
	}
	return false
}

// IsPlaceNoun reports whether token is a generic spending place ("cafe", "farmacia").
func (t *Table) IsPlaceNoun(token string) bool { return contains(t.PlaceNouns, token) }

// IsBillWord reports whether token signals a financial record ("fatura", "recibo").
func (t *Table) IsBillWord(token string) bool { return contains(t.BillWords, token) }

// IsPaymentVerb reports whether token is a payment-intent verb.
func (t *Table) IsPaymentVerb(token string) bool { return contains(t.PaymentVerbs, token) }

// IsReminderVerb reports whether token opens a reminder/task phrase.
func (t *Table) IsReminderVerb(token string) bool { return contains(t.ReminderVerbs, token) }

// IsUrgencyWord reports whether token raises task priority.
func (t *Table) IsUrgencyWord(token string) bool { return contains(t.UrgencyWords, token) }

// IsGiftWord reports whether token hints at a gift/occasion purchase.
func (t *Table) IsGiftWord(token string) bool { return contains(t.GiftWords, token) }

// IsSaveWord reports whether token expresses save/bookmark intent.
func (t *Table) IsSaveWord(token string) bool { return contains(t.SaveWords, token) }

// IsLinkNoun reports whether token names a linkable thing ("site", "artigo").
func (t *Table) IsLinkNoun(token string) bool { return contains(t.LinkNouns, token) }
