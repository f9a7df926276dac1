// Package signal defines the immutable input unit of the routing pipeline.
//
// A signal is one piece of noisy user input (typed text, transcribed speech,
// OCR output). It is normalized once at construction; matchers only ever see
// the normalized form, while the original casing is preserved for storage.
package signal

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Type identifies the channel a signal arrived through.
type Type string

const (
	TypeText  Type = "text"
	TypeVoice Type = "voice"
	TypeOCR   Type = "ocr"
)

// OCRTrace carries pre-extracted fields from the upstream vision step.
// Confidence is the vision model's own estimate, not ours.
type OCRTrace struct {
	Merchant   string  `json:"merchant"`
	Amount     float64 `json:"amount"`
	Confidence float64 `json:"confidence"`
}

// RawSignal is a single unit of user input. Never mutated after construction.
type RawSignal struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	RawText        string    `json:"raw_text"`
	NormalizedText string    `json:"normalized_text"`
	OCRTrace       *OCRTrace `json:"ocr_trace,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// New builds a RawSignal, assigning an id and normalizing the text.
func New(typ Type, text string, trace *OCRTrace) RawSignal {
	return RawSignal{
		ID:             uuid.New().String(),
		Type:           typ,
		RawText:        text,
		NormalizedText: Normalize(text),
		OCRTrace:       trace,
		ReceivedAt:     time.Now(),
	}
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases, trims, and strips diacritics so matchers can rely on
// plain ASCII keywords ("amanhã" -> "amanha"). The original text is untouched.
func Normalize(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
