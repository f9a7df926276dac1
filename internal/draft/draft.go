// Package draft defines the closed set of action drafts a resolved signal can
// produce. The four variants are a stable domain boundary; risk classification
// and execution switch over Kind exhaustively instead of using open
// polymorphism.
package draft

// Kind tags the draft variant.
type Kind string

const (
	KindFinance Kind = "finance"
	KindTodo    Kind = "todo"
	KindCrypto  Kind = "crypto"
	KindLink    Kind = "link"
)

// Finance is a spending/bill entry draft.
type Finance struct {
	Merchant    string   `json:"merchant"`
	Category    string   `json:"category"`
	Currency    string   `json:"currency"`
	Description string   `json:"description"`
	Amount      *float64 `json:"amount"`
}

// Todo is a task draft.
type Todo struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
	DueHint  string `json:"due_hint"`
}

// Crypto is an intent-log draft. Never an order.
type Crypto struct {
	Action    string   `json:"action"`
	Symbol    string   `json:"symbol"`
	Quantity  *float64 `json:"quantity"`
	UnitPrice *float64 `json:"unit_price"`
}

// Link is a bookmark draft.
type Link struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Draft is a tagged union over the four variants. Exactly one variant pointer
// is non-nil, matching Kind. A draft is eligible for autonomous commit only
// when StrictParametersMet is true.
type Draft struct {
	Kind                Kind     `json:"kind"`
	Finance             *Finance `json:"finance,omitempty"`
	Todo                *Todo    `json:"todo,omitempty"`
	Crypto              *Crypto  `json:"crypto,omitempty"`
	Link                *Link    `json:"link,omitempty"`
	Confidence          float64  `json:"confidence"`
	StrictParametersMet bool     `json:"strict_parameters_met"`
}
