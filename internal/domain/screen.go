package domain

import "time"

// Screen actions. A deny short-circuits evaluation with a synthetic fraud
// result; an allow skips the ensemble entirely.
const (
	ScreenActionAllow = "allow"
	ScreenActionDeny  = "deny"
)

// ScreenRule is an operator-defined CEL expression evaluated against a
// transaction before the fraud ensemble runs. Rules are evaluated in
// priority order; the first rule whose expression is true wins.
type ScreenRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is a CEL expression over amount, currency, tx_type, hour,
	// and user_id that must evaluate to bool.
	Expression string `json:"expression"`

	// Action is "allow" or "deny".
	Action string `json:"action"`

	Priority int  `json:"priority"`
	Enabled  bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
