package domain

import (
	"time"
)

// TransactionType enumerates the transaction kinds the scoring engine knows about.
type TransactionType string

const (
	TypePayment    TransactionType = "payment"
	TypeTransfer   TransactionType = "transfer"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeDeposit    TransactionType = "deposit"
)

// ValidTransactionType reports whether t is one of the known transaction types.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TypePayment, TypeTransfer, TypeWithdrawal, TypeDeposit:
		return true
	}
	return false
}

// Transaction represents a transaction submitted for fraud evaluation.
// The scoring core treats it as read-only except for the derived fraud score.
type Transaction struct {
	ID     string          `json:"id"`
	UserID string          `json:"userId"`
	Type   TransactionType `json:"type"`

	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// FraudScore is the score attached by a previous evaluation, if any.
	// The feature extractor uses it to override the derived device risk.
	FraudScore *float64 `json:"fraudScore,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TransactionRequest is the API request payload for fraud evaluation.
type TransactionRequest struct {
	UserID   string                 `json:"userId"`
	Type     TransactionType        `json:"type"`
	Amount   float64                `json:"amount"`
	Currency string                 `json:"currency"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
func (r *TransactionRequest) ToTransaction() *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		UserID:    r.UserID,
		Type:      r.Type,
		Amount:    r.Amount,
		Currency:  r.Currency,
		Timestamp: now,
		CreatedAt: now,
		Metadata:  r.Metadata,
	}
}
