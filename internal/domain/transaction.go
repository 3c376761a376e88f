package domain

import (
	"time"
)

// Transaction is an incoming transaction to be scored. It is owned by the
// external transaction ledger and is immutable once scored.
type Transaction struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Transaction type (e.g., "transfer", "payment", "withdrawal")
	Type string `json:"type"`

	// Parties involved
	SourceAccountID string `json:"sourceAccountId"`
	DestAccountID   string `json:"destAccountId"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Geolocation of the originating party, ISO 3166-1 alpha-2.
	// Empty when the ledger supplied no geolocation.
	Country string `json:"country,omitempty"`

	// Temporal
	CreatedAt time.Time `json:"createdAt"`

	// Optional metadata
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the fields the scoring pipeline requires.
// A malformed transaction is the only caller-visible scoring failure.
func (t *Transaction) Validate() error {
	if t.SourceAccountID == "" {
		return wrapInvalidInput("source account id is required")
	}
	if t.Amount < 0 {
		return wrapInvalidInput("amount must not be negative")
	}
	return nil
}
