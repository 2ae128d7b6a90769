package domain

import "time"

// Loyalty transaction types
const (
	LoyaltyWelcomeBonus = "WELCOME_BONUS"
	LoyaltyEarned       = "EARNED"
	LoyaltyRedeemed     = "REDEEMED"
	LoyaltyAdjustment   = "ADJUSTMENT"
)

const WelcomeBonusPoints = 50

// LoyaltyTransaction is an immutable ledger entry. Corrections are new
// offsetting entries, never updates.
type LoyaltyTransaction struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Points      int       `json:"points"`
	Type        string    `json:"transaction_type"`
	Description string    `json:"description"`
	ReferenceID string    `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
