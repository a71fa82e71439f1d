package domain

import "time"

// Username length limits.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
)

// User is a marketplace participant. Per-chain addresses are keyed by
// currency ticker ("NANO", "AR", "DOGE", "USDC").
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`

	Addresses map[string]string `json:"addresses,omitempty"`

	// ReputationScore is clamped to [0,100] and changes only through an
	// audited adjustment carrying a reason string.
	ReputationScore float64 `json:"reputation_score"`

	// Inventory is the list of item IDs the user currently owns.
	Inventory []string `json:"inventory,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ValidateUsername checks the 3-32 character constraint.
func (u *User) ValidateUsername() error {
	n := len(u.Username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return Validation("username", "must be %d-%d characters, got %d",
			MinUsernameLength, MaxUsernameLength, n)
	}
	return nil
}

// Address returns the user's address for the given currency, or "".
func (u *User) Address(currency string) string {
	return u.Addresses[currency]
}

// ReputationEvent is one audited reputation adjustment.
type ReputationEvent struct {
	UserID    string    `json:"user_id"`
	Delta     float64   `json:"delta"`
	Reason    string    `json:"reason"`
	Score     float64   `json:"score"` // score after applying the delta
	CreatedAt time.Time `json:"created_at"`
}
