package core

import "time"

// Operator represents a staff member allowed into the dashboard
//
// This is the "credential record" - it proves who someone is locally and
// points at the identity the external provider keeps for them
type Operator struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	PasswordHash *string `json:"-"` // nil until the operator completes registration
	IdentityID   *string `json:"identityId,omitempty"`
	StoreID      *string `json:"storeId,omitempty"`

	// Reset token fields are always set and cleared together
	ResetTokenHash      *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Registered reports whether the operator has set a password.
func (o *Operator) Registered() bool {
	return o != nil && o.PasswordHash != nil
}

// Identity is the account the external identity provider owns.
//
// It is only ever referenced by ID from an Operator.
type Identity struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Session is what the identity provider hands back on a password sign-in.
// It is returned to the caller and never persisted.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at,omitempty"`
	TokenType    string    `json:"token_type"`
	User         *Identity `json:"user"`
}

// ResetToken is the stored half of a password reset token.
type ResetToken struct {
	Hash      string
	ExpiresAt time.Time
}
