package core

import (
	"strings"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password registration and reset accept.
const MinPasswordLength = 6

// NormalizeEmail returns the form every lookup and write uses.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PasswordLongEnough counts characters, not bytes.
func PasswordLongEnough(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength
}

// LoginInput contains the credentials for authentication
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult contains the session minted by the identity provider
type LoginResult struct {
	Session *Session `json:"session"`
}

// RegisterInput contains the data needed to complete onboarding
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResult reports a completed registration.
//
// When LoginRequired is set the password was saved but the automatic
// sign-in failed, so Session is nil and the operator has to log in.
type RegisterResult struct {
	Session       *Session `json:"session,omitempty"`
	LoginRequired bool     `json:"loginRequired,omitempty"`
}

// ResetRequestInput starts a password reset
type ResetRequestInput struct {
	Email string `json:"email"`
}

// ResetRequestResult is identical for known and unknown emails.
type ResetRequestResult struct {
	Message string `json:"message"`
}

// ResetPasswordInput completes a password reset
type ResetPasswordInput struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPasswordResult reports a consumed reset token.
//
// IdentitySynced is false when the new password could not be pushed to the
// linked identity; the local hash is still authoritative for login.
type ResetPasswordResult struct {
	Message        string `json:"message"`
	IdentitySynced bool   `json:"identitySynced"`
}
