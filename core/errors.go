package core

import (
	"errors"
	"strings"
)

// Kind classifies an error into one of the outcomes a caller can see.
type Kind uint8

const (
	KindInternal     Kind = iota // 500
	KindInvalidInput             // 400
	KindUnauthorized             // 401
	KindForbidden                // 403
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is the error type every auth operation returns to its caller.
//
// Message is safe to show to the client. Err carries the collaborator
// failure behind an internal error and is only meant for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind and message so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Wrap returns a copy of e that carries err as its cause. The copy still
// matches e with errors.Is.
func (e *Error) Wrap(err error) error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: err}
}

// Internal wraps a collaborator failure with a client-safe message.
func Internal(message string, err error) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the part of err that may be shown to a client.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Validation errors (client input)
var (
	ErrEmailRequired         = &Error{Kind: KindInvalidInput, Message: "email is required"}                              // 400
	ErrCredentialsRequired   = &Error{Kind: KindInvalidInput, Message: "email and password are required"}                // 400
	ErrPasswordTooShort      = &Error{Kind: KindInvalidInput, Message: "password must be at least 6 characters"}         // 400
	ErrInvalidParameters     = &Error{Kind: KindInvalidInput, Message: "invalid parameters"}                             // 400
	ErrInvalidRequestBody    = &Error{Kind: KindInvalidInput, Message: "invalid request body"}                           // 400
	ErrResetTokenInvalid     = &Error{Kind: KindInvalidInput, Message: "token invalid or expired"}                       // 400
	ErrResetTokenExpired     = &Error{Kind: KindInvalidInput, Message: "token expired, request a new password reset"}    // 400
	ErrResetParamsIncomplete = &Error{Kind: KindInvalidInput, Message: "email, token and new password are all required"} // 400
)

// Authentication errors
var (
	ErrEmailNotAuthorized     = &Error{Kind: KindUnauthorized, Message: "email not authorized, contact an administrator to be added"} // 401
	ErrRegistrationIncomplete = &Error{Kind: KindUnauthorized, Message: "registration not completed, use the register tab first"}     // 401
	ErrInvalidPassword        = &Error{Kind: KindUnauthorized, Message: "incorrect password"}                                         // 401
)

// Permission errors
var (
	ErrRegistrationNotAllowed = &Error{Kind: KindForbidden, Message: "email not authorized or already registered; if you already have an account, use login"} // 403
)

// Data integrity errors
var (
	ErrMalformedPasswordHash = &Error{Kind: KindInternal, Message: "invalid password hash format"} // 500
)

// Collaborator errors. These never reach a client directly; services
// translate them into one of the errors above.
var (
	ErrOperatorNotFound           = errors.New("operator not found")
	ErrOperatorExists             = errors.New("operator already exists")
	ErrResetTokenConsumed         = errors.New("reset token no longer matches")
	ErrIdentityNotFound           = errors.New("identity not found")
	ErrIdentityExists             = errors.New("identity already exists")
	ErrIdentityInvalidCredentials = errors.New("identity provider rejected credentials")
	ErrCacheNotFound              = errors.New("identity not found in cache")
)

// Config errors (server-side configuration)
var (
	ErrDBAdapterRequired       = errors.New("database adapter is required")        // 500
	ErrIdentityAdapterRequired = errors.New("identity provider is required")       // 500
	ErrHTTPAdapterRequired     = errors.New("adapter is required")                 // 500
	ErrDashboardURLRequired    = errors.New("dashboard url is required")           // 500
	ErrInvalidDashboardURL     = errors.New("dashboard url must be absolute http") // 500
)

// ProviderError is a failure reported by the identity provider that the
// adapter could not classify into one of the sentinels above.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return "identity provider: " + e.Code + ": " + e.Message
	}
	return "identity provider: " + e.Message
}

// alreadyExistsHints are the words older providers use in their message
// when an account with the same email is already present.
var alreadyExistsHints = []string{"already", "exists", "registered"}

// IsIdentityExists reports whether err means the provider already has an
// identity for the email.
//
// The structured ErrIdentityExists is checked first. Providers that only
// report a message fall back to a case-insensitive keyword match on it.
func IsIdentityExists(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIdentityExists) {
		return true
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	msg := strings.ToLower(pe.Message)
	for _, hint := range alreadyExistsHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
