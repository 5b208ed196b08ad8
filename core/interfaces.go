package core

import (
	"context"
	"time"
)

// Ports define interfaces for external dependencies

// ============================================
// IDENTITY PROVIDER PORT
// ============================================

// IdentityProvider is the remote service that owns identities and sessions.
type IdentityProvider interface {
	// CreateIdentity creates a pre-confirmed identity. Returns
	// ErrIdentityExists when the provider already has the email.
	CreateIdentity(ctx context.Context, email, password string) (*Identity, error)

	// GetIdentity returns ErrIdentityNotFound when id is unknown.
	GetIdentity(ctx context.Context, id string) (*Identity, error)

	// ListIdentities returns every identity the provider knows about.
	ListIdentities(ctx context.Context) ([]*Identity, error)

	UpdateIdentityPassword(ctx context.Context, id, password string) error

	// SignInWithPassword returns ErrIdentityInvalidCredentials when the
	// provider rejects the email/password pair.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
}

// ============================================
// CACHE PORT
// ============================================

// IdentityCache remembers which identity id belongs to an email so the
// provider listing is not scanned on every lookup. Entries are hints only.
type IdentityCache interface {
	Get(ctx context.Context, email string) (string, error)
	Set(ctx context.Context, email, identityID string) error
	Delete(ctx context.Context, email string) error
}

// CacheConfig configures cache behavior
type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Sets      int64         `json:"sets"`
	Deletes   int64         `json:"deletes"`
	Evictions int64         `json:"evictions"`
	Size      int           `json:"size"`
	TTL       time.Duration `json:"ttl"`
}

// ============================================
// NOTIFIER PORT
// ============================================

// ResetNotification carries what the operator needs to finish a reset.
type ResetNotification struct {
	Email     string
	Link      string
	ExpiresAt time.Time
	StoreID   *string
}

// ResetNotifier delivers reset links, usually by email.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, n ResetNotification) error
}

// ============================================
// AUTH HANDLER (for HTTP adapters)
// ============================================

// AuthHandler provides authentication operations for HTTP adapters
type AuthHandler interface {
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	Register(ctx context.Context, input RegisterInput) (*RegisterResult, error)
	RequestPasswordReset(ctx context.Context, input ResetRequestInput) (*ResetRequestResult, error)
	ResetPassword(ctx context.Context, input ResetPasswordInput) (*ResetPasswordResult, error)
}

// ============================================
// HTTP PORT
// ============================================

type HTTPAdapter interface {
	RegisterRoutes(handler AuthHandler, basePath string) error
}
