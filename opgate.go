// Package opgate authenticates dashboard operators against a local
// credential record and an external identity provider.
//
// Storage, identity provider and HTTP framework are supplied as adapters:
//
//	gate, err := opgate.New(opgate.Config{
//		Database:     pgx.New(pool),
//		Identity:     gotrue.New(gotrue.Config{URL: url, ServiceRoleKey: key}),
//		HTTP:         fiberadapter.New(app),
//		DashboardURL: "https://dashboard.example.com",
//	})
package opgate

import (
	"fmt"
	"net/url"
	"time"

	"github.com/lborres/opgate/core"
	"github.com/lborres/opgate/pkg/cache"
	"github.com/lborres/opgate/pkg/crypto"
	"github.com/lborres/opgate/services"
)

// interfaces
type (
	OperatorStorage  = core.OperatorStorage
	IdentityProvider = core.IdentityProvider
	IdentityCache    = core.IdentityCache
	ResetNotifier    = core.ResetNotifier
	AuthHandler      = core.AuthHandler
	HTTPAdapter      = core.HTTPAdapter

	PasswordHandler = crypto.PasswordHandler
)

// structs
type (
	Opgate      = core.Opgate
	Config      = core.Config
	CacheConfig = core.CacheConfig
	CacheStats  = core.CacheStats
)

type (
	Operator          = core.Operator
	OperatorUpdate    = core.OperatorUpdate
	ResetToken        = core.ResetToken
	Identity          = core.Identity
	Session           = core.Session
	ResetNotification = core.ResetNotification

	LoginInput          = core.LoginInput
	LoginResult         = core.LoginResult
	RegisterInput       = core.RegisterInput
	RegisterResult      = core.RegisterResult
	ResetRequestInput   = core.ResetRequestInput
	ResetRequestResult  = core.ResetRequestResult
	ResetPasswordInput  = core.ResetPasswordInput
	ResetPasswordResult = core.ResetPasswordResult

	Endpoint         = core.Endpoint
	EndpointMetadata = core.EndpointMetadata
	ErrorResponse    = core.ErrorResponse

	Error         = core.Error
	Kind          = core.Kind
	ProviderError = core.ProviderError
)

const (
	KindInternal     = core.KindInternal
	KindInvalidInput = core.KindInvalidInput
	KindUnauthorized = core.KindUnauthorized
	KindForbidden    = core.KindForbidden
)

// Operation ids shared by the endpoint registry and HTTP adapters.
const (
	OperationLogin         = core.OperationLogin
	OperationRegister      = core.OperationRegister
	OperationResetPassword = core.OperationResetPassword
)

const (
	defaultBasePath = "/api/auth"
	defaultResetTTL = time.Hour
)

// Constructors & helpers (convenience re-exports)
var (
	NewInMemoryCache   = cache.NewInMemoryCache
	NewScrypt          = crypto.NewScrypt
	NewMigratingHasher = crypto.NewMigratingHasher

	NewEndpointRegistry = services.NewEndpointRegistry
	BaseEndpoints       = services.BaseEndpoints

	NormalizeEmail   = core.NormalizeEmail
	KindOf           = core.KindOf
	PublicMessage    = core.PublicMessage
	IsIdentityExists = core.IsIdentityExists
)

// Validation errors
var (
	ErrEmailRequired         = core.ErrEmailRequired
	ErrCredentialsRequired   = core.ErrCredentialsRequired
	ErrPasswordTooShort      = core.ErrPasswordTooShort
	ErrInvalidParameters     = core.ErrInvalidParameters
	ErrInvalidRequestBody    = core.ErrInvalidRequestBody
	ErrResetTokenInvalid     = core.ErrResetTokenInvalid
	ErrResetTokenExpired     = core.ErrResetTokenExpired
	ErrResetParamsIncomplete = core.ErrResetParamsIncomplete
)

// Authentication and permission errors
var (
	ErrEmailNotAuthorized     = core.ErrEmailNotAuthorized
	ErrRegistrationIncomplete = core.ErrRegistrationIncomplete
	ErrInvalidPassword        = core.ErrInvalidPassword
	ErrRegistrationNotAllowed = core.ErrRegistrationNotAllowed
	ErrMalformedPasswordHash  = core.ErrMalformedPasswordHash
)

// Collaborator errors returned by adapters
var (
	ErrOperatorNotFound           = core.ErrOperatorNotFound
	ErrOperatorExists             = core.ErrOperatorExists
	ErrResetTokenConsumed         = core.ErrResetTokenConsumed
	ErrIdentityNotFound           = core.ErrIdentityNotFound
	ErrIdentityExists             = core.ErrIdentityExists
	ErrIdentityInvalidCredentials = core.ErrIdentityInvalidCredentials
	ErrCacheNotFound              = core.ErrCacheNotFound
)

// Config errors
var (
	ErrDBAdapterRequired       = core.ErrDBAdapterRequired
	ErrIdentityAdapterRequired = core.ErrIdentityAdapterRequired
	ErrHTTPAdapterRequired     = core.ErrHTTPAdapterRequired
	ErrDashboardURLRequired    = core.ErrDashboardURLRequired
	ErrInvalidDashboardURL     = core.ErrInvalidDashboardURL
)

func New(config Config) (*Opgate, error) {
	if config.Database == nil {
		return nil, ErrDBAdapterRequired
	}
	if config.Identity == nil {
		return nil, ErrIdentityAdapterRequired
	}
	if config.HTTP == nil {
		return nil, ErrHTTPAdapterRequired
	}
	if config.DashboardURL == "" {
		return nil, ErrDashboardURLRequired
	}
	if u, err := url.Parse(config.DashboardURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDashboardURL, config.DashboardURL)
	}

	// Set Defaults

	identityCache := config.IdentityCache
	if identityCache == nil && !config.DisableCache {
		identityCache = NewInMemoryCache(CacheConfig{
			TTL:     5 * time.Minute,
			MaxSize: 500,
		})
	}

	passwordHasher := config.PasswordHasher
	if passwordHasher == nil {
		passwordHasher = NewMigratingHasher()
	}

	resetTTL := config.ResetTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}

	basePath := config.BasePath
	if basePath == "" {
		basePath = defaultBasePath
	}

	auth := services.NewAuthService(services.AuthConfig{
		Operators:    config.Database,
		Provider:     config.Identity,
		Cache:        identityCache,
		Hasher:       passwordHasher,
		Notifier:     config.Notifier,
		DashboardURL: config.DashboardURL,
		ResetTTL:     resetTTL,
	})

	gate := &Opgate{
		Auth:     auth,
		BasePath: basePath,
	}

	if err := config.HTTP.RegisterRoutes(auth, basePath); err != nil {
		return nil, err
	}

	return gate, nil
}
