package core

import (
	"time"

	"github.com/lborres/opgate/pkg/crypto"
)

type Config struct {
	Database OperatorStorage
	Identity IdentityProvider

	HTTP HTTPAdapter

	// DashboardURL is the public base the reset link points at.
	DashboardURL string

	// Optional config
	IdentityCache  IdentityCache
	DisableCache   bool
	Notifier       ResetNotifier
	PasswordHasher crypto.PasswordHandler
	ResetTTL       time.Duration
	BasePath       string
}

type Opgate struct {
	Auth     AuthHandler
	BasePath string
}
