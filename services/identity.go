package services

import (
	"context"
	"errors"
	"strings"

	"github.com/lborres/opgate/core"
	"github.com/lborres/opgate/internal/logger"
	"golang.org/x/sync/singleflight"
)

// IdentityResolver reconciles a local operator with the identity the
// provider keeps for the same email.
//
// The provider only offers a full listing, so lookups by email scan it.
// Concurrent scans for one email are collapsed and the result is kept in
// an optional cache. A cached id is only a hint: it is confirmed with the
// provider before it is returned.
type IdentityResolver struct {
	provider core.IdentityProvider
	cache    core.IdentityCache
	group    singleflight.Group
}

func NewIdentityResolver(provider core.IdentityProvider, cache core.IdentityCache) *IdentityResolver {
	return &IdentityResolver{provider: provider, cache: cache}
}

// FindByEmail returns core.ErrIdentityNotFound when no identity matches.
func (r *IdentityResolver) FindByEmail(ctx context.Context, email string) (*core.Identity, error) {
	email = core.NormalizeEmail(email)

	if ident := r.fromCache(ctx, email); ident != nil {
		return ident, nil
	}

	// Other callers may share this scan; it must outlive the first caller's
	// cancellation.
	v, err, _ := r.group.Do(email, func() (interface{}, error) {
		return r.scan(context.WithoutCancel(ctx), email)
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.Identity), nil
}

// CreateOrAdopt creates a pre-confirmed identity for email. When the
// provider already has one, the existing identity is returned and adopted
// is true; its password has not been changed.
func (r *IdentityResolver) CreateOrAdopt(ctx context.Context, email, password string) (ident *core.Identity, adopted bool, err error) {
	email = core.NormalizeEmail(email)

	ident, err = r.provider.CreateIdentity(ctx, email, password)
	if err == nil {
		r.remember(ctx, email, ident.ID)
		return ident, false, nil
	}
	if !core.IsIdentityExists(err) {
		return nil, false, err
	}

	logger.From(ctx).Debug("identity already exists, adopting", logger.Email(email))
	ident, err = r.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return ident, true, nil
}

// Lookup returns the identity with id, or core.ErrIdentityNotFound.
func (r *IdentityResolver) Lookup(ctx context.Context, id string) (*core.Identity, error) {
	return r.provider.GetIdentity(ctx, id)
}

func (r *IdentityResolver) fromCache(ctx context.Context, email string) *core.Identity {
	if r.cache == nil {
		return nil
	}

	id, err := r.cache.Get(ctx, email)
	if err != nil {
		if !errors.Is(err, core.ErrCacheNotFound) {
			logger.From(ctx).Warn("identity cache read failed", logger.Err(err))
		}
		return nil
	}

	ident, err := r.provider.GetIdentity(ctx, id)
	if err == nil && strings.EqualFold(ident.Email, email) {
		return ident
	}

	// Stale entry: the identity is gone or now belongs to another email.
	if err == nil || errors.Is(err, core.ErrIdentityNotFound) {
		_ = r.cache.Delete(ctx, email)
	}
	return nil
}

func (r *IdentityResolver) scan(ctx context.Context, email string) (*core.Identity, error) {
	identities, err := r.provider.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}

	for _, ident := range identities {
		if ident != nil && core.NormalizeEmail(ident.Email) == email {
			r.remember(ctx, email, ident.ID)
			return ident, nil
		}
	}
	return nil, core.ErrIdentityNotFound
}

func (r *IdentityResolver) remember(ctx context.Context, email, id string) {
	if r.cache == nil || id == "" {
		return
	}
	if err := r.cache.Set(ctx, email, id); err != nil {
		logger.From(ctx).Warn("identity cache write failed", logger.Err(err))
	}
}
