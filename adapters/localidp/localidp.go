// Package localidp is an in-process identity provider for development and
// tests. Identities live in memory; sessions are HS256 JWTs.
package localidp

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lborres/opgate"
	"github.com/lborres/opgate/pkg/crypto"
)

const (
	defaultIssuer    = "opgate-local"
	defaultAccessTTL = time.Hour
)

var ErrSecretRequired = errors.New("localidp: signing secret is required")

type Config struct {
	Secret    string
	Issuer    string
	AccessTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Claims is the access token payload.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

type identity struct {
	opgate.Identity
	passwordHash string
}

type Provider struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	hasher    *crypto.Bcrypt
	now       func() time.Time

	mu         sync.RWMutex
	identities map[string]*identity // by id
}

var _ opgate.IdentityProvider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretRequired
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = defaultIssuer
	}
	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	return &Provider{
		secret:     []byte(cfg.Secret),
		issuer:     issuer,
		accessTTL:  ttl,
		hasher:     crypto.NewBcrypt(cfg.BcryptCost),
		now:        time.Now,
		identities: make(map[string]*identity),
	}, nil
}

func (p *Provider) CreateIdentity(_ context.Context, email, password string) (*opgate.Identity, error) {
	email = opgate.NormalizeEmail(email)
	hash, err := p.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.byEmail(email) != nil {
		return nil, opgate.ErrIdentityExists
	}

	now := p.now().UTC()
	ident := &identity{
		Identity: opgate.Identity{
			ID:               uuid.NewString(),
			Email:            email,
			EmailConfirmedAt: &now,
			CreatedAt:        now,
		},
		passwordHash: hash,
	}
	p.identities[ident.ID] = ident

	out := ident.Identity
	return &out, nil
}

func (p *Provider) GetIdentity(_ context.Context, id string) (*opgate.Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ident, ok := p.identities[id]
	if !ok {
		return nil, opgate.ErrIdentityNotFound
	}
	out := ident.Identity
	return &out, nil
}

// ListIdentities returns identities ordered by creation time.
func (p *Provider) ListIdentities(_ context.Context) ([]*opgate.Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*opgate.Identity, 0, len(p.identities))
	for _, ident := range p.identities {
		cp := ident.Identity
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (p *Provider) UpdateIdentityPassword(_ context.Context, id, password string) error {
	hash, err := p.hasher.Hash(password)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ident, ok := p.identities[id]
	if !ok {
		return opgate.ErrIdentityNotFound
	}
	ident.passwordHash = hash
	return nil
}

func (p *Provider) SignInWithPassword(_ context.Context, email, password string) (*opgate.Session, error) {
	email = opgate.NormalizeEmail(email)

	p.mu.RLock()
	ident := p.byEmail(email)
	var (
		hash string
		user opgate.Identity
	)
	if ident != nil {
		hash = ident.passwordHash
		user = ident.Identity
	}
	p.mu.RUnlock()

	if ident == nil {
		return nil, opgate.ErrIdentityInvalidCredentials
	}
	ok, err := p.hasher.Verify(password, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, opgate.ErrIdentityInvalidCredentials
	}

	return p.issue(&user)
}

// ParseAccessToken validates a token issued by this provider.
func (p *Provider) ParseAccessToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (p *Provider) issue(user *opgate.Identity) (*opgate.Session, error) {
	now := p.now().UTC()
	expiresAt := now.Add(p.accessTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: user.Email,
		Role:  "authenticated",
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, err
	}

	refresh, err := crypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	return &opgate.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(p.accessTTL / time.Second),
		ExpiresAt:    expiresAt.Unix(),
		TokenType:    "bearer",
		User:         user,
	}, nil
}

// byEmail must be called with mu held.
func (p *Provider) byEmail(email string) *identity {
	for _, ident := range p.identities {
		if strings.EqualFold(ident.Email, email) {
			return ident
		}
	}
	return nil
}
