package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lborres/opgate/core"
)

// FakeOperatorStorage is a test-only fake implementing core.OperatorStorage.
// It keeps operators in a map and exposes error fields for behavior injection.
type FakeOperatorStorage struct {
	operators map[string]*core.Operator // key: id
	mu        sync.RWMutex
	nextID    int

	createErr  error
	getErr     error
	updateErr  error
	consumeErr error

	updates int
}

var _ core.OperatorStorage = (*FakeOperatorStorage)(nil)

func NewFakeOperatorStorage() *FakeOperatorStorage {
	return &FakeOperatorStorage{
		operators: make(map[string]*core.Operator),
	}
}

// Seed stores op as is and returns its id.
func (f *FakeOperatorStorage) Seed(op core.Operator) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if op.ID == "" {
		f.nextID++
		op.ID = fmt.Sprintf("op-%d", f.nextID)
	}
	op.Email = core.NormalizeEmail(op.Email)
	f.operators[op.ID] = &op
	return op.ID
}

// Snapshot returns a copy of the operator with email, or nil.
func (f *FakeOperatorStorage) Snapshot(email string) *core.Operator {
	f.mu.RLock()
	defer f.mu.RUnlock()

	op := f.findByEmail(core.NormalizeEmail(email))
	if op == nil {
		return nil
	}
	return cloneOperator(op)
}

func (f *FakeOperatorStorage) Updates() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.updates
}

func (f *FakeOperatorStorage) SetGetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *FakeOperatorStorage) SetUpdateError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErr = err
}

func (f *FakeOperatorStorage) SetConsumeError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumeErr = err
}

func (f *FakeOperatorStorage) CreateOperator(_ context.Context, op *core.Operator) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}
	email := core.NormalizeEmail(op.Email)
	if f.findByEmail(email) != nil {
		return core.ErrOperatorExists
	}

	f.nextID++
	now := time.Now()
	op.ID = fmt.Sprintf("op-%d", f.nextID)
	op.Email = email
	op.PasswordHash = nil
	op.IdentityID = nil
	op.CreatedAt, op.UpdatedAt = now, now
	f.operators[op.ID] = cloneOperator(op)
	return nil
}

func (f *FakeOperatorStorage) GetOperatorByEmail(_ context.Context, email string) (*core.Operator, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	op := f.findByEmail(email)
	if op == nil {
		return nil, core.ErrOperatorNotFound
	}
	return cloneOperator(op), nil
}

func (f *FakeOperatorStorage) GetRegisteredOperatorByEmail(ctx context.Context, email string) (*core.Operator, error) {
	op, err := f.GetOperatorByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if op.PasswordHash == nil {
		return nil, core.ErrOperatorNotFound
	}
	return op, nil
}

func (f *FakeOperatorStorage) GetOperatorByResetToken(ctx context.Context, email, tokenHash string) (*core.Operator, error) {
	op, err := f.GetOperatorByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if op.ResetTokenHash == nil || *op.ResetTokenHash != tokenHash {
		return nil, core.ErrOperatorNotFound
	}
	return op, nil
}

func (f *FakeOperatorStorage) UpdateOperator(_ context.Context, id string, update core.OperatorUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return f.updateErr
	}
	op, ok := f.operators[id]
	if !ok {
		return core.ErrOperatorNotFound
	}

	if update.PasswordHash != nil {
		op.PasswordHash = strPtr(*update.PasswordHash)
	}
	if update.IdentityID != nil && op.IdentityID == nil {
		op.IdentityID = strPtr(*update.IdentityID)
	}
	if update.ResetToken != nil {
		exp := update.ResetToken.ExpiresAt
		op.ResetTokenHash = strPtr(update.ResetToken.Hash)
		op.ResetTokenExpiresAt = &exp
	}
	op.UpdatedAt = time.Now()
	f.updates++
	return nil
}

func (f *FakeOperatorStorage) ConsumeResetToken(_ context.Context, id, tokenHash, passwordHash string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.consumeErr != nil {
		return f.consumeErr
	}
	op, ok := f.operators[id]
	if !ok || op.ResetTokenHash == nil || *op.ResetTokenHash != tokenHash ||
		op.ResetTokenExpiresAt == nil || op.ResetTokenExpiresAt.Before(now) {
		return core.ErrResetTokenConsumed
	}

	op.PasswordHash = strPtr(passwordHash)
	op.ResetTokenHash = nil
	op.ResetTokenExpiresAt = nil
	op.UpdatedAt = now
	f.updates++
	return nil
}

func (f *FakeOperatorStorage) findByEmail(email string) *core.Operator {
	email = core.NormalizeEmail(email)
	for _, op := range f.operators {
		if op.Email == email {
			return op
		}
	}
	return nil
}

func cloneOperator(op *core.Operator) *core.Operator {
	c := *op
	if op.PasswordHash != nil {
		c.PasswordHash = strPtr(*op.PasswordHash)
	}
	if op.IdentityID != nil {
		c.IdentityID = strPtr(*op.IdentityID)
	}
	if op.StoreID != nil {
		c.StoreID = strPtr(*op.StoreID)
	}
	if op.ResetTokenHash != nil {
		c.ResetTokenHash = strPtr(*op.ResetTokenHash)
	}
	if op.ResetTokenExpiresAt != nil {
		t := *op.ResetTokenExpiresAt
		c.ResetTokenExpiresAt = &t
	}
	return &c
}

func strPtr(s string) *string { return &s }

// FakeIdentityProvider is a test-only fake implementing core.IdentityProvider.
// Passwords are kept in clear so sign-in can be checked.
type FakeIdentityProvider struct {
	identities map[string]*core.Identity // key: id
	passwords  map[string]string         // key: id
	mu         sync.RWMutex
	nextID     int

	// existsErr is returned by CreateIdentity for a known email.
	existsErr error

	createErr error
	getErr    error
	listErr   error
	updateErr error
	signInErr error

	creates int
	lists   int
	updates int
	signIns int
}

var _ core.IdentityProvider = (*FakeIdentityProvider)(nil)

func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{
		identities: make(map[string]*core.Identity),
		passwords:  make(map[string]string),
		existsErr:  core.ErrIdentityExists,
	}
}

// Seed adds an identity directly, bypassing error injection.
func (f *FakeIdentityProvider) Seed(email, password string) *core.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.add(email, password)
}

// Remove deletes an identity, as an administrator would at the provider.
func (f *FakeIdentityProvider) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.identities, id)
	delete(f.passwords, id)
}

func (f *FakeIdentityProvider) Password(id string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.passwords[id]
}

func (f *FakeIdentityProvider) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.identities)
}

// Calls returns how often each method was called.
func (f *FakeIdentityProvider) Calls() (creates, lists, updates, signIns int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.creates, f.lists, f.updates, f.signIns
}

func (f *FakeIdentityProvider) SetExistsError(err error) { f.set(&f.existsErr, err) }
func (f *FakeIdentityProvider) SetCreateError(err error) { f.set(&f.createErr, err) }
func (f *FakeIdentityProvider) SetGetError(err error)    { f.set(&f.getErr, err) }
func (f *FakeIdentityProvider) SetListError(err error)   { f.set(&f.listErr, err) }
func (f *FakeIdentityProvider) SetUpdateError(err error) { f.set(&f.updateErr, err) }
func (f *FakeIdentityProvider) SetSignInError(err error) { f.set(&f.signInErr, err) }

func (f *FakeIdentityProvider) set(field *error, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*field = err
}

func (f *FakeIdentityProvider) CreateIdentity(_ context.Context, email, password string) (*core.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.byEmail(email) != nil {
		return nil, f.existsErr
	}
	ident := f.add(email, password)
	c := *ident
	return &c, nil
}

func (f *FakeIdentityProvider) GetIdentity(_ context.Context, id string) (*core.Identity, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	ident, ok := f.identities[id]
	if !ok {
		return nil, core.ErrIdentityNotFound
	}
	c := *ident
	return &c, nil
}

func (f *FakeIdentityProvider) ListIdentities(_ context.Context) ([]*core.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*core.Identity, 0, len(f.identities))
	for _, ident := range f.identities {
		c := *ident
		out = append(out, &c)
	}
	return out, nil
}

func (f *FakeIdentityProvider) UpdateIdentityPassword(_ context.Context, id, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.identities[id]; !ok {
		return core.ErrIdentityNotFound
	}
	f.passwords[id] = password
	return nil
}

func (f *FakeIdentityProvider) SignInWithPassword(_ context.Context, email, password string) (*core.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.signIns++
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	ident := f.byEmail(email)
	if ident == nil || f.passwords[ident.ID] != password {
		return nil, core.ErrIdentityInvalidCredentials
	}
	user := *ident
	return &core.Session{
		AccessToken:  "access-" + ident.ID,
		RefreshToken: "refresh-" + ident.ID,
		ExpiresIn:    3600,
		TokenType:    "bearer",
		User:         &user,
	}, nil
}

func (f *FakeIdentityProvider) add(email, password string) *core.Identity {
	f.nextID++
	now := time.Now()
	ident := &core.Identity{
		ID:               fmt.Sprintf("ident-%d", f.nextID),
		Email:            email,
		EmailConfirmedAt: &now,
		CreatedAt:        now,
	}
	f.identities[ident.ID] = ident
	f.passwords[ident.ID] = password
	return ident
}

func (f *FakeIdentityProvider) byEmail(email string) *core.Identity {
	for _, ident := range f.identities {
		if strings.EqualFold(ident.Email, email) {
			return ident
		}
	}
	return nil
}

// FakeNotifier records every reset notification it is handed.
type FakeNotifier struct {
	mu   sync.Mutex
	sent []core.ResetNotification
	err  error
}

var _ core.ResetNotifier = (*FakeNotifier)(nil)

func (f *FakeNotifier) SendPasswordReset(_ context.Context, n core.ResetNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *FakeNotifier) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeNotifier) Sent() []core.ResetNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.ResetNotification(nil), f.sent...)
}

// FakeIdentityCache is a map-backed core.IdentityCache.
type FakeIdentityCache struct {
	entries map[string]string
	mu      sync.RWMutex
	getErr  error
	setErr  error
}

var _ core.IdentityCache = (*FakeIdentityCache)(nil)

func NewFakeIdentityCache() *FakeIdentityCache {
	return &FakeIdentityCache{entries: make(map[string]string)}
}

func (f *FakeIdentityCache) Get(_ context.Context, email string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	id, ok := f.entries[email]
	if !ok {
		return "", core.ErrCacheNotFound
	}
	return id, nil
}

func (f *FakeIdentityCache) Set(_ context.Context, email, identityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[email] = identityID
	return nil
}

func (f *FakeIdentityCache) Delete(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, email)
	return nil
}

func (f *FakeIdentityCache) SetGetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *FakeIdentityCache) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}
