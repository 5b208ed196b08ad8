package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/lborres/opgate/core"
	"github.com/lborres/opgate/pkg/crypto"
	"github.com/stretchr/testify/require"
)

const testDashboardURL = "https://dash.example.com"

// harness wires AuthService to fakes and a controllable clock.
type harness struct {
	store    *FakeOperatorStorage
	idp      *FakeIdentityProvider
	cache    *FakeIdentityCache
	notifier *FakeNotifier
	now      time.Time
	auth     *AuthService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:    NewFakeOperatorStorage(),
		idp:      NewFakeIdentityProvider(),
		cache:    NewFakeIdentityCache(),
		notifier: &FakeNotifier{},
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	h.auth = NewAuthService(AuthConfig{
		Operators:    h.store,
		Provider:     h.idp,
		Cache:        h.cache,
		Notifier:     h.notifier,
		DashboardURL: testDashboardURL,
		Clock:        func() time.Time { return h.now },
	})
	return h
}

// preAuthorize creates an operator without password or identity.
func (h *harness) preAuthorize(t *testing.T, email string) {
	t.Helper()
	require.NoError(t, h.store.CreateOperator(context.Background(), &core.Operator{Email: email}))
}

// registered seeds an operator whose local hash matches password.
func (h *harness) registered(t *testing.T, email, password string, identityID *string) string {
	t.Helper()
	hash, err := crypto.NewScrypt().Hash(password)
	require.NoError(t, err)
	return h.store.Seed(core.Operator{Email: email, PasswordHash: &hash, IdentityID: identityID})
}

// lastResetToken returns the raw token from the most recent reset link.
func (h *harness) lastResetToken(t *testing.T) string {
	t.Helper()
	sent := h.notifier.Sent()
	require.NotEmpty(t, sent, "no reset link was sent")
	u, err := url.Parse(sent[len(sent)-1].Link)
	require.NoError(t, err)
	return u.Query().Get("token")
}
