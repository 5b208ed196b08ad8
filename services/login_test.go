package services

import (
	"context"
	"errors"
	"testing"

	"github.com/lborres/opgate/core"
	"github.com/lborres/opgate/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Requirement: Login rejects bad input and unknown or unfinished operators
// with the documented kind, and never mutates state on failure.
func TestLoginService_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		setup    func(t *testing.T, h *harness)
		wantErr  error
		wantKind core.Kind
	}{
		{
			name:     "missing email",
			password: "secret1",
			wantErr:  core.ErrCredentialsRequired,
			wantKind: core.KindInvalidInput,
		},
		{
			name:     "missing password",
			email:    "a@x.com",
			wantErr:  core.ErrCredentialsRequired,
			wantKind: core.KindInvalidInput,
		},
		{
			name:     "unknown email is unauthorized, not internal",
			email:    "ghost@x.com",
			password: "secret1",
			wantErr:  core.ErrEmailNotAuthorized,
			wantKind: core.KindUnauthorized,
		},
		{
			name:     "pre-authorized but not registered",
			email:    "a@x.com",
			password: "secret1",
			setup: func(t *testing.T, h *harness) {
				h.preAuthorize(t, "a@x.com")
			},
			wantErr:  core.ErrRegistrationIncomplete,
			wantKind: core.KindUnauthorized,
		},
		{
			name:     "wrong password",
			email:    "a@x.com",
			password: "wrong",
			setup: func(t *testing.T, h *harness) {
				h.registered(t, "a@x.com", "secret1", nil)
			},
			wantErr:  core.ErrInvalidPassword,
			wantKind: core.KindUnauthorized,
		},
		{
			name:     "malformed stored hash",
			email:    "a@x.com",
			password: "secret1",
			setup: func(t *testing.T, h *harness) {
				bad := "not-a-hash"
				h.store.Seed(core.Operator{Email: "a@x.com", PasswordHash: &bad})
			},
			wantErr:  core.ErrMalformedPasswordHash,
			wantKind: core.KindInternal,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			h := newHarness(t)
			if test.setup != nil {
				test.setup(t, h)
			}
			updatesBefore := h.store.Updates()

			// Act
			result, err := h.auth.Login(context.Background(), core.LoginInput{Email: test.email, Password: test.password})

			// Assert
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, test.wantErr)
			assert.Equal(t, test.wantKind, core.KindOf(err))
			assert.Equal(t, updatesBefore, h.store.Updates(), "failed login must not write")
			assert.Equal(t, 0, h.idp.Count(), "failed login must not provision identities")
		})
	}
}

// Requirement: A store failure during lookup is internal.
func TestLoginService_StoreFailure(t *testing.T) {
	h := newHarness(t)
	h.store.SetGetError(errors.New("connection reset"))

	_, err := h.auth.Login(context.Background(), core.LoginInput{Email: "a@x.com", Password: "secret1"})

	assert.Equal(t, core.KindInternal, core.KindOf(err))
}

// Requirement: A linked operator with the right password gets the provider session.
func TestLoginService_LinkedIdentity(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ident := h.idp.Seed("a@x.com", "secret1")
	h.registered(t, "a@x.com", "secret1", &ident.ID)

	// Act
	result, err := h.auth.Login(context.Background(), core.LoginInput{Email: "  A@X.com ", Password: "secret1"})

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result.Session)
	assert.Equal(t, "access-"+ident.ID, result.Session.AccessToken)
	creates, lists, _, _ := h.idp.Calls()
	assert.Zero(t, creates)
	assert.Zero(t, lists)
}

// Requirement: The first login of an unlinked operator creates and links an identity.
func TestLoginService_ProvisionsIdentity(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.registered(t, "a@x.com", "secret1", nil)

	// Act
	result, err := h.auth.Login(context.Background(), core.LoginInput{Email: "a@x.com", Password: "secret1"})

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result.Session)
	assert.Equal(t, 1, h.idp.Count())
	op := h.store.Snapshot("a@x.com")
	require.NotNil(t, op.IdentityID)
	assert.Equal(t, result.Session.User.ID, *op.IdentityID)
}

// Requirement: An identity that already exists for the email is adopted, not duplicated.
func TestLoginService_AdoptsExistingIdentity(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ident := h.idp.Seed("A@x.com", "secret1")
	h.registered(t, "a@x.com", "secret1", nil)

	// Act
	_, err := h.auth.Login(context.Background(), core.LoginInput{Email: "a@x.com", Password: "secret1"})

	// Assert
	require.NoError(t, err)
	creates, _, _, _ := h.idp.Calls()
	assert.Zero(t, creates)
	assert.Equal(t, ident.ID, *h.store.Snapshot("a@x.com").IdentityID)
}

// Requirement: A failure to persist the link does not fail the login.
func TestLoginService_LinkWriteFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.registered(t, "a@x.com", "secret1", nil)
	h.store.SetUpdateError(errors.New("read-only replica"))

	result, err := h.auth.Login(context.Background(), core.LoginInput{Email: "a@x.com", Password: "secret1"})

	require.NoError(t, err)
	assert.NotNil(t, result.Session)
	assert.Nil(t, h.store.Snapshot("a@x.com").IdentityID)
}

// Requirement: bcrypt hashes from the old reset flow still log in and are
// replaced with scrypt hashes.
func TestLoginService_UpgradesLegacyHash(t *testing.T) {
	// Arrange
	h := newHarness(t)
	legacy, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	hash := string(legacy)
	ident := h.idp.Seed("a@x.com", "secret1")
	h.store.Seed(core.Operator{Email: "a@x.com", PasswordHash: &hash, IdentityID: &ident.ID})

	// Act
	_, err = h.auth.Login(context.Background(), core.LoginInput{Email: "a@x.com", Password: "secret1"})

	// Assert
	require.NoError(t, err)
	stored := *h.store.Snapshot("a@x.com").PasswordHash
	assert.False(t, crypto.IsBcryptHash(stored), "hash should have been upgraded")
	ok, err := crypto.NewScrypt().Verify("secret1", stored)
	require.NoError(t, err)
	assert.True(t, ok)
}

// Requirement: When the provider still holds an older password, the
// verified one is pushed to it and sign-in is retried once.
func TestLoginService_ResyncsStaleProviderPassword(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ident := h.idp.Seed("a@x.com", "old-password")
	h.registered(t, "a@x.com", "new-password", &ident.ID)

	// Act
	result, err := h.auth.Login(context.Background(), core.LoginInput{Email: "a@x.com", Password: "new-password"})

	// Assert
	require.NoError(t, err)
	assert.NotNil(t, result.Session)
	assert.Equal(t, "new-password", h.idp.Password(ident.ID))
	_, _, updates, signIns := h.idp.Calls()
	assert.Equal(t, 1, updates)
	assert.Equal(t, 2, signIns)
}

// Requirement: A provider sign-in failure that cannot be repaired is internal.
func TestLoginService_SignInFailure(t *testing.T) {
	h := newHarness(t)
	ident := h.idp.Seed("a@x.com", "secret1")
	h.registered(t, "a@x.com", "secret1", &ident.ID)
	h.idp.SetSignInError(errors.New("provider unavailable"))

	_, err := h.auth.Login(context.Background(), core.LoginInput{Email: "a@x.com", Password: "secret1"})

	assert.Equal(t, core.KindInternal, core.KindOf(err))
	_, _, updates, _ := h.idp.Calls()
	assert.Zero(t, updates, "only rejected credentials trigger a resync")
}
