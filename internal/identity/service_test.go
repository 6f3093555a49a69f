package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuition/internal/auth"
	"tuition/internal/identity"
	"tuition/internal/profile"
	"tuition/internal/store/memory"
)

var issuer = auth.Issuer{Name: "test", Key: "secret", AccessTTL: time.Minute, RefreshTTL: time.Hour}

// brokenCache fails every write.
type brokenCache struct{ profile.Cache }

func (brokenCache) Write(context.Context, string, profile.LocalProfile) error {
	return errors.New("cache down")
}

func TestSignUpValidation(t *testing.T) {
	svc := identity.NewService(memory.New(), profile.NewMemoryCache("userData"), issuer, nil)
	ctx := context.Background()

	tests := []struct {
		name                         string
		full, email, password, role string
	}{
		{name: "missing name", email: "a@b.co", password: "secret1", role: profile.RoleStudent},
		{name: "bad email", full: "A", email: "not-an-email", password: "secret1", role: profile.RoleStudent},
		{name: "bad role", full: "A", email: "a@b.co", password: "secret1", role: "admin"},
		{name: "short password", full: "A", email: "a@b.co", password: "123", role: profile.RoleStudent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignUp(ctx, tt.full, tt.email, tt.password, tt.role)
			assert.ErrorIs(t, err, identity.ErrInvalid)
		})
	}
}

func TestSignInCachesProfile(t *testing.T) {
	ctx := context.Background()
	cache := profile.NewMemoryCache("userData")
	svc := identity.NewService(memory.New(), cache, issuer, nil)

	u, err := svc.SignUp(ctx, "Ravi Kumar", " Ravi@Example.com ", "secret1", profile.RoleTuition)
	require.NoError(t, err)
	assert.Equal(t, "ravi@example.com", u.Email)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	_, err = svc.SignUp(ctx, "Someone", "ravi@example.com", "secret1", profile.RoleStudent)
	assert.ErrorIs(t, err, identity.ErrEmailTaken)

	_, err = svc.SignIn(ctx, "ravi@example.com", "wrong")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	_, err = svc.SignIn(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	sess, err := svc.SignIn(ctx, "RAVI@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.User.ID)
	assert.NotEmpty(t, sess.Tokens.AccessToken)

	p, err := svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.LocalProfile{FullName: "Ravi Kumar", Role: profile.RoleTuition}, p)

	name, err := svc.DisplayName(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", name)

	require.NoError(t, svc.SignOut(ctx, u.ID))
	_, err = svc.Profile(ctx, u.ID)
	assert.ErrorIs(t, err, profile.ErrNotFound)
}

func TestSignInSurvivesCacheFailure(t *testing.T) {
	ctx := context.Background()
	svc := identity.NewService(memory.New(), brokenCache{profile.NewMemoryCache("")}, issuer, nil)
	_, err := svc.SignUp(ctx, "Asha", "asha@example.com", "secret1", profile.RoleStudent)
	require.NoError(t, err)

	sess, err := svc.SignIn(ctx, "asha@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, profile.RoleStudent, sess.Profile.Role)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	svc := identity.NewService(memory.New(), profile.NewMemoryCache(""), issuer, nil)
	_, err := svc.SignUp(ctx, "Asha", "asha@example.com", "secret1", profile.RoleStudent)
	require.NoError(t, err)
	sess, err := svc.SignIn(ctx, "asha@example.com", "secret1")
	require.NoError(t, err)

	pair, err := svc.Refresh(ctx, sess.Tokens.RefreshToken)
	require.NoError(t, err)
	claims, err := issuer.Parse(pair.AccessToken, auth.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.Subject)

	_, err = svc.Refresh(ctx, sess.Tokens.AccessToken)
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
}
