package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/issuetrail/internal/models"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
)

type stubUsers map[string]*models.User

func (s stubUsers) User(_ context.Context, id string) (*models.User, error) {
	if user, ok := s[id]; ok {
		return user, nil
	}
	return nil, apperrors.ErrNotFound.WithMessage("user not found")
}

func TestAuthenticator(t *testing.T) {
	tokens, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "issuetrail"})
	require.NoError(t, err)

	users := stubUsers{
		"u1": {ID: "u1", Login: "alice"},
		"u2": {ID: "u2", Login: "bob", Locked: true},
	}
	authn, err := NewAuthenticator(tokens, users)
	require.NoError(t, err)
	ctx := context.Background()

	token, err := tokens.GenerateAccessToken(AccessTokenInput{UserID: "u1"})
	require.NoError(t, err)
	user, claims, err := authn.Authenticate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "alice", user.Login)
	require.Equal(t, "u1", claims.Subject)

	locked, err := tokens.GenerateAccessToken(AccessTokenInput{UserID: "u2"})
	require.NoError(t, err)
	_, _, err = authn.Authenticate(ctx, locked)
	require.True(t, errors.Is(err, ErrAccountLocked))

	ghost, err := tokens.GenerateAccessToken(AccessTokenInput{UserID: "u3"})
	require.NoError(t, err)
	_, _, err = authn.Authenticate(ctx, ghost)
	require.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	_, _, err = authn.Authenticate(ctx, "not-a-token")
	require.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestNewAuthenticatorValidation(t *testing.T) {
	_, err := NewAuthenticator(nil, stubUsers{})
	require.Error(t, err)
	tokens, err := NewJWTService(JWTConfig{Secret: "s"})
	require.NoError(t, err)
	_, err = NewAuthenticator(tokens, nil)
	require.Error(t, err)
}
