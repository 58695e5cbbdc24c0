package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/issuetrail/internal/models"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
)

var (
	// ErrInvalidToken rejects missing, malformed or expired bearer tokens.
	ErrInvalidToken = apperrors.ErrUnauthorized.WithMessage("Invalid or expired token")
	// ErrAccountLocked rejects tokens of locked or deleted accounts.
	ErrAccountLocked = apperrors.ErrUnauthorized.WithMessage("Account is locked")
)

// UserStore loads the user a token refers to.
type UserStore interface {
	User(ctx context.Context, id string) (*models.User, error)
}

// Authenticator turns bearer tokens into loaded users.
type Authenticator struct {
	tokens *JWTService
	users  UserStore
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(tokens *JWTService, users UserStore) (*Authenticator, error) {
	if tokens == nil {
		return nil, errors.New("authenticator: jwt service is required")
	}
	if users == nil {
		return nil, errors.New("authenticator: user store is required")
	}
	return &Authenticator{tokens: tokens, users: users}, nil
}

// Authenticate validates token and returns the user it names. Locked and
// unknown users are rejected the same way as bad tokens.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*models.User, *Claims, error) {
	claims, err := a.tokens.ValidateAccessToken(strings.TrimSpace(token))
	if err != nil {
		return nil, nil, ErrInvalidToken.WithInternal(err)
	}

	user, err := a.users.User(ctx, claims.UserID)
	if apperrors.IsNotFound(err) {
		return nil, nil, ErrAccountLocked
	}
	if err != nil {
		return nil, nil, fmt.Errorf("authenticator: load user: %w", err)
	}
	if user.Locked {
		return nil, nil, ErrAccountLocked
	}
	return user, claims, nil
}
