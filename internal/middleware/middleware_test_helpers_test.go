package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/issuetrail/internal/auth"
	"github.com/charlesng35/issuetrail/internal/database/testutil"
	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/internal/permissions"
	"github.com/charlesng35/issuetrail/internal/store"
)

type authzEnv struct {
	db        *gorm.DB
	tokens    *iauth.JWTService
	authn     *iauth.Authenticator
	evaluator *permissions.Evaluator
}

func newAuthzEnv(t *testing.T) *authzEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	st, err := store.New(db)
	require.NoError(t, err)

	tokens, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "secret", Issuer: "test-suite", AccessTokenTTL: time.Minute})
	require.NoError(t, err)
	authn, err := iauth.NewAuthenticator(tokens, st)
	require.NoError(t, err)

	resolver, err := permissions.NewResolver(st)
	require.NoError(t, err)
	evaluator, err := permissions.NewEvaluator(resolver)
	require.NoError(t, err)

	return &authzEnv{db: db, tokens: tokens, authn: authn, evaluator: evaluator}
}

func (e *authzEnv) user(t *testing.T, login string, admin bool) (models.User, string) {
	t.Helper()
	user := models.User{Login: login, Email: login + "@example.com", IsAdmin: admin}
	require.NoError(t, e.db.Create(&user).Error)
	token, err := e.tokens.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Login: login})
	require.NoError(t, err)
	return user, token
}
