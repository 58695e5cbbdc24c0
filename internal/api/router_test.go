package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/issuetrail/internal/app"
	iauth "github.com/charlesng35/issuetrail/internal/auth"
	"github.com/charlesng35/issuetrail/internal/database/testutil"
)

func newTestDependencies(t *testing.T) Dependencies {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Auth.LoginRequired = true
	return Dependencies{DB: db, Config: cfg, Tokens: jwtSvc}
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	deps := newTestDependencies(t)

	_, err := NewRouter(Dependencies{Config: deps.Config, Tokens: deps.Tokens})
	require.Error(t, err)

	_, err = NewRouter(Dependencies{DB: deps.DB, Config: deps.Config})
	require.Error(t, err)

	_, err = NewRouter(Dependencies{DB: deps.DB, Tokens: deps.Tokens})
	require.Error(t, err)
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	router, err := NewRouter(newTestDependencies(t))
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/permissions/registry").Code)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/roles"},
		{http.MethodPost, "/api/roles"},
		{http.MethodPost, "/api/projects"},
		{http.MethodGet, "/api/workflows"},
		{http.MethodGet, "/api/audit"},
		{http.MethodPost, "/api/issues/some-id/status"},
	} {
		w := serve(router, route.method, route.path)
		require.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}

	require.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/does-not-exist").Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router, err := NewRouter(newTestDependencies(t))
	require.NoError(t, err)

	serve(router, http.MethodGet, "/health")

	w := serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "issuetrail_api_latency_seconds"), "expected latency histogram in metrics output")
}

func TestRouter_RateLimit(t *testing.T) {
	deps := newTestDependencies(t)
	deps.Config.Server.RateLimit.Enabled = true
	deps.Config.Server.RateLimit.Requests = 2
	deps.Config.Server.RateLimit.Window = time.Minute

	router, err := NewRouter(deps)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)
	require.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/health").Code)
}
