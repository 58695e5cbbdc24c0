package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/api"
	"github.com/charlesng35/issuetrail/internal/app"
	iauth "github.com/charlesng35/issuetrail/internal/auth"
	sharedtestutil "github.com/charlesng35/issuetrail/internal/database/testutil"
	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/pkg/mail"
	"github.com/charlesng35/issuetrail/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
}

// EnvOption adjusts the configuration or dependencies of a test environment.
type EnvOption func(*api.Dependencies)

// WithAnonymousAccess lets anonymous callers see public projects.
func WithAnonymousAccess() EnvOption {
	return func(deps *api.Dependencies) {
		deps.Config.Auth.LoginRequired = false
	}
}

// WithMailer enables status change notifications through mailer.
func WithMailer(mailer mail.Mailer) EnvOption {
	return func(deps *api.Dependencies) {
		deps.Mailer = mailer
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			LoginRequired: true,
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	deps := api.Dependencies{DB: db, Config: cfg, Tokens: jwtSvc}
	for _, opt := range opts {
		opt(&deps)
	}

	router, err := api.NewRouter(deps)
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
	}
}

// CreateUser inserts a user and returns it together with a valid access token.
func (e *Env) CreateUser(login string, admin bool) (*models.User, string) {
	e.T.Helper()

	user := &models.User{
		Login:   login,
		Email:   login + "@example.com",
		IsAdmin: admin,
	}
	require.NoError(e.T, e.DB.Create(user).Error)

	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Login: user.Login})
	require.NoError(e.T, err)
	return user, token
}

// CreateProject inserts an active project.
func (e *Env) CreateProject(identifier string, public bool) *models.Project {
	e.T.Helper()

	project := &models.Project{
		Name:       identifier,
		Identifier: identifier,
		IsPublic:   public,
		Status:     models.ProjectStatusActive,
	}
	require.NoError(e.T, e.DB.Create(project).Error)
	return project
}

// CreateRole inserts an assignable custom role granting perms.
func (e *Env) CreateRole(name string, position int, perms ...string) *models.Role {
	e.T.Helper()

	role := &models.Role{Name: name, Position: position, Assignable: true, Permissions: models.NewPermissionSet(perms...)}
	role.ApplyVisibilityDefaults()
	require.NoError(e.T, e.DB.Create(role).Error)
	return role
}

// AddMember links user to project with roles.
func (e *Env) AddMember(user *models.User, project *models.Project, roles ...*models.Role) {
	e.T.Helper()

	member := models.Member{UserID: user.ID, ProjectID: project.ID, MailNotification: true}
	for _, role := range roles {
		member.Roles = append(member.Roles, *role)
	}
	require.NoError(e.T, e.DB.Create(&member).Error)
}

// AddRule inserts a workflow transition rule.
func (e *Env) AddRule(role *models.Role, tracker models.Tracker, from, to models.IssueStatus) {
	e.T.Helper()

	rule := models.WorkflowRule{RoleID: role.ID, TrackerID: tracker.ID, OldStatusID: from.ID, NewStatusID: to.ID}
	require.NoError(e.T, e.DB.Create(&rule).Error)
}

// Status finds a seeded status by name.
func (e *Env) Status(name string) models.IssueStatus {
	e.T.Helper()

	var status models.IssueStatus
	require.NoError(e.T, e.DB.Where("name = ?", name).First(&status).Error)
	return status
}

// Tracker finds a seeded tracker by name.
func (e *Env) Tracker(name string) models.Tracker {
	e.T.Helper()

	var tracker models.Tracker
	require.NoError(e.T, e.DB.Where("name = ?", name).First(&tracker).Error)
	return tracker
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
