package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/app"
	iauth "github.com/charlesng35/issuetrail/internal/auth"
	"github.com/charlesng35/issuetrail/internal/cache"
	"github.com/charlesng35/issuetrail/internal/handlers"
	"github.com/charlesng35/issuetrail/internal/middleware"
	"github.com/charlesng35/issuetrail/internal/monitoring"
	"github.com/charlesng35/issuetrail/internal/monitoring/checks"
	"github.com/charlesng35/issuetrail/internal/permissions"
	"github.com/charlesng35/issuetrail/internal/security"
	"github.com/charlesng35/issuetrail/internal/services"
	"github.com/charlesng35/issuetrail/internal/store"
	"github.com/charlesng35/issuetrail/internal/workflow"
	"github.com/charlesng35/issuetrail/pkg/mail"
)

// Dependencies carries the long lived collaborators the router wires into
// the authorization core and the handlers.
type Dependencies struct {
	DB     *gorm.DB
	Config *app.Config
	Tokens *iauth.JWTService

	// Cache backs the membership cache. Nil disables membership caching.
	Cache cache.Store
	// RateStore counts requests for the rate limiter. Nil falls back to an in-process store.
	RateStore middleware.RateStore
	// Mailer delivers status change notifications. Nil disables them.
	Mailer mail.Mailer
	// HealthChecks are extra readiness probes next to the database and cache probes.
	HealthChecks []monitoring.Check
}

// NewRouter builds the Gin engine, wires middleware and registers the API routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	cfg := deps.Config

	core, err := newCore(deps)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins...))
	if cfg.Server.RateLimit.Enabled {
		rateStore := deps.RateStore
		if rateStore == nil {
			rateStore = middleware.NewMemoryRateStore()
		}
		requests, window := cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window
		if requests <= 0 {
			requests = 300
		}
		if window <= 0 {
			window = time.Minute
		}
		r.Use(middleware.RateLimit(rateStore, requests, window))
	}

	health := monitoring.NewHealthManager(0)
	health.Register(checks.Database(deps.DB))
	if pinger, ok := deps.Cache.(checks.Pinger); ok {
		health.Register(checks.Redis(pinger))
	}
	health.Register(deps.HealthChecks...)

	r.GET("/health", handlers.Health(health))
	r.GET("/health/live", handlers.Liveness)
	r.GET("/health/ready", handlers.Readiness(health))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.OptionalAuth(core.authn))

	if err := registerRoutes(api, core); err != nil {
		return nil, err
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

// core is the authorization and service graph shared by all route groups.
type core struct {
	authn     *iauth.Authenticator
	evaluator *permissions.Evaluator

	audit    *services.AuditService
	roles    *services.RoleService
	members  *services.MembershipService
	projects *services.ProjectService
	issues   *services.IssueService
	workflow *services.WorkflowService
	posture  *security.AuditService
}

func newCore(deps Dependencies) (*core, error) {
	cfg := deps.Config

	st, err := store.New(deps.DB)
	if err != nil {
		return nil, err
	}
	authn, err := iauth.NewAuthenticator(deps.Tokens, st)
	if err != nil {
		return nil, err
	}

	resolver, err := permissions.NewResolver(st, cfg.Authz.ResolverOptions(deps.Cache)...)
	if err != nil {
		return nil, err
	}
	evaluator, err := permissions.NewEvaluator(resolver)
	if err != nil {
		return nil, err
	}
	policy, err := permissions.NewPolicy(evaluator, st, permissions.WithAnonymousAccess(cfg.Auth.AnonymousAccess()))
	if err != nil {
		return nil, err
	}
	engine, err := workflow.NewEngine(evaluator, st)
	if err != nil {
		return nil, err
	}

	audit, err := services.NewAuditService(deps.DB)
	if err != nil {
		return nil, err
	}
	roles, err := services.NewRoleService(deps.DB, audit, resolver)
	if err != nil {
		return nil, err
	}
	members, err := services.NewMembershipService(deps.DB, audit, resolver)
	if err != nil {
		return nil, err
	}
	projects, err := services.NewProjectService(deps.DB, audit, policy)
	if err != nil {
		return nil, err
	}
	wf, err := services.NewWorkflowService(deps.DB, audit)
	if err != nil {
		return nil, err
	}

	var notifier services.IssueNotifier
	if deps.Mailer != nil {
		notifications, err := services.NewNotificationService(deps.DB, policy, deps.Mailer)
		if err != nil {
			return nil, err
		}
		notifier = notifications
	}
	issues, err := services.NewIssueService(deps.DB, audit, policy, engine, notifier)
	if err != nil {
		return nil, err
	}

	return &core{
		authn:     authn,
		evaluator: evaluator,
		audit:     audit,
		roles:     roles,
		members:   members,
		projects:  projects,
		issues:    issues,
		workflow:  wf,
		posture:   security.NewAuditService(deps.DB, deps.Tokens, cfg),
	}, nil
}

func registerRoutes(api *gin.RouterGroup, c *core) error {
	roleHandler, err := handlers.NewRoleHandler(c.roles)
	if err != nil {
		return err
	}
	projectHandler, err := handlers.NewProjectHandler(c.projects)
	if err != nil {
		return err
	}
	memberHandler, err := handlers.NewMemberHandler(c.members, c.projects)
	if err != nil {
		return err
	}
	authzHandler, err := handlers.NewAuthzHandler(c.evaluator)
	if err != nil {
		return err
	}
	issueHandler, err := handlers.NewIssueHandler(c.issues)
	if err != nil {
		return err
	}
	workflowHandler, err := handlers.NewWorkflowHandler(c.workflow)
	if err != nil {
		return err
	}
	auditHandler, err := handlers.NewAuditHandler(c.audit)
	if err != nil {
		return err
	}
	securityHandler, err := handlers.NewSecurityHandler(c.posture)
	if err != nil {
		return err
	}
	requireAuth := middleware.RequireUser()
	requireAdmin := middleware.RequireAdmin()
	projectPermission := func(permission string) gin.HandlerFunc {
		return middleware.RequireProjectPermission(c.evaluator, "id", permission)
	}

	api.GET("/permissions/registry", handlers.PermissionRegistry)

	roles := api.Group("/roles")
	{
		viewRoles := middleware.RequireGlobalPermission(c.evaluator, permissions.ManageMembers)
		roles.GET("", viewRoles, roleHandler.List)
		roles.GET("/:id", viewRoles, roleHandler.Get)
		roles.GET("/:id/permissions", viewRoles, roleHandler.GetPermissions)
		roles.POST("", requireAdmin, roleHandler.Create)
		roles.PATCH("/:id", requireAdmin, roleHandler.Update)
		roles.DELETE("/:id", requireAdmin, roleHandler.Delete)
		roles.PUT("/:id/permissions", requireAdmin, roleHandler.SetPermissions)
	}

	projects := api.Group("/projects")
	{
		projects.GET("", projectHandler.List)
		projects.POST("", middleware.RequireGlobalPermission(c.evaluator, permissions.AddProject), projectHandler.Create)
		projects.GET("/:id", projectHandler.Get)
		projects.PATCH("/:id/parent", projectPermission(permissions.EditProject), projectHandler.SetParent)
		projects.PATCH("/:id/status", requireAdmin, projectHandler.SetStatus)

		projects.GET("/:id/members", memberHandler.List)
		projects.POST("/:id/members", projectPermission(permissions.ManageMembers), memberHandler.Add)
		projects.PUT("/:id/members/:userID", projectPermission(permissions.ManageMembers), memberHandler.Update)
		projects.DELETE("/:id/members/:userID", projectPermission(permissions.ManageMembers), memberHandler.Remove)

		projects.GET("/:id/authz/roles", authzHandler.ProjectRoles)
		projects.GET("/:id/authz/permissions/:permission", authzHandler.ProjectPermission)

		projects.GET("/:id/issues", issueHandler.ListForProject)
		projects.POST("/:id/issues", requireAuth, issueHandler.Create)
	}

	api.GET("/authz/permissions/:permission", authzHandler.GlobalPermission)

	issues := api.Group("/issues")
	{
		issues.GET("/:id", issueHandler.Get)
		issues.GET("/:id/journals", issueHandler.Journals)
		issues.POST("/:id/journals", requireAuth, issueHandler.AddNote)
		issues.GET("/:id/transitions", requireAuth, issueHandler.Transitions)
		issues.GET("/:id/transitions/:statusID", requireAuth, issueHandler.Transition)
		issues.POST("/:id/status", requireAuth, issueHandler.ChangeStatus)
		issues.PATCH("/:id/private", requireAuth, issueHandler.SetPrivate)
		issues.PATCH("/:id/assignee", requireAuth, issueHandler.Assign)
	}

	workflows := api.Group("/workflows", requireAdmin)
	{
		workflows.GET("", workflowHandler.List)
		workflows.POST("", workflowHandler.Create)
		workflows.POST("/copy", workflowHandler.Copy)
		workflows.DELETE("/:id", workflowHandler.Delete)
	}

	audit := api.Group("/audit", requireAdmin)
	{
		audit.GET("", auditHandler.List)
		audit.GET("/export", auditHandler.Export)
	}

	api.GET("/security/audit", requireAdmin, securityHandler.Audit)

	return nil
}
