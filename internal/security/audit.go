package security

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/app"
	iauth "github.com/charlesng35/issuetrail/internal/auth"
	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/internal/permissions"
)

// CheckStatus captures the outcome of a posture check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	checkAdminPresent   = "admin_user_present"
	checkJWTSecret      = "jwt_secret_strength"
	checkAnonymous      = "anonymous_access"
	checkRoleDeps       = "role_permission_dependencies"
	checkUnknownGrants  = "role_unknown_permissions"
	minimumSecretLength = 32
	strongSecretLength  = 48
)

// Check contains the result of a single verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// AuditService evaluates the authorization posture of a deployment: who can
// administer it, how tokens are signed, and whether role grants are coherent.
type AuditService struct {
	db  *gorm.DB
	jwt *iauth.JWTService
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. Missing inputs degrade the
// checks that need them to warnings.
func NewAuditService(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) *AuditService {
	return &AuditService{
		db:  db,
		jwt: jwt,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes every check.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkAdminUser(ctx),
		s.checkJWTSecret(),
		s.checkAnonymousAccess(),
	}
	checks = append(checks, s.checkRoles(ctx)...)

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkAdminUser(ctx context.Context) Check {
	if s.db == nil {
		return Check{
			ID:          checkAdminPresent,
			Status:      StatusWarn,
			Message:     "Database unavailable, unable to confirm an administrator exists.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_admin = ? AND locked = ?", true, false).
		Count(&count).Error; err != nil {
		return Check{
			ID:          checkAdminPresent,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not count administrators: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          checkAdminPresent,
			Status:      StatusFail,
			Message:     "No unlocked administrator found.",
			Remediation: "Unlock or create an administrator so roles and workflows stay manageable.",
		}
	}

	return Check{
		ID:      checkAdminPresent,
		Status:  StatusPass,
		Message: "Administrator present.",
		Details: map[string]any{"count": count},
	}
}

func (s *AuditService) checkJWTSecret() Check {
	if s.jwt == nil {
		return Check{
			ID:          checkJWTSecret,
			Status:      StatusWarn,
			Message:     "JWT service not initialised, unable to assess signing secret strength.",
			Remediation: "Initialise the JWT service with a strong secret.",
		}
	}

	length := s.jwt.SecretLength()
	switch {
	case length < minimumSecretLength:
		return Check{
			ID:          checkJWTSecret,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Set ISSUETRAIL_AUTH_JWT_SECRET to a random value of at least 32 bytes.",
			Details:     map[string]any{"length": length},
		}
	case length < strongSecretLength:
		return Check{
			ID:          checkJWTSecret,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider 48 or more.", length),
			Remediation: "Increase the length of ISSUETRAIL_AUTH_JWT_SECRET to at least 48 bytes.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      checkJWTSecret,
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkAnonymousAccess() Check {
	if s.cfg == nil {
		return Check{
			ID:          checkAnonymous,
			Status:      StatusWarn,
			Message:     "Configuration not loaded, unable to evaluate anonymous access.",
			Remediation: "Load configuration before running the audit.",
		}
	}

	if s.cfg.Auth.AnonymousAccess() {
		return Check{
			ID:          checkAnonymous,
			Status:      StatusWarn,
			Message:     "Anonymous callers can browse public projects.",
			Remediation: "Set ISSUETRAIL_AUTH_LOGIN_REQUIRED=true unless public browsing is intended.",
		}
	}

	return Check{
		ID:      checkAnonymous,
		Status:  StatusPass,
		Message: "Login is required to browse projects.",
	}
}

// checkRoles reports custom roles whose grants are incomplete or reference
// permissions outside the catalog.
func (s *AuditService) checkRoles(ctx context.Context) []Check {
	if s.db == nil {
		return []Check{{
			ID:          checkRoleDeps,
			Status:      StatusWarn,
			Message:     "Database unavailable, unable to inspect roles.",
			Remediation: "Ensure database connectivity before running the audit.",
		}}
	}

	var roles []models.Role
	if err := s.db.WithContext(ctx).
		Where("builtin = ?", models.BuiltinNone).
		Order("position ASC").
		Find(&roles).Error; err != nil {
		return []Check{{
			ID:          checkRoleDeps,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not load roles: %v", err),
			Remediation: "Retry after resolving database errors.",
		}}
	}

	missing := make(map[string][]string)
	unknown := make(map[string][]string)
	for _, role := range roles {
		if deps := permissions.MissingDependencies(role.Permissions); len(deps) > 0 {
			missing[role.Name] = deps
		}
		var names []string
		for name := range role.Permissions {
			if !permissions.Known(name) {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			sort.Strings(names)
			unknown[role.Name] = names
		}
	}

	deps := Check{
		ID:      checkRoleDeps,
		Status:  StatusPass,
		Message: "Every role grants the permissions its grants depend on.",
	}
	if len(missing) > 0 {
		deps = Check{
			ID:          checkRoleDeps,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("%d role(s) grant permissions without their dependencies.", len(missing)),
			Remediation: "Add the listed permissions or drop the grants that need them.",
			Details:     missing,
		}
	}

	grants := Check{
		ID:      checkUnknownGrants,
		Status:  StatusPass,
		Message: "Every granted permission is registered.",
	}
	if len(unknown) > 0 {
		grants = Check{
			ID:          checkUnknownGrants,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("%d role(s) grant unregistered permissions.", len(unknown)),
			Remediation: "Remove permissions left behind by disabled modules.",
			Details:     unknown,
		}
	}

	return []Check{deps, grants}
}
