package permissions

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/issuetrail/internal/models"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
	"github.com/charlesng35/issuetrail/pkg/logger"
	"github.com/charlesng35/issuetrail/pkg/metrics"
)

// Evaluator is the single place where permission grants are decided. It
// denies by default: no membership, no roles and unmatched names all deny.
type Evaluator struct {
	resolver *Resolver
	log      *zap.Logger
}

// NewEvaluator constructs an Evaluator on top of resolver.
func NewEvaluator(resolver *Resolver) (*Evaluator, error) {
	if resolver == nil {
		return nil, errors.New("permission evaluator: resolver is required")
	}
	return &Evaluator{resolver: resolver, log: logger.WithModule("permissions")}, nil
}

// Resolver exposes the membership resolver the evaluator reads from.
func (e *Evaluator) Resolver() *Resolver {
	return e.resolver
}

// IsAdmin reports whether user is a global administrator.
func (e *Evaluator) IsAdmin(user *models.User) bool {
	return user != nil && user.IsAdmin
}

// Allowed decides whether user holds permission in projectID. Administrators
// always pass; everyone else needs a role in the project that grants it.
func (e *Evaluator) Allowed(ctx context.Context, user *models.User, projectID, permission string) (Decision, error) {
	if err := validatePermission(permission); err != nil {
		return Decision{}, err
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return Decision{}, apperrors.NewInvalidArgument("project id is required")
	}

	decision, _, err := e.grant(ctx, user, projectID, permission)
	if err != nil {
		metrics.PermissionChecks.WithLabelValues("project", permissionLabel(permission), "error").Inc()
		return Decision{}, err
	}
	metrics.PermissionChecks.WithLabelValues("project", permissionLabel(permission), metrics.ResultLabel(decision.Allowed)).Inc()
	if !decision.Allowed {
		e.log.Debug("permission denied",
			zap.String("project_id", projectID),
			zap.String("permission", permission),
			zap.String("reason", decision.Reason),
		)
	}
	return decision, nil
}

// AllowedGlobally decides whether user holds permission through any of their
// memberships. It backs system-wide actions and is kept apart from the
// project-scoped check.
func (e *Evaluator) AllowedGlobally(ctx context.Context, user *models.User, permission string) (Decision, error) {
	if err := validatePermission(permission); err != nil {
		return Decision{}, err
	}

	decision, err := e.globalGrant(ctx, user, permission)
	if err != nil {
		metrics.PermissionChecks.WithLabelValues("global", permissionLabel(permission), "error").Inc()
		return Decision{}, err
	}
	metrics.PermissionChecks.WithLabelValues("global", permissionLabel(permission), metrics.ResultLabel(decision.Allowed)).Inc()
	return decision, nil
}

// HasProjectPermission is the boolean form of Allowed.
func (e *Evaluator) HasProjectPermission(ctx context.Context, user *models.User, projectID, permission string) (bool, error) {
	decision, err := e.Allowed(ctx, user, projectID, permission)
	return decision.Allowed, err
}

// HasGlobalPermission is the boolean form of AllowedGlobally.
func (e *Evaluator) HasGlobalPermission(ctx context.Context, user *models.User, permission string) (bool, error) {
	decision, err := e.AllowedGlobally(ctx, user, permission)
	return decision.Allowed, err
}

// grant evaluates a project permission and also returns the roles that grant it.
func (e *Evaluator) grant(ctx context.Context, user *models.User, projectID, permission string) (Decision, []models.Role, error) {
	if user == nil {
		return deny(ReasonAuthRequired), nil, nil
	}
	if e.IsAdmin(user) {
		return allow(ReasonAdminOverride), nil, nil
	}

	view, err := e.resolver.Membership(ctx, user.ID, projectID)
	if err != nil {
		return Decision{}, nil, err
	}
	if !view.Member {
		return deny(ReasonNotMember), nil, nil
	}

	roles, err := e.resolver.Roles(ctx, view.RoleIDs)
	if err != nil {
		return Decision{}, nil, err
	}

	granting := rolesGranting(roles, permission)
	if len(granting) == 0 {
		return deny(MissingPermission(permission)), nil, nil
	}
	return allow(ReasonRoleGrant), granting, nil
}

func (e *Evaluator) globalGrant(ctx context.Context, user *models.User, permission string) (Decision, error) {
	if user == nil {
		return deny(ReasonAuthRequired), nil
	}
	if e.IsAdmin(user) {
		return allow(ReasonAdminOverride), nil
	}

	roles, err := e.resolver.RolesAcrossProjects(ctx, user.ID)
	if err != nil {
		return Decision{}, err
	}
	if len(roles) == 0 {
		return deny(ReasonNotMember), nil
	}
	if len(rolesGranting(roles, permission)) == 0 {
		return deny(MissingPermission(permission)), nil
	}
	return allow(ReasonRoleGrant), nil
}

func rolesGranting(roles []models.Role, permission string) []models.Role {
	var granting []models.Role
	for i := range roles {
		if roles[i].HasPermission(permission) {
			granting = append(granting, roles[i])
		}
	}
	return granting
}

func validatePermission(name string) error {
	if !ValidName(name) {
		return apperrors.NewInvalidArgument("malformed permission name")
	}
	return nil
}

// permissionLabel keeps metric cardinality bounded to the catalog.
func permissionLabel(name string) string {
	if Known(name) {
		return name
	}
	return "other"
}
