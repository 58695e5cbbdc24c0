package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/internal/permissions"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
	"github.com/charlesng35/issuetrail/pkg/logger"
)

// CreateRoleInput captures metadata for a new custom role.
type CreateRoleInput struct {
	Name                  string
	Assignable            bool
	Position              int
	Permissions           []string
	IssuesVisibility      string
	UsersVisibility       string
	TimeEntriesVisibility string
}

// UpdateRoleInput describes mutable role fields. Nil pointers are left unchanged.
type UpdateRoleInput struct {
	Name                  *string
	Assignable            *bool
	Position              *int
	IssuesVisibility      *string
	UsersVisibility       *string
	TimeEntriesVisibility *string
}

// RoleService manages custom roles and their permission sets. Builtin roles
// are readable but never mutated.
type RoleService struct {
	db           *gorm.DB
	auditService *AuditService
	authz        AuthzCache
	log          *zap.Logger
}

// NewRoleService constructs a RoleService. authz may be nil when no resolver cache is in use.
func NewRoleService(db *gorm.DB, auditService *AuditService, authz AuthzCache) (*RoleService, error) {
	if db == nil {
		return nil, errors.New("role service: db is required")
	}
	return &RoleService{
		db:           db,
		auditService: auditService,
		authz:        authz,
		log:          logger.WithModule("roles"),
	}, nil
}

// List returns every role ordered by position.
func (s *RoleService) List(ctx context.Context) ([]models.Role, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	if err := s.db.WithContext(ctx).Order("position ASC, name ASC").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("role service: list roles: %w", err)
	}
	return roles, nil
}

// Get loads a role by identifier.
func (s *RoleService) Get(ctx context.Context, id string) (*models.Role, error) {
	ctx = ensureContext(ctx)
	return s.load(s.db.WithContext(ctx), id)
}

// Create registers a new custom role.
func (s *RoleService) Create(ctx context.Context, input CreateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewInvalidArgument("role name is required")
	}

	set, err := permissionSetFrom(input.Permissions)
	if err != nil {
		return nil, err
	}

	role := &models.Role{
		Name:                  name,
		Builtin:               models.BuiltinNone,
		Assignable:            input.Assignable,
		Position:              input.Position,
		Permissions:           set,
		IssuesVisibility:      strings.TrimSpace(input.IssuesVisibility),
		UsersVisibility:       strings.TrimSpace(input.UsersVisibility),
		TimeEntriesVisibility: strings.TrimSpace(input.TimeEntriesVisibility),
	}
	role.ApplyVisibilityDefaults()
	if err := validateScopes(role); err != nil {
		return nil, err
	}

	if role.Position == 0 {
		var maxPosition int
		if err := s.db.WithContext(ctx).Model(&models.Role{}).Select("COALESCE(MAX(position), 0)").Scan(&maxPosition).Error; err != nil {
			return nil, fmt.Errorf("role service: next position: %w", err)
		}
		role.Position = maxPosition + 1
	}

	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrRoleExists
		}
		return nil, fmt.Errorf("role service: create role: %w", err)
	}

	s.warnMissingDependencies(role)
	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "role.create",
		ResourceType: models.AuditResourceRole,
		Resource:     role.ID,
		Result:       AuditResultSuccess,
		Metadata:     map[string]any{
			"name":        role.Name,
			"permissions": role.Permissions.Names(),
		},
	})

	return role, nil
}

// Update modifies role metadata and scopes.
func (s *RoleService) Update(ctx context.Context, id string, input UpdateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	role, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if role.IsBuiltin() {
		return nil, apperrors.ErrImmutableRole
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewInvalidArgument("role name is required")
		}
		if name != role.Name {
			updates["name"] = name
			role.Name = name
		}
	}
	if input.Assignable != nil {
		updates["assignable"] = *input.Assignable
		role.Assignable = *input.Assignable
	}
	if input.Position != nil {
		updates["position"] = *input.Position
		role.Position = *input.Position
	}
	if input.IssuesVisibility != nil {
		role.IssuesVisibility = strings.TrimSpace(*input.IssuesVisibility)
		updates["issues_visibility"] = role.IssuesVisibility
	}
	if input.UsersVisibility != nil {
		role.UsersVisibility = strings.TrimSpace(*input.UsersVisibility)
		updates["users_visibility"] = role.UsersVisibility
	}
	if input.TimeEntriesVisibility != nil {
		role.TimeEntriesVisibility = strings.TrimSpace(*input.TimeEntriesVisibility)
		updates["time_entries_visibility"] = role.TimeEntriesVisibility
	}
	if err := validateScopes(role); err != nil {
		return nil, err
	}

	if len(updates) == 0 {
		return role, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Role{}).Where("id = ?", role.ID).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrRoleExists
		}
		return nil, fmt.Errorf("role service: update role: %w", err)
	}
	s.invalidateRole(role.ID)

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "role.update",
		ResourceType: models.AuditResourceRole,
		Resource:     role.ID,
		Result:       AuditResultSuccess,
		Metadata:     updates,
	})

	return s.Get(ctx, role.ID)
}

// Delete removes a custom role along with its workflow rules. Roles still
// attached to memberships cannot be deleted.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := s.load(tx, id)
		if err != nil {
			return err
		}
		if role.IsBuiltin() {
			return apperrors.ErrImmutableRole
		}

		var inUse int64
		if err := tx.Model(&models.MemberRole{}).Where("role_id = ?", role.ID).Count(&inUse).Error; err != nil {
			return fmt.Errorf("role service: count members: %w", err)
		}
		if inUse > 0 {
			return ErrRoleInUse
		}

		if err := tx.Where("role_id = ?", role.ID).Delete(&models.WorkflowRule{}).Error; err != nil {
			return fmt.Errorf("role service: delete workflow rules: %w", err)
		}
		if err := tx.Delete(role).Error; err != nil {
			return fmt.Errorf("role service: delete role: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateRole(id)
	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "role.delete",
		ResourceType: models.AuditResourceRole,
		Resource:     id,
		Result:       AuditResultSuccess,
	})
	return nil
}

// GetPermissions returns the role's permission names, sorted.
func (s *RoleService) GetPermissions(ctx context.Context, id string) ([]string, error) {
	role, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return role.Permissions.Names(), nil
}

// SetPermissions replaces the role's permission set wholesale. Names outside
// the catalog are stored as given.
func (s *RoleService) SetPermissions(ctx context.Context, id string, names []string) (*models.Role, error) {
	ctx = ensureContext(ctx)

	set, err := permissionSetFrom(names)
	if err != nil {
		return nil, err
	}

	role, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if role.IsBuiltin() {
		return nil, apperrors.ErrImmutableRole
	}

	previous := role.Permissions.Names()
	if err := s.db.WithContext(ctx).Model(&models.Role{}).Where("id = ?", role.ID).Update("permissions", set).Error; err != nil {
		return nil, fmt.Errorf("role service: set permissions: %w", err)
	}
	role.Permissions = set
	s.invalidateRole(role.ID)
	s.warnMissingDependencies(role)

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "role.permissions.set",
		ResourceType: models.AuditResourceRole,
		Resource:     role.ID,
		Result:       AuditResultSuccess,
		Metadata:     map[string]any{
			"previous":    previous,
			"permissions": set.Names(),
		},
	})
	return role, nil
}

func (s *RoleService) load(db *gorm.DB, id string) (*models.Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRoleNotFound
	}

	var role models.Role
	err := db.First(&role, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role service: load role: %w", err)
	}
	return &role, nil
}

func (s *RoleService) invalidateRole(id string) {
	if s.authz != nil {
		s.authz.InvalidateRole(id)
	}
}

func (s *RoleService) warnMissingDependencies(role *models.Role) {
	if missing := permissions.MissingDependencies(role.Permissions); len(missing) > 0 {
		s.log.Warn("role grants permissions without their dependencies",
			zap.String("role_id", role.ID),
			zap.String("role", role.Name),
			zap.Strings("missing", missing),
		)
	}
}

func permissionSetFrom(names []string) (models.PermissionSet, error) {
	set := models.PermissionSet{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if !permissions.ValidName(name) {
			return nil, apperrors.NewInvalidArgument(fmt.Sprintf("invalid permission name %q", name))
		}
		set[name] = struct{}{}
	}
	return set, nil
}

func validateScopes(role *models.Role) error {
	if !models.ValidIssuesVisibility(role.IssuesVisibility) {
		return apperrors.NewInvalidArgument(fmt.Sprintf("invalid issues visibility %q", role.IssuesVisibility))
	}
	if !models.ValidUsersVisibility(role.UsersVisibility) {
		return apperrors.NewInvalidArgument(fmt.Sprintf("invalid users visibility %q", role.UsersVisibility))
	}
	if !models.ValidTimeEntriesVisibility(role.TimeEntriesVisibility) {
		return apperrors.NewInvalidArgument(fmt.Sprintf("invalid time entries visibility %q", role.TimeEntriesVisibility))
	}
	return nil
}
