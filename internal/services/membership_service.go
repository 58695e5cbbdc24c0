package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/models"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
)

// AddMemberInput describes a new project membership.
type AddMemberInput struct {
	ProjectID        string
	UserID           string
	RoleIDs          []string
	MailNotification bool
}

// MembershipService manages the roles users hold in projects. Every mutation
// drops the cached membership view so the next authorization check reloads it.
type MembershipService struct {
	db           *gorm.DB
	auditService *AuditService
	authz        AuthzCache
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(db *gorm.DB, auditService *AuditService, authz AuthzCache) (*MembershipService, error) {
	if db == nil {
		return nil, errors.New("membership service: db is required")
	}
	return &MembershipService{db: db, auditService: auditService, authz: authz}, nil
}

// List returns the project's members with their users and roles.
func (s *MembershipService) List(ctx context.Context, projectID string) ([]models.Member, error) {
	ctx = ensureContext(ctx)

	if _, err := loadProject(s.db.WithContext(ctx), projectID); err != nil {
		return nil, err
	}

	var members []models.Member
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("membership service: list members: %w", err)
	}
	return members, nil
}

// Get loads one membership.
func (s *MembershipService) Get(ctx context.Context, projectID, userID string) (*models.Member, error) {
	ctx = ensureContext(ctx)
	return s.load(s.db.WithContext(ctx), projectID, userID)
}

// Add creates a membership carrying at least one assignable role.
func (s *MembershipService) Add(ctx context.Context, input AddMemberInput) (*models.Member, error) {
	ctx = ensureContext(ctx)

	projectID := strings.TrimSpace(input.ProjectID)
	userID := strings.TrimSpace(input.UserID)

	var member models.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadProject(tx, projectID); err != nil {
			return err
		}
		if err := userExists(tx, userID); err != nil {
			return err
		}
		roles, err := memberRoles(tx, input.RoleIDs)
		if err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.Member{}).Where("user_id = ? AND project_id = ?", userID, projectID).Count(&existing).Error; err != nil {
			return fmt.Errorf("membership service: check member: %w", err)
		}
		if existing > 0 {
			return ErrMemberExists
		}

		member = models.Member{
			UserID:           userID,
			ProjectID:        projectID,
			MailNotification: input.MailNotification,
			Roles:            roles,
		}
		if err := tx.Omit("Roles.*").Create(&member).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrMemberExists
			}
			return fmt.Errorf("membership service: create member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID, projectID)
	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "member.add",
		ResourceType: models.AuditResourceMember,
		Resource:     userID,
		ProjectID:    projectID,
		Result:       AuditResultSuccess,
		Metadata:     map[string]any{"role_ids": member.RoleIDs()},
	})
	return s.Get(ctx, projectID, userID)
}

// SetRoles replaces the roles of an existing membership.
func (s *MembershipService) SetRoles(ctx context.Context, projectID, userID string, roleIDs []string) (*models.Member, error) {
	ctx = ensureContext(ctx)

	var previous []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := s.load(tx, projectID, userID)
		if err != nil {
			return err
		}
		previous = member.RoleIDs()

		roles, err := memberRoles(tx, roleIDs)
		if err != nil {
			return err
		}
		if err := tx.Where("member_id = ?", member.ID).Delete(&models.MemberRole{}).Error; err != nil {
			return fmt.Errorf("membership service: clear roles: %w", err)
		}
		links := make([]models.MemberRole, 0, len(roles))
		for _, role := range roles {
			links = append(links, models.MemberRole{MemberID: member.ID, RoleID: role.ID})
		}
		if err := tx.Create(&links).Error; err != nil {
			return fmt.Errorf("membership service: assign roles: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID, projectID)
	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "member.roles.set",
		ResourceType: models.AuditResourceMember,
		Resource:     userID,
		ProjectID:    projectID,
		Result:       AuditResultSuccess,
		Metadata:     map[string]any{
			"previous": previous,
			"role_ids": normaliseIDs(roleIDs),
		},
	})
	return s.Get(ctx, projectID, userID)
}

// SetMailNotification toggles whether the member receives issue notifications.
func (s *MembershipService) SetMailNotification(ctx context.Context, projectID, userID string, enabled bool) error {
	ctx = ensureContext(ctx)

	member, err := s.load(s.db.WithContext(ctx), projectID, userID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&models.Member{}).Where("id = ?", member.ID).Update("mail_notification", enabled).Error; err != nil {
		return fmt.Errorf("membership service: update notification flag: %w", err)
	}
	return nil
}

// Remove deletes the membership and its role links.
func (s *MembershipService) Remove(ctx context.Context, projectID, userID string) error {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := s.load(tx, projectID, userID)
		if err != nil {
			return err
		}
		if err := tx.Where("member_id = ?", member.ID).Delete(&models.MemberRole{}).Error; err != nil {
			return fmt.Errorf("membership service: clear roles: %w", err)
		}
		if err := tx.Delete(&models.Member{}, "id = ?", member.ID).Error; err != nil {
			return fmt.Errorf("membership service: delete member: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID, projectID)
	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "member.remove",
		ResourceType: models.AuditResourceMember,
		Resource:     userID,
		ProjectID:    projectID,
		Result:       AuditResultSuccess,
	})
	return nil
}

func (s *MembershipService) load(db *gorm.DB, projectID, userID string) (*models.Member, error) {
	projectID = strings.TrimSpace(projectID)
	userID = strings.TrimSpace(userID)
	if projectID == "" || userID == "" {
		return nil, ErrMemberNotFound
	}

	var member models.Member
	err := db.
		Preload("User").
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("membership service: load member: %w", err)
	}
	return &member, nil
}

func (s *MembershipService) invalidate(ctx context.Context, userID, projectID string) {
	if s.authz != nil {
		s.authz.InvalidateMembership(ctx, userID, projectID)
	}
}

// memberRoles loads the requested roles, rejecting builtin or unknown ones.
func memberRoles(db *gorm.DB, roleIDs []string) ([]models.Role, error) {
	ids := normaliseIDs(roleIDs)
	if len(ids) == 0 {
		return nil, apperrors.NewInvalidArgument("at least one role is required")
	}

	var roles []models.Role
	if err := db.Where("id IN ?", ids).Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("membership service: load roles: %w", err)
	}
	if len(roles) != len(ids) {
		return nil, apperrors.NewInvalidArgument("one or more roles do not exist")
	}
	for _, role := range roles {
		if role.IsBuiltin() {
			return nil, apperrors.NewInvalidArgument(fmt.Sprintf("role %q cannot be given to members", role.Name))
		}
	}
	return roles, nil
}

func loadProject(db *gorm.DB, id string) (*models.Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrProjectNotFound
	}

	var project models.Project
	err := db.First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	return &project, nil
}

func userExists(db *gorm.DB, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrUserNotFound
	}

	var count int64
	if err := db.Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
