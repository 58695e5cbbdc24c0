package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/internal/permissions"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
)

var projectIdentifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,99}$`)

// CreateProjectInput captures metadata for a new project.
type CreateProjectInput struct {
	Name        string
	Identifier  string
	Description string
	IsPublic    bool
	ParentID    *string
}

// ProjectService manages the project tree and its lifecycle.
type ProjectService struct {
	db           *gorm.DB
	auditService *AuditService
	policy       *permissions.Policy
}

// NewProjectService constructs a ProjectService. The policy filters List
// results and may be nil in tooling that needs the raw tree.
func NewProjectService(db *gorm.DB, auditService *AuditService, policy *permissions.Policy) (*ProjectService, error) {
	if db == nil {
		return nil, errors.New("project service: db is required")
	}
	return &ProjectService{db: db, auditService: auditService, policy: policy}, nil
}

// Create registers an active project, optionally below a parent.
func (s *ProjectService) Create(ctx context.Context, input CreateProjectInput) (*models.Project, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	identifier := strings.ToLower(strings.TrimSpace(input.Identifier))
	if name == "" {
		return nil, apperrors.NewInvalidArgument("project name is required")
	}
	if !projectIdentifierPattern.MatchString(identifier) {
		return nil, apperrors.NewInvalidArgument(fmt.Sprintf("invalid project identifier %q", input.Identifier))
	}

	project := &models.Project{
		Name:        name,
		Identifier:  identifier,
		Description: strings.TrimSpace(input.Description),
		IsPublic:    input.IsPublic,
		Status:      models.ProjectStatusActive,
	}

	if input.ParentID != nil && strings.TrimSpace(*input.ParentID) != "" {
		parent, err := loadProject(s.db.WithContext(ctx), *input.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.IsArchived() {
			return nil, apperrors.NewInvalidArgument("parent project is archived")
		}
		project.ParentID = stringPtr(parent.ID)
	}

	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrProjectExists
		}
		return nil, fmt.Errorf("project service: create project: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "project.create",
		ResourceType: models.AuditResourceProject,
		Resource:     project.ID,
		ProjectID:    project.ID,
		Result:       AuditResultSuccess,
		Metadata:     map[string]any{
			"identifier": project.Identifier,
			"is_public":  project.IsPublic,
		},
	})
	return project, nil
}

// Get loads a project by identifier.
func (s *ProjectService) Get(ctx context.Context, id string) (*models.Project, error) {
	ctx = ensureContext(ctx)
	return loadProject(s.db.WithContext(ctx), id)
}

// GetVisible loads a project and requires that user (nil for anonymous) can see it.
func (s *ProjectService) GetVisible(ctx context.Context, user *models.User, id string) (*models.Project, error) {
	ctx = ensureContext(ctx)

	project, err := loadProject(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if s.policy == nil {
		return project, nil
	}

	decision, err := s.policy.ProjectVisible(ctx, user, project)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		if user == nil {
			return nil, apperrors.ErrUnauthorized.WithMessage(decision.Reason)
		}
		return nil, apperrors.NewForbidden(decision.Reason)
	}
	return project, nil
}

// List returns the projects user can see, ordered by name.
func (s *ProjectService) List(ctx context.Context, user *models.User) ([]models.Project, error) {
	ctx = ensureContext(ctx)

	var projects []models.Project
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("project service: list projects: %w", err)
	}
	if s.policy == nil {
		return projects, nil
	}

	visible := make([]models.Project, 0, len(projects))
	for i := range projects {
		decision, err := s.policy.ProjectVisible(ctx, user, &projects[i])
		if err != nil {
			return nil, err
		}
		if decision.Allowed {
			visible = append(visible, projects[i])
		}
	}
	return visible, nil
}

// SetParent moves a project below parentID, or to the root when parentID is
// empty. Moves that would create a cycle are rejected.
func (s *ProjectService) SetParent(ctx context.Context, id, parentID string) (*models.Project, error) {
	ctx = ensureContext(ctx)
	parentID = strings.TrimSpace(parentID)

	var project *models.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		project, err = loadProject(tx, id)
		if err != nil {
			return err
		}

		if parentID == "" {
			project.ParentID = nil
			return tx.Model(&models.Project{}).Where("id = ?", project.ID).Update("parent_id", nil).Error
		}

		if parentID == project.ID {
			return apperrors.NewInvalidArgument("a project cannot be its own parent")
		}
		parent, err := loadProject(tx, parentID)
		if err != nil {
			return err
		}
		descendants, err := descendantIDs(tx, project.ID)
		if err != nil {
			return err
		}
		if containsString(descendants, parent.ID) {
			return apperrors.NewInvalidArgument("a project cannot be moved below its own subproject")
		}

		project.ParentID = stringPtr(parent.ID)
		return tx.Model(&models.Project{}).Where("id = ?", project.ID).Update("parent_id", parent.ID).Error
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "project.parent.set",
		ResourceType: models.AuditResourceProject,
		Resource:     project.ID,
		ProjectID:    project.ID,
		Result:       AuditResultSuccess,
		Metadata:     map[string]any{"parent_id": parentID},
	})
	return project, nil
}

// SetStatus moves the project through its lifecycle. Closing and archiving
// cascade to subprojects; reopening and unarchiving apply to the project
// and, for reopen, to its closed subprojects.
func (s *ProjectService) SetStatus(ctx context.Context, id, status string) (*models.Project, error) {
	ctx = ensureContext(ctx)
	status = strings.TrimSpace(status)
	if !models.ValidProjectStatus(status) {
		return nil, apperrors.NewInvalidArgument(fmt.Sprintf("invalid project status %q", status))
	}

	var (
		project  *models.Project
		previous string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		project, err = loadProject(tx, id)
		if err != nil {
			return err
		}
		previous = project.Status
		if previous == status {
			return nil
		}

		descendants, err := descendantIDs(tx, project.ID)
		if err != nil {
			return err
		}

		switch {
		case status == models.ProjectStatusArchived:
			err = updateProjectStatus(tx, append([]string{project.ID}, descendants...), "", status)
		case previous == models.ProjectStatusActive && status == models.ProjectStatusClosed:
			err = updateProjectStatus(tx, append([]string{project.ID}, descendants...), models.ProjectStatusActive, status)
		case previous == models.ProjectStatusClosed && status == models.ProjectStatusActive:
			err = updateProjectStatus(tx, append([]string{project.ID}, descendants...), models.ProjectStatusClosed, status)
		case previous == models.ProjectStatusArchived && status == models.ProjectStatusActive:
			if project.ParentID != nil {
				parent, perr := loadProject(tx, *project.ParentID)
				if perr != nil {
					return perr
				}
				if parent.IsArchived() {
					return apperrors.NewInvalidArgument("cannot unarchive a project below an archived parent")
				}
			}
			err = updateProjectStatus(tx, []string{project.ID}, "", status)
		default:
			return apperrors.NewInvalidArgument(fmt.Sprintf("cannot move project from %s to %s", previous, status))
		}
		if err != nil {
			return err
		}
		project.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	if previous != status {
		recordAudit(s.auditService, ctx, AuditEntry{
			Action:       "project.status.set",
			ResourceType: models.AuditResourceProject,
			Resource:     project.ID,
			ProjectID:    project.ID,
			Result:       AuditResultSuccess,
			Metadata:     map[string]any{"from": previous, "to": status},
		})
	}
	return project, nil
}

func updateProjectStatus(tx *gorm.DB, ids []string, from, to string) error {
	query := tx.Model(&models.Project{}).Where("id IN ?", ids)
	if from != "" {
		query = query.Where("status = ?", from)
	}
	if err := query.Update("status", to).Error; err != nil {
		return fmt.Errorf("project service: update status: %w", err)
	}
	return nil
}

// descendantIDs walks the tree below projectID breadth first.
func descendantIDs(tx *gorm.DB, projectID string) ([]string, error) {
	var (
		out      []string
		frontier = []string{projectID}
		seen     = map[string]struct{}{projectID: {}}
	)
	for len(frontier) > 0 {
		var children []string
		if err := tx.Model(&models.Project{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
			return nil, fmt.Errorf("project service: load subprojects: %w", err)
		}
		frontier = frontier[:0]
		for _, child := range children {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			out = append(out, child)
			frontier = append(frontier, child)
		}
	}
	return out, nil
}
