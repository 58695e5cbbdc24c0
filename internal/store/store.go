// Package store is the gorm implementation of the read interfaces consumed by
// the permission, visibility and workflow components.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/models"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
)

// Store reads authorization inputs from the relational database.
type Store struct {
	db *gorm.DB
}

// New constructs a Store.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	return &Store{db: db}, nil
}

// MembershipRoleIDs reports whether the user is a member of the project and the roles attached.
func (s *Store) MembershipRoleIDs(ctx context.Context, userID, projectID string) ([]string, bool, error) {
	var member models.Member
	err := s.db.WithContext(ensureContext(ctx)).
		Select("id").
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: load membership: %w", err)
	}

	var roleIDs []string
	if err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.MemberRole{}).
		Where("member_id = ?", member.ID).
		Pluck("role_id", &roleIDs).Error; err != nil {
		return nil, false, fmt.Errorf("store: load member roles: %w", err)
	}
	return roleIDs, true, nil
}

// UserRoleIDs returns the distinct roles held through any membership of the user.
func (s *Store) UserRoleIDs(ctx context.Context, userID string) ([]string, error) {
	var roleIDs []string
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.MemberRole{}).
		Distinct("member_roles.role_id").
		Joins("JOIN members ON members.id = member_roles.member_id").
		Where("members.user_id = ?", userID).
		Pluck("member_roles.role_id", &roleIDs).Error
	if err != nil {
		return nil, fmt.Errorf("store: load user roles: %w", err)
	}
	return roleIDs, nil
}

// RolesByID loads roles; unknown identifiers are skipped.
func (s *Store) RolesByID(ctx context.Context, ids []string) ([]models.Role, error) {
	if len(ids) == 0 {
		return []models.Role{}, nil
	}
	var roles []models.Role
	if err := s.db.WithContext(ensureContext(ctx)).
		Where("id IN ?", ids).
		Order("position ASC").
		Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("store: load roles: %w", err)
	}
	return roles, nil
}

// User loads a user by id.
func (s *Store) User(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.first(ctx, &user, id, "user"); err != nil {
		return nil, err
	}
	return &user, nil
}

// Project loads a project by id.
func (s *Store) Project(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	if err := s.first(ctx, &project, id, "project"); err != nil {
		return nil, err
	}
	return &project, nil
}

// Issue loads an issue by id.
func (s *Store) Issue(ctx context.Context, id string) (*models.Issue, error) {
	var issue models.Issue
	if err := s.first(ctx, &issue, id, "issue"); err != nil {
		return nil, err
	}
	return &issue, nil
}

// Document loads a document by id.
func (s *Store) Document(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.first(ctx, &doc, id, "document"); err != nil {
		return nil, err
	}
	return &doc, nil
}

// WikiPage loads a wiki page by id.
func (s *Store) WikiPage(ctx context.Context, id string) (*models.WikiPage, error) {
	var page models.WikiPage
	if err := s.first(ctx, &page, id, "wiki page"); err != nil {
		return nil, err
	}
	return &page, nil
}

// Tracker loads a tracker by id.
func (s *Store) Tracker(ctx context.Context, id string) (*models.Tracker, error) {
	var tracker models.Tracker
	if err := s.first(ctx, &tracker, id, "tracker"); err != nil {
		return nil, err
	}
	return &tracker, nil
}

// Status loads an issue status by id.
func (s *Store) Status(ctx context.Context, id string) (*models.IssueStatus, error) {
	var status models.IssueStatus
	if err := s.first(ctx, &status, id, "status"); err != nil {
		return nil, err
	}
	return &status, nil
}

// Statuses returns all statuses ordered by position.
func (s *Store) Statuses(ctx context.Context) ([]models.IssueStatus, error) {
	var statuses []models.IssueStatus
	if err := s.db.WithContext(ensureContext(ctx)).
		Order("position ASC").Order("name ASC").
		Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("store: list statuses: %w", err)
	}
	return statuses, nil
}

// RulesFor returns every rule on one (tracker, old, new) edge.
func (s *Store) RulesFor(ctx context.Context, trackerID, oldStatusID, newStatusID string) ([]models.WorkflowRule, error) {
	var rules []models.WorkflowRule
	if err := s.db.WithContext(ensureContext(ctx)).
		Where("tracker_id = ? AND old_status_id = ? AND new_status_id = ?", trackerID, oldStatusID, newStatusID).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("store: load workflow rules: %w", err)
	}
	return rules, nil
}

// RulesFrom returns the out-edges of a state. A nil roleIDs slice matches every role.
func (s *Store) RulesFrom(ctx context.Context, trackerID, oldStatusID string, roleIDs []string) ([]models.WorkflowRule, error) {
	if roleIDs != nil && len(roleIDs) == 0 {
		return []models.WorkflowRule{}, nil
	}

	query := s.db.WithContext(ensureContext(ctx)).
		Where("tracker_id = ? AND old_status_id = ?", trackerID, oldStatusID)
	if roleIDs != nil {
		query = query.Where("role_id IN ?", roleIDs)
	}

	var rules []models.WorkflowRule
	if err := query.Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("store: load workflow rules: %w", err)
	}
	return rules, nil
}

func (s *Store) first(ctx context.Context, dest any, id, kind string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperrors.ErrNotFound.WithMessage(kind + " not found")
	}
	err := s.db.WithContext(ensureContext(ctx)).Take(dest, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound.WithMessage(kind + " not found")
	}
	if err != nil {
		return fmt.Errorf("store: load %s: %w", kind, err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
