package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/issuetrail/internal/models"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
)

// CreateRuleInput describes one workflow transition rule.
type CreateRuleInput struct {
	RoleID      string
	TrackerID   string
	OldStatusID string
	NewStatusID string
	Author      bool
	Assignee    bool
}

// RuleFilter narrows ListRules. Empty fields match everything.
type RuleFilter struct {
	RoleID      string
	TrackerID   string
	OldStatusID string
}

// CopyRulesInput copies the rules of one (role, tracker) pair onto another.
type CopyRulesInput struct {
	SourceRoleID    string
	SourceTrackerID string
	TargetRoleID    string
	TargetTrackerID string
}

// WorkflowService administers workflow transition rules.
type WorkflowService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewWorkflowService constructs a WorkflowService.
func NewWorkflowService(db *gorm.DB, auditService *AuditService) (*WorkflowService, error) {
	if db == nil {
		return nil, errors.New("workflow service: db is required")
	}
	return &WorkflowService{db: db, auditService: auditService}, nil
}

// CreateRule stores a rule after checking that every referenced record exists.
func (s *WorkflowService) CreateRule(ctx context.Context, input CreateRuleInput) (*models.WorkflowRule, error) {
	ctx = ensureContext(ctx)

	rule := &models.WorkflowRule{
		RoleID:      strings.TrimSpace(input.RoleID),
		TrackerID:   strings.TrimSpace(input.TrackerID),
		OldStatusID: strings.TrimSpace(input.OldStatusID),
		NewStatusID: strings.TrimSpace(input.NewStatusID),
		Author:      input.Author,
		Assignee:    input.Assignee,
	}
	if rule.OldStatusID != "" && rule.OldStatusID == rule.NewStatusID {
		return nil, apperrors.NewInvalidArgument("a workflow rule must change the status")
	}

	db := s.db.WithContext(ctx)
	if err := recordExists(db, &models.Role{}, rule.RoleID, ErrRoleNotFound); err != nil {
		return nil, err
	}
	if err := recordExists(db, &models.Tracker{}, rule.TrackerID, ErrTrackerNotFound); err != nil {
		return nil, err
	}
	if err := recordExists(db, &models.IssueStatus{}, rule.OldStatusID, ErrStatusNotFound); err != nil {
		return nil, err
	}
	if err := recordExists(db, &models.IssueStatus{}, rule.NewStatusID, ErrStatusNotFound); err != nil {
		return nil, err
	}

	if err := db.Create(rule).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrRuleExists
		}
		return nil, fmt.Errorf("workflow service: create rule: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "workflow.rule.create",
		ResourceType: models.AuditResourceWorkflowRule,
		Resource:     rule.ID,
		Result:       AuditResultSuccess,
		Metadata:     map[string]any{
			"role_id":       rule.RoleID,
			"tracker_id":    rule.TrackerID,
			"old_status_id": rule.OldStatusID,
			"new_status_id": rule.NewStatusID,
			"author":        rule.Author,
			"assignee":      rule.Assignee,
		},
	})
	return rule, nil
}

// DeleteRule removes a rule by identifier.
func (s *WorkflowService) DeleteRule(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Delete(&models.WorkflowRule{})
	if result.Error != nil {
		return fmt.Errorf("workflow service: delete rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "workflow.rule.delete",
		ResourceType: models.AuditResourceWorkflowRule,
		Resource:     id,
		Result:       AuditResultSuccess,
	})
	return nil
}

// ListRules returns the rules matching filter.
func (s *WorkflowService) ListRules(ctx context.Context, filter RuleFilter) ([]models.WorkflowRule, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.WorkflowRule{})
	if v := strings.TrimSpace(filter.RoleID); v != "" {
		query = query.Where("role_id = ?", v)
	}
	if v := strings.TrimSpace(filter.TrackerID); v != "" {
		query = query.Where("tracker_id = ?", v)
	}
	if v := strings.TrimSpace(filter.OldStatusID); v != "" {
		query = query.Where("old_status_id = ?", v)
	}

	var rules []models.WorkflowRule
	if err := query.Order("role_id, tracker_id, old_status_id, new_status_id").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("workflow service: list rules: %w", err)
	}
	return rules, nil
}

// CopyRules duplicates the source pair's rules onto the target pair and
// returns how many were inserted. Tuples the target already has are kept.
func (s *WorkflowService) CopyRules(ctx context.Context, input CopyRulesInput) (int64, error) {
	ctx = ensureContext(ctx)

	if input.SourceRoleID == input.TargetRoleID && input.SourceTrackerID == input.TargetTrackerID {
		return 0, apperrors.NewInvalidArgument("source and target are the same")
	}

	var copied int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := recordExists(tx, &models.Role{}, input.SourceRoleID, ErrRoleNotFound); err != nil {
			return err
		}
		if err := recordExists(tx, &models.Role{}, input.TargetRoleID, ErrRoleNotFound); err != nil {
			return err
		}
		if err := recordExists(tx, &models.Tracker{}, input.SourceTrackerID, ErrTrackerNotFound); err != nil {
			return err
		}
		if err := recordExists(tx, &models.Tracker{}, input.TargetTrackerID, ErrTrackerNotFound); err != nil {
			return err
		}

		var source []models.WorkflowRule
		if err := tx.Where("role_id = ? AND tracker_id = ?", input.SourceRoleID, input.SourceTrackerID).Find(&source).Error; err != nil {
			return fmt.Errorf("workflow service: load source rules: %w", err)
		}
		if len(source) == 0 {
			return nil
		}

		copies := make([]models.WorkflowRule, 0, len(source))
		for _, rule := range source {
			copies = append(copies, models.WorkflowRule{
				RoleID:      input.TargetRoleID,
				TrackerID:   input.TargetTrackerID,
				OldStatusID: rule.OldStatusID,
				NewStatusID: rule.NewStatusID,
				Author:      rule.Author,
				Assignee:    rule.Assignee,
			})
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&copies)
		if result.Error != nil {
			return fmt.Errorf("workflow service: copy rules: %w", result.Error)
		}
		copied = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:       "workflow.rule.copy",
		ResourceType: models.AuditResourceWorkflowRule,
		Resource:     input.TargetRoleID,
		Result:       AuditResultSuccess,
		Metadata:     map[string]any{
			"source_role_id":    input.SourceRoleID,
			"source_tracker_id": input.SourceTrackerID,
			"target_role_id":    input.TargetRoleID,
			"target_tracker_id": input.TargetTrackerID,
			"copied":            copied,
		},
	})
	return copied, nil
}

func recordExists(db *gorm.DB, model any, id string, notFound *apperrors.AppError) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return notFound
	}
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("lookup %s: %w", id, err)
	}
	if count == 0 {
		return notFound
	}
	return nil
}
