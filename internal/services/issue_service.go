package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/internal/permissions"
	"github.com/charlesng35/issuetrail/internal/workflow"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
	"github.com/charlesng35/issuetrail/pkg/logger"
	"github.com/charlesng35/issuetrail/pkg/metrics"
)

// CreateIssueInput captures a new issue.
type CreateIssueInput struct {
	ProjectID    string
	TrackerID    string
	Subject      string
	Description  string
	IsPrivate    bool
	AssignedToID *string
}

// ChangeStatusInput requests a status transition. ExpectedStatusID, when
// set, must match the issue's current status or the change is rejected as a
// conflict.
type ChangeStatusInput struct {
	IssueID          string
	StatusID         string
	ExpectedStatusID string
	Notes            string
	PrivateNotes     bool
}

// AddNoteInput appends a comment to an issue.
type AddNoteInput struct {
	IssueID      string
	Notes        string
	PrivateNotes bool
}

// IssueNotifier is told about accepted status changes after they commit.
type IssueNotifier interface {
	IssueStatusChanged(ctx context.Context, actor *models.User, issue *models.Issue, from, to models.IssueStatus)
}

// IssueService applies issue mutations behind the permission, visibility
// and workflow checks.
type IssueService struct {
	db           *gorm.DB
	auditService *AuditService
	policy       *permissions.Policy
	engine       *workflow.Engine
	notifier     IssueNotifier
	log          *zap.Logger
	now          func() time.Time
}

// NewIssueService constructs an IssueService. notifier may be nil.
func NewIssueService(db *gorm.DB, auditService *AuditService, policy *permissions.Policy, engine *workflow.Engine, notifier IssueNotifier) (*IssueService, error) {
	if db == nil {
		return nil, errors.New("issue service: db is required")
	}
	if policy == nil {
		return nil, errors.New("issue service: policy is required")
	}
	if engine == nil {
		return nil, errors.New("issue service: workflow engine is required")
	}
	return &IssueService{
		db:           db,
		auditService: auditService,
		policy:       policy,
		engine:       engine,
		notifier:     notifier,
		log:          logger.WithModule("issues"),
		now:          time.Now,
	}, nil
}

// Create opens an issue in the tracker's initial status.
func (s *IssueService) Create(ctx context.Context, actor *models.User, input CreateIssueInput) (*models.Issue, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, apperrors.NewInvalidArgument("subject is required")
	}

	project, err := loadProject(s.db.WithContext(ctx), input.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, actor, project.ID, permissions.AddIssues); err != nil {
		return nil, err
	}
	if !project.IsActive() {
		return nil, ErrProjectReadOnly
	}

	if input.IsPrivate {
		ok, err := s.anyPermission(ctx, actor, project.ID, permissions.SetIssuesPrivate, permissions.SetOwnIssuesPrivate)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.NewForbidden(permissions.MissingPermission(permissions.SetIssuesPrivate))
		}
	}

	var assignee *string
	if input.AssignedToID != nil && strings.TrimSpace(*input.AssignedToID) != "" {
		id := strings.TrimSpace(*input.AssignedToID)
		if err := s.requireMember(ctx, id, project.ID); err != nil {
			return nil, err
		}
		assignee = &id
	}

	if err := recordExists(s.db.WithContext(ctx), &models.Tracker{}, input.TrackerID, ErrTrackerNotFound); err != nil {
		return nil, err
	}
	status, err := s.engine.InitialStatus(ctx, input.TrackerID)
	if err != nil {
		return nil, err
	}

	issue := &models.Issue{
		ProjectID:    project.ID,
		TrackerID:    strings.TrimSpace(input.TrackerID),
		StatusID:     status.ID,
		AuthorID:     actor.ID,
		AssignedToID: assignee,
		Subject:      subject,
		Description:  strings.TrimSpace(input.Description),
		IsPrivate:    input.IsPrivate,
	}
	if status.IsClosed {
		closedOn := s.now().UTC()
		issue.ClosedOn = &closedOn
	}

	if err := s.db.WithContext(ctx).Create(issue).Error; err != nil {
		return nil, fmt.Errorf("issue service: create issue: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:       actorID(actor),
		Username:     actor.Login,
		Action:       "issue.create",
		ResourceType: models.AuditResourceIssue,
		Resource:     issue.ID,
		ProjectID:    issue.ProjectID,
		Result:       AuditResultSuccess,
		Metadata:     map[string]any{"status_id": issue.StatusID},
	})
	return issue, nil
}

// Get returns the issue when user may see it.
func (s *IssueService) Get(ctx context.Context, user *models.User, id string) (*models.Issue, error) {
	ctx = ensureContext(ctx)

	issue, err := loadIssue(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.requireVisible(ctx, user, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// ListForProject returns the project's issues visible to user.
func (s *IssueService) ListForProject(ctx context.Context, user *models.User, projectID string) ([]models.Issue, error) {
	ctx = ensureContext(ctx)

	decision, err := s.policy.CanViewProject(ctx, user, projectID)
	if apperrors.IsNotFound(err) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.NewForbidden(decision.Reason)
	}

	var issues []models.Issue
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at ASC").Find(&issues).Error; err != nil {
		return nil, fmt.Errorf("issue service: list issues: %w", err)
	}

	visible := make([]models.Issue, 0, len(issues))
	for i := range issues {
		decision, err := s.policy.IssueVisible(ctx, user, &issues[i])
		if err != nil {
			return nil, err
		}
		if decision.Allowed {
			visible = append(visible, issues[i])
		}
	}
	return visible, nil
}

// AllowedStatuses lists the statuses actor may move the issue to.
func (s *IssueService) AllowedStatuses(ctx context.Context, actor *models.User, issueID string) ([]models.IssueStatus, error) {
	issue, err := s.Get(ctx, actor, issueID)
	if err != nil {
		return nil, err
	}
	return s.engine.AllowedStatuses(ensureContext(ctx), actor, issue)
}

// CanTransition reports the workflow decision for moving a visible issue to statusID.
func (s *IssueService) CanTransition(ctx context.Context, actor *models.User, issueID, statusID string) (permissions.Decision, error) {
	issue, err := s.Get(ctx, actor, issueID)
	if err != nil {
		return permissions.Decision{}, err
	}
	return s.engine.CanTransition(ensureContext(ctx), actor, issue, statusID)
}

// ChangeStatus moves an issue to a new status. The write is a compare and
// swap on the status the decision was made against, so a concurrent change
// surfaces as ErrStatusConflict instead of silently bypassing the workflow.
func (s *IssueService) ChangeStatus(ctx context.Context, actor *models.User, input ChangeStatusInput) (*models.Issue, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	issue, err := loadIssue(s.db.WithContext(ctx), input.IssueID)
	if err != nil {
		return nil, err
	}
	if err := s.requireVisible(ctx, actor, issue); err != nil {
		return nil, err
	}

	target := strings.TrimSpace(input.StatusID)
	if target == "" {
		return nil, apperrors.NewInvalidArgument("status id is required")
	}
	if target == issue.StatusID {
		return nil, apperrors.NewInvalidArgument("issue already has this status")
	}
	if expected := strings.TrimSpace(input.ExpectedStatusID); expected != "" && expected != issue.StatusID {
		metrics.StatusConflicts.Inc()
		return nil, ErrStatusConflict
	}

	project, err := loadProject(s.db.WithContext(ctx), issue.ProjectID)
	if err != nil {
		return nil, err
	}
	if !project.IsActive() {
		return nil, ErrProjectReadOnly
	}

	decision, err := s.engine.CanTransition(ctx, actor, issue, target)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.NewForbidden(decision.Reason)
	}

	notes := strings.TrimSpace(input.Notes)
	if notes != "" && input.PrivateNotes {
		if err := s.require(ctx, actor, issue.ProjectID, permissions.SetNotesPrivate); err != nil {
			return nil, err
		}
	}

	var from, to models.IssueStatus
	if err := s.db.WithContext(ctx).First(&from, "id = ?", issue.StatusID).Error; err != nil {
		return nil, fmt.Errorf("issue service: load current status: %w", err)
	}
	if err := s.db.WithContext(ctx).First(&to, "id = ?", target).Error; err != nil {
		return nil, fmt.Errorf("issue service: load target status: %w", err)
	}

	change := statusChange{
		issue:        issue,
		from:         from,
		to:           to,
		actorID:      actor.ID,
		notes:        notes,
		privateNotes: input.PrivateNotes && notes != "",
		at:           s.now().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return applyStatusChange(tx, change)
	})
	if errors.Is(err, ErrStatusConflict) {
		metrics.StatusConflicts.Inc()
		s.log.Warn("status change lost to concurrent writer",
			zap.String("issue_id", issue.ID),
			zap.String("expected_status", from.ID),
			zap.String("target_status", to.ID),
		)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	issue.StatusID = to.ID
	issue.ClosedOn = change.closedOn()
	issue.UpdatedAt = change.at

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:       actorID(actor),
		Username:     actor.Login,
		Action:       "issue.status.change",
		ResourceType: models.AuditResourceIssue,
		Resource:     issue.ID,
		ProjectID:    issue.ProjectID,
		Result:       AuditResultSuccess,
		Metadata:     map[string]any{
			"from":   from.ID,
			"to":     to.ID,
			"reason": decision.Reason,
		},
	})

	if s.notifier != nil {
		s.notifier.IssueStatusChanged(ctx, actor, issue, from, to)
	}
	return issue, nil
}

// AddNote appends a journal carrying only a note.
func (s *IssueService) AddNote(ctx context.Context, actor *models.User, input AddNoteInput) (*models.Journal, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	notes := strings.TrimSpace(input.Notes)
	if notes == "" {
		return nil, apperrors.NewInvalidArgument("notes are required")
	}

	issue, err := loadIssue(s.db.WithContext(ctx), input.IssueID)
	if err != nil {
		return nil, err
	}
	if err := s.requireVisible(ctx, actor, issue); err != nil {
		return nil, err
	}

	ok, err := s.anyPermission(ctx, actor, issue.ProjectID, permissions.AddIssueNotes, permissions.EditIssues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewForbidden(permissions.MissingPermission(permissions.AddIssueNotes))
	}
	if input.PrivateNotes {
		if err := s.require(ctx, actor, issue.ProjectID, permissions.SetNotesPrivate); err != nil {
			return nil, err
		}
	}

	journal := &models.Journal{
		IssueID:      issue.ID,
		UserID:       actor.ID,
		Notes:        notes,
		PrivateNotes: input.PrivateNotes,
	}
	if err := s.db.WithContext(ctx).Create(journal).Error; err != nil {
		return nil, fmt.Errorf("issue service: add note: %w", err)
	}
	return journal, nil
}

// SetPrivate toggles the issue's private flag.
func (s *IssueService) SetPrivate(ctx context.Context, actor *models.User, issueID string, private bool) (*models.Issue, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	issue, err := loadIssue(s.db.WithContext(ctx), issueID)
	if err != nil {
		return nil, err
	}
	if err := s.requireVisible(ctx, actor, issue); err != nil {
		return nil, err
	}

	allowed, err := s.policy.Evaluator().HasProjectPermission(ctx, actor, issue.ProjectID, permissions.SetIssuesPrivate)
	if err != nil {
		return nil, err
	}
	if !allowed && issue.IsAuthor(actor.ID) {
		allowed, err = s.policy.Evaluator().HasProjectPermission(ctx, actor, issue.ProjectID, permissions.SetOwnIssuesPrivate)
		if err != nil {
			return nil, err
		}
	}
	if !allowed {
		return nil, apperrors.NewForbidden(permissions.MissingPermission(permissions.SetIssuesPrivate))
	}
	if issue.IsPrivate == private {
		return issue, nil
	}

	old, value := fmt.Sprint(issue.IsPrivate), fmt.Sprint(private)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Issue{}).Where("id = ?", issue.ID).Update("is_private", private).Error; err != nil {
			return fmt.Errorf("issue service: set private: %w", err)
		}
		return createJournal(tx, issue.ID, actor.ID, "", false, models.JournalDetail{
			Property: models.JournalPropertyAttr,
			PropKey:  "is_private",
			OldValue: &old,
			Value:    &value,
		})
	})
	if err != nil {
		return nil, err
	}

	issue.IsPrivate = private
	return issue, nil
}

// Assign sets or clears the issue's assignee. Assignees must be project members.
func (s *IssueService) Assign(ctx context.Context, actor *models.User, issueID string, assigneeID *string) (*models.Issue, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	issue, err := loadIssue(s.db.WithContext(ctx), issueID)
	if err != nil {
		return nil, err
	}
	if err := s.requireVisible(ctx, actor, issue); err != nil {
		return nil, err
	}
	if err := s.require(ctx, actor, issue.ProjectID, permissions.EditIssues); err != nil {
		return nil, err
	}

	var next *string
	if assigneeID != nil && strings.TrimSpace(*assigneeID) != "" {
		id := strings.TrimSpace(*assigneeID)
		if err := s.requireMember(ctx, id, issue.ProjectID); err != nil {
			return nil, err
		}
		next = &id
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Issue{}).Where("id = ?", issue.ID).Update("assigned_to_id", next).Error; err != nil {
			return fmt.Errorf("issue service: assign: %w", err)
		}
		return createJournal(tx, issue.ID, actor.ID, "", false, models.JournalDetail{
			Property: models.JournalPropertyAttr,
			PropKey:  "assigned_to_id",
			OldValue: issue.AssignedToID,
			Value:    next,
		})
	})
	if err != nil {
		return nil, err
	}

	issue.AssignedToID = next
	return issue, nil
}

// Journals returns the issue's journals that user may read, oldest first.
func (s *IssueService) Journals(ctx context.Context, user *models.User, issueID string) ([]models.Journal, error) {
	ctx = ensureContext(ctx)

	issue, err := loadIssue(s.db.WithContext(ctx), issueID)
	if err != nil {
		return nil, err
	}
	if err := s.requireVisible(ctx, user, issue); err != nil {
		return nil, err
	}

	var journals []models.Journal
	if err := s.db.WithContext(ctx).
		Preload("Details").
		Where("issue_id = ?", issue.ID).
		Order("created_at ASC").
		Find(&journals).Error; err != nil {
		return nil, fmt.Errorf("issue service: list journals: %w", err)
	}
	return s.policy.FilterVisibleJournals(ctx, user, journals)
}

func (s *IssueService) requireVisible(ctx context.Context, user *models.User, issue *models.Issue) error {
	decision, err := s.policy.IssueVisible(ctx, user, issue)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		if user == nil {
			return apperrors.ErrUnauthorized.WithMessage(decision.Reason)
		}
		return apperrors.NewForbidden(decision.Reason)
	}
	return nil
}

func (s *IssueService) require(ctx context.Context, user *models.User, projectID, permission string) error {
	decision, err := s.policy.Evaluator().Allowed(ctx, user, projectID, permission)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return apperrors.NewForbidden(decision.Reason)
	}
	return nil
}

func (s *IssueService) anyPermission(ctx context.Context, user *models.User, projectID string, names ...string) (bool, error) {
	for _, name := range names {
		ok, err := s.policy.Evaluator().HasProjectPermission(ctx, user, projectID, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *IssueService) requireMember(ctx context.Context, userID, projectID string) error {
	view, err := s.policy.Evaluator().Resolver().Membership(ctx, userID, projectID)
	if err != nil {
		return err
	}
	if !view.Member {
		return apperrors.NewInvalidArgument("assignee must be a project member")
	}
	return nil
}

type statusChange struct {
	issue        *models.Issue
	from         models.IssueStatus
	to           models.IssueStatus
	actorID      string
	notes        string
	privateNotes bool
	at           time.Time
}

// closedOn is stamped when entering a closed status from an open one, kept
// across closed-to-closed moves and cleared on reopen.
func (c statusChange) closedOn() *time.Time {
	if !c.to.IsClosed {
		return nil
	}
	if c.from.IsClosed && c.issue.ClosedOn != nil {
		return c.issue.ClosedOn
	}
	at := c.at
	return &at
}

// applyStatusChange performs the guarded status update and its journal
// inside tx. Zero updated rows means another writer moved the issue first.
func applyStatusChange(tx *gorm.DB, change statusChange) error {
	result := tx.Model(&models.Issue{}).
		Where("id = ? AND status_id = ?", change.issue.ID, change.from.ID).
		Updates(map[string]any{
			"status_id":  change.to.ID,
			"closed_on":  change.closedOn(),
			"updated_at": change.at,
		})
	if result.Error != nil {
		return fmt.Errorf("issue service: update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}

	old, value := change.from.ID, change.to.ID
	return createJournal(tx, change.issue.ID, change.actorID, change.notes, change.privateNotes, models.JournalDetail{
		Property: models.JournalPropertyAttr,
		PropKey:  "status_id",
		OldValue: &old,
		Value:    &value,
	})
}

func createJournal(tx *gorm.DB, issueID, userID, notes string, private bool, details ...models.JournalDetail) error {
	journal := models.Journal{
		IssueID:      issueID,
		UserID:       userID,
		Notes:        notes,
		PrivateNotes: private,
		Details:      details,
	}
	if err := tx.Create(&journal).Error; err != nil {
		return fmt.Errorf("issue service: write journal: %w", err)
	}
	return nil
}

func loadIssue(db *gorm.DB, id string) (*models.Issue, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrIssueNotFound
	}

	var issue models.Issue
	err := db.First(&issue, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIssueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load issue: %w", err)
	}
	return &issue, nil
}
