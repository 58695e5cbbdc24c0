package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/internal/permissions"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
	"github.com/charlesng35/issuetrail/pkg/logger"
	"github.com/charlesng35/issuetrail/pkg/metrics"
)

// Transition reasons.
const (
	ReasonAuthorException   = "author exception"
	ReasonAssigneeException = "assignee exception"
	ReasonPlainRoleGrant    = "plain role grant"
	ReasonNoRule            = "no workflow rule permits this transition"
)

// Engine decides which status transitions a user may perform. Each tracker
// has its own graph over the shared statuses; edges are workflow rules
// scoped to a role and optionally to the issue's author or assignee.
type Engine struct {
	evaluator *permissions.Evaluator
	store     Store
	log       *zap.Logger
}

// NewEngine constructs a workflow engine.
func NewEngine(evaluator *permissions.Evaluator, store Store) (*Engine, error) {
	if evaluator == nil {
		return nil, errors.New("workflow engine: evaluator is required")
	}
	if store == nil {
		return nil, errors.New("workflow engine: store is required")
	}
	return &Engine{evaluator: evaluator, store: store, log: logger.WithModule("workflow")}, nil
}

// CanTransitionStatus loads issueID and decides whether user may move it to newStatusID.
func (e *Engine) CanTransitionStatus(ctx context.Context, user *models.User, issueID, newStatusID string) (permissions.Decision, error) {
	issueID = strings.TrimSpace(issueID)
	if issueID == "" {
		return permissions.Decision{}, apperrors.NewInvalidArgument("issue id is required")
	}
	issue, err := e.store.Issue(ensureContext(ctx), issueID)
	if err != nil {
		return permissions.Decision{}, fmt.Errorf("workflow engine: load issue: %w", err)
	}
	return e.CanTransition(ctx, user, issue, newStatusID)
}

// CanTransition decides whether user may move issue to newStatusID. Matching
// rules are an unordered OR: any rule of any held role that qualifies grants
// the transition. Rules are visited by role position so the reported reason
// is stable.
func (e *Engine) CanTransition(ctx context.Context, user *models.User, issue *models.Issue, newStatusID string) (permissions.Decision, error) {
	ctx = ensureContext(ctx)
	if issue == nil {
		return permissions.Decision{}, apperrors.ErrNotFound.WithMessage("issue not found")
	}
	if _, err := e.targetStatus(ctx, newStatusID); err != nil {
		return permissions.Decision{}, err
	}

	decision, err := e.decide(ctx, user, issue, strings.TrimSpace(newStatusID))
	if err != nil {
		return permissions.Decision{}, err
	}

	metrics.WorkflowDecisions.WithLabelValues(metrics.ResultLabel(decision.Allowed), decision.Reason).Inc()
	e.log.Debug("transition evaluated",
		zap.String("issue_id", issue.ID),
		zap.String("from", issue.StatusID),
		zap.String("to", newStatusID),
		zap.Bool("allowed", decision.Allowed),
		zap.String("reason", decision.Reason),
	)
	return decision, nil
}

func (e *Engine) decide(ctx context.Context, user *models.User, issue *models.Issue, newStatusID string) (permissions.Decision, error) {
	if user == nil {
		return permissions.Decision{Reason: permissions.ReasonAuthRequired}, nil
	}
	if e.evaluator.IsAdmin(user) {
		return permissions.Decision{Allowed: true, Reason: permissions.ReasonAdminOverride}, nil
	}

	roles, err := e.evaluator.Resolver().RolesOf(ctx, user.ID, issue.ProjectID)
	if err != nil {
		return permissions.Decision{}, err
	}
	if len(roles) == 0 {
		return permissions.Decision{Reason: permissions.ReasonNotMember}, nil
	}

	rules, err := e.store.RulesFor(ctx, issue.TrackerID, issue.StatusID, newStatusID)
	if err != nil {
		return permissions.Decision{}, fmt.Errorf("workflow engine: load rules: %w", err)
	}

	for _, rule := range orderByRole(rules, roles) {
		if reason, ok := grants(rule, user, issue); ok {
			return permissions.Decision{Allowed: true, Reason: reason}, nil
		}
	}
	return permissions.Decision{Reason: ReasonNoRule}, nil
}

// AllowedStatuses lists the statuses user could move issue to, ordered by position.
func (e *Engine) AllowedStatuses(ctx context.Context, user *models.User, issue *models.Issue) ([]models.IssueStatus, error) {
	ctx = ensureContext(ctx)
	if issue == nil {
		return nil, apperrors.ErrNotFound.WithMessage("issue not found")
	}
	if user == nil {
		return []models.IssueStatus{}, nil
	}

	var rules []models.WorkflowRule
	if e.evaluator.IsAdmin(user) {
		all, err := e.store.RulesFrom(ctx, issue.TrackerID, issue.StatusID, nil)
		if err != nil {
			return nil, fmt.Errorf("workflow engine: load rules: %w", err)
		}
		rules = all
	} else {
		roles, err := e.evaluator.Resolver().RolesOf(ctx, user.ID, issue.ProjectID)
		if err != nil {
			return nil, err
		}
		if len(roles) == 0 {
			return []models.IssueStatus{}, nil
		}
		roleIDs := make([]string, 0, len(roles))
		for _, role := range roles {
			roleIDs = append(roleIDs, role.ID)
		}
		held, err := e.store.RulesFrom(ctx, issue.TrackerID, issue.StatusID, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("workflow engine: load rules: %w", err)
		}
		for _, rule := range held {
			if _, ok := grants(rule, user, issue); ok {
				rules = append(rules, rule)
			}
		}
	}

	targets := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if rule.NewStatusID != issue.StatusID {
			targets[rule.NewStatusID] = struct{}{}
		}
	}
	if len(targets) == 0 {
		return []models.IssueStatus{}, nil
	}

	statuses, err := e.store.Statuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("workflow engine: load statuses: %w", err)
	}
	allowed := make([]models.IssueStatus, 0, len(targets))
	for _, status := range statuses {
		if _, ok := targets[status.ID]; ok {
			allowed = append(allowed, status)
		}
	}
	sort.SliceStable(allowed, func(i, j int) bool { return allowed[i].Position < allowed[j].Position })
	return allowed, nil
}

// InitialStatus returns the status new issues of trackerID start in: the
// tracker's default, else the lowest positioned status.
func (e *Engine) InitialStatus(ctx context.Context, trackerID string) (models.IssueStatus, error) {
	ctx = ensureContext(ctx)
	trackerID = strings.TrimSpace(trackerID)
	if trackerID == "" {
		return models.IssueStatus{}, apperrors.NewInvalidArgument("tracker id is required")
	}

	tracker, err := e.store.Tracker(ctx, trackerID)
	if err != nil {
		return models.IssueStatus{}, fmt.Errorf("workflow engine: load tracker: %w", err)
	}
	if tracker.DefaultStatusID != nil && *tracker.DefaultStatusID != "" {
		status, err := e.store.Status(ctx, *tracker.DefaultStatusID)
		if err == nil {
			return *status, nil
		}
		if !apperrors.IsNotFound(err) {
			return models.IssueStatus{}, fmt.Errorf("workflow engine: load default status: %w", err)
		}
		e.log.Warn("tracker default status missing, falling back to lowest position",
			zap.String("tracker_id", trackerID),
			zap.String("status_id", *tracker.DefaultStatusID),
		)
	}

	statuses, err := e.store.Statuses(ctx)
	if err != nil {
		return models.IssueStatus{}, fmt.Errorf("workflow engine: load statuses: %w", err)
	}
	if len(statuses) == 0 {
		return models.IssueStatus{}, apperrors.ErrNotFound.WithMessage("no issue statuses defined")
	}
	lowest := statuses[0]
	for _, status := range statuses[1:] {
		if status.Position < lowest.Position {
			lowest = status
		}
	}
	return lowest, nil
}

func (e *Engine) targetStatus(ctx context.Context, statusID string) (*models.IssueStatus, error) {
	statusID = strings.TrimSpace(statusID)
	if statusID == "" {
		return nil, apperrors.NewInvalidArgument("status id is required")
	}
	status, err := e.store.Status(ctx, statusID)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.NewInvalidArgument("unknown status id")
	}
	if err != nil {
		return nil, fmt.Errorf("workflow engine: load status: %w", err)
	}
	return status, nil
}

// grants applies a rule's author and assignee qualifiers.
func grants(rule models.WorkflowRule, user *models.User, issue *models.Issue) (string, bool) {
	switch {
	case rule.Author && issue.IsAuthor(user.ID):
		return ReasonAuthorException, true
	case rule.Assignee && issue.IsAssignedTo(user.ID):
		return ReasonAssigneeException, true
	case rule.Unrestricted():
		return ReasonPlainRoleGrant, true
	default:
		return "", false
	}
}

// orderByRole keeps rules of held roles, ordered by the role's position.
func orderByRole(rules []models.WorkflowRule, roles []models.Role) []models.WorkflowRule {
	rank := make(map[string]int, len(roles))
	for i, role := range roles {
		rank[role.ID] = i
	}

	held := make([]models.WorkflowRule, 0, len(rules))
	for _, rule := range rules {
		if _, ok := rank[rule.RoleID]; ok {
			held = append(held, rule)
		}
	}
	sort.SliceStable(held, func(i, j int) bool {
		if rank[held[i].RoleID] != rank[held[j].RoleID] {
			return rank[held[i].RoleID] < rank[held[j].RoleID]
		}
		return held[i].ID < held[j].ID
	})
	return held
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
