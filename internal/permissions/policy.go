package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/issuetrail/internal/models"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
	"github.com/charlesng35/issuetrail/pkg/logger"
	"github.com/charlesng35/issuetrail/pkg/metrics"
)

// Policy decides visibility of projects, issues, notes and other project
// content on top of the Evaluator. Issue visibility evaluates every
// dimension so a denial names all the gates that failed.
type Policy struct {
	evaluator       *Evaluator
	content         ContentStore
	anonymousAccess bool
	log             *zap.Logger
}

// PolicyOption customises a Policy.
type PolicyOption func(*Policy)

// WithAnonymousAccess lets unauthenticated callers see public projects.
func WithAnonymousAccess(enabled bool) PolicyOption {
	return func(p *Policy) {
		p.anonymousAccess = enabled
	}
}

// NewPolicy constructs a visibility policy.
func NewPolicy(evaluator *Evaluator, content ContentStore, opts ...PolicyOption) (*Policy, error) {
	if evaluator == nil {
		return nil, errors.New("visibility policy: evaluator is required")
	}
	if content == nil {
		return nil, errors.New("visibility policy: content store is required")
	}

	p := &Policy{
		evaluator: evaluator,
		content:   content,
		log:       logger.WithModule("permissions"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Evaluator returns the evaluator backing the policy.
func (p *Policy) Evaluator() *Evaluator {
	return p.evaluator
}

// CanViewProject decides whether user (nil for anonymous) may see projectID.
func (p *Policy) CanViewProject(ctx context.Context, user *models.User, projectID string) (Decision, error) {
	project, err := p.loadProject(ctx, projectID)
	if err != nil {
		return Decision{}, err
	}

	decision, err := p.ProjectVisible(ctx, user, project)
	if err != nil {
		return Decision{}, err
	}
	metrics.VisibilityChecks.WithLabelValues("project", metrics.ResultLabel(decision.Allowed)).Inc()
	return decision, nil
}

// ProjectVisible applies the project visibility rule to a loaded project.
func (p *Policy) ProjectVisible(ctx context.Context, user *models.User, project *models.Project) (Decision, error) {
	if project == nil {
		return Decision{}, apperrors.ErrNotFound.WithMessage("project not found")
	}
	if p.evaluator.IsAdmin(user) {
		return allow(ReasonAdminOverride), nil
	}
	if project.IsArchived() {
		return deny(ReasonProjectArchived), nil
	}
	if user == nil {
		if project.IsPublic && p.anonymousAccess {
			return allow(ReasonPublicProject), nil
		}
		return deny(ReasonProjectNotVisible), nil
	}
	if project.IsPublic {
		return allow(ReasonPublicProject), nil
	}

	view, err := p.evaluator.resolver.Membership(ctx, user.ID, project.ID)
	if err != nil {
		return Decision{}, err
	}
	if view.Member {
		return allow(ReasonProjectMember), nil
	}
	return deny(ReasonProjectNotVisible), nil
}

// CanViewIssue decides whether user (nil for anonymous) may see issueID.
func (p *Policy) CanViewIssue(ctx context.Context, user *models.User, issueID string) (Decision, error) {
	issueID = strings.TrimSpace(issueID)
	if issueID == "" {
		return Decision{}, apperrors.NewInvalidArgument("issue id is required")
	}
	issue, err := p.content.Issue(ensureContext(ctx), issueID)
	if err != nil {
		return Decision{}, fmt.Errorf("visibility policy: load issue: %w", err)
	}
	return p.IssueVisible(ctx, user, issue)
}

// IssueVisible applies the issue visibility rule to a loaded issue: the
// project must be visible, the viewer needs view_issues there and private
// issues are limited to their author and holders of the private-notes
// permissions.
func (p *Policy) IssueVisible(ctx context.Context, user *models.User, issue *models.Issue) (Decision, error) {
	if issue == nil {
		return Decision{}, apperrors.ErrNotFound.WithMessage("issue not found")
	}

	decision, err := p.issueVisible(ctx, user, issue)
	if err != nil {
		return Decision{}, err
	}
	metrics.VisibilityChecks.WithLabelValues("issue", metrics.ResultLabel(decision.Allowed)).Inc()
	return decision, nil
}

func (p *Policy) issueVisible(ctx context.Context, user *models.User, issue *models.Issue) (Decision, error) {
	if p.evaluator.IsAdmin(user) {
		return allow(ReasonAdminOverride), nil
	}

	project, err := p.loadProject(ctx, issue.ProjectID)
	if err != nil {
		return Decision{}, err
	}

	var failures []string

	projectDecision, err := p.ProjectVisible(ctx, user, project)
	if err != nil {
		return Decision{}, err
	}
	if !projectDecision.Allowed {
		failures = append(failures, projectDecision.Reason)
	}

	viewDecision, granting, err := p.evaluator.grant(ctx, user, issue.ProjectID, ViewIssues)
	if err != nil {
		return Decision{}, err
	}
	switch {
	case !viewDecision.Allowed:
		failures = append(failures, MissingPermission(ViewIssues))
	case onlyScope(granting, issuesScope, models.IssuesVisibilityOwn) && !ownsIssue(user, issue):
		failures = append(failures, ReasonOwnIssuesOnly)
	}

	if issue.IsPrivate && !issue.IsAuthor(userID(user)) {
		privateDecision, err := p.anyPermission(ctx, user, issue.ProjectID, ViewPrivateNotes, SetNotesPrivate)
		if err != nil {
			return Decision{}, err
		}
		if !privateDecision {
			failures = append(failures, ReasonPrivateIssue)
		}
	}

	if len(failures) > 0 {
		return deny(strings.Join(failures, "; ")), nil
	}
	return allow(ReasonIssueVisible), nil
}

// FilterVisibleJournals keeps the journals user may read. A journal is
// readable when its issue is visible; private notes additionally require the
// viewer to be the note's author or an administrator.
func (p *Policy) FilterVisibleJournals(ctx context.Context, user *models.User, journals []models.Journal) ([]models.Journal, error) {
	visible := make([]models.Journal, 0, len(journals))
	issueVisible := make(map[string]bool)
	admin := p.evaluator.IsAdmin(user)

	for _, journal := range journals {
		ok, seen := issueVisible[journal.IssueID]
		if !seen {
			decision, err := p.CanViewIssue(ctx, user, journal.IssueID)
			switch {
			case apperrors.IsNotFound(err):
				p.log.Debug("dropping journals of missing issue", zap.String("issue_id", journal.IssueID))
				ok = false
			case err != nil:
				return nil, err
			default:
				ok = decision.Allowed
			}
			issueVisible[journal.IssueID] = ok
		}
		if !ok {
			continue
		}
		if journal.PrivateNotes && !admin && journal.UserID != userID(user) {
			continue
		}
		visible = append(visible, journal)
	}

	return visible, nil
}

// CanViewTimeEntry decides whether user may see a time entry. Roles scoped
// to own entries only reveal the viewer's own time.
func (p *Policy) CanViewTimeEntry(ctx context.Context, user *models.User, entry *models.TimeEntry) (Decision, error) {
	if entry == nil {
		return Decision{}, apperrors.ErrNotFound.WithMessage("time entry not found")
	}
	if p.evaluator.IsAdmin(user) {
		return allow(ReasonAdminOverride), nil
	}

	failures, granting, err := p.projectContentFailures(ctx, user, entry.ProjectID, ViewTimeEntries)
	if err != nil {
		return Decision{}, err
	}
	if len(granting) > 0 && onlyScope(granting, timeEntriesScope, models.TimeEntriesVisibilityOwn) && entry.UserID != userID(user) {
		failures = append(failures, ReasonOwnEntriesOnly)
	}

	metrics.VisibilityChecks.WithLabelValues("time_entry", metrics.ResultLabel(len(failures) == 0)).Inc()
	if len(failures) > 0 {
		return deny(strings.Join(failures, "; ")), nil
	}
	return allow(ReasonTimeEntryVisible), nil
}

// CanViewContainer decides whether user may see the object owning an attachment.
func (p *Policy) CanViewContainer(ctx context.Context, user *models.User, ref models.ContainerRef) (Decision, error) {
	if !ref.Valid() {
		return Decision{}, apperrors.NewInvalidArgument("invalid container reference")
	}

	var (
		projectID  string
		permission string
	)
	switch ref.Kind {
	case models.ContainerIssue:
		return p.CanViewIssue(ctx, user, ref.ID)
	case models.ContainerDocument:
		doc, err := p.content.Document(ensureContext(ctx), ref.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("visibility policy: load document: %w", err)
		}
		projectID, permission = doc.ProjectID, ViewDocuments
	case models.ContainerWikiPage:
		page, err := p.content.WikiPage(ensureContext(ctx), ref.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("visibility policy: load wiki page: %w", err)
		}
		projectID, permission = page.ProjectID, ViewWikiPages
	case models.ContainerProject:
		projectID, permission = ref.ID, ViewFiles
	}

	if p.evaluator.IsAdmin(user) {
		if _, err := p.loadProject(ctx, projectID); err != nil {
			return Decision{}, err
		}
		return allow(ReasonAdminOverride), nil
	}

	failures, _, err := p.projectContentFailures(ctx, user, projectID, permission)
	if err != nil {
		return Decision{}, err
	}

	metrics.VisibilityChecks.WithLabelValues("container", metrics.ResultLabel(len(failures) == 0)).Inc()
	if len(failures) > 0 {
		return deny(strings.Join(failures, "; ")), nil
	}
	return allow(ReasonContainerVisible), nil
}

// projectContentFailures checks project visibility and one view permission,
// returning the failed gates and the roles granting the permission.
func (p *Policy) projectContentFailures(ctx context.Context, user *models.User, projectID, permission string) ([]string, []models.Role, error) {
	project, err := p.loadProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	var failures []string
	projectDecision, err := p.ProjectVisible(ctx, user, project)
	if err != nil {
		return nil, nil, err
	}
	if !projectDecision.Allowed {
		failures = append(failures, projectDecision.Reason)
	}

	decision, granting, err := p.evaluator.grant(ctx, user, projectID, permission)
	if err != nil {
		return nil, nil, err
	}
	if !decision.Allowed {
		failures = append(failures, MissingPermission(permission))
	}
	return failures, granting, nil
}

func (p *Policy) anyPermission(ctx context.Context, user *models.User, projectID string, names ...string) (bool, error) {
	for _, name := range names {
		decision, _, err := p.evaluator.grant(ctx, user, projectID, name)
		if err != nil {
			return false, err
		}
		if decision.Allowed {
			return true, nil
		}
	}
	return false, nil
}

func (p *Policy) loadProject(ctx context.Context, projectID string) (*models.Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, apperrors.NewInvalidArgument("project id is required")
	}
	project, err := p.content.Project(ensureContext(ctx), projectID)
	if err != nil {
		return nil, fmt.Errorf("visibility policy: load project: %w", err)
	}
	return project, nil
}

func issuesScope(role models.Role) string      { return role.IssuesVisibility }
func timeEntriesScope(role models.Role) string { return role.TimeEntriesVisibility }

// onlyScope reports whether every granting role carries the given scope.
func onlyScope(roles []models.Role, scope func(models.Role) string, value string) bool {
	if len(roles) == 0 {
		return false
	}
	for _, role := range roles {
		if scope(role) != value {
			return false
		}
	}
	return true
}

func ownsIssue(user *models.User, issue *models.Issue) bool {
	id := userID(user)
	return issue.IsAuthor(id) || issue.IsAssignedTo(id)
}

func userID(user *models.User) string {
	if user == nil {
		return ""
	}
	return user.ID
}
