package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/database/testutil"
	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/internal/permissions"
	"github.com/charlesng35/issuetrail/internal/workflow"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
)

var (
	_ permissions.MembershipStore = (*Store)(nil)
	_ permissions.ContentStore    = (*Store)(nil)
	_ workflow.Store              = (*Store)(nil)
)

type fixture struct {
	db      *gorm.DB
	store   *Store
	user    models.User
	project models.Project
	other   models.Project
	dev     models.Role
	manager models.Role
	tracker models.Tracker
	newSt   models.IssueStatus
	doneSt  models.IssueStatus
}

func setup(t *testing.T) fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	st, err := New(db)
	require.NoError(t, err)

	f := fixture{db: db, store: st}
	f.user = models.User{Login: "alice"}
	require.NoError(t, db.Create(&f.user).Error)

	f.project = models.Project{Name: "Alpha", Identifier: "alpha", Status: models.ProjectStatusActive}
	f.other = models.Project{Name: "Beta", Identifier: "beta", Status: models.ProjectStatusActive}
	require.NoError(t, db.Create(&f.project).Error)
	require.NoError(t, db.Create(&f.other).Error)

	f.dev = models.Role{Name: "Developer", Position: 3, Permissions: models.NewPermissionSet("view_issues")}
	f.manager = models.Role{Name: "Manager", Position: 4, Permissions: models.NewPermissionSet("manage_members")}
	f.dev.ApplyVisibilityDefaults()
	f.manager.ApplyVisibilityDefaults()
	require.NoError(t, db.Create(&f.dev).Error)
	require.NoError(t, db.Create(&f.manager).Error)

	require.NoError(t, db.Create(&models.Member{UserID: f.user.ID, ProjectID: f.project.ID, Roles: []models.Role{f.dev, f.manager}}).Error)
	require.NoError(t, db.Create(&models.Member{UserID: f.user.ID, ProjectID: f.other.ID, Roles: []models.Role{f.dev}}).Error)

	require.NoError(t, db.Where("name = ?", "Bug").First(&f.tracker).Error)
	require.NoError(t, db.Where("name = ?", "New").First(&f.newSt).Error)
	require.NoError(t, db.Where("name = ?", "Closed").First(&f.doneSt).Error)
	return f
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestMembershipRoleIDs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ids, member, err := f.store.MembershipRoleIDs(ctx, f.user.ID, f.project.ID)
	require.NoError(t, err)
	require.True(t, member)
	require.ElementsMatch(t, []string{f.dev.ID, f.manager.ID}, ids)

	ids, member, err = f.store.MembershipRoleIDs(ctx, "nobody", f.project.ID)
	require.NoError(t, err)
	require.False(t, member)
	require.Empty(t, ids)
}

func TestUserRoleIDsAreDistinct(t *testing.T) {
	f := setup(t)

	ids, err := f.store.UserRoleIDs(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{f.dev.ID, f.manager.ID}, ids)
}

func TestRolesByID(t *testing.T) {
	f := setup(t)

	roles, err := f.store.RolesByID(context.Background(), []string{f.manager.ID, "missing", f.dev.ID})
	require.NoError(t, err)
	require.Len(t, roles, 2)
	require.Equal(t, "Developer", roles[0].Name)
	require.True(t, roles[0].HasPermission("view_issues"))

	roles, err = f.store.RolesByID(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, roles)
}

func TestLookupsReportNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.store.Issue(ctx, "missing")
	require.True(t, apperrors.IsNotFound(err))
	_, err = f.store.Project(ctx, "")
	require.True(t, apperrors.IsNotFound(err))
	_, err = f.store.Document(ctx, "missing")
	require.True(t, apperrors.IsNotFound(err))
	_, err = f.store.WikiPage(ctx, "missing")
	require.True(t, apperrors.IsNotFound(err))

	project, err := f.store.Project(ctx, f.project.ID)
	require.NoError(t, err)
	require.Equal(t, "alpha", project.Identifier)

	u, err := f.store.User(ctx, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", u.Login)
}

func TestStatusesOrderedByPosition(t *testing.T) {
	f := setup(t)

	statuses, err := f.store.Statuses(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for i := 1; i < len(statuses); i++ {
		require.LessOrEqual(t, statuses[i-1].Position, statuses[i].Position)
	}
}

func TestWorkflowRuleQueries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rules := []models.WorkflowRule{
		{RoleID: f.dev.ID, TrackerID: f.tracker.ID, OldStatusID: f.newSt.ID, NewStatusID: f.doneSt.ID},
		{RoleID: f.manager.ID, TrackerID: f.tracker.ID, OldStatusID: f.newSt.ID, NewStatusID: f.doneSt.ID, Author: true},
	}
	require.NoError(t, f.db.Create(&rules).Error)

	edge, err := f.store.RulesFor(ctx, f.tracker.ID, f.newSt.ID, f.doneSt.ID)
	require.NoError(t, err)
	require.Len(t, edge, 2)

	out, err := f.store.RulesFrom(ctx, f.tracker.ID, f.newSt.ID, []string{f.manager.ID})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0].Author)

	out, err = f.store.RulesFrom(ctx, f.tracker.ID, f.newSt.ID, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)

	out, err = f.store.RulesFrom(ctx, f.tracker.ID, f.newSt.ID, []string{})
	require.NoError(t, err)
	require.Empty(t, out)

	dup := models.WorkflowRule{RoleID: f.dev.ID, TrackerID: f.tracker.ID, OldStatusID: f.newSt.ID, NewStatusID: f.doneSt.ID, Assignee: true}
	require.Error(t, f.db.Create(&dup).Error)
}

// The gorm store drives the full evaluator and engine stack.
func TestStoreBacksEvaluatorAndEngine(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	resolver, err := permissions.NewResolver(f.store)
	require.NoError(t, err)
	evaluator, err := permissions.NewEvaluator(resolver)
	require.NoError(t, err)
	engine, err := workflow.NewEngine(evaluator, f.store)
	require.NoError(t, err)

	ok, err := evaluator.HasProjectPermission(ctx, &f.user, f.project.ID, "manage_members")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = evaluator.HasProjectPermission(ctx, &f.user, f.other.ID, "manage_members")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, f.db.Create(&models.WorkflowRule{RoleID: f.dev.ID, TrackerID: f.tracker.ID, OldStatusID: f.newSt.ID, NewStatusID: f.doneSt.ID}).Error)
	issue := models.Issue{ProjectID: f.project.ID, TrackerID: f.tracker.ID, StatusID: f.newSt.ID, AuthorID: "someone", Subject: "Crash"}
	require.NoError(t, f.db.Create(&issue).Error)

	decision, err := engine.CanTransitionStatus(ctx, &f.user, issue.ID, f.doneSt.ID)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, workflow.ReasonPlainRoleGrant, decision.Reason)
}
