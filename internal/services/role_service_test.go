package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/issuetrail/internal/database"
	"github.com/charlesng35/issuetrail/internal/database/testutil"
	"github.com/charlesng35/issuetrail/internal/models"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
)

func newRoleService(t *testing.T) (*RoleService, *recordingAuthzCache) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	authz := &recordingAuthzCache{}
	svc, err := NewRoleService(db, audit, authz)
	require.NoError(t, err)
	return svc, authz
}

func TestRoleServiceCreateAndList(t *testing.T) {
	svc, _ := newRoleService(t)
	ctx := context.Background()

	role, err := svc.Create(ctx, CreateRoleInput{
		Name:        "Developer",
		Assignable:  true,
		Permissions: []string{"view_issues", "add_issues", "my_plugin:export"},
	})
	require.NoError(t, err)
	require.Equal(t, models.IssuesVisibilityDefault, role.IssuesVisibility)
	require.Equal(t, 3, role.Position, "positions continue after the builtin roles")
	require.True(t, role.HasPermission("my_plugin:export"))

	roles, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	require.Equal(t, "Developer", roles[2].Name)

	_, err = svc.Create(ctx, CreateRoleInput{Name: "Developer"})
	require.True(t, errors.Is(err, ErrRoleExists))
	require.True(t, apperrors.IsConflict(err))
}

func TestRoleServiceCreateValidation(t *testing.T) {
	svc, _ := newRoleService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateRoleInput
	}{
		{name: "empty name", input: CreateRoleInput{Name: "  "}},
		{name: "malformed permission", input: CreateRoleInput{Name: "R", Permissions: []string{"view issues"}}},
		{name: "empty permission", input: CreateRoleInput{Name: "R", Permissions: []string{""}}},
		{name: "issues scope", input: CreateRoleInput{Name: "R", IssuesVisibility: "mine"}},
		{name: "users scope", input: CreateRoleInput{Name: "R", UsersVisibility: "none"}},
		{name: "time scope", input: CreateRoleInput{Name: "R", TimeEntriesVisibility: "default"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.input)
			require.True(t, apperrors.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestRoleServiceBuiltinRolesAreImmutable(t *testing.T) {
	svc, authz := newRoleService(t)
	ctx := context.Background()

	name := "Renamed"
	_, err := svc.Update(ctx, database.NonMemberRoleID, UpdateRoleInput{Name: &name})
	require.True(t, errors.Is(err, apperrors.ErrImmutableRole))
	require.True(t, apperrors.IsForbidden(err))

	_, err = svc.SetPermissions(ctx, database.AnonymousRoleID, []string{"view_issues"})
	require.True(t, errors.Is(err, apperrors.ErrImmutableRole))

	err = svc.Delete(ctx, database.AnonymousRoleID)
	require.True(t, errors.Is(err, apperrors.ErrImmutableRole))

	role, err := svc.Get(ctx, database.NonMemberRoleID)
	require.NoError(t, err)
	require.Equal(t, models.BuiltinNonMember, role.Builtin)
	require.Empty(t, authz.roles)
}

func TestRoleServiceUpdate(t *testing.T) {
	svc, authz := newRoleService(t)
	ctx := context.Background()

	role, err := svc.Create(ctx, CreateRoleInput{Name: "Reporter"})
	require.NoError(t, err)

	own := models.IssuesVisibilityOwn
	position := 9
	updated, err := svc.Update(ctx, role.ID, UpdateRoleInput{IssuesVisibility: &own, Position: &position})
	require.NoError(t, err)
	require.Equal(t, models.IssuesVisibilityOwn, updated.IssuesVisibility)
	require.Equal(t, 9, updated.Position)
	require.Equal(t, []string{role.ID}, authz.roles)

	bad := "everything"
	_, err = svc.Update(ctx, role.ID, UpdateRoleInput{IssuesVisibility: &bad})
	require.True(t, apperrors.IsInvalidArgument(err))

	_, err = svc.Update(ctx, "missing", UpdateRoleInput{})
	require.True(t, errors.Is(err, ErrRoleNotFound))
}

func TestRoleServiceSetAndGetPermissions(t *testing.T) {
	svc, authz := newRoleService(t)
	ctx := context.Background()

	role, err := svc.Create(ctx, CreateRoleInput{Name: "Manager", Permissions: []string{"view_issues"}})
	require.NoError(t, err)

	_, err = svc.SetPermissions(ctx, role.ID, []string{"manage_members", "edit_issues", "edit_issues"})
	require.NoError(t, err)

	names, err := svc.GetPermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"edit_issues", "manage_members"}, names, "the set is replaced, not merged")
	require.Contains(t, authz.roles, role.ID)

	_, err = svc.SetPermissions(ctx, role.ID, []string{"bad name"})
	require.True(t, apperrors.IsInvalidArgument(err))

	names, err = svc.GetPermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"edit_issues", "manage_members"}, names)
}

func TestRoleServiceDelete(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc, err := NewRoleService(db, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	used := mustCreateRole(t, db, "Developer", 3, "view_issues")
	unused := mustCreateRole(t, db, "Observer", 4, "view_issues")
	user := mustCreateUser(t, db, "dave")
	project := mustCreateProject(t, db, "alpha", false)
	mustAddMember(t, db, user, project, used)

	tracker := mustFindTracker(t, db, "Bug")
	from := mustFindStatus(t, db, "New")
	to := mustFindStatus(t, db, "Resolved")
	require.NoError(t, db.Create(&models.WorkflowRule{RoleID: unused.ID, TrackerID: tracker.ID, OldStatusID: from.ID, NewStatusID: to.ID}).Error)

	err = svc.Delete(ctx, used.ID)
	require.True(t, errors.Is(err, ErrRoleInUse))

	require.NoError(t, svc.Delete(ctx, unused.ID))
	var rules int64
	require.NoError(t, db.Model(&models.WorkflowRule{}).Where("role_id = ?", unused.ID).Count(&rules).Error)
	require.Zero(t, rules)

	_, err = svc.Get(ctx, unused.ID)
	require.True(t, apperrors.IsNotFound(err))
}

func TestNewRoleServiceRequiresDB(t *testing.T) {
	_, err := NewRoleService(nil, nil, nil)
	require.Error(t, err)
}
