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

func TestMembershipServiceLifecycle(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	authz := &recordingAuthzCache{}
	svc, err := NewMembershipService(db, nil, authz)
	require.NoError(t, err)
	ctx := context.Background()

	user := mustCreateUser(t, db, "erin")
	project := mustCreateProject(t, db, "alpha", false)
	dev := mustCreateRole(t, db, "Developer", 3, "view_issues")
	reporter := mustCreateRole(t, db, "Reporter", 4, "add_issues")

	member, err := svc.Add(ctx, AddMemberInput{
		ProjectID:        project.ID,
		UserID:           user.ID,
		RoleIDs:          []string{reporter.ID, dev.ID, dev.ID},
		MailNotification: true,
	})
	require.NoError(t, err)
	require.Equal(t, []string{dev.ID, reporter.ID}, member.RoleIDs(), "roles are ordered by position")
	require.NotNil(t, member.User)
	require.Equal(t, "erin", member.User.Login)

	_, err = svc.Add(ctx, AddMemberInput{ProjectID: project.ID, UserID: user.ID, RoleIDs: []string{dev.ID}})
	require.True(t, errors.Is(err, ErrMemberExists))

	member, err = svc.SetRoles(ctx, project.ID, user.ID, []string{reporter.ID})
	require.NoError(t, err)
	require.Equal(t, []string{reporter.ID}, member.RoleIDs())

	require.NoError(t, svc.SetMailNotification(ctx, project.ID, user.ID, false))
	member, err = svc.Get(ctx, project.ID, user.ID)
	require.NoError(t, err)
	require.False(t, member.MailNotification)

	members, err := svc.List(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	require.NoError(t, svc.Remove(ctx, project.ID, user.ID))
	_, err = svc.Get(ctx, project.ID, user.ID)
	require.True(t, errors.Is(err, ErrMemberNotFound))

	var links int64
	require.NoError(t, db.Model(&models.MemberRole{}).Count(&links).Error)
	require.Zero(t, links)

	key := user.ID + "|" + project.ID
	require.Equal(t, []string{key, key, key}, authz.memberships, "add, set roles and remove each invalidate")
}

func TestMembershipServiceRejectsBadRoles(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc, err := NewMembershipService(db, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	user := mustCreateUser(t, db, "frank")
	project := mustCreateProject(t, db, "alpha", true)

	cases := map[string][]string{
		"no roles":     nil,
		"unknown role": {"00000000-0000-0000-0000-00000000ffff"},
		"builtin role": {database.NonMemberRoleID},
	}
	for name, roleIDs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Add(ctx, AddMemberInput{ProjectID: project.ID, UserID: user.ID, RoleIDs: roleIDs})
			require.True(t, apperrors.IsInvalidArgument(err), "got %v", err)
		})
	}

	dev := mustCreateRole(t, db, "Developer", 3)
	_, err = svc.Add(ctx, AddMemberInput{ProjectID: "missing", UserID: user.ID, RoleIDs: []string{dev.ID}})
	require.True(t, errors.Is(err, ErrProjectNotFound))

	_, err = svc.Add(ctx, AddMemberInput{ProjectID: project.ID, UserID: "missing", RoleIDs: []string{dev.ID}})
	require.True(t, errors.Is(err, ErrUserNotFound))

	_, err = svc.SetRoles(ctx, project.ID, user.ID, []string{dev.ID})
	require.True(t, errors.Is(err, ErrMemberNotFound))
}
