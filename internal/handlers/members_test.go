package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/issuetrail/internal/handlers/testutil"
	"github.com/charlesng35/issuetrail/internal/models"
)

func TestMemberHandler_Lifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	_, adminToken := env.CreateUser("root", true)
	user, userToken := env.CreateUser("dev", false)
	project := env.CreateProject("alpha", false)
	developer := env.CreateRole("Developer", 3, "view_issues", "add_issues")
	reporter := env.CreateRole("Reporter", 4, "view_issues")

	base := "/api/projects/" + project.ID + "/members"

	hidden := env.Request(http.MethodGet, base, nil, userToken)
	require.Equal(t, http.StatusForbidden, hidden.Code)

	added := env.Request(http.MethodPost, base, map[string]any{
		"user_id":  user.ID,
		"role_ids": []string{developer.ID},
	}, adminToken)
	require.Equal(t, http.StatusCreated, added.Code, added.Body.String())

	var member models.Member
	testutil.DecodeInto(t, testutil.DecodeResponse(t, added).Data, &member)
	require.True(t, member.MailNotification)
	require.Len(t, member.Roles, 1)
	require.Equal(t, developer.ID, member.Roles[0].ID)

	duplicate := env.Request(http.MethodPost, base, map[string]any{
		"user_id":  user.ID,
		"role_ids": []string{reporter.ID},
	}, adminToken)
	require.Equal(t, http.StatusConflict, duplicate.Code)
	require.Equal(t, "MEMBER_EXISTS", testutil.DecodeResponse(t, duplicate).Error.Code)

	list := env.Request(http.MethodGet, base, nil, userToken)
	require.Equal(t, http.StatusOK, list.Code, list.Body.String())
	var members []models.Member
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &members)
	require.Len(t, members, 1)

	empty := env.Request(http.MethodPut, base+"/"+user.ID, map[string]any{}, adminToken)
	require.Equal(t, http.StatusBadRequest, empty.Code)

	updated := env.Request(http.MethodPut, base+"/"+user.ID, map[string]any{
		"role_ids":          []string{developer.ID, reporter.ID},
		"mail_notification": false,
	}, adminToken)
	require.Equal(t, http.StatusOK, updated.Code, updated.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, updated).Data, &member)
	require.False(t, member.MailNotification)
	require.Len(t, member.Roles, 2)

	removed := env.Request(http.MethodDelete, base+"/"+user.ID, nil, adminToken)
	require.Equal(t, http.StatusOK, removed.Code)

	again := env.Request(http.MethodDelete, base+"/"+user.ID, nil, adminToken)
	require.Equal(t, http.StatusNotFound, again.Code)
}

func TestMemberHandler_RejectsBuiltinRoles(t *testing.T) {
	env := testutil.NewEnv(t)
	_, adminToken := env.CreateUser("root", true)
	user, _ := env.CreateUser("dev", false)
	project := env.CreateProject("alpha", false)

	var builtin models.Role
	require.NoError(t, env.DB.Where("builtin = ?", models.BuiltinNonMember).First(&builtin).Error)

	resp := env.Request(http.MethodPost, "/api/projects/"+project.ID+"/members", map[string]any{
		"user_id":  user.ID,
		"role_ids": []string{builtin.ID},
	}, adminToken)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMemberHandler_MutationsRequireManageMembers(t *testing.T) {
	env := testutil.NewEnv(t)
	member, memberToken := env.CreateUser("dev", false)
	other, _ := env.CreateUser("other", false)
	project := env.CreateProject("alpha", false)
	role := env.CreateRole("Developer", 3, "view_issues")
	env.AddMember(member, project, role)

	resp := env.Request(http.MethodPost, "/api/projects/"+project.ID+"/members", map[string]any{
		"user_id":  other.ID,
		"role_ids": []string{role.ID},
	}, memberToken)
	require.Equal(t, http.StatusForbidden, resp.Code)
	require.Equal(t, "missing permission manage_members", testutil.DecodeResponse(t, resp).Error.Message)

	manager := env.CreateRole("Manager", 5, "manage_members")
	var stored models.Member
	require.NoError(t, env.DB.Where("user_id = ? AND project_id = ?", member.ID, project.ID).First(&stored).Error)
	require.NoError(t, env.DB.Model(&stored).Association("Roles").Append(manager))

	resp = env.Request(http.MethodPost, "/api/projects/"+project.ID+"/members", map[string]any{
		"user_id":  other.ID,
		"role_ids": []string{role.ID},
	}, memberToken)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
}
