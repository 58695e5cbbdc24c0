package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/issuetrail/internal/handlers/testutil"
	"github.com/charlesng35/issuetrail/internal/models"
)

func TestWorkflowHandler_RuleLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	_, adminToken := env.CreateUser("root", true)
	_, userToken := env.CreateUser("dev", false)
	developer := env.CreateRole("Developer", 3, "view_issues")
	reporter := env.CreateRole("Reporter", 4, "view_issues")
	bug, feature := env.Tracker("Bug"), env.Tracker("Feature")
	newStatus, inProgress := env.Status("New"), env.Status("In Progress")

	body := map[string]any{
		"role_id":       developer.ID,
		"tracker_id":    bug.ID,
		"old_status_id": newStatus.ID,
		"new_status_id": inProgress.ID,
		"assignee":      true,
	}

	require.Equal(t, http.StatusForbidden, env.Request(http.MethodPost, "/api/workflows", body, userToken).Code)

	created := env.Request(http.MethodPost, "/api/workflows", body, adminToken)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var rule models.WorkflowRule
	testutil.DecodeInto(t, testutil.DecodeResponse(t, created).Data, &rule)
	require.True(t, rule.Assignee)
	require.False(t, rule.Author)

	duplicate := env.Request(http.MethodPost, "/api/workflows", body, adminToken)
	require.Equal(t, http.StatusConflict, duplicate.Code)
	require.Equal(t, "WORKFLOW_RULE_EXISTS", testutil.DecodeResponse(t, duplicate).Error.Code)

	same := env.Request(http.MethodPost, "/api/workflows", map[string]any{
		"role_id":       developer.ID,
		"tracker_id":    bug.ID,
		"old_status_id": newStatus.ID,
		"new_status_id": newStatus.ID,
	}, adminToken)
	require.Equal(t, http.StatusBadRequest, same.Code)

	copied := env.Request(http.MethodPost, "/api/workflows/copy", map[string]any{
		"source_role_id":    developer.ID,
		"source_tracker_id": bug.ID,
		"target_role_id":    reporter.ID,
		"target_tracker_id": feature.ID,
	}, adminToken)
	require.Equal(t, http.StatusOK, copied.Code, copied.Body.String())
	var count struct {
		Copied int64 `json:"copied"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, copied).Data, &count)
	require.EqualValues(t, 1, count.Copied)

	var rules []models.WorkflowRule
	list := env.Request(http.MethodGet, "/api/workflows?role_id="+reporter.ID, nil, adminToken)
	require.Equal(t, http.StatusOK, list.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &rules)
	require.Len(t, rules, 1)
	require.Equal(t, feature.ID, rules[0].TrackerID)
	require.True(t, rules[0].Assignee)

	list = env.Request(http.MethodGet, "/api/workflows", nil, adminToken)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &rules)
	require.Len(t, rules, 2)

	require.Equal(t, http.StatusOK, env.Request(http.MethodDelete, "/api/workflows/"+rule.ID, nil, adminToken).Code)
	require.Equal(t, http.StatusNotFound, env.Request(http.MethodDelete, "/api/workflows/"+rule.ID, nil, adminToken).Code)
}

func TestWorkflowHandler_CopyRejectsSamePair(t *testing.T) {
	env := testutil.NewEnv(t)
	_, adminToken := env.CreateUser("root", true)
	role := env.CreateRole("Developer", 3)
	bug := env.Tracker("Bug")

	resp := env.Request(http.MethodPost, "/api/workflows/copy", map[string]any{
		"source_role_id":    role.ID,
		"source_tracker_id": bug.ID,
		"target_role_id":    role.ID,
		"target_tracker_id": bug.ID,
	}, adminToken)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
