package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/issuetrail/internal/handlers/testutil"
	"github.com/charlesng35/issuetrail/internal/models"
)

type issueFixture struct {
	env            *testutil.Env
	project        *models.Project
	reporter       *models.User
	reporterToken  string
	developer      *models.User
	developerToken string
	outsiderToken  string
	issue          models.Issue
}

func newIssueFixture(t *testing.T) *issueFixture {
	t.Helper()

	env := testutil.NewEnv(t)
	reporter, reporterToken := env.CreateUser("reporter", false)
	developer, developerToken := env.CreateUser("developer", false)
	_, outsiderToken := env.CreateUser("outsider", false)
	project := env.CreateProject("alpha", false)

	reporterRole := env.CreateRole("Reporter", 4, "view_issues", "add_issues", "add_issue_notes")
	developerRole := env.CreateRole("Developer", 3, "view_issues", "edit_issues", "add_issue_notes", "set_notes_private")
	env.AddMember(reporter, project, reporterRole)
	env.AddMember(developer, project, developerRole)

	bug := env.Tracker("Bug")
	env.AddRule(developerRole, bug, env.Status("New"), env.Status("In Progress"))
	env.AddRule(developerRole, bug, env.Status("In Progress"), env.Status("Resolved"))

	created := env.Request(http.MethodPost, "/api/projects/"+project.ID+"/issues", map[string]any{
		"tracker_id": bug.ID,
		"subject":    "Crash on save",
	}, reporterToken)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var issue models.Issue
	testutil.DecodeInto(t, testutil.DecodeResponse(t, created).Data, &issue)

	return &issueFixture{
		env:            env,
		project:        project,
		reporter:       reporter,
		reporterToken:  reporterToken,
		developer:      developer,
		developerToken: developerToken,
		outsiderToken:  outsiderToken,
		issue:          issue,
	}
}

func TestIssueHandler_CreateAndVisibility(t *testing.T) {
	f := newIssueFixture(t)
	env := f.env

	require.Equal(t, env.Status("New").ID, f.issue.StatusID)
	require.Equal(t, f.reporter.ID, f.issue.AuthorID)
	require.Nil(t, f.issue.ClosedOn)

	path := "/api/issues/" + f.issue.ID
	require.Equal(t, http.StatusOK, env.Request(http.MethodGet, path, nil, f.developerToken).Code)
	require.Equal(t, http.StatusForbidden, env.Request(http.MethodGet, path, nil, f.outsiderToken).Code)
	require.Equal(t, http.StatusUnauthorized, env.Request(http.MethodGet, path, nil, "").Code)

	list := env.Request(http.MethodGet, "/api/projects/"+f.project.ID+"/issues", nil, f.developerToken)
	require.Equal(t, http.StatusOK, list.Code)
	var issues []models.Issue
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &issues)
	require.Len(t, issues, 1)

	denied := env.Request(http.MethodPost, "/api/projects/"+f.project.ID+"/issues", map[string]any{
		"tracker_id": env.Tracker("Bug").ID,
		"subject":    "Nope",
	}, f.developerToken)
	require.Equal(t, http.StatusForbidden, denied.Code)
	require.Equal(t, "missing permission add_issues", testutil.DecodeResponse(t, denied).Error.Message)

	anonymous := env.Request(http.MethodPost, "/api/projects/"+f.project.ID+"/issues", map[string]any{
		"tracker_id": env.Tracker("Bug").ID,
		"subject":    "Nope",
	}, "")
	require.Equal(t, http.StatusUnauthorized, anonymous.Code)
}

func TestIssueHandler_Transitions(t *testing.T) {
	f := newIssueFixture(t)
	env := f.env
	inProgress := env.Status("In Progress")

	allowed := env.Request(http.MethodGet, "/api/issues/"+f.issue.ID+"/transitions", nil, f.developerToken)
	require.Equal(t, http.StatusOK, allowed.Code, allowed.Body.String())
	var statuses []models.IssueStatus
	testutil.DecodeInto(t, testutil.DecodeResponse(t, allowed).Data, &statuses)
	require.Len(t, statuses, 1)
	require.Equal(t, inProgress.ID, statuses[0].ID)

	none := env.Request(http.MethodGet, "/api/issues/"+f.issue.ID+"/transitions", nil, f.reporterToken)
	require.Equal(t, http.StatusOK, none.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, none).Data, &statuses)
	require.Empty(t, statuses)

	var decision struct {
		StatusID string `json:"status_id"`
		Allowed  bool   `json:"allowed"`
		Reason   string `json:"reason"`
	}
	resp := env.Request(http.MethodGet, "/api/issues/"+f.issue.ID+"/transitions/"+inProgress.ID, nil, f.reporterToken)
	require.Equal(t, http.StatusOK, resp.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &decision)
	require.False(t, decision.Allowed)
	require.Equal(t, "no workflow rule permits this transition", decision.Reason)

	resp = env.Request(http.MethodGet, "/api/issues/"+f.issue.ID+"/transitions/"+inProgress.ID, nil, f.developerToken)
	require.Equal(t, http.StatusOK, resp.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &decision)
	require.True(t, decision.Allowed)
	require.Equal(t, "plain role grant", decision.Reason)

	unknown := env.Request(http.MethodGet, "/api/issues/"+f.issue.ID+"/transitions/00000000-0000-0000-0000-00000000beef", nil, f.developerToken)
	require.Equal(t, http.StatusBadRequest, unknown.Code)
}

func TestIssueHandler_ChangeStatus(t *testing.T) {
	f := newIssueFixture(t)
	env := f.env
	newStatus, inProgress, resolved := env.Status("New"), env.Status("In Progress"), env.Status("Resolved")
	path := "/api/issues/" + f.issue.ID + "/status"

	denied := env.Request(http.MethodPost, path, map[string]any{"status_id": inProgress.ID}, f.reporterToken)
	require.Equal(t, http.StatusForbidden, denied.Code)

	moved := env.Request(http.MethodPost, path, map[string]any{
		"status_id":          inProgress.ID,
		"expected_status_id": newStatus.ID,
		"notes":              "Picking this up",
	}, f.developerToken)
	require.Equal(t, http.StatusOK, moved.Code, moved.Body.String())
	var issue models.Issue
	testutil.DecodeInto(t, testutil.DecodeResponse(t, moved).Data, &issue)
	require.Equal(t, inProgress.ID, issue.StatusID)

	stale := env.Request(http.MethodPost, path, map[string]any{
		"status_id":          resolved.ID,
		"expected_status_id": newStatus.ID,
	}, f.developerToken)
	require.Equal(t, http.StatusConflict, stale.Code)
	require.Equal(t, "STATUS_CONFLICT", testutil.DecodeResponse(t, stale).Error.Code)

	missing := env.Request(http.MethodPost, path, map[string]any{}, f.developerToken)
	require.Equal(t, http.StatusBadRequest, missing.Code)

	require.NoError(t, env.DB.Model(&models.Project{}).Where("id = ?", f.project.ID).Update("status", models.ProjectStatusClosed).Error)
	readOnly := env.Request(http.MethodPost, path, map[string]any{"status_id": resolved.ID}, f.developerToken)
	require.Equal(t, http.StatusForbidden, readOnly.Code)
	require.Equal(t, "PROJECT_READ_ONLY", testutil.DecodeResponse(t, readOnly).Error.Code)
}

func TestIssueHandler_JournalsHidePrivateNotes(t *testing.T) {
	f := newIssueFixture(t)
	env := f.env
	path := "/api/issues/" + f.issue.ID + "/journals"

	public := env.Request(http.MethodPost, path, map[string]any{"notes": "Can reproduce"}, f.reporterToken)
	require.Equal(t, http.StatusCreated, public.Code, public.Body.String())

	private := env.Request(http.MethodPost, path, map[string]any{"notes": "Root cause is the cache", "private_notes": true}, f.developerToken)
	require.Equal(t, http.StatusCreated, private.Code, private.Body.String())

	notAllowed := env.Request(http.MethodPost, path, map[string]any{"notes": "psst", "private_notes": true}, f.reporterToken)
	require.Equal(t, http.StatusForbidden, notAllowed.Code)

	var journals []models.Journal
	resp := env.Request(http.MethodGet, path, nil, f.reporterToken)
	require.Equal(t, http.StatusOK, resp.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &journals)
	require.Len(t, journals, 1)
	require.Equal(t, "Can reproduce", journals[0].Notes)

	resp = env.Request(http.MethodGet, path, nil, f.developerToken)
	require.Equal(t, http.StatusOK, resp.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &journals)
	require.Len(t, journals, 2)

	empty := env.Request(http.MethodPost, path, map[string]any{"notes": ""}, f.reporterToken)
	require.Equal(t, http.StatusBadRequest, empty.Code)
}

func TestIssueHandler_AssignAndPrivacy(t *testing.T) {
	f := newIssueFixture(t)
	env := f.env
	path := "/api/issues/" + f.issue.ID

	assigned := env.Request(http.MethodPatch, path+"/assignee", map[string]any{"assigned_to_id": f.developer.ID}, f.developerToken)
	require.Equal(t, http.StatusOK, assigned.Code, assigned.Body.String())
	var issue models.Issue
	testutil.DecodeInto(t, testutil.DecodeResponse(t, assigned).Data, &issue)
	require.NotNil(t, issue.AssignedToID)
	require.Equal(t, f.developer.ID, *issue.AssignedToID)

	blank := env.Request(http.MethodPatch, path+"/assignee", map[string]any{"assigned_to_id": "  "}, f.developerToken)
	require.Equal(t, http.StatusBadRequest, blank.Code)

	denied := env.Request(http.MethodPatch, path+"/assignee", map[string]any{"assigned_to_id": nil}, f.reporterToken)
	require.Equal(t, http.StatusForbidden, denied.Code)

	cleared := env.Request(http.MethodPatch, path+"/assignee", map[string]any{"assigned_to_id": nil}, f.developerToken)
	require.Equal(t, http.StatusOK, cleared.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, cleared).Data, &issue)
	require.Nil(t, issue.AssignedToID)

	missing := env.Request(http.MethodPatch, path+"/private", map[string]any{}, f.developerToken)
	require.Equal(t, http.StatusBadRequest, missing.Code)

	forbidden := env.Request(http.MethodPatch, path+"/private", map[string]any{"is_private": true}, f.developerToken)
	require.Equal(t, http.StatusForbidden, forbidden.Code)
	require.Equal(t, "missing permission set_issues_private", testutil.DecodeResponse(t, forbidden).Error.Message)
}
