package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/issuetrail/internal/handlers/testutil"
	"github.com/charlesng35/issuetrail/internal/models"
)

func TestProjectHandler_CreateAndVisibility(t *testing.T) {
	env := testutil.NewEnv(t)
	_, adminToken := env.CreateUser("root", true)
	_, outsiderToken := env.CreateUser("outsider", false)

	created := env.Request(http.MethodPost, "/api/projects", map[string]any{
		"name":       "Alpha",
		"identifier": "Alpha",
	}, adminToken)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var project models.Project
	testutil.DecodeInto(t, testutil.DecodeResponse(t, created).Data, &project)
	require.Equal(t, "alpha", project.Identifier)
	require.Equal(t, models.ProjectStatusActive, project.Status)

	duplicate := env.Request(http.MethodPost, "/api/projects", map[string]any{"name": "Again", "identifier": "alpha"}, adminToken)
	require.Equal(t, http.StatusConflict, duplicate.Code)

	denied := env.Request(http.MethodPost, "/api/projects", map[string]any{"name": "Beta", "identifier": "beta"}, outsiderToken)
	require.Equal(t, http.StatusForbidden, denied.Code)

	hidden := env.Request(http.MethodGet, "/api/projects/"+project.ID, nil, outsiderToken)
	require.Equal(t, http.StatusForbidden, hidden.Code)
	require.Equal(t, "project not visible", testutil.DecodeResponse(t, hidden).Error.Message)

	anonymous := env.Request(http.MethodGet, "/api/projects/"+project.ID, nil, "")
	require.Equal(t, http.StatusUnauthorized, anonymous.Code)

	visible := env.Request(http.MethodGet, "/api/projects/"+project.ID, nil, adminToken)
	require.Equal(t, http.StatusOK, visible.Code)

	missing := env.Request(http.MethodGet, "/api/projects/00000000-0000-0000-0000-00000000ffff", nil, adminToken)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestProjectHandler_AnonymousSeesPublicProjectsWhenAllowed(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithAnonymousAccess())
	public := env.CreateProject("public", true)
	private := env.CreateProject("private", false)

	require.Equal(t, http.StatusOK, env.Request(http.MethodGet, "/api/projects/"+public.ID, nil, "").Code)
	require.Equal(t, http.StatusUnauthorized, env.Request(http.MethodGet, "/api/projects/"+private.ID, nil, "").Code)

	list := env.Request(http.MethodGet, "/api/projects", nil, "")
	require.Equal(t, http.StatusOK, list.Code)
	var projects []models.Project
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &projects)
	require.Len(t, projects, 1)
	require.Equal(t, public.ID, projects[0].ID)
}

func TestProjectHandler_TreeAndLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	_, adminToken := env.CreateUser("root", true)
	parent := env.CreateProject("parent", false)
	child := env.CreateProject("child", false)

	moved := env.Request(http.MethodPatch, "/api/projects/"+child.ID+"/parent", map[string]any{"parent_id": parent.ID}, adminToken)
	require.Equal(t, http.StatusOK, moved.Code, moved.Body.String())

	cycle := env.Request(http.MethodPatch, "/api/projects/"+parent.ID+"/parent", map[string]any{"parent_id": child.ID}, adminToken)
	require.Equal(t, http.StatusBadRequest, cycle.Code)

	closed := env.Request(http.MethodPatch, "/api/projects/"+parent.ID+"/status", map[string]any{"status": "closed"}, adminToken)
	require.Equal(t, http.StatusOK, closed.Code, closed.Body.String())

	var reloaded models.Project
	require.NoError(t, env.DB.First(&reloaded, "id = ?", child.ID).Error)
	require.Equal(t, models.ProjectStatusClosed, reloaded.Status)

	invalid := env.Request(http.MethodPatch, "/api/projects/"+parent.ID+"/status", map[string]any{"status": "frozen"}, adminToken)
	require.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestProjectHandler_SetParentRequiresEditProject(t *testing.T) {
	env := testutil.NewEnv(t)
	editor, editorToken := env.CreateUser("editor", false)
	viewer, viewerToken := env.CreateUser("viewer", false)
	project := env.CreateProject("alpha", false)
	env.AddMember(editor, project, env.CreateRole("Editor", 3, "edit_project"))
	env.AddMember(viewer, project, env.CreateRole("Viewer", 4, "view_issues"))

	denied := env.Request(http.MethodPatch, "/api/projects/"+project.ID+"/parent", map[string]any{"parent_id": nil}, viewerToken)
	require.Equal(t, http.StatusForbidden, denied.Code)
	require.Equal(t, "missing permission edit_project", testutil.DecodeResponse(t, denied).Error.Message)

	allowed := env.Request(http.MethodPatch, "/api/projects/"+project.ID+"/parent", map[string]any{"parent_id": nil}, editorToken)
	require.Equal(t, http.StatusOK, allowed.Code, allowed.Body.String())
}
