package permissions

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/issuetrail/internal/models"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
)

type fakeStore struct {
	mu          sync.Mutex
	roles       map[string]models.Role
	memberships map[string][]string
	projects    map[string]*models.Project
	issues      map[string]*models.Issue
	documents   map[string]*models.Document
	wikiPages   map[string]*models.WikiPage

	membershipCalls int
	roleCalls       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roles:       make(map[string]models.Role),
		memberships: make(map[string][]string),
		projects:    make(map[string]*models.Project),
		issues:      make(map[string]*models.Issue),
		documents:   make(map[string]*models.Document),
		wikiPages:   make(map[string]*models.WikiPage),
	}
}

func (f *fakeStore) addRole(id, name string, position int, perms ...string) models.Role {
	role := models.Role{
		BaseModel:   models.BaseModel{ID: id},
		Name:        name,
		Position:    position,
		Permissions: models.NewPermissionSet(perms...),
	}
	role.ApplyVisibilityDefaults()
	f.roles[id] = role
	return role
}

func (f *fakeStore) setRole(role models.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[role.ID] = role
}

func (f *fakeStore) addMember(userID, projectID string, roleIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberships[userID+"|"+projectID] = append([]string{}, roleIDs...)
}

func (f *fakeStore) addProject(id string, public bool) *models.Project {
	project := &models.Project{BaseModel: models.BaseModel{ID: id}, Name: id, Identifier: id, IsPublic: public, Status: models.ProjectStatusActive}
	f.projects[id] = project
	return project
}

func (f *fakeStore) addIssue(id, projectID, authorID string) *models.Issue {
	issue := &models.Issue{BaseModel: models.BaseModel{ID: id}, ProjectID: projectID, TrackerID: "tracker", StatusID: "new", AuthorID: authorID, Subject: id}
	f.issues[id] = issue
	return issue
}

func (f *fakeStore) MembershipRoleIDs(_ context.Context, userID, projectID string) ([]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.membershipCalls++
	ids, ok := f.memberships[userID+"|"+projectID]
	return append([]string{}, ids...), ok, nil
}

func (f *fakeStore) UserRoleIDs(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for key, roleIDs := range f.memberships {
		if len(key) > len(userID) && key[:len(userID)+1] == userID+"|" {
			ids = append(ids, roleIDs...)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) RolesByID(_ context.Context, ids []string) ([]models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleCalls++
	var roles []models.Role
	for _, id := range ids {
		if role, ok := f.roles[id]; ok {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (f *fakeStore) Project(_ context.Context, id string) (*models.Project, error) {
	if project, ok := f.projects[id]; ok {
		return project, nil
	}
	return nil, apperrors.ErrNotFound.WithMessage("project not found")
}

func (f *fakeStore) Issue(_ context.Context, id string) (*models.Issue, error) {
	if issue, ok := f.issues[id]; ok {
		return issue, nil
	}
	return nil, apperrors.ErrNotFound.WithMessage("issue not found")
}

func (f *fakeStore) Document(_ context.Context, id string) (*models.Document, error) {
	if doc, ok := f.documents[id]; ok {
		return doc, nil
	}
	return nil, apperrors.ErrNotFound.WithMessage("document not found")
}

func (f *fakeStore) WikiPage(_ context.Context, id string) (*models.WikiPage, error) {
	if page, ok := f.wikiPages[id]; ok {
		return page, nil
	}
	return nil, apperrors.ErrNotFound.WithMessage("wiki page not found")
}

func newTestEvaluator(t *testing.T, store *fakeStore, opts ...ResolverOption) *Evaluator {
	t.Helper()

	resolver, err := NewResolver(store, opts...)
	require.NoError(t, err)
	evaluator, err := NewEvaluator(resolver)
	require.NoError(t, err)
	return evaluator
}

func newTestPolicy(t *testing.T, store *fakeStore, opts ...PolicyOption) *Policy {
	t.Helper()

	policy, err := NewPolicy(newTestEvaluator(t, store), store, opts...)
	require.NoError(t, err)
	return policy
}

func user(id string) *models.User {
	return &models.User{ID: id, Login: id}
}

func admin(id string) *models.User {
	return &models.User{ID: id, Login: id, IsAdmin: true}
}
