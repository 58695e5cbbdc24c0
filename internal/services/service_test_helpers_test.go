package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/models"
)

type recordingAuthzCache struct {
	mu          sync.Mutex
	roles       []string
	memberships []string
}

func (c *recordingAuthzCache) InvalidateRole(roleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles = append(c.roles, roleID)
}

func (c *recordingAuthzCache) InvalidateMembership(_ context.Context, userID, projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memberships = append(c.memberships, userID+"|"+projectID)
}

func mustCreateUser(t *testing.T, db *gorm.DB, login string) models.User {
	t.Helper()
	user := models.User{Login: login, Email: login + "@example.com"}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func mustCreateProject(t *testing.T, db *gorm.DB, identifier string, public bool) models.Project {
	t.Helper()
	project := models.Project{
		Name:       identifier,
		Identifier: identifier,
		IsPublic:   public,
		Status:     models.ProjectStatusActive,
	}
	require.NoError(t, db.Create(&project).Error)
	return project
}

func mustCreateRole(t *testing.T, db *gorm.DB, name string, position int, perms ...string) models.Role {
	t.Helper()
	role := models.Role{Name: name, Position: position, Assignable: true, Permissions: models.NewPermissionSet(perms...)}
	role.ApplyVisibilityDefaults()
	require.NoError(t, db.Create(&role).Error)
	return role
}

func mustAddMember(t *testing.T, db *gorm.DB, user models.User, project models.Project, roles ...models.Role) models.Member {
	t.Helper()
	member := models.Member{UserID: user.ID, ProjectID: project.ID, MailNotification: true, Roles: roles}
	require.NoError(t, db.Create(&member).Error)
	return member
}

func mustFindStatus(t *testing.T, db *gorm.DB, name string) models.IssueStatus {
	t.Helper()
	var status models.IssueStatus
	require.NoError(t, db.Where("name = ?", name).First(&status).Error)
	return status
}

func mustFindTracker(t *testing.T, db *gorm.DB, name string) models.Tracker {
	t.Helper()
	var tracker models.Tracker
	require.NoError(t, db.Where("name = ?", name).First(&tracker).Error)
	return tracker
}

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}
