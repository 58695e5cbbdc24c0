package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/issuetrail/internal/models"
)

func TestAutoMigrateCreatesTrackerTables(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	tables := []interface{}{
		&models.Role{},
		&models.Member{},
		&models.MemberRole{},
		&models.WorkflowRule{},
		&models.Journal{},
		&models.JournalDetail{},
		&models.Attachment{},
		&models.CacheEntry{},
	}

	for _, table := range tables {
		require.True(t, migrator.HasTable(table), "expected table for %T to exist", table)
	}
	require.True(t, migrator.HasIndex(&models.WorkflowRule{}, "idx_workflow_rules_tuple"))
	require.True(t, migrator.HasIndex(&models.Member{}, "idx_members_user_project"))
}

func TestMembershipUniquePerUserAndProject(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	user := models.User{Login: "alice"}
	project := models.Project{Name: "Alpha", Identifier: "alpha", Status: models.ProjectStatusActive}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&project).Error)

	require.NoError(t, db.Create(&models.Member{UserID: user.ID, ProjectID: project.ID}).Error)
	require.Error(t, db.Create(&models.Member{UserID: user.ID, ProjectID: project.ID}).Error)
}

func TestRolePermissionsPersistAsSet(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	role := models.Role{Name: "Developer", Permissions: models.NewPermissionSet("view_issues", "edit_issues")}
	role.ApplyVisibilityDefaults()
	require.NoError(t, db.Create(&role).Error)

	var loaded models.Role
	require.NoError(t, db.First(&loaded, "id = ?", role.ID).Error)
	require.True(t, loaded.Permissions.Equal(role.Permissions))
	require.Equal(t, models.IssuesVisibilityDefault, loaded.IssuesVisibility)
}
