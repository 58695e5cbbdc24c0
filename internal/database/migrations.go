package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/models"
)

// Identifiers of the system-defined roles. They are stable so that seeding is idempotent.
const (
	NonMemberRoleID = "00000000-0000-0000-0000-000000000001"
	AnonymousRoleID = "00000000-0000-0000-0000-000000000002"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&models.Member{}, "Roles", &models.MemberRole{}); err != nil {
		return fmt.Errorf("setup member roles: %w", err)
	}

	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Project{},
		&models.Member{},
		&models.MemberRole{},
		&models.IssueStatus{},
		&models.Tracker{},
		&models.Issue{},
		&models.WorkflowRule{},
		&models.Journal{},
		&models.JournalDetail{},
		&models.TimeEntry{},
		&models.Document{},
		&models.WikiPage{},
		&models.Attachment{},
		&models.AuditLog{},
		&models.CacheEntry{},
	)
}

// SeedData populates builtin roles, default statuses and trackers.
func SeedData(db *gorm.DB) error {
	roles := []models.Role{
		{
			BaseModel:             models.BaseModel{ID: NonMemberRoleID},
			Name:                  "Non member",
			Builtin:               models.BuiltinNonMember,
			Position:              1,
			Permissions:           models.PermissionSet{},
			IssuesVisibility:      models.IssuesVisibilityDefault,
			UsersVisibility:       models.UsersVisibilityAll,
			TimeEntriesVisibility: models.TimeEntriesVisibilityAll,
		},
		{
			BaseModel:             models.BaseModel{ID: AnonymousRoleID},
			Name:                  "Anonymous",
			Builtin:               models.BuiltinAnonymous,
			Position:              2,
			Permissions:           models.PermissionSet{},
			IssuesVisibility:      models.IssuesVisibilityDefault,
			UsersVisibility:       models.UsersVisibilityAll,
			TimeEntriesVisibility: models.TimeEntriesVisibilityAll,
		},
	}

	for _, role := range roles {
		if err := db.Where(models.Role{BaseModel: models.BaseModel{ID: role.ID}}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return fmt.Errorf("seed role %q: %w", role.Name, err)
		}
	}

	statuses := []models.IssueStatus{
		{Name: "New", Position: 1},
		{Name: "In Progress", Position: 2},
		{Name: "Resolved", Position: 3},
		{Name: "Feedback", Position: 4},
		{Name: "Closed", Position: 5, IsClosed: true},
		{Name: "Rejected", Position: 6, IsClosed: true},
	}

	var initial models.IssueStatus
	for i, status := range statuses {
		var stored models.IssueStatus
		if err := db.Where(models.IssueStatus{Name: status.Name}).Attrs(status).FirstOrCreate(&stored).Error; err != nil {
			return fmt.Errorf("seed status %q: %w", status.Name, err)
		}
		if i == 0 {
			initial = stored
		}
	}

	trackers := []models.Tracker{
		{Name: "Bug", Position: 1, DefaultStatusID: &initial.ID},
		{Name: "Feature", Position: 2, DefaultStatusID: &initial.ID},
		{Name: "Support", Position: 3, DefaultStatusID: &initial.ID},
	}
	for _, tracker := range trackers {
		if err := db.Where(models.Tracker{Name: tracker.Name}).Attrs(tracker).FirstOrCreate(&models.Tracker{}).Error; err != nil {
			return fmt.Errorf("seed tracker %q: %w", tracker.Name, err)
		}
	}

	return nil
}
