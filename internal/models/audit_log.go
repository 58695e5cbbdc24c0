package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audited resource kinds.
const (
	AuditResourceRole         = "role"
	AuditResourceProject      = "project"
	AuditResourceMember       = "member"
	AuditResourceIssue        = "issue"
	AuditResourceWorkflowRule = "workflow_rule"
)

// AuditLog records a change to roles, memberships, projects, workflows or an
// issue's status. ProjectID is set when the change is scoped to one project.
type AuditLog struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       *string        `gorm:"type:uuid;index" json:"user_id"`
	Username     string         `json:"username"`
	Action       string         `gorm:"not null;index" json:"action"`
	ResourceType string         `gorm:"size:30;index" json:"resource_type"`
	Resource     string         `gorm:"index" json:"resource"`
	ProjectID    *string        `gorm:"type:uuid;index" json:"project_id"`
	Result       string         `gorm:"not null" json:"result"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	Metadata     datatypes.JSON `json:"metadata"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
