package models

// WorkflowRule permits moving an issue of a tracker from one status to
// another for holders of a role. Author and Assignee restrict the rule to
// the issue's author or current assignee.
type WorkflowRule struct {
	BaseModel

	RoleID      string `gorm:"type:uuid;not null;uniqueIndex:idx_workflow_rules_tuple" json:"role_id"`
	TrackerID   string `gorm:"type:uuid;not null;uniqueIndex:idx_workflow_rules_tuple" json:"tracker_id"`
	OldStatusID string `gorm:"type:uuid;not null;uniqueIndex:idx_workflow_rules_tuple" json:"old_status_id"`
	NewStatusID string `gorm:"type:uuid;not null;uniqueIndex:idx_workflow_rules_tuple" json:"new_status_id"`

	Author   bool `json:"author"`
	Assignee bool `json:"assignee"`
}

// Unrestricted reports whether any holder of the role may use the rule.
func (w *WorkflowRule) Unrestricted() bool {
	return !w.Author && !w.Assignee
}
