package models

import "time"

// Issue is a tracked work item within a project.
type Issue struct {
	BaseModel

	ProjectID    string  `gorm:"type:uuid;not null;index" json:"project_id"`
	TrackerID    string  `gorm:"type:uuid;not null;index" json:"tracker_id"`
	StatusID     string  `gorm:"type:uuid;not null;index" json:"status_id"`
	AuthorID     string  `gorm:"type:uuid;not null;index" json:"author_id"`
	AssignedToID *string `gorm:"type:uuid;index" json:"assigned_to_id,omitempty"`

	Subject     string `gorm:"not null" json:"subject"`
	Description string `gorm:"type:text" json:"description"`
	IsPrivate   bool   `json:"is_private"`

	ClosedOn *time.Time `json:"closed_on,omitempty"`
}

// IsAuthor reports whether userID created the issue.
func (i *Issue) IsAuthor(userID string) bool {
	return i != nil && userID != "" && i.AuthorID == userID
}

// IsAssignedTo reports whether the issue is currently assigned to userID.
func (i *Issue) IsAssignedTo(userID string) bool {
	return i != nil && userID != "" && i.AssignedToID != nil && *i.AssignedToID == userID
}
