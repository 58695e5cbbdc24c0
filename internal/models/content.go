package models

import "time"

// TimeEntry logs hours spent on a project, optionally against an issue.
type TimeEntry struct {
	BaseModel

	ProjectID string    `gorm:"type:uuid;not null;index" json:"project_id"`
	IssueID   *string   `gorm:"type:uuid;index" json:"issue_id,omitempty"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Hours     float64   `gorm:"not null" json:"hours"`
	SpentOn   time.Time `json:"spent_on"`
	Comments  string    `json:"comments"`
}

// Document is a project-level file collection.
type Document struct {
	BaseModel

	ProjectID   string `gorm:"type:uuid;not null;index" json:"project_id"`
	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
}

// WikiPage is a page of a project's wiki.
type WikiPage struct {
	BaseModel

	ProjectID string `gorm:"type:uuid;not null;index" json:"project_id"`
	Title     string `gorm:"not null" json:"title"`
	Text      string `gorm:"type:text" json:"text"`
}

// Attachment is a file attached to a container object.
type Attachment struct {
	BaseModel

	ContainerKind string `gorm:"size:20;not null;index:idx_attachments_container" json:"container_kind"`
	ContainerID   string `gorm:"type:uuid;not null;index:idx_attachments_container" json:"container_id"`
	AuthorID      string `gorm:"type:uuid;not null" json:"author_id"`
	Filename      string `gorm:"not null" json:"filename"`
	Filesize      int64  `json:"filesize"`
}

// Container returns the reference to the object holding the attachment.
func (a *Attachment) Container() ContainerRef {
	return ContainerRef{Kind: a.ContainerKind, ID: a.ContainerID}
}
