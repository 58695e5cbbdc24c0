package models

// Tracker classifies issues (bug, feature, support...).
type Tracker struct {
	BaseModel

	Name            string  `gorm:"uniqueIndex;not null" json:"name"`
	Position        int     `gorm:"index" json:"position"`
	DefaultStatusID *string `gorm:"type:uuid" json:"default_status_id,omitempty"`
}

// IssueStatus is a state an issue can be in.
type IssueStatus struct {
	BaseModel

	Name     string `gorm:"uniqueIndex;not null" json:"name"`
	IsClosed bool   `json:"is_closed"`
	Position int    `gorm:"index" json:"position"`
}
