package models

// Journal property kinds.
const (
	JournalPropertyAttr = "attr"
)

// Journal records a note and/or a set of attribute changes on an issue.
type Journal struct {
	BaseModel

	IssueID      string `gorm:"type:uuid;not null;index" json:"issue_id"`
	UserID       string `gorm:"type:uuid;not null;index" json:"user_id"`
	Notes        string `gorm:"type:text" json:"notes"`
	PrivateNotes bool   `json:"private_notes"`

	Details []JournalDetail `gorm:"foreignKey:JournalID;constraint:OnDelete:CASCADE" json:"details,omitempty"`
}

// JournalDetail is a single attribute change recorded by a journal.
type JournalDetail struct {
	BaseModel

	JournalID string  `gorm:"type:uuid;not null;index" json:"journal_id"`
	Property  string  `gorm:"size:30;not null" json:"property"`
	PropKey   string  `gorm:"size:64;not null" json:"prop_key"`
	OldValue  *string `gorm:"type:text" json:"old_value"`
	Value     *string `gorm:"type:text" json:"value"`
}
