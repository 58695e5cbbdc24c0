package models

// Project lifecycle states.
const (
	ProjectStatusActive   = "active"
	ProjectStatusClosed   = "closed"
	ProjectStatusArchived = "archived"
)

// Project is the container that scopes memberships and issues.
type Project struct {
	BaseModel

	Name        string  `gorm:"not null" json:"name"`
	Identifier  string  `gorm:"uniqueIndex;not null" json:"identifier"`
	Description string  `gorm:"type:text" json:"description"`
	IsPublic    bool    `json:"is_public"`
	Status      string  `gorm:"size:16;not null;index" json:"status"`
	ParentID    *string `gorm:"type:uuid;index" json:"parent_id,omitempty"`

	Parent *Project `gorm:"foreignKey:ParentID" json:"-"`
}

// IsArchived reports whether the project has been archived.
func (p *Project) IsArchived() bool {
	return p != nil && p.Status == ProjectStatusArchived
}

// IsActive reports whether the project accepts changes.
func (p *Project) IsActive() bool {
	return p != nil && p.Status == ProjectStatusActive
}

// ValidProjectStatus reports whether status is a known lifecycle state.
func ValidProjectStatus(status string) bool {
	switch status {
	case ProjectStatusActive, ProjectStatusClosed, ProjectStatusArchived:
		return true
	}
	return false
}
