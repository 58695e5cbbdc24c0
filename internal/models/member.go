package models

// Member links a user to a project and carries one or more roles.
type Member struct {
	BaseModel

	UserID    string `gorm:"type:uuid;not null;uniqueIndex:idx_members_user_project" json:"user_id"`
	ProjectID string `gorm:"type:uuid;not null;uniqueIndex:idx_members_user_project;index" json:"project_id"`

	MailNotification bool `json:"mail_notification"`

	User    *User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Project *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Roles   []Role   `gorm:"many2many:member_roles;joinForeignKey:MemberID;joinReferences:RoleID" json:"roles,omitempty"`
}

// MemberRole is the explicit join between memberships and roles.
type MemberRole struct {
	MemberID string `gorm:"primaryKey;type:uuid"`
	RoleID   string `gorm:"primaryKey;type:uuid;index"`
}

// TableName pins the join table name shared with the many2many tag.
func (MemberRole) TableName() string {
	return "member_roles"
}

// RoleIDs returns the identifiers of the loaded roles.
func (m *Member) RoleIDs() []string {
	ids := make([]string, 0, len(m.Roles))
	for _, role := range m.Roles {
		ids = append(ids, role.ID)
	}
	return ids
}
