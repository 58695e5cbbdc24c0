package models

// Builtin role kinds. Zero marks a custom role.
const (
	BuiltinNone      = 0
	BuiltinNonMember = 1
	BuiltinAnonymous = 2
)

// Issue visibility scopes.
const (
	IssuesVisibilityAll     = "all"
	IssuesVisibilityDefault = "default"
	IssuesVisibilityOwn     = "own"
)

// User visibility scopes.
const (
	UsersVisibilityAll                      = "all"
	UsersVisibilityMembersOfVisibleProjects = "members_of_visible_projects"
)

// Time entry visibility scopes.
const (
	TimeEntriesVisibilityAll = "all"
	TimeEntriesVisibilityOwn = "own"
)

// Role is a named, ordered bundle of permissions assignable to memberships.
type Role struct {
	BaseModel

	Name        string        `gorm:"uniqueIndex;not null" json:"name"`
	Builtin     int           `gorm:"not null;default:0" json:"builtin"`
	Assignable  bool          `json:"assignable"`
	Position    int           `gorm:"index" json:"position"`
	Permissions PermissionSet `gorm:"type:text" json:"permissions"`

	IssuesVisibility      string `gorm:"size:30;not null" json:"issues_visibility"`
	UsersVisibility       string `gorm:"size:30;not null" json:"users_visibility"`
	TimeEntriesVisibility string `gorm:"size:30;not null" json:"time_entries_visibility"`
}

// IsBuiltin reports whether the role is system-defined and therefore immutable.
func (r *Role) IsBuiltin() bool {
	return r != nil && r.Builtin > BuiltinNone
}

// HasPermission is an exact, case-sensitive membership test.
func (r *Role) HasPermission(name string) bool {
	if r == nil {
		return false
	}
	return r.Permissions.Has(name)
}

// ApplyVisibilityDefaults fills unset scopes with their defaults.
func (r *Role) ApplyVisibilityDefaults() {
	if r.IssuesVisibility == "" {
		r.IssuesVisibility = IssuesVisibilityDefault
	}
	if r.UsersVisibility == "" {
		r.UsersVisibility = UsersVisibilityAll
	}
	if r.TimeEntriesVisibility == "" {
		r.TimeEntriesVisibility = TimeEntriesVisibilityAll
	}
	if r.Permissions == nil {
		r.Permissions = PermissionSet{}
	}
}

// ValidIssuesVisibility reports whether value is a known issue visibility scope.
func ValidIssuesVisibility(value string) bool {
	switch value {
	case IssuesVisibilityAll, IssuesVisibilityDefault, IssuesVisibilityOwn:
		return true
	}
	return false
}

// ValidUsersVisibility reports whether value is a known user visibility scope.
func ValidUsersVisibility(value string) bool {
	switch value {
	case UsersVisibilityAll, UsersVisibilityMembersOfVisibleProjects:
		return true
	}
	return false
}

// ValidTimeEntriesVisibility reports whether value is a known time entry visibility scope.
func ValidTimeEntriesVisibility(value string) bool {
	switch value {
	case TimeEntriesVisibilityAll, TimeEntriesVisibilityOwn:
		return true
	}
	return false
}
