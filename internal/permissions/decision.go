package permissions

// Decision is the outcome of an authorization check. Denials always carry a reason.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Stable reasons surfaced to callers.
const (
	ReasonAdminOverride     = "admin override"
	ReasonNotMember         = "not a project member"
	ReasonAuthRequired      = "authentication required"
	ReasonRoleGrant         = "granted by role"
	ReasonProjectVisible    = "project visible"
	ReasonProjectNotVisible = "project not visible"
	ReasonProjectArchived   = "project archived"
	ReasonPublicProject     = "public project"
	ReasonProjectMember     = "project member"
	ReasonIssueVisible      = "issue visible"
	ReasonPrivateIssue      = "private issue"
	ReasonOwnIssuesOnly     = "role limited to own issues"
	ReasonOwnEntriesOnly    = "role limited to own time entries"
	ReasonTimeEntryVisible  = "time entry visible"
	ReasonContainerVisible  = "container visible"
)

// MissingPermission formats the denial reason for an absent permission.
func MissingPermission(name string) string {
	return "missing permission " + name
}

func allow(reason string) Decision {
	return Decision{Allowed: true, Reason: reason}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
