package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
)

var (
	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = apperrors.New("ROLE_NOT_FOUND", "Role not found", http.StatusNotFound)
	// ErrProjectNotFound indicates the requested project does not exist.
	ErrProjectNotFound = apperrors.New("PROJECT_NOT_FOUND", "Project not found", http.StatusNotFound)
	// ErrMemberNotFound indicates the requested membership does not exist.
	ErrMemberNotFound = apperrors.New("MEMBER_NOT_FOUND", "Membership not found", http.StatusNotFound)
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrIssueNotFound indicates the requested issue does not exist.
	ErrIssueNotFound = apperrors.New("ISSUE_NOT_FOUND", "Issue not found", http.StatusNotFound)
	// ErrTrackerNotFound indicates the referenced tracker does not exist.
	ErrTrackerNotFound = apperrors.New("TRACKER_NOT_FOUND", "Tracker not found", http.StatusNotFound)
	// ErrStatusNotFound indicates the referenced issue status does not exist.
	ErrStatusNotFound = apperrors.New("STATUS_NOT_FOUND", "Issue status not found", http.StatusNotFound)
	// ErrRuleNotFound indicates the requested workflow rule does not exist.
	ErrRuleNotFound = apperrors.New("WORKFLOW_RULE_NOT_FOUND", "Workflow rule not found", http.StatusNotFound)

	// ErrRoleExists rejects a second role with the same name.
	ErrRoleExists = apperrors.New("ROLE_EXISTS", "Role name already exists", http.StatusConflict)
	// ErrRoleInUse prevents deleting a role still attached to memberships.
	ErrRoleInUse = apperrors.New("ROLE_IN_USE", "Role is assigned to members", http.StatusConflict)
	// ErrProjectExists rejects a duplicate project identifier.
	ErrProjectExists = apperrors.New("PROJECT_EXISTS", "Project identifier already exists", http.StatusConflict)
	// ErrMemberExists rejects a second membership for the same user and project.
	ErrMemberExists = apperrors.New("MEMBER_EXISTS", "User is already a member of this project", http.StatusConflict)
	// ErrRuleExists rejects a duplicate (role, tracker, old, new) workflow rule.
	ErrRuleExists = apperrors.New("WORKFLOW_RULE_EXISTS", "Workflow rule already exists", http.StatusConflict)
	// ErrStatusConflict reports a status change lost to a concurrent writer.
	ErrStatusConflict = apperrors.New("STATUS_CONFLICT", "Issue status was changed concurrently", http.StatusConflict)

	// ErrProjectReadOnly rejects writes to closed or archived projects.
	ErrProjectReadOnly = apperrors.New("PROJECT_READ_ONLY", "Project is not active", http.StatusForbidden)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate")
}
