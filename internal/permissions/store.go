package permissions

import (
	"context"

	"github.com/charlesng35/issuetrail/internal/models"
)

// MembershipStore is the persistence surface read by the Resolver.
type MembershipStore interface {
	// MembershipRoleIDs reports whether userID is a member of projectID and
	// the roles that membership carries.
	MembershipRoleIDs(ctx context.Context, userID, projectID string) (roleIDs []string, member bool, err error)
	// UserRoleIDs returns the distinct roles held through any of the user's memberships.
	UserRoleIDs(ctx context.Context, userID string) ([]string, error)
	RolesByID(ctx context.Context, ids []string) ([]models.Role, error)
}

// ContentStore loads the records whose visibility the Policy decides. Missing
// records are reported with an error matching apperrors.ErrNotFound.
type ContentStore interface {
	Project(ctx context.Context, id string) (*models.Project, error)
	Issue(ctx context.Context, id string) (*models.Issue, error)
	Document(ctx context.Context, id string) (*models.Document, error)
	WikiPage(ctx context.Context, id string) (*models.WikiPage, error)
}
