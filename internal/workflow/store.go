package workflow

import (
	"context"

	"github.com/charlesng35/issuetrail/internal/models"
)

// Store is the persistence surface read by the Engine. Missing records are
// reported with an error matching apperrors.ErrNotFound.
type Store interface {
	Issue(ctx context.Context, id string) (*models.Issue, error)
	Tracker(ctx context.Context, id string) (*models.Tracker, error)
	Status(ctx context.Context, id string) (*models.IssueStatus, error)
	// Statuses returns every status ordered by position.
	Statuses(ctx context.Context) ([]models.IssueStatus, error)
	// RulesFor returns the rules for one (tracker, old, new) edge across all roles.
	RulesFor(ctx context.Context, trackerID, oldStatusID, newStatusID string) ([]models.WorkflowRule, error)
	// RulesFrom returns the out-edges of a state for the given roles. A nil
	// roleIDs slice means every role.
	RulesFrom(ctx context.Context, trackerID, oldStatusID string, roleIDs []string) ([]models.WorkflowRule, error)
}
