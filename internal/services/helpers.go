package services

import (
	"context"
	"strings"

	"github.com/charlesng35/issuetrail/internal/models"
)

// AuthzCache is the invalidation surface of the membership resolver.
type AuthzCache interface {
	InvalidateRole(roleID string)
	InvalidateMembership(ctx context.Context, userID, projectID string)
}

func normaliseIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func actorID(user *models.User) *string {
	if user == nil || user.ID == "" {
		return nil
	}
	id := user.ID
	return &id
}

func stringPtr(value string) *string {
	return &value
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
