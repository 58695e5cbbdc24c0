package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/charlesng35/issuetrail/internal/cache"
	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/pkg/logger"
	"github.com/charlesng35/issuetrail/pkg/metrics"
)

const (
	defaultMembershipTTL = 5 * time.Minute
	defaultRoleCacheSize = 256
	defaultRoleTTL       = 5 * time.Minute
	membershipKeyPrefix  = "membership:"
)

// MembershipView is what the resolver knows about one (user, project) pair.
type MembershipView struct {
	Member  bool     `json:"member"`
	RoleIDs []string `json:"role_ids"`
}

// Resolver answers which roles a user holds in a project. Membership lookups
// are cached in the shared cache.Store and role records in a local LRU.
type Resolver struct {
	store         MembershipStore
	cache         cache.Store
	membershipTTL time.Duration
	roles         *expirable.LRU[string, models.Role]
	group         singleflight.Group
	log           *zap.Logger
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithMembershipCache enables the shared membership cache.
func WithMembershipCache(store cache.Store, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache = store
		if ttl > 0 {
			r.membershipTTL = ttl
		}
	}
}

// WithRoleCache sizes the in-process role cache.
func WithRoleCache(size int, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if size <= 0 {
			size = defaultRoleCacheSize
		}
		if ttl <= 0 {
			ttl = defaultRoleTTL
		}
		r.roles = expirable.NewLRU[string, models.Role](size, nil, ttl)
	}
}

// WithResolverLogger overrides the resolver logger.
func WithResolverLogger(log *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// NewResolver constructs a Resolver backed by store.
func NewResolver(store MembershipStore, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("membership resolver: store is required")
	}

	r := &Resolver{
		store:         store,
		membershipTTL: defaultMembershipTTL,
		log:           logger.WithModule("permissions"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.roles == nil {
		r.roles = expirable.NewLRU[string, models.Role](defaultRoleCacheSize, nil, defaultRoleTTL)
	}
	return r, nil
}

// Membership returns whether the user belongs to the project and which roles it carries.
func (r *Resolver) Membership(ctx context.Context, userID, projectID string) (MembershipView, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	projectID = strings.TrimSpace(projectID)
	if userID == "" || projectID == "" {
		return MembershipView{}, nil
	}

	key := membershipKey(userID, projectID)
	if view, ok := r.cachedMembership(ctx, key); ok {
		return view, nil
	}

	value, err, _ := r.group.Do(key, func() (any, error) {
		roleIDs, member, err := r.store.MembershipRoleIDs(ctx, userID, projectID)
		if err != nil {
			return MembershipView{}, err
		}
		view := MembershipView{Member: member, RoleIDs: normaliseRoleIDs(roleIDs)}
		r.rememberMembership(ctx, key, view)
		return view, nil
	})
	if err != nil {
		return MembershipView{}, fmt.Errorf("membership resolver: load membership: %w", err)
	}
	return value.(MembershipView), nil
}

// RoleIDsInProject returns the identifiers of the roles userID holds in projectID.
func (r *Resolver) RoleIDsInProject(ctx context.Context, userID, projectID string) ([]string, error) {
	view, err := r.Membership(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), view.RoleIDs...), nil
}

// RolesOf returns the roles userID holds in projectID ordered by position.
// A user without membership yields an empty result.
func (r *Resolver) RolesOf(ctx context.Context, userID, projectID string) ([]models.Role, error) {
	view, err := r.Membership(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return r.Roles(ctx, view.RoleIDs)
}

// RolesAcrossProjects returns every role the user holds through any membership.
func (r *Resolver) RolesAcrossProjects(ctx context.Context, userID string) ([]models.Role, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}

	ids, err := r.store.UserRoleIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("membership resolver: load user roles: %w", err)
	}
	return r.Roles(ctx, normaliseRoleIDs(ids))
}

// Roles loads roles by id through the LRU. Unknown ids are skipped.
func (r *Resolver) Roles(ctx context.Context, ids []string) ([]models.Role, error) {
	if len(ids) == 0 {
		return []models.Role{}, nil
	}

	roles := make([]models.Role, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if role, ok := r.roles.Get(id); ok {
			metrics.CacheLookups.WithLabelValues("role", "hit").Inc()
			roles = append(roles, cloneRole(role))
			continue
		}
		metrics.CacheLookups.WithLabelValues("role", "miss").Inc()
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		key := "roles:" + strings.Join(missing, ",")
		value, err, _ := r.group.Do(key, func() (any, error) {
			return r.store.RolesByID(ensureContext(ctx), missing)
		})
		if err != nil {
			return nil, fmt.Errorf("membership resolver: load roles: %w", err)
		}
		for _, role := range value.([]models.Role) {
			r.roles.Add(role.ID, cloneRole(role))
			roles = append(roles, cloneRole(role))
		}
	}

	sortRoles(roles)
	return roles, nil
}

// InvalidateMembership drops the cached view for one (user, project) pair.
func (r *Resolver) InvalidateMembership(ctx context.Context, userID, projectID string) {
	if r.cache == nil {
		return
	}
	key := membershipKey(userID, projectID)
	if err := r.cache.Delete(ensureContext(ctx), key); err != nil {
		r.log.Warn("failed to invalidate membership cache", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateRole drops a role from the local cache.
func (r *Resolver) InvalidateRole(roleID string) {
	r.roles.Remove(roleID)
}

// InvalidateAllRoles empties the local role cache.
func (r *Resolver) InvalidateAllRoles() {
	r.roles.Purge()
}

func (r *Resolver) cachedMembership(ctx context.Context, key string) (MembershipView, bool) {
	if r.cache == nil {
		return MembershipView{}, false
	}

	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("membership", "error").Inc()
		r.log.Warn("membership cache read failed", zap.String("key", key), zap.Error(err))
		return MembershipView{}, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("membership", "miss").Inc()
		return MembershipView{}, false
	}

	var view MembershipView
	if err := json.Unmarshal(raw, &view); err != nil {
		metrics.CacheLookups.WithLabelValues("membership", "error").Inc()
		r.log.Warn("discarding corrupt membership cache entry", zap.String("key", key), zap.Error(err))
		return MembershipView{}, false
	}
	metrics.CacheLookups.WithLabelValues("membership", "hit").Inc()
	return view, true
}

func (r *Resolver) rememberMembership(ctx context.Context, key string, view MembershipView) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, raw, r.membershipTTL); err != nil {
		r.log.Warn("membership cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func membershipKey(userID, projectID string) string {
	return membershipKeyPrefix + userID + ":" + projectID
}

func normaliseRoleIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneRole(role models.Role) models.Role {
	role.Permissions = role.Permissions.Clone()
	return role
}

func sortRoles(roles []models.Role) {
	sort.SliceStable(roles, func(i, j int) bool {
		if roles[i].Position != roles[j].Position {
			return roles[i].Position < roles[j].Position
		}
		return roles[i].ID < roles[j].ID
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
