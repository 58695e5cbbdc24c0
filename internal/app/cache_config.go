package app

import (
	"strings"

	"github.com/charlesng35/issuetrail/internal/cache"
	"github.com/charlesng35/issuetrail/internal/permissions"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
		Prefix:   strings.TrimSpace(c.Redis.Prefix),
	}
}

// ResolverOptions translates the authz section into resolver options.
// shared may be nil, in which case membership lookups are not cached.
func (c AuthzConfig) ResolverOptions(shared cache.Store) []permissions.ResolverOption {
	opts := []permissions.ResolverOption{
		permissions.WithRoleCache(c.RoleCacheSize, c.RoleCacheTTL),
	}
	if shared != nil {
		opts = append(opts, permissions.WithMembershipCache(shared, c.MembershipCacheTTL))
	}
	return opts
}
