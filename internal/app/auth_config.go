package app

import (
	"strings"

	"github.com/charlesng35/issuetrail/internal/auth"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         strings.TrimSpace(c.JWT.Issuer),
		Audience:       strings.TrimSpace(c.JWT.Audience),
		AccessTokenTTL: ttl,
		Leeway:         c.JWT.Leeway,
	}
}

// AnonymousAccess reports whether anonymous callers may see public projects.
func (c AuthConfig) AnonymousAccess() bool {
	return !c.LoginRequired
}
