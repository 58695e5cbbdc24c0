package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/issuetrail/internal/auditctx"
	iauth "github.com/charlesng35/issuetrail/internal/auth"
	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/pkg/errors"
	"github.com/charlesng35/issuetrail/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxUserKey   = "currentUser"
)

// Auth requires a valid bearer token naming an unlocked user.
func Auth(authn *iauth.Authenticator) gin.HandlerFunc {
	return authenticate(authn, true)
}

// OptionalAuth authenticates when a bearer token is present and otherwise
// lets the request through as anonymous. A token that is present but
// invalid is still rejected.
func OptionalAuth(authn *iauth.Authenticator) gin.HandlerFunc {
	return authenticate(authn, false)
}

func authenticate(authn *iauth.Authenticator, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" && !required {
			c.Next()
			return
		}
		if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrUnauthorized)
			return
		}

		user, claims, err := authn.Authenticate(c.Request.Context(), header[7:])
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			if errors.IsUnauthorized(err) {
				response.Abort(c, err)
			} else {
				response.Abort(c, errors.ErrInternalServer.WithInternal(err))
			}
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, user.ID)
		c.Set(CtxUserKey, user)
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			UserID:    user.ID,
			Login:     user.Login,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}))

		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil for anonymous requests.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// RequireUser rejects anonymous requests. It runs after OptionalAuth, which
// has already validated any token that was presented.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrUnauthorized)
			return
		}
		c.Next()
	}
}
