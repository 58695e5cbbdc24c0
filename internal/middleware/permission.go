package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/issuetrail/internal/permissions"
	"github.com/charlesng35/issuetrail/pkg/errors"
	"github.com/charlesng35/issuetrail/pkg/logger"
	"github.com/charlesng35/issuetrail/pkg/response"
)

// RequireProjectPermission checks permission in the project named by the
// route parameter param.
func RequireProjectPermission(evaluator *permissions.Evaluator, param, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		decision, err := evaluator.Allowed(c.Request.Context(), user, c.Param(param), permission)
		abortUnlessAllowed(c, user != nil, decision, err)
	}
}

// RequireGlobalPermission checks that any role the user holds grants permission.
func RequireGlobalPermission(evaluator *permissions.Evaluator, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		decision, err := evaluator.AllowedGlobally(c.Request.Context(), user, permission)
		abortUnlessAllowed(c, user != nil, decision, err)
	}
}

// RequireAdmin only lets administrators through.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		switch {
		case user == nil:
			response.Abort(c, errors.ErrUnauthorized)
		case !user.IsAdmin:
			response.Abort(c, errors.NewForbidden("administrator required"))
		default:
			c.Next()
		}
	}
}

func abortUnlessAllowed(c *gin.Context, authenticated bool, decision permissions.Decision, err error) {
	if err != nil {
		if errors.IsInvalidArgument(err) || errors.IsNotFound(err) {
			response.Abort(c, err)
			return
		}
		logger.WithModule("http").Error("permission check failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.Abort(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	if !decision.Allowed {
		if !authenticated {
			response.Abort(c, errors.ErrUnauthorized.WithMessage(decision.Reason))
			return
		}
		response.Abort(c, errors.NewForbidden(decision.Reason))
		return
	}
	c.Next()
}
