package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/issuetrail/internal/middleware"
	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// respondError renders err through the response envelope. The error is also
// attached to the gin context so the access log records internal failures.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	response.Error(c, err)
}

// currentUser returns the authenticated user or nil for anonymous callers.
func currentUser(c *gin.Context) *models.User {
	return middleware.CurrentUser(c)
}
