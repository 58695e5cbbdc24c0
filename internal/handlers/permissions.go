package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/issuetrail/internal/permissions"
	"github.com/charlesng35/issuetrail/pkg/response"
)

// PermissionRegistry serves the permission catalog.
// GET /api/permissions/registry
func PermissionRegistry(c *gin.Context) {
	module := c.Query("module")
	if module != "" {
		response.Success(c, http.StatusOK, permissions.GetByModule(module))
		return
	}
	response.Success(c, http.StatusOK, permissions.Catalog())
}
