package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/internal/permissions"
	"github.com/charlesng35/issuetrail/pkg/response"
)

// AuthzHandler lets callers ask what they may do.
type AuthzHandler struct {
	evaluator *permissions.Evaluator
}

type decisionPayload struct {
	Permission string `json:"permission"`
	ProjectID  string `json:"project_id,omitempty"`
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason"`
}

func NewAuthzHandler(evaluator *permissions.Evaluator) (*AuthzHandler, error) {
	if evaluator == nil {
		return nil, errors.New("authz handler: evaluator is required")
	}
	return &AuthzHandler{evaluator: evaluator}, nil
}

// GET /api/projects/:id/authz/roles
func (h *AuthzHandler) ProjectRoles(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.List(c, []models.Role{})
		return
	}

	roles, err := h.evaluator.Resolver().RolesOf(requestContext(c), user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, roles)
}

// GET /api/projects/:id/authz/permissions/:permission
func (h *AuthzHandler) ProjectPermission(c *gin.Context) {
	projectID, permission := c.Param("id"), c.Param("permission")

	decision, err := h.evaluator.Allowed(requestContext(c), currentUser(c), projectID, permission)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, decisionPayload{
		Permission: permission,
		ProjectID:  projectID,
		Allowed:    decision.Allowed,
		Reason:     decision.Reason,
	})
}

// GET /api/authz/permissions/:permission
func (h *AuthzHandler) GlobalPermission(c *gin.Context) {
	permission := c.Param("permission")

	decision, err := h.evaluator.AllowedGlobally(requestContext(c), currentUser(c), permission)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, decisionPayload{
		Permission: permission,
		Allowed:    decision.Allowed,
		Reason:     decision.Reason,
	})
}
