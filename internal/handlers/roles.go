package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/issuetrail/internal/services"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
	"github.com/charlesng35/issuetrail/pkg/response"
)

type RoleHandler struct {
	svc *services.RoleService
}

type createRoleRequest struct {
	Name                  string   `json:"name" validate:"required,min=1,max=128"`
	Assignable            *bool    `json:"assignable"`
	Position              int      `json:"position" validate:"gte=0"`
	Permissions           []string `json:"permissions"`
	IssuesVisibility      string   `json:"issues_visibility" validate:"omitempty,oneof=all default own"`
	UsersVisibility       string   `json:"users_visibility" validate:"omitempty,oneof=all members_of_visible_projects"`
	TimeEntriesVisibility string   `json:"time_entries_visibility" validate:"omitempty,oneof=all own"`
}

type updateRoleRequest struct {
	Name                  *string `json:"name" validate:"omitempty,min=1,max=128"`
	Assignable            *bool   `json:"assignable"`
	Position              *int    `json:"position" validate:"omitempty,gte=0"`
	IssuesVisibility      *string `json:"issues_visibility" validate:"omitempty,oneof=all default own"`
	UsersVisibility       *string `json:"users_visibility" validate:"omitempty,oneof=all members_of_visible_projects"`
	TimeEntriesVisibility *string `json:"time_entries_visibility" validate:"omitempty,oneof=all own"`
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func NewRoleHandler(svc *services.RoleService) (*RoleHandler, error) {
	if svc == nil {
		return nil, errors.New("role handler: service is required")
	}
	return &RoleHandler{svc: svc}, nil
}

// GET /api/roles
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.svc.List(requestContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, roles)
}

// GET /api/roles/:id
func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// POST /api/roles
func (h *RoleHandler) Create(c *gin.Context) {
	var body createRoleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		response.Error(c, apperrors.NewBadRequest("name is required"))
		return
	}

	assignable := true
	if body.Assignable != nil {
		assignable = *body.Assignable
	}

	role, err := h.svc.Create(requestContext(c), services.CreateRoleInput{
		Name:                  name,
		Assignable:            assignable,
		Position:              body.Position,
		Permissions:           body.Permissions,
		IssuesVisibility:      body.IssuesVisibility,
		UsersVisibility:       body.UsersVisibility,
		TimeEntriesVisibility: body.TimeEntriesVisibility,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, role)
}

// PATCH /api/roles/:id
func (h *RoleHandler) Update(c *gin.Context) {
	var body updateRoleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if body.Name == nil && body.Assignable == nil && body.Position == nil &&
		body.IssuesVisibility == nil && body.UsersVisibility == nil && body.TimeEntriesVisibility == nil {
		response.Error(c, apperrors.NewBadRequest("no fields provided for update"))
		return
	}

	var namePtr *string
	if body.Name != nil {
		trimmed := strings.TrimSpace(*body.Name)
		if trimmed == "" {
			response.Error(c, apperrors.NewBadRequest("name must not be empty"))
			return
		}
		namePtr = &trimmed
	}

	role, err := h.svc.Update(requestContext(c), c.Param("id"), services.UpdateRoleInput{
		Name:                  namePtr,
		Assignable:            body.Assignable,
		Position:              body.Position,
		IssuesVisibility:      body.IssuesVisibility,
		UsersVisibility:       body.UsersVisibility,
		TimeEntriesVisibility: body.TimeEntriesVisibility,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// DELETE /api/roles/:id
func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/roles/:id/permissions
func (h *RoleHandler) GetPermissions(c *gin.Context) {
	names, err := h.svc.GetPermissions(requestContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, names)
}

// PUT /api/roles/:id/permissions
func (h *RoleHandler) SetPermissions(c *gin.Context) {
	var body setPermissionsRequest
	if !bindAndValidate(c, &body) {
		return
	}

	role, err := h.svc.SetPermissions(requestContext(c), c.Param("id"), body.Permissions)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}
