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

type ProjectHandler struct {
	svc *services.ProjectService
}

type createProjectRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Identifier  string  `json:"identifier" validate:"required,min=1,max=100"`
	Description string  `json:"description" validate:"omitempty,max=4096"`
	IsPublic    bool    `json:"is_public"`
	ParentID    *string `json:"parent_id"`
}

type setParentRequest struct {
	ParentID *string `json:"parent_id"`
}

type setProjectStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active closed archived"`
}

func NewProjectHandler(svc *services.ProjectService) (*ProjectHandler, error) {
	if svc == nil {
		return nil, errors.New("project handler: service is required")
	}
	return &ProjectHandler{svc: svc}, nil
}

// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.svc.List(requestContext(c), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, projects)
}

// GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.svc.GetVisible(requestContext(c), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, project)
}

// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var body createProjectRequest
	if !bindAndValidate(c, &body) {
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		response.Error(c, apperrors.NewBadRequest("name is required"))
		return
	}

	var parentID *string
	if body.ParentID != nil {
		if trimmed := strings.TrimSpace(*body.ParentID); trimmed != "" {
			parentID = &trimmed
		}
	}

	project, err := h.svc.Create(requestContext(c), services.CreateProjectInput{
		Name:        name,
		Identifier:  strings.TrimSpace(body.Identifier),
		Description: strings.TrimSpace(body.Description),
		IsPublic:    body.IsPublic,
		ParentID:    parentID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, project)
}

// PATCH /api/projects/:id/parent
func (h *ProjectHandler) SetParent(c *gin.Context) {
	var body setParentRequest
	if !bindAndValidate(c, &body) {
		return
	}

	parentID := ""
	if body.ParentID != nil {
		parentID = *body.ParentID
	}

	project, err := h.svc.SetParent(requestContext(c), c.Param("id"), parentID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, project)
}

// PATCH /api/projects/:id/status
func (h *ProjectHandler) SetStatus(c *gin.Context) {
	var body setProjectStatusRequest
	if !bindAndValidate(c, &body) {
		return
	}

	project, err := h.svc.SetStatus(requestContext(c), c.Param("id"), body.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, project)
}
