package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/issuetrail/internal/services"
	apperrors "github.com/charlesng35/issuetrail/pkg/errors"
	"github.com/charlesng35/issuetrail/pkg/response"
)

type MemberHandler struct {
	members  *services.MembershipService
	projects *services.ProjectService
}

type addMemberRequest struct {
	UserID           string   `json:"user_id" validate:"required"`
	RoleIDs          []string `json:"role_ids" validate:"required,min=1"`
	MailNotification *bool    `json:"mail_notification"`
}

type updateMemberRequest struct {
	RoleIDs          []string `json:"role_ids" validate:"omitempty,min=1"`
	MailNotification *bool    `json:"mail_notification"`
}

func NewMemberHandler(members *services.MembershipService, projects *services.ProjectService) (*MemberHandler, error) {
	if members == nil || projects == nil {
		return nil, errors.New("member handler: services are required")
	}
	return &MemberHandler{members: members, projects: projects}, nil
}

// GET /api/projects/:id/members
func (h *MemberHandler) List(c *gin.Context) {
	ctx := requestContext(c)
	project, err := h.projects.GetVisible(ctx, currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	members, err := h.members.List(ctx, project.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, members)
}

// POST /api/projects/:id/members
func (h *MemberHandler) Add(c *gin.Context) {
	var body addMemberRequest
	if !bindAndValidate(c, &body) {
		return
	}

	notify := true
	if body.MailNotification != nil {
		notify = *body.MailNotification
	}

	member, err := h.members.Add(requestContext(c), services.AddMemberInput{
		ProjectID:        c.Param("id"),
		UserID:           body.UserID,
		RoleIDs:          trimmedIDs(body.RoleIDs),
		MailNotification: notify,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, member)
}

// PUT /api/projects/:id/members/:userID
func (h *MemberHandler) Update(c *gin.Context) {
	var body updateMemberRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if body.RoleIDs == nil && body.MailNotification == nil {
		response.Error(c, apperrors.NewBadRequest("no fields provided for update"))
		return
	}

	ctx := requestContext(c)
	projectID, userID := c.Param("id"), c.Param("userID")

	if body.RoleIDs != nil {
		if _, err := h.members.SetRoles(ctx, projectID, userID, trimmedIDs(body.RoleIDs)); err != nil {
			respondError(c, err)
			return
		}
	}
	if body.MailNotification != nil {
		if err := h.members.SetMailNotification(ctx, projectID, userID, *body.MailNotification); err != nil {
			respondError(c, err)
			return
		}
	}

	member, err := h.members.Get(ctx, projectID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// DELETE /api/projects/:id/members/:userID
func (h *MemberHandler) Remove(c *gin.Context) {
	if err := h.members.Remove(requestContext(c), c.Param("id"), c.Param("userID")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
