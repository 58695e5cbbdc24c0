package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/issuetrail/internal/services"
	"github.com/charlesng35/issuetrail/pkg/response"
)

type WorkflowHandler struct {
	svc *services.WorkflowService
}

type createRuleRequest struct {
	RoleID      string `json:"role_id" validate:"required"`
	TrackerID   string `json:"tracker_id" validate:"required"`
	OldStatusID string `json:"old_status_id" validate:"required"`
	NewStatusID string `json:"new_status_id" validate:"required"`
	Author      bool   `json:"author"`
	Assignee    bool   `json:"assignee"`
}

type copyRulesRequest struct {
	SourceRoleID    string `json:"source_role_id" validate:"required"`
	SourceTrackerID string `json:"source_tracker_id" validate:"required"`
	TargetRoleID    string `json:"target_role_id" validate:"required"`
	TargetTrackerID string `json:"target_tracker_id" validate:"required"`
}

func NewWorkflowHandler(svc *services.WorkflowService) (*WorkflowHandler, error) {
	if svc == nil {
		return nil, errors.New("workflow handler: service is required")
	}
	return &WorkflowHandler{svc: svc}, nil
}

// GET /api/workflows?tracker_id=&role_id=&old_status_id=
func (h *WorkflowHandler) List(c *gin.Context) {
	rules, err := h.svc.ListRules(requestContext(c), services.RuleFilter{
		RoleID:      strings.TrimSpace(c.Query("role_id")),
		TrackerID:   strings.TrimSpace(c.Query("tracker_id")),
		OldStatusID: strings.TrimSpace(c.Query("old_status_id")),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, rules)
}

// POST /api/workflows
func (h *WorkflowHandler) Create(c *gin.Context) {
	var body createRuleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	rule, err := h.svc.CreateRule(requestContext(c), services.CreateRuleInput{
		RoleID:      strings.TrimSpace(body.RoleID),
		TrackerID:   strings.TrimSpace(body.TrackerID),
		OldStatusID: strings.TrimSpace(body.OldStatusID),
		NewStatusID: strings.TrimSpace(body.NewStatusID),
		Author:      body.Author,
		Assignee:    body.Assignee,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, rule)
}

// DELETE /api/workflows/:id
func (h *WorkflowHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteRule(requestContext(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/workflows/copy
func (h *WorkflowHandler) Copy(c *gin.Context) {
	var body copyRulesRequest
	if !bindAndValidate(c, &body) {
		return
	}

	copied, err := h.svc.CopyRules(requestContext(c), services.CopyRulesInput{
		SourceRoleID:    strings.TrimSpace(body.SourceRoleID),
		SourceTrackerID: strings.TrimSpace(body.SourceTrackerID),
		TargetRoleID:    strings.TrimSpace(body.TargetRoleID),
		TargetTrackerID: strings.TrimSpace(body.TargetTrackerID),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"copied": copied})
}
