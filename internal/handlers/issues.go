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

type IssueHandler struct {
	svc *services.IssueService
}

type createIssueRequest struct {
	TrackerID    string  `json:"tracker_id" validate:"required"`
	Subject      string  `json:"subject" validate:"required,max=255"`
	Description  string  `json:"description"`
	IsPrivate    bool    `json:"is_private"`
	AssignedToID *string `json:"assigned_to_id"`
}

type changeStatusRequest struct {
	StatusID         string `json:"status_id" validate:"required"`
	ExpectedStatusID string `json:"expected_status_id"`
	Notes            string `json:"notes"`
	PrivateNotes     bool   `json:"private_notes"`
}

type addNoteRequest struct {
	Notes        string `json:"notes" validate:"required"`
	PrivateNotes bool   `json:"private_notes"`
}

type setPrivateRequest struct {
	IsPrivate *bool `json:"is_private" validate:"required"`
}

type assignRequest struct {
	AssignedToID *string `json:"assigned_to_id"`
}

type transitionPayload struct {
	StatusID string `json:"status_id"`
	Allowed  bool   `json:"allowed"`
	Reason   string `json:"reason"`
}

func NewIssueHandler(svc *services.IssueService) (*IssueHandler, error) {
	if svc == nil {
		return nil, errors.New("issue handler: service is required")
	}
	return &IssueHandler{svc: svc}, nil
}

// GET /api/projects/:id/issues
func (h *IssueHandler) ListForProject(c *gin.Context) {
	issues, err := h.svc.ListForProject(requestContext(c), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, issues)
}

// POST /api/projects/:id/issues
func (h *IssueHandler) Create(c *gin.Context) {
	var body createIssueRequest
	if !bindAndValidate(c, &body) {
		return
	}

	var assignee *string
	if body.AssignedToID != nil {
		if trimmed := strings.TrimSpace(*body.AssignedToID); trimmed != "" {
			assignee = &trimmed
		}
	}

	issue, err := h.svc.Create(requestContext(c), currentUser(c), services.CreateIssueInput{
		ProjectID:    c.Param("id"),
		TrackerID:    strings.TrimSpace(body.TrackerID),
		Subject:      strings.TrimSpace(body.Subject),
		Description:  body.Description,
		IsPrivate:    body.IsPrivate,
		AssignedToID: assignee,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, issue)
}

// GET /api/issues/:id
func (h *IssueHandler) Get(c *gin.Context) {
	issue, err := h.svc.Get(requestContext(c), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, issue)
}

// GET /api/issues/:id/journals
func (h *IssueHandler) Journals(c *gin.Context) {
	journals, err := h.svc.Journals(requestContext(c), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, journals)
}

// POST /api/issues/:id/journals
func (h *IssueHandler) AddNote(c *gin.Context) {
	var body addNoteRequest
	if !bindAndValidate(c, &body) {
		return
	}

	journal, err := h.svc.AddNote(requestContext(c), currentUser(c), services.AddNoteInput{
		IssueID:      c.Param("id"),
		Notes:        body.Notes,
		PrivateNotes: body.PrivateNotes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, journal)
}

// GET /api/issues/:id/transitions
func (h *IssueHandler) Transitions(c *gin.Context) {
	statuses, err := h.svc.AllowedStatuses(requestContext(c), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, statuses)
}

// GET /api/issues/:id/transitions/:statusID
func (h *IssueHandler) Transition(c *gin.Context) {
	statusID := c.Param("statusID")
	decision, err := h.svc.CanTransition(requestContext(c), currentUser(c), c.Param("id"), statusID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, transitionPayload{
		StatusID: statusID,
		Allowed:  decision.Allowed,
		Reason:   decision.Reason,
	})
}

// POST /api/issues/:id/status
func (h *IssueHandler) ChangeStatus(c *gin.Context) {
	var body changeStatusRequest
	if !bindAndValidate(c, &body) {
		return
	}

	issue, err := h.svc.ChangeStatus(requestContext(c), currentUser(c), services.ChangeStatusInput{
		IssueID:          c.Param("id"),
		StatusID:         strings.TrimSpace(body.StatusID),
		ExpectedStatusID: strings.TrimSpace(body.ExpectedStatusID),
		Notes:            body.Notes,
		PrivateNotes:     body.PrivateNotes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, issue)
}

// PATCH /api/issues/:id/private
func (h *IssueHandler) SetPrivate(c *gin.Context) {
	var body setPrivateRequest
	if !bindAndValidate(c, &body) {
		return
	}

	issue, err := h.svc.SetPrivate(requestContext(c), currentUser(c), c.Param("id"), *body.IsPrivate)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, issue)
}

// PATCH /api/issues/:id/assignee
func (h *IssueHandler) Assign(c *gin.Context) {
	var body assignRequest
	if !bindAndValidate(c, &body) {
		return
	}

	var assignee *string
	if body.AssignedToID != nil {
		trimmed := strings.TrimSpace(*body.AssignedToID)
		if trimmed == "" {
			response.Error(c, apperrors.NewBadRequest("assigned_to_id must not be empty; send null to unassign"))
			return
		}
		assignee = &trimmed
	}

	issue, err := h.svc.Assign(requestContext(c), currentUser(c), c.Param("id"), assignee)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, issue)
}
