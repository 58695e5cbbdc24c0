package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/issuetrail/internal/services"
	"github.com/charlesng35/issuetrail/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) (*AuditHandler, error) {
	if svc == nil {
		return nil, errors.New("audit handler: service is required")
	}
	return &AuditHandler{svc: svc}, nil
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	per := parseIntQuery(c, "per_page", 50)

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{
		Page:     page,
		PageSize: per,
		Filters:  auditFilters(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{Page: page, PerPage: per, Total: int(total)})
}

// GET /api/audit/export
func (h *AuditHandler) Export(c *gin.Context) {
	logs, err := h.svc.Export(requestContext(c), auditFilters(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, logs)
}

func auditFilters(c *gin.Context) services.AuditFilters {
	filters := services.AuditFilters{
		UserID:       c.Query("user_id"),
		ProjectID:    c.Query("project_id"),
		Action:       c.Query("action"),
		Result:       c.Query("result"),
		ResourceType: c.Query("resource_type"),
		Resource:     c.Query("resource"),
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		}
	}
	return filters
}
