package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/models"
)

// Audit outcomes.
const (
	AuditResultSuccess = "success"
	AuditResultFailure = "failure"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// AuditEntry is one change to record. ResourceType is one of the
// models.AuditResource kinds and Resource the affected record's id.
type AuditEntry struct {
	UserID       *string
	Username     string
	Action       string
	ResourceType string
	Resource     string
	ProjectID    string
	Result       string
	IPAddress    string
	UserAgent    string
	Metadata     map[string]any
}

// AuditFilters narrows audit queries. Empty fields match everything.
type AuditFilters struct {
	UserID       string
	ProjectID    string
	Action       string
	Result       string
	ResourceType string
	Resource     string
	Since        *time.Time
	Until        *time.Time
}

type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditOption customises an AuditService.
type AuditOption func(*AuditService)

// WithAuditClock overrides the clock used for retention cutoffs.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(s *AuditService) {
		if now != nil {
			s.now = now
		}
	}
}

// AuditService persists and queries the change history of the authorization
// model and of issue transitions.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAuditService(db *gorm.DB, opts ...AuditOption) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	svc := &AuditService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Log stores an entry. Action and Result are required.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return errors.New("audit service: action is required")
	}
	result := strings.TrimSpace(entry.Result)
	if result == "" {
		return errors.New("audit service: result is required")
	}

	var payload datatypes.JSON
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		payload = datatypes.JSON(encoded)
	}

	log := models.AuditLog{
		UserID:       trimmedPtr(entry.UserID),
		Username:     strings.TrimSpace(entry.Username),
		Action:       action,
		ResourceType: strings.TrimSpace(entry.ResourceType),
		Resource:     strings.TrimSpace(entry.Resource),
		Result:       result,
		IPAddress:    strings.TrimSpace(entry.IPAddress),
		UserAgent:    strings.TrimSpace(entry.UserAgent),
		Metadata:     payload,
	}
	if projectID := strings.TrimSpace(entry.ProjectID); projectID != "" {
		log.ProjectID = &projectID
	}

	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		return fmt.Errorf("audit service: create log: %w", err)
	}
	return nil
}

// List returns one page of matching entries, newest first, with the total count.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > maxAuditPageSize {
		perPage = defaultAuditPageSize
	}

	query := applyAuditFilters(s.db.WithContext(ctx).Model(&models.AuditLog{}), opts.Filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	var logs []models.AuditLog
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}
	return logs, total, nil
}

// Export returns every matching entry, newest first.
func (s *AuditService) Export(ctx context.Context, filters AuditFilters) ([]models.AuditLog, error) {
	ctx = ensureContext(ctx)

	var logs []models.AuditLog
	if err := applyAuditFilters(s.db.WithContext(ctx).Model(&models.AuditLog{}), filters).
		Order("created_at DESC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("audit service: export logs: %w", err)
	}
	return logs, nil
}

// CleanupOlderThan deletes entries older than retentionDays and reports how many went.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	conditions := []struct {
		column string
		value  string
	}{
		{"user_id", filters.UserID},
		{"project_id", filters.ProjectID},
		{"action", filters.Action},
		{"result", filters.Result},
		{"resource_type", filters.ResourceType},
		{"resource", filters.Resource},
	}
	for _, cond := range conditions {
		if value := strings.TrimSpace(cond.value); value != "" {
			query = query.Where(cond.column+" = ?", value)
		}
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
