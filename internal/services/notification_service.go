package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/internal/permissions"
	"github.com/charlesng35/issuetrail/pkg/logger"
	"github.com/charlesng35/issuetrail/pkg/mail"
)

var _ IssueNotifier = (*NotificationService)(nil)

// NotificationService emails project members about issue status changes.
// Delivery is best effort: failures are logged and never surface to the
// caller that changed the issue.
type NotificationService struct {
	db     *gorm.DB
	policy *permissions.Policy
	mailer mail.Mailer
	log    *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB, policy *permissions.Policy, mailer mail.Mailer) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	if policy == nil {
		return nil, errors.New("notification service: policy is required")
	}
	if mailer == nil {
		return nil, errors.New("notification service: mailer is required")
	}
	return &NotificationService{db: db, policy: policy, mailer: mailer, log: logger.WithModule("notify")}, nil
}

// IssueStatusChanged notifies every opted-in member who can see the issue.
func (s *NotificationService) IssueStatusChanged(ctx context.Context, actor *models.User, issue *models.Issue, from, to models.IssueStatus) {
	ctx = ensureContext(ctx)
	if issue == nil {
		return
	}

	recipients, err := s.Recipients(ctx, actor, issue)
	if err != nil {
		s.log.Warn("resolve notification recipients", zap.String("issue_id", issue.ID), zap.Error(err))
		return
	}

	subject := fmt.Sprintf("[%s] Issue #%s (%s) %s", s.projectLabel(ctx, issue.ProjectID), issue.ID, to.Name, issue.Subject)
	body := fmt.Sprintf("Issue %q was updated by %s.\n\nStatus changed from %s to %s.\n",
		issue.Subject, actor.Name(), from.Name, to.Name)

	for _, user := range recipients {
		msg := mail.Message{To: []string{user.Email}, Subject: subject, Body: body}
		if err := s.mailer.Send(ctx, msg); err != nil {
			s.log.Warn("send status notification",
				zap.String("issue_id", issue.ID),
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}
}

// Recipients lists members of the issue's project with notifications enabled
// who can see the issue, excluding the actor and locked or mailless accounts.
func (s *NotificationService) Recipients(ctx context.Context, actor *models.User, issue *models.Issue) ([]models.User, error) {
	ctx = ensureContext(ctx)

	var members []models.Member
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("project_id = ? AND mail_notification = ?", issue.ProjectID, true).
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("notification service: load members: %w", err)
	}

	var out []models.User
	for _, member := range members {
		user := member.User
		if user == nil || user.Locked || strings.TrimSpace(user.Email) == "" {
			continue
		}
		if actor != nil && user.ID == actor.ID {
			continue
		}
		decision, err := s.policy.IssueVisible(ctx, user, issue)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			continue
		}
		out = append(out, *user)
	}
	return out, nil
}

func (s *NotificationService) projectLabel(ctx context.Context, projectID string) string {
	project, err := loadProject(s.db.WithContext(ctx), projectID)
	if err != nil {
		return projectID
	}
	return project.Name
}
