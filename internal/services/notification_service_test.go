package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/issuetrail/internal/models"
	"github.com/charlesng35/issuetrail/pkg/mail"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *recordingMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, msg := range m.sent {
		out = append(out, msg.To...)
	}
	return out
}

func TestNotificationServiceRecipients(t *testing.T) {
	f := newIssueFixture(t)
	ctx := context.Background()
	mailer := &recordingMailer{}
	svc, err := NewNotificationService(f.db, f.policy, mailer)
	require.NoError(t, err)

	watcher := mustCreateUser(t, f.db, "watcher")
	mustAddMember(t, f.db, watcher, f.project, f.reporterRole)
	locked := mustCreateUser(t, f.db, "locked")
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", locked.ID).Update("locked", true).Error)
	mustAddMember(t, f.db, locked, f.project, f.devRole)
	muted := mustCreateUser(t, f.db, "muted")
	member := mustAddMember(t, f.db, muted, f.project, f.devRole)
	require.NoError(t, f.db.Model(&models.Member{}).Where("id = ?", member.ID).Update("mail_notification", false).Error)

	private := f.createIssue(t, f.dev, true)
	svc.IssueStatusChanged(ctx, &f.dev, private, f.newSt, f.progress)
	require.Empty(t, mailer.recipients(), "reporters cannot see the private issue and the actor is skipped")

	public := f.createIssue(t, f.dev, false)
	svc.IssueStatusChanged(ctx, &f.dev, public, f.newSt, f.progress)
	require.ElementsMatch(t, []string{"reporter@example.com", "watcher@example.com"}, mailer.recipients())
	require.Contains(t, mailer.sent[0].Subject, "In Progress")
	require.Contains(t, mailer.sent[0].Body, "from New to In Progress")
}

func TestNotificationServiceSwallowsMailerErrors(t *testing.T) {
	f := newIssueFixture(t)
	mailer := &recordingMailer{err: errors.New("smtp down")}
	svc, err := NewNotificationService(f.db, f.policy, mailer)
	require.NoError(t, err)

	issue := f.createIssue(t, f.reporter, false)
	require.NotPanics(t, func() {
		svc.IssueStatusChanged(context.Background(), &f.dev, issue, f.newSt, f.progress)
	})
	require.Equal(t, []string{"reporter@example.com"}, mailer.recipients())
}

func TestNewNotificationServiceValidation(t *testing.T) {
	f := newIssueFixture(t)
	_, err := NewNotificationService(nil, f.policy, &recordingMailer{})
	require.Error(t, err)
	_, err = NewNotificationService(f.db, nil, &recordingMailer{})
	require.Error(t, err)
	_, err = NewNotificationService(f.db, f.policy, nil)
	require.Error(t, err)
}
