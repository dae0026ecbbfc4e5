// Package notify e-mails executors about escalation and legal risk tasks.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"triage/internal/models"

	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const senderName = "Task Triage"

// Sender is satisfied by *sendgrid.Client
type Sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Tracker records delivered notifications
type Tracker interface {
	TrackNotification(taskID int64, recipient string) error
}

// Service sends task notices via SendGrid
type Service struct {
	client  Sender
	from    string
	tracker Tracker
	logger  zerolog.Logger
}

// NewService creates a SendGrid backed notifier. An empty apiKey yields a
// notifier whose NotifyTask always fails, which fan-out only logs.
func NewService(apiKey, from string, tracker Tracker, logger zerolog.Logger) *Service {
	var client Sender
	if apiKey != "" {
		client = sendgrid.NewSendClient(apiKey)
	}
	return NewServiceWithSender(client, from, tracker, logger)
}

// NewServiceWithSender wires a custom sender
func NewServiceWithSender(client Sender, from string, tracker Tracker, logger zerolog.Logger) *Service {
	if from == "" {
		from = "noreply@support.local"
	}
	return &Service{
		client:  client,
		from:    from,
		tracker: tracker,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// NotifyTask e-mails the executor of task
func (s *Service) NotifyTask(ctx context.Context, task *models.Task, executor *models.User) error {
	if s.client == nil {
		return fmt.Errorf("SendGrid API key not configured")
	}
	if executor == nil || executor.Email == nil || *executor.Email == "" {
		return fmt.Errorf("executor has no e-mail address")
	}

	from := mail.NewEmail(senderName, s.from)
	to := mail.NewEmail(executor.Name, *executor.Email)
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(task.Priority)), task.Title)
	body := renderBody(task)

	message := mail.NewSingleEmail(from, subject, to, body, "")
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	s.logger.Info().Int64("task_id", task.ID).Int64("executor_id", executor.ID).Msg("Task notification sent")
	if s.tracker != nil {
		if err := s.tracker.TrackNotification(task.ID, *executor.Email); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to track notification")
		}
	}
	return nil
}

func renderBody(task *models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Вам назначена задача #%d.\n\n", task.ID)
	fmt.Fprintf(&b, "Название: %s\n", task.Title)
	fmt.Fprintf(&b, "Приоритет: %s\n", task.Priority)
	if task.DueDate != nil {
		fmt.Fprintf(&b, "Срок: %s\n", task.DueDate.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Обращение: #%d\n\n", task.ThreadID)
	b.WriteString(task.Content)
	return b.String()
}
