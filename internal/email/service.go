package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/verone/backoffice/internal/config"
	"github.com/verone/backoffice/internal/logger"
)

const (
	subjectContactNotification    = "Nouvelle demande de contact"
	templateContactNotification   = "contact_notification.html"
	subjectContactAcknowledgement = "Nous avons bien reçu votre message"
	templateContactAcknowledgment = "contact_acknowledgement.html"
	subjectBankSyncFailed         = "Échec de la synchronisation bancaire"
	templateBankSyncFailed        = "bank_sync_failed.html"

	defaultQueueSize = 100
	sendTimeout      = 20 * time.Second
)

//go:embed templates/*.html
var templateFS embed.FS

type EmailData interface {
	TemplateFileName() string
	Subject() string
}

type EmailSender interface {
	QueueEmail(to string, data EmailData)
}

type ContactNotificationData struct {
	SubmissionID string
	Name         string
	Email        string
	Company      string
	Message      string
}

func (ContactNotificationData) TemplateFileName() string { return templateContactNotification }
func (ContactNotificationData) Subject() string          { return subjectContactNotification }

type ContactAcknowledgementData struct {
	Name string
}

func (ContactAcknowledgementData) TemplateFileName() string { return templateContactAcknowledgment }
func (ContactAcknowledgementData) Subject() string          { return subjectContactAcknowledgement }

type BankSyncFailedData struct {
	FailedAt string
	Error    string
}

func (BankSyncFailedData) TemplateFileName() string { return templateBankSyncFailed }
func (BankSyncFailedData) Subject() string          { return subjectBankSyncFailed }

type EmailTask struct {
	to      string
	subject string
	data    EmailData
}

// EmailService renders templates and hands them to a provider from a single
// worker goroutine.
type EmailService struct {
	provider  Provider
	templates *template.Template
	taskQueue chan EmailTask
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewEmailService(cfg *config.AppConfig) *EmailService {
	return NewEmailServiceWithProvider(NewProvider(cfg), defaultQueueSize)
}

func NewEmailServiceWithProvider(provider Provider, queueSize int) *EmailService {
	s := &EmailService{
		provider:  provider,
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
		taskQueue: make(chan EmailTask, queueSize),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *EmailService) worker() {
	defer s.wg.Done()
	for task := range s.taskQueue {
		if err := s.send(task); err != nil {
			logger.L.Error("Error sending email", "to", task.to, "subject", task.subject, "error", err)
			continue
		}
		logger.L.Info("Email sent", "to", task.to, "subject", task.subject)
	}
}

// QueueEmail never blocks the caller; when the queue is full the e-mail is dropped.
func (s *EmailService) QueueEmail(to string, data EmailData) {
	task := EmailTask{to: to, subject: data.Subject(), data: data}
	select {
	case s.taskQueue <- task:
	default:
		logger.L.Warn("Email queue full, dropping email", "to", to, "subject", task.subject)
	}
}

// Shutdown stops accepting e-mails and waits for the queue to drain.
func (s *EmailService) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.taskQueue) })
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *EmailService) render(data EmailData) (string, error) {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, data.TemplateFileName(), data); err != nil {
		return "", fmt.Errorf("error executing template: %w", err)
	}
	return body.String(), nil
}

func (s *EmailService) send(task EmailTask) error {
	body, err := s.render(task.data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return s.provider.Send(ctx, task.to, task.subject, body)
}
