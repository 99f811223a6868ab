package email

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verone/backoffice/internal/config"
)

type sentEmail struct {
	to      string
	subject string
	body    string
}

type recordingProvider struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (p *recordingProvider) Send(_ context.Context, to, subject, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sentEmail{to: to, subject: subject, body: body})
	return nil
}

func TestQueueEmailRendersTemplate(t *testing.T) {
	provider := &recordingProvider{}
	s := NewEmailServiceWithProvider(provider, 10)

	s.QueueEmail("ops@verone.fr", ContactNotificationData{
		SubmissionID: "sub-1",
		Name:         "Jeanne",
		Email:        "jeanne@example.com",
		Company:      "Maison Jeanne",
		Message:      "<script>alert(1)</script>",
	})
	require.NoError(t, s.Shutdown(context.Background()))

	require.Len(t, provider.sent, 1)
	sent := provider.sent[0]
	assert.Equal(t, "ops@verone.fr", sent.to)
	assert.Equal(t, subjectContactNotification, sent.subject)
	assert.Contains(t, sent.body, "Maison Jeanne")
	assert.Contains(t, sent.body, "sub-1")
	assert.NotContains(t, sent.body, "<script>", "user input is escaped")
}

func TestEveryTemplateRenders(t *testing.T) {
	s := NewEmailServiceWithProvider(&recordingProvider{}, 1)
	defer s.Shutdown(context.Background())

	for _, data := range []EmailData{
		ContactNotificationData{Name: "A", Email: "a@b.fr", Message: "hi"},
		ContactAcknowledgementData{Name: "A"},
		BankSyncFailedData{FailedAt: "2024-05-10 10:00", Error: "timeout"},
	} {
		body, err := s.render(data)
		require.NoError(t, err, data.TemplateFileName())
		assert.NotEmpty(t, body)
	}
}

func TestProviderErrorsDoNotStopWorker(t *testing.T) {
	provider := &recordingProvider{err: errors.New("smtp down")}
	s := NewEmailServiceWithProvider(provider, 10)

	s.QueueEmail("a@verone.fr", ContactAcknowledgementData{Name: "A"})
	s.QueueEmail("b@verone.fr", ContactAcknowledgementData{Name: "B"})
	require.NoError(t, s.Shutdown(context.Background()))
	assert.Empty(t, provider.sent)
}

type blockingProvider struct {
	release chan struct{}
}

func (p *blockingProvider) Send(context.Context, string, string, string) error {
	<-p.release
	return nil
}

func TestQueueEmailDropsWhenFull(t *testing.T) {
	provider := &blockingProvider{release: make(chan struct{})}
	s := NewEmailServiceWithProvider(provider, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			s.QueueEmail("a@verone.fr", ContactAcknowledgementData{Name: "A"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("QueueEmail blocked on a full queue")
	}
	close(provider.release)
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestNewProviderFallsBackToLogging(t *testing.T) {
	assert.IsType(t, LogProvider{}, NewProvider(&config.AppConfig{EmailServiceProvider: "mailgun"}))
	assert.IsType(t, LogProvider{}, NewProvider(&config.AppConfig{EmailServiceProvider: "smtp"}))
	assert.IsType(t, LogProvider{}, NewProvider(&config.AppConfig{EmailServiceProvider: "pigeon"}))

	smtpProvider := NewProvider(&config.AppConfig{
		EmailServiceProvider: "smtp",
		SMTPServer:           "smtp.example.com",
		SMTPPort:             587,
		SMTPUser:             "user",
		SMTPPassword:         "pass",
		SenderEmail:          "noreply@verone.fr",
	})
	assert.IsType(t, &SMTPProvider{}, smtpProvider)

	mg := NewProvider(&config.AppConfig{
		EmailServiceProvider: "mailgun",
		MailgunDomain:        "mg.verone.fr",
		MailgunPrivateAPIKey: "key",
		SenderEmail:          "noreply@verone.fr",
	})
	assert.IsType(t, &MailgunProvider{}, mg)
}

func TestBuildMIMEMessage(t *testing.T) {
	msg := string(buildMIMEMessage("from@verone.fr", "to@verone.fr", "Bonjour", "<p>x</p>"))
	assert.Contains(t, msg, "Subject: Bonjour\r\n")
	assert.Contains(t, msg, "Content-Type: text/html")
	assert.Contains(t, msg, "\r\n\r\n<p>x</p>")
}
