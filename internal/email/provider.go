package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/verone/backoffice/internal/config"
	"github.com/verone/backoffice/internal/logger"
)

type Provider interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NewProvider picks the provider named by EMAIL_SERVICE_PROVIDER and falls
// back to logging when its settings are incomplete.
func NewProvider(cfg *config.AppConfig) Provider {
	provider := strings.ToLower(cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if cfg.MailgunDomain == "" || cfg.MailgunPrivateAPIKey == "" || cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete, emails will only be logged")
			return LogProvider{}
		}
		return &MailgunProvider{
			mg:     mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunPrivateAPIKey),
			sender: cfg.SenderEmail,
		}
	case "smtp":
		if cfg.SMTPServer == "" || cfg.SMTPUser == "" || cfg.SMTPPassword == "" || cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete, emails will only be logged")
			return LogProvider{}
		}
		return &SMTPProvider{
			host:     cfg.SMTPServer,
			port:     cfg.SMTPPort,
			user:     cfg.SMTPUser,
			password: cfg.SMTPPassword,
			sender:   cfg.SenderEmail,
		}
	default:
		logger.L.Warn("Unknown email provider, emails will only be logged", "provider", provider)
		return LogProvider{}
	}
}

type SMTPProvider struct {
	host     string
	port     int
	user     string
	password string
	sender   string
}

func buildMIMEMessage(from, to, subject, htmlBody string) []byte {
	return []byte("From: " + from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\";\r\n\r\n" +
		htmlBody)
}

func (p *SMTPProvider) Send(_ context.Context, to, subject, htmlBody string) error {
	auth := smtp.PlainAuth("", p.user, p.password, p.host)
	addr := p.host + ":" + strconv.Itoa(p.port)
	if err := smtp.SendMail(addr, auth, p.sender, []string{to}, buildMIMEMessage(p.sender, to, subject, htmlBody)); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

type MailgunProvider struct {
	mg     mailgun.Mailgun
	sender string
}

func (p *MailgunProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	message := p.mg.NewMessage(p.sender, subject, "", to)
	message.SetHtml(htmlBody)
	resp, id, err := p.mg.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Debug("Mailgun accepted message", "id", id, "mailgunResp", resp)
	return nil
}

// LogProvider is used in development and when no provider is configured.
type LogProvider struct{}

func (LogProvider) Send(_ context.Context, to, subject, _ string) error {
	logger.L.Info("Email not sent, no provider configured", "to", to, "subject", subject)
	return nil
}
