package contact

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"github.com/verone/backoffice/internal/email"
	appErrors "github.com/verone/backoffice/internal/errors"
	"github.com/verone/backoffice/internal/logger"
)

const (
	maxNameLength    = 120
	maxCompanyLength = 160
	maxMessageLength = 5000
)

var ErrInternalError = errors.New("internal Server Error")

type Submission struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   string    `json:"company,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type SubmissionInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Message string `json:"message"`
}

type Service interface {
	Submit(ctx context.Context, input SubmissionInput) (*Submission, error)
	ListSubmissions(ctx context.Context, limit int) ([]Submission, error)
}

type service struct {
	repo        Repository
	emailSender email.EmailSender
	notifyEmail string
	now         func() time.Time
}

// NewContactService queues a notification to notifyEmail for every submission;
// an empty notifyEmail disables the notification.
func NewContactService(repo Repository, emailSender email.EmailSender, notifyEmail string) Service {
	return &service{
		repo:        repo,
		emailSender: emailSender,
		notifyEmail: notifyEmail,
		now:         time.Now,
	}
}

func (in SubmissionInput) normalize() SubmissionInput {
	return SubmissionInput{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Company: strings.TrimSpace(in.Company),
		Message: strings.TrimSpace(in.Message),
	}
}

func (in SubmissionInput) validate() error {
	ve := &appErrors.ValidationErrors{}
	if in.Name == "" {
		ve.Add(appErrors.NewValidationError("name is required"))
	} else if utf8.RuneCountInString(in.Name) > maxNameLength {
		ve.Add(appErrors.NewValidationError("name is too long"))
	}
	if in.Email == "" {
		ve.Add(appErrors.NewValidationError("email is required"))
	} else if err := checkmail.ValidateFormat(in.Email); err != nil {
		ve.Add(appErrors.NewValidationError("email address is not valid"))
	}
	if utf8.RuneCountInString(in.Company) > maxCompanyLength {
		ve.Add(appErrors.NewValidationError("company is too long"))
	}
	if in.Message == "" {
		ve.Add(appErrors.NewValidationError("message is required"))
	} else if utf8.RuneCountInString(in.Message) > maxMessageLength {
		ve.Add(appErrors.NewValidationError("message must be at most 5000 characters"))
	}
	return ve.OrNil()
}

func (s *service) Submit(ctx context.Context, input SubmissionInput) (*Submission, error) {
	input = input.normalize()
	if err := input.validate(); err != nil {
		return nil, err
	}

	sub := &Submission{
		ID:        uuid.New(),
		Name:      input.Name,
		Email:     input.Email,
		Company:   input.Company,
		Message:   input.Message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		logger.L.Error("storing contact submission failed", "error", err)
		return nil, ErrInternalError
	}

	if s.notifyEmail != "" {
		s.emailSender.QueueEmail(s.notifyEmail, email.ContactNotificationData{
			SubmissionID: sub.ID.String(),
			Name:         sub.Name,
			Email:        sub.Email,
			Company:      sub.Company,
			Message:      sub.Message,
		})
	}
	s.emailSender.QueueEmail(sub.Email, email.ContactAcknowledgementData{Name: sub.Name})

	logger.L.Info("contact submission received", "submission_id", sub.ID)
	return sub, nil
}

func (s *service) ListSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	subs, err := s.repo.List(ctx, limit)
	if err != nil {
		logger.L.Error("listing contact submissions failed", "error", err)
		return nil, ErrInternalError
	}
	return subs, nil
}
