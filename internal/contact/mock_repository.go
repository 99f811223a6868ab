package contact

import (
	"context"
	"errors"

	"github.com/verone/backoffice/internal/email"
)

type MockSubmissionRepository struct {
	Submissions []Submission
	shouldFail  bool
}

func (m *MockSubmissionRepository) Create(_ context.Context, sub *Submission) error {
	if m.shouldFail {
		return errors.New("repository error")
	}
	m.Submissions = append(m.Submissions, *sub)
	return nil
}

func (m *MockSubmissionRepository) List(_ context.Context, limit int) ([]Submission, error) {
	if m.shouldFail {
		return nil, errors.New("repository error")
	}
	out := []Submission{}
	for i := len(m.Submissions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Submissions[i])
	}
	return out, nil
}

type queuedEmail struct {
	To   string
	Data email.EmailData
}

type MockEmailSender struct {
	Queued []queuedEmail
}

func (m *MockEmailSender) QueueEmail(to string, data email.EmailData) {
	m.Queued = append(m.Queued, queuedEmail{To: to, Data: data})
}
