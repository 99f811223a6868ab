package banking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/verone/backoffice/internal/email"
	appErrors "github.com/verone/backoffice/internal/errors"
	"github.com/verone/backoffice/internal/logger"
	"github.com/verone/backoffice/internal/matching"
	"github.com/verone/backoffice/internal/qonto"
)

var ErrSyncInProgress = errors.New("a bank sync is already running")

// TransactionSource lists bank transactions updated since a point in time.
type TransactionSource interface {
	ListTransactions(ctx context.Context, since time.Time) ([]qonto.Transaction, error)
}

// LabelCache is told when a sync opened new unclassified expenses.
type LabelCache interface {
	InvalidateLabels()
}

type Service interface {
	SyncEnabled() bool
	SyncTransactions(ctx context.Context, since time.Time) (*SyncResult, error)
	ListTransactions(ctx context.Context, filter ListFilter) (*TransactionPage, error)
}

type service struct {
	repo       Repository
	source     TransactionSource
	labels     LabelCache
	mailer     email.EmailSender
	alertEmail string

	mu  sync.Mutex
	now func() time.Time
}

// NewBankingService takes an optional label cache and mailer. When both the
// mailer and alertEmail are set, failed syncs are reported by e-mail.
func NewBankingService(repo Repository, source TransactionSource, labels LabelCache, mailer email.EmailSender, alertEmail string) Service {
	return &service{
		repo:       repo,
		source:     source,
		labels:     labels,
		mailer:     mailer,
		alertEmail: alertEmail,
		now:        time.Now,
	}
}

// SyncEnabled reports whether a transaction source is configured.
func (s *service) SyncEnabled() bool {
	return s.source != nil
}

// SyncTransactions imports transactions into bank_transactions and opens an
// unclassified expense for every debit. A zero since resumes from the last run.
func (s *service) SyncTransactions(ctx context.Context, since time.Time) (*SyncResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	result, err := s.sync(ctx, since)
	if errors.Is(err, qonto.ErrNotConfigured) {
		return nil, err
	}
	if err != nil {
		logger.L.Error("bank sync failed", "error", err)
		s.alert(err)
		return nil, err
	}
	if result.ExpensesCreated > 0 && s.labels != nil {
		s.labels.InvalidateLabels()
	}
	logger.L.Info("bank sync finished",
		"since", result.Since, "fetched", result.Fetched, "inserted", result.Inserted,
		"updated", result.Updated, "expenses_created", result.ExpensesCreated)
	return result, nil
}

func (s *service) sync(ctx context.Context, since time.Time) (*SyncResult, error) {
	if s.source == nil {
		return nil, qonto.ErrNotConfigured
	}
	if since.IsZero() {
		last, err := s.repo.LastSyncedAt(ctx)
		if err != nil {
			return nil, fmt.Errorf("read last sync time: %w", err)
		}
		if !last.IsZero() {
			since = last.Add(-syncOverlap)
		}
	}

	fetched, err := s.source.ListTransactions(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list qonto transactions: %w", err)
	}

	result := &SyncResult{Since: since, Fetched: len(fetched)}
	err = s.repo.WithinTx(ctx, func(st Store) error {
		for _, qt := range fetched {
			t := fromQonto(qt)
			if t.TransactionID == "" || (t.Side != SideCredit && t.Side != SideDebit) {
				logger.L.Warn("skipping malformed bank transaction", "transaction_id", t.TransactionID, "side", t.Side)
				result.Skipped++
				continue
			}
			inserted, err := st.UpsertTransaction(ctx, t)
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted++
			} else {
				result.Updated++
			}
			if t.Side != SideDebit {
				continue
			}
			created, err := st.InsertExpense(ctx, t, matching.NormalizeLabel(t.Label))
			if err != nil {
				return err
			}
			if created {
				result.ExpensesCreated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) alert(syncErr error) {
	if s.mailer == nil || s.alertEmail == "" {
		return
	}
	s.mailer.QueueEmail(s.alertEmail, email.BankSyncFailedData{
		FailedAt: s.now().UTC().Format(time.RFC3339),
		Error:    syncErr.Error(),
	})
}

func (s *service) ListTransactions(ctx context.Context, filter ListFilter) (*TransactionPage, error) {
	filter.Side = strings.ToLower(strings.TrimSpace(filter.Side))
	if filter.Side != "" && filter.Side != SideCredit && filter.Side != SideDebit {
		return nil, appErrors.NewValidationError("side must be credit or debit")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	txs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list bank transactions: %w", err)
	}
	return &TransactionPage{Transactions: txs, Page: filter.Page, Limit: filter.Limit, Total: total}, nil
}
