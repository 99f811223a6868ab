package banking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verone/backoffice/internal/email"
	appErrors "github.com/verone/backoffice/internal/errors"
	"github.com/verone/backoffice/internal/qonto"
)

var emitted = time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)

func qontoFeed() []qonto.Transaction {
	return []qonto.Transaction{
		{TransactionID: "tx-debit-1", AmountCents: 12990, Side: "debit", Label: "  amazon   eu sarl ", EmittedAt: emitted, Status: "completed"},
		{TransactionID: "tx-credit-1", AmountCents: 250000, Currency: "EUR", Side: "credit", Label: "VIR MAISON LUMIERE", EmittedAt: emitted.Add(time.Hour), Status: "completed"},
		{TransactionID: "tx-debit-2", AmountCents: 4500, Side: "debit", Label: "Free Pro", EmittedAt: emitted.Add(2 * time.Hour), Status: "pending"},
		{TransactionID: "", AmountCents: 100, Side: "debit", Label: "broken"},
	}
}

func TestSyncTransactions(t *testing.T) {
	repo := NewMockRepository()
	source := &MockSource{Transactions: qontoFeed()}
	svc := NewBankingService(repo, source, nil, nil, "")

	result, err := svc.SyncTransactions(context.Background(), time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Fetched)
	assert.Equal(t, 3, result.Inserted)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, result.ExpensesCreated)
	assert.True(t, source.Since.IsZero())

	assert.Len(t, repo.Transactions, 3)
	assert.Equal(t, "EUR", repo.Transactions["tx-debit-1"].Currency)
	assert.Equal(t, "AMAZON EU SARL", repo.Expenses["tx-debit-1"].NormalizedLabel)
	assert.NotContains(t, repo.Expenses, "tx-credit-1")
}

func TestSyncTransactions_Idempotent(t *testing.T) {
	repo := NewMockRepository()
	source := &MockSource{Transactions: qontoFeed()}
	svc := NewBankingService(repo, source, nil, nil, "")
	ctx := context.Background()

	_, err := svc.SyncTransactions(ctx, time.Time{})
	require.NoError(t, err)

	source.Transactions[2].Status = "completed"
	result, err := svc.SyncTransactions(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, 0, result.ExpensesCreated)
	assert.Len(t, repo.Expenses, 2)
	assert.Equal(t, "completed", repo.Transactions["tx-debit-2"].Status)
}

func TestSyncTransactions_ResumesFromLastSync(t *testing.T) {
	repo := NewMockRepository()
	repo.LastSync = time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	source := &MockSource{}
	svc := NewBankingService(repo, source, nil, nil, "")

	result, err := svc.SyncTransactions(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, repo.LastSync.Add(-syncOverlap), source.Since)
	assert.Equal(t, source.Since, result.Since)

	explicit := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.SyncTransactions(context.Background(), explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, source.Since)
}

func TestSyncTransactions_FailureRollsBackAndAlerts(t *testing.T) {
	repo := NewMockRepository()
	repo.FailExpense = errors.New("disk full")
	mailer := &MockEmailSender{}
	svc := NewBankingService(repo, &MockSource{Transactions: qontoFeed()}, nil, mailer, "ops@verone.fr")

	_, err := svc.SyncTransactions(context.Background(), time.Time{})
	require.Error(t, err)
	assert.Empty(t, repo.Transactions)
	assert.Empty(t, repo.Expenses)

	require.Len(t, mailer.Queued, 1)
	assert.Equal(t, "ops@verone.fr", mailer.Queued[0].To)
	data, ok := mailer.Queued[0].Data.(email.BankSyncFailedData)
	require.True(t, ok)
	assert.Contains(t, data.Error, "disk full")
}

func TestSyncTransactions_SourceError(t *testing.T) {
	repo := NewMockRepository()
	apiErr := &qonto.APIError{StatusCode: 500, Message: "upstream"}
	svc := NewBankingService(repo, &MockSource{Err: apiErr}, nil, nil, "")

	_, err := svc.SyncTransactions(context.Background(), time.Time{})
	var got *qonto.APIError
	assert.ErrorAs(t, err, &got)

	svc = NewBankingService(repo, nil, nil, nil, "")
	_, err = svc.SyncTransactions(context.Background(), time.Time{})
	assert.ErrorIs(t, err, qonto.ErrNotConfigured)
}

func TestSyncTransactions_NotConfiguredIsQuiet(t *testing.T) {
	mailer := &MockEmailSender{}
	svc := NewBankingService(NewMockRepository(), nil, nil, mailer, "ops@verone.fr")
	assert.False(t, svc.SyncEnabled())

	for i := 0; i < 3; i++ {
		_, err := svc.SyncTransactions(context.Background(), time.Time{})
		assert.ErrorIs(t, err, qonto.ErrNotConfigured)
	}
	assert.Empty(t, mailer.Queued)
}

func TestSyncTransactions_InvalidatesLabelsOnNewExpenses(t *testing.T) {
	labels := &MockLabelCache{}
	source := &MockSource{Transactions: qontoFeed()}
	svc := NewBankingService(NewMockRepository(), source, labels, nil, "")
	assert.True(t, svc.SyncEnabled())
	ctx := context.Background()

	_, err := svc.SyncTransactions(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, labels.Invalidations)

	// nothing new to classify
	_, err = svc.SyncTransactions(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, labels.Invalidations)

	source.Transactions = append(source.Transactions, qonto.Transaction{
		TransactionID: "tx-debit-3", AmountCents: 2999, Side: "debit", Label: "FREE PRO", EmittedAt: emitted, Status: "completed",
	})
	_, err = svc.SyncTransactions(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, labels.Invalidations)
}

func TestSyncTransactions_NoOverlappingRuns(t *testing.T) {
	source := &MockSource{Entered: make(chan struct{}, 2), Block: make(chan struct{})}
	svc := NewBankingService(NewMockRepository(), source, nil, nil, "")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.SyncTransactions(context.Background(), time.Time{})
	}()
	<-source.Entered

	_, err := svc.SyncTransactions(context.Background(), time.Time{})
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(source.Block)
	wg.Wait()

	_, err = svc.SyncTransactions(context.Background(), time.Time{})
	assert.NoError(t, err)
}

func TestListTransactions(t *testing.T) {
	repo := NewMockRepository()
	svc := NewBankingService(repo, &MockSource{Transactions: qontoFeed()}, nil, nil, "")
	ctx := context.Background()
	_, err := svc.SyncTransactions(ctx, time.Time{})
	require.NoError(t, err)

	page, err := svc.ListTransactions(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, defaultPageSize, page.Limit)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, "tx-debit-2", page.Transactions[0].TransactionID)

	page, err = svc.ListTransactions(ctx, ListFilter{Side: " Debit ", Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "tx-debit-1", page.Transactions[0].TransactionID)

	page, err = svc.ListTransactions(ctx, ListFilter{Limit: 10000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, page.Limit)

	_, err = svc.ListTransactions(ctx, ListFilter{Side: "sideways"})
	assert.True(t, appErrors.IsValidationError(err))
}
