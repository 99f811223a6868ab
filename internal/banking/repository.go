package banking

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Store interface {
	// UpsertTransaction reports whether the row was new.
	UpsertTransaction(ctx context.Context, t Transaction) (bool, error)
	InsertExpense(ctx context.Context, t Transaction, normalizedLabel string) (bool, error)
}

type Repository interface {
	LastSyncedAt(ctx context.Context) (time.Time, error)
	List(ctx context.Context, filter ListFilter) ([]Transaction, int, error)
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type transactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) Repository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) LastSyncedAt(ctx context.Context) (time.Time, error) {
	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(synced_at) FROM bank_transactions`).Scan(&last); err != nil {
		return time.Time{}, err
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

func (r *transactionRepository) List(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	where, args := "", []any{}
	if filter.Side != "" {
		where = "WHERE side = $1"
		args = append(args, filter.Side)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank_transactions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT transaction_id, amount_cents, currency, side, label, emitted_at, settled_at, status, reference, synced_at
		FROM bank_transactions %s
		ORDER BY emitted_at DESC, transaction_id
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	txs := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.TransactionID, &t.AmountCents, &t.Currency, &t.Side, &t.Label, &t.EmittedAt,
			&t.SettledAt, &t.Status, &t.Reference, &t.SyncedAt); err != nil {
			return nil, 0, err
		}
		txs = append(txs, t)
	}
	return txs, total, rows.Err()
}

func (r *transactionRepository) WithinTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&store{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type store struct {
	q queryer
}

// UpsertTransaction relies on xmax being zero only for freshly inserted rows.
func (s *store) UpsertTransaction(ctx context.Context, t Transaction) (bool, error) {
	var inserted bool
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO bank_transactions (transaction_id, amount_cents, currency, side, label, emitted_at,
		                               settled_at, status, reference, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (transaction_id) DO UPDATE SET
			amount_cents = EXCLUDED.amount_cents,
			label        = EXCLUDED.label,
			settled_at   = EXCLUDED.settled_at,
			status       = EXCLUDED.status,
			reference    = EXCLUDED.reference,
			synced_at    = NOW()
		RETURNING (xmax = 0)`,
		t.TransactionID, t.AmountCents, t.Currency, t.Side, t.Label, t.EmittedAt,
		t.SettledAt, t.Status, t.Reference).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert bank transaction %s: %w", t.TransactionID, err)
	}
	return inserted, nil
}

func (s *store) InsertExpense(ctx context.Context, t Transaction, normalizedLabel string) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO expenses (transaction_id, label, normalized_label, amount_cents, emitted_at, status)
		VALUES ($1, $2, $3, $4, $5, 'unclassified')
		ON CONFLICT (transaction_id) DO NOTHING`,
		t.TransactionID, t.Label, normalizedLabel, t.AmountCents, t.EmittedAt)
	if err != nil {
		return false, fmt.Errorf("insert expense for %s: %w", t.TransactionID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
