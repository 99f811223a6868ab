package matching

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	database "github.com/verone/backoffice/db"
)

type Repository interface {
	Create(ctx context.Context, rule *Rule) error
	FindByID(ctx context.Context, ruleID uuid.UUID) (*Rule, error)
	FindAll(ctx context.Context) ([]Rule, error)
	FindEnabled(ctx context.Context) ([]Rule, error)
	Update(ctx context.Context, rule *Rule) error
	SetEnabled(ctx context.Context, ruleID uuid.UUID, enabled bool) error
	Delete(ctx context.Context, ruleID uuid.UUID) error
	OrganisationExists(ctx context.Context, organisationID uuid.UUID) (bool, error)
	UnclassifiedLabels(ctx context.Context, limit int) ([]UnclassifiedLabel, error)
	ApplyRule(ctx context.Context, rule Rule) (int, error)
}

type ruleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) Repository {
	return &ruleRepository{db: db}
}

const ruleColumns = `id, match_value, normalized_value, match_type, organisation_id, default_category,
       enabled, matched_expenses_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var rule Rule
	err := row.Scan(&rule.ID, &rule.MatchValue, &rule.NormalizedValue, &rule.MatchType, &rule.OrganisationID,
		&rule.DefaultCategory, &rule.Enabled, &rule.MatchedExpensesCount, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) Create(ctx context.Context, rule *Rule) error {
	query := `INSERT INTO matching_rules (id, match_value, normalized_value, match_type, organisation_id,
                  default_category, enabled, matched_expenses_count, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query, rule.ID, rule.MatchValue, rule.NormalizedValue, rule.MatchType,
		rule.OrganisationID, rule.DefaultCategory, rule.Enabled, rule.MatchedExpensesCount, rule.CreatedAt, rule.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return ErrRuleConflict
	}
	return err
}

func (r *ruleRepository) FindByID(ctx context.Context, ruleID uuid.UUID) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM matching_rules WHERE id = $1`
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	return rule, err
}

func (r *ruleRepository) findMany(ctx context.Context, query string, args ...any) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (r *ruleRepository) FindAll(ctx context.Context) ([]Rule, error) {
	return r.findMany(ctx, `SELECT `+ruleColumns+` FROM matching_rules ORDER BY created_at DESC`)
}

func (r *ruleRepository) FindEnabled(ctx context.Context) ([]Rule, error) {
	return r.findMany(ctx, `SELECT `+ruleColumns+` FROM matching_rules WHERE enabled ORDER BY created_at`)
}

func (r *ruleRepository) Update(ctx context.Context, rule *Rule) error {
	query := `
        UPDATE matching_rules
        SET match_value = $1, normalized_value = $2, match_type = $3, organisation_id = $4,
            default_category = $5, updated_at = $6
        WHERE id = $7
    `
	result, err := r.db.ExecContext(ctx, query, rule.MatchValue, rule.NormalizedValue, rule.MatchType,
		rule.OrganisationID, rule.DefaultCategory, rule.UpdatedAt, rule.ID)
	if database.IsUniqueViolation(err) {
		return ErrRuleConflict
	}
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *ruleRepository) SetEnabled(ctx context.Context, ruleID uuid.UUID, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE matching_rules SET enabled = $1, updated_at = NOW() WHERE id = $2`, enabled, ruleID)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *ruleRepository) Delete(ctx context.Context, ruleID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM matching_rules WHERE id = $1`, ruleID)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *ruleRepository) OrganisationExists(ctx context.Context, organisationID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM organisations WHERE id = $1)`, organisationID).Scan(&exists)
	return exists, err
}

func (r *ruleRepository) UnclassifiedLabels(ctx context.Context, limit int) ([]UnclassifiedLabel, error) {
	query := `
        SELECT normalized_label, MIN(label), COUNT(*), COALESCE(SUM(ABS(amount_cents)), 0)
        FROM expenses
        WHERE status = 'unclassified'
        GROUP BY normalized_label
        ORDER BY COUNT(*) DESC, SUM(ABS(amount_cents)) DESC, normalized_label
        LIMIT $1
    `
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labels := []UnclassifiedLabel{}
	for rows.Next() {
		var l UnclassifiedLabel
		if err := rows.Scan(&l.NormalizedLabel, &l.Label, &l.TransactionCount, &l.TotalAmountCents); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// ApplyRule classifies the unclassified expenses caught by the rule and bumps
// its counter in the same transaction.
func (r *ruleRepository) ApplyRule(ctx context.Context, rule Rule) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	condition := `normalized_label = $5`
	if rule.MatchType == MatchContains {
		condition = `strpos(normalized_label, $5) > 0`
	}
	query := `
        UPDATE expenses
        SET status = 'classified', organisation_id = $1, category = $2, rule_id = $3, classified_at = $4
        WHERE status = 'unclassified' AND ` + condition

	result, err := tx.ExecContext(ctx, query, rule.OrganisationID, rule.DefaultCategory, rule.ID, time.Now(), rule.NormalizedValue)
	if err != nil {
		return 0, fmt.Errorf("classify expenses: %w", err)
	}
	classified, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if classified > 0 {
		_, err = tx.ExecContext(ctx, `
            UPDATE matching_rules
            SET matched_expenses_count = matched_expenses_count + $1, updated_at = NOW()
            WHERE id = $2`, classified, rule.ID)
		if err != nil {
			return 0, fmt.Errorf("update rule counter: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(classified), nil
}
