package contact

import (
	"context"
	"database/sql"
	"fmt"
)

type Repository interface {
	Create(ctx context.Context, sub *Submission) error
	List(ctx context.Context, limit int) ([]Submission, error)
}

type submissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) Repository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, sub *Submission) error {
	query := `
		INSERT INTO form_submissions (id, name, email, company, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query, sub.ID, sub.Name, sub.Email, sub.Company, sub.Message, sub.CreatedAt); err != nil {
		return fmt.Errorf("could not store form submission: %w", err)
	}
	return nil
}

func (r *submissionRepository) List(ctx context.Context, limit int) ([]Submission, error) {
	query := `
		SELECT id, name, email, company, message, created_at
		FROM form_submissions
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("could not list form submissions: %w", err)
	}
	defer rows.Close()

	subs := []Submission{}
	for rows.Next() {
		var s Submission
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Company, &s.Message, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
