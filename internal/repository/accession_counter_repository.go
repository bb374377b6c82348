package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// AccessionCounterRepository owns the per-prefix sequence rows used by
// atomic accession reservation.
type AccessionCounterRepository struct {
	db *sqlx.DB
}

// NewAccessionCounterRepository creates a new repository instance.
func NewAccessionCounterRepository(db *sqlx.DB) *AccessionCounterRepository {
	return &AccessionCounterRepository{db: db}
}

// Reserve increments and returns the counter for a prefix in a single
// statement, so the returned number is never handed out twice.
func (r *AccessionCounterRepository) Reserve(ctx context.Context, prefix string) (int, error) {
	const query = `INSERT INTO accession_counters (prefix, last_number)
		VALUES ($1, 1)
		ON CONFLICT (prefix) DO UPDATE SET last_number = accession_counters.last_number + 1
		RETURNING last_number`
	var number int
	if err := r.db.GetContext(ctx, &number, query, prefix); err != nil {
		return 0, fmt.Errorf("reserve accession number: %w", err)
	}
	return number, nil
}

// Current returns the last issued number for a prefix without consuming
// one; missing counters read as zero.
func (r *AccessionCounterRepository) Current(ctx context.Context, prefix string) (int, error) {
	const query = `SELECT COALESCE(MAX(last_number), 0) FROM accession_counters WHERE prefix = $1`
	var number int
	if err := r.db.GetContext(ctx, &number, query, prefix); err != nil {
		return 0, fmt.Errorf("read accession counter: %w", err)
	}
	return number, nil
}
