package votes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opin-voting/backend/internal/models"
)

// Repository handles ballot persistence in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a votes repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// HasVoted reports whether the voter has a ballot for the opin.
func (r *Repository) HasVoted(ctx context.Context, opinID, voterID uuid.UUID) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM opin_votes WHERE opin_id = $1 AND voter_id = $2)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, opinID, voterID).Scan(&exists)
	return exists, err
}

// Record inserts the ballot and increments the selected tallies in one
// transaction. The opin row is locked first so a concurrent pause, end or
// sweep cannot interleave with the increments.
func (r *Repository) Record(ctx context.Context, v *models.Vote) (models.Tally, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		status  string
		options int
	)
	err = tx.QueryRow(ctx, `SELECT status, cardinality(options) FROM opins WHERE id = $1 FOR UPDATE`, v.OpinID).
		Scan(&status, &options)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock opin: %w", err)
	}
	if models.OpinStatus(status) != models.StatusActive {
		return nil, fmt.Errorf("%w: opin is %s", models.ErrInvalidTransition, status)
	}
	for _, i := range v.SelectedOptions {
		if i < 0 || i >= options {
			return nil, models.ErrInvalidOption
		}
	}

	const insert = `INSERT INTO opin_votes (opin_id, voter_id, voter_email, selected_options)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (opin_id, voter_id) DO NOTHING
		RETURNING id, voted_at`
	err = tx.QueryRow(ctx, insert, v.OpinID, v.VoterID, v.VoterEmail, toInt32s(v.SelectedOptions)).
		Scan(&v.ID, &v.VotedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrAlreadyVoted
	}
	if err != nil {
		return nil, fmt.Errorf("insert vote: %w", err)
	}

	// SQL arrays are 1-based.
	const increment = `UPDATE opins SET votes[$2] = votes[$2] + 1 WHERE id = $1 RETURNING votes`
	var votes []int32
	for _, i := range v.SelectedOptions {
		if err := tx.QueryRow(ctx, increment, v.OpinID, i+1).Scan(&votes); err != nil {
			return nil, fmt.Errorf("increment option %d: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	tally := models.NewTally(options)
	for i := range tally {
		if i < len(votes) {
			tally[i] = int(votes[i])
		}
	}
	return tally, nil
}

// ListByOpin returns the opin's ballots ordered by vote time.
func (r *Repository) ListByOpin(ctx context.Context, opinID uuid.UUID) ([]models.Vote, error) {
	const query = `SELECT id, opin_id, voter_id, voter_email, selected_options, voted_at
		FROM opin_votes WHERE opin_id = $1 ORDER BY voted_at`
	rows, err := r.pool.Query(ctx, query, opinID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Vote
	for rows.Next() {
		var (
			v        models.Vote
			selected []int32
		)
		if err := rows.Scan(&v.ID, &v.OpinID, &v.VoterID, &v.VoterEmail, &selected, &v.VotedAt); err != nil {
			return nil, err
		}
		v.SelectedOptions = make([]int, len(selected))
		for i, s := range selected {
			v.SelectedOptions[i] = int(s)
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

// CountByOpin returns the number of ballots cast for the opin.
func (r *Repository) CountByOpin(ctx context.Context, opinID uuid.UUID) (int, error) {
	const query = `SELECT COUNT(*) FROM opin_votes WHERE opin_id = $1`
	var n int
	err := r.pool.QueryRow(ctx, query, opinID).Scan(&n)
	return n, err
}

func toInt32s(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}
