package opins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opin-voting/backend/internal/models"
)

const (
	opinColumns = `id, link_id, name, question, options, multi_select, max_selections, anonymous,
		status, creator_id, creator_email, expires_at, created_at, votes`

	uniqueViolation  = "23505"
	linkIDConstraint = "opins_link_id_key"
)

// Repository handles opin persistence in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an opins repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert creates a new opin and fills in its ID and CreatedAt.
func (r *Repository) Insert(ctx context.Context, o *models.Opin) error {
	const query = `INSERT INTO opins (id, link_id, name, question, options, multi_select, max_selections, anonymous,
			status, creator_id, creator_email, expires_at, votes)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		o.LinkID, o.Name, o.Question, o.Options, o.MultiSelect, o.MaxSelections, o.Anonymous,
		string(o.Status), o.CreatorID, o.CreatorEmail, o.ExpiresAt, toInt32s(o.Votes),
	).Scan(&o.ID, &o.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == linkIDConstraint {
		return models.ErrLinkIDTaken
	}
	return err
}

// GetByID returns an opin by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Opin, error) {
	query := `SELECT ` + opinColumns + ` FROM opins WHERE id = $1`
	return scanOpin(r.pool.QueryRow(ctx, query, id))
}

// GetByLinkID returns the first opin with the given link id.
func (r *Repository) GetByLinkID(ctx context.Context, linkID string) (*models.Opin, error) {
	query := `SELECT ` + opinColumns + ` FROM opins WHERE link_id = $1 ORDER BY created_at LIMIT 1`
	return scanOpin(r.pool.QueryRow(ctx, query, linkID))
}

// ListByCreator returns every opin created by the user, newest first.
func (r *Repository) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]models.Opin, error) {
	query := `SELECT ` + opinColumns + ` FROM opins WHERE creator_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Opin
	for rows.Next() {
		o, err := scanOpin(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

// SetStatus overwrites the opin status.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status models.OpinStatus) error {
	const query = `UPDATE opins SET status = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// EndExpired ends active or paused opins past expiry and returns their IDs.
func (r *Repository) EndExpired(ctx context.Context, now time.Time, creatorID *uuid.UUID) ([]uuid.UUID, error) {
	const query = `UPDATE opins SET status = 'ended'
		WHERE status IN ('active', 'paused') AND expires_at < $1
		AND ($2::uuid IS NULL OR creator_id = $2)
		RETURNING id`
	rows, err := r.pool.Query(ctx, query, now, creatorID)
	if err != nil {
		return nil, fmt.Errorf("end expired: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("end expired: %w", err)
	}
	return ids, nil
}

func scanOpin(row pgx.Row) (*models.Opin, error) {
	var (
		o      models.Opin
		status string
		votes  []int32
	)
	err := row.Scan(&o.ID, &o.LinkID, &o.Name, &o.Question, &o.Options, &o.MultiSelect, &o.MaxSelections,
		&o.Anonymous, &status, &o.CreatorID, &o.CreatorEmail, &o.ExpiresAt, &o.CreatedAt, &votes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = models.OpinStatus(status)
	o.Votes = make(models.Tally, len(o.Options))
	for i := range o.Votes {
		if i < len(votes) {
			o.Votes[i] = int(votes[i])
		}
	}
	return &o, nil
}

func toInt32s(t models.Tally) []int32 {
	out := make([]int32, len(t))
	for i, c := range t {
		out[i] = int32(c)
	}
	return out
}
