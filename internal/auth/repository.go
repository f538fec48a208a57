package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opin-voting/backend/internal/models"
)

// ErrUserNotFound is returned by user stores for unknown emails or IDs.
var ErrUserNotFound = errors.New("user not found")

// UserStore is the account persistence used by Service.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash string) (*models.User, error)
}

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, q, id))
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, q, normalizeEmail(email)))
}

// Create inserts a new user. A duplicate email yields ErrEmailInUse.
func (r *Repository) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash) VALUES ($1, $2)
		RETURNING id, email, password_hash, created_at`
	u, err := scanUser(r.pool.QueryRow(ctx, q, normalizeEmail(email), passwordHash))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrEmailInUse
	}
	return u, err
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// MemoryUserStore keeps accounts in memory.
type MemoryUserStore struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{byEmail: make(map[string]*models.User)}
}

// GetByEmail returns a user by email.
func (m *MemoryUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// Create inserts a new user.
func (m *MemoryUserStore) Create(_ context.Context, email, passwordHash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = normalizeEmail(email)
	if _, ok := m.byEmail[email]; ok {
		return nil, ErrEmailInUse
	}
	u := &models.User{ID: uuid.New(), Email: email, Password: passwordHash, CreatedAt: time.Now()}
	m.byEmail[email] = u
	c := *u
	return &c, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
