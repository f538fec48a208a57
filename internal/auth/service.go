package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opin-voting/backend/internal/models"
	"github.com/opin-voting/backend/pkg/utils"
)

// Persistence selects how long a sign-in survives.
type Persistence string

const (
	// PersistenceLocal keeps the user signed in across browser restarts.
	PersistenceLocal Persistence = "local"
	// PersistenceSession ends the sign-in with the browser session.
	PersistenceSession Persistence = "session"
)

// EventType identifies a sign-in state change.
type EventType string

const (
	EventSignedUp  EventType = "signed_up"
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
)

// ChangeEvent is delivered to OnChange observers.
type ChangeEvent struct {
	Type EventType
	User models.Identity
}

// Session is the result of a successful sign-up or sign-in.
type Session struct {
	Token       string            `json:"token"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Persistence Persistence       `json:"persistence"`
	User        models.UserPublic `json:"user"`
}

// Service is the identity provider: accounts, tokens and sign-out.
type Service struct {
	users      UserStore
	jwt        *JWTService
	revoker    Revoker
	durableTTL time.Duration
	sessionTTL time.Duration
	logger     *zap.Logger

	mu        sync.RWMutex
	observers map[int]func(ChangeEvent)
	nextID    int
}

// NewService creates the identity provider. durableTTL applies to sign-ins that
// asked to be kept, sessionTTL to the rest.
func NewService(users UserStore, jwt *JWTService, revoker Revoker, durableTTL, sessionTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:      users,
		jwt:        jwt,
		revoker:    revoker,
		durableTTL: durableTTL,
		sessionTTL: sessionTTL,
		logger:     logger,
		observers:  make(map[int]func(ChangeEvent)),
	}
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, email, password string, keepLoggedIn bool) (*Session, error) {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, ErrInvalidEmail
	}
	if !utils.StrongEnough(password) {
		return nil, ErrWeakPassword
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Create(ctx, email, hash)
	if err != nil {
		return nil, err
	}
	sess, err := s.issue(user, keepLoggedIn)
	if err != nil {
		return nil, err
	}
	s.notify(ChangeEvent{Type: EventSignedUp, User: models.Identity{UserID: user.ID, Email: user.Email}})
	return sess, nil
}

// Login verifies credentials and signs the user in.
func (s *Service) Login(ctx context.Context, email, password string, keepLoggedIn bool) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, ErrInvalidCredential
	}
	sess, err := s.issue(user, keepLoggedIn)
	if err != nil {
		return nil, err
	}
	s.notify(ChangeEvent{Type: EventSignedIn, User: models.Identity{UserID: user.ID, Email: user.Email}})
	return sess, nil
}

func (s *Service) issue(user *models.User, keepLoggedIn bool) (*Session, error) {
	persistence, ttl := PersistenceSession, s.sessionTTL
	if keepLoggedIn {
		persistence, ttl = PersistenceLocal, s.durableTTL
	}
	token, claims, err := s.jwt.Generate(user.ID, user.Email, persistence, ttl)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{
		Token:       token,
		ExpiresAt:   claims.ExpiresAt.Time,
		Persistence: persistence,
		User:        user.ToPublic(),
	}, nil
}

// Logout revokes the token described by claims.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if claims == nil {
		return nil
	}
	until := time.Now().Add(s.durableTTL)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.revoker.Revoke(ctx, claims.ID, until); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.notify(ChangeEvent{Type: EventSignedOut, User: models.Identity{UserID: claims.UserID, Email: claims.Email}})
	return nil
}

// Authenticate validates a token and rejects signed-out ones.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// OnChange registers fn for sign-in state changes and returns a function that
// unregisters it.
func (s *Service) OnChange(fn func(ChangeEvent)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Service) notify(ev ChangeEvent) {
	s.mu.RLock()
	fns := make([]func(ChangeEvent), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}
