package opins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opin-voting/backend/internal/models"
)

// DefaultLinkIDAttempts bounds the retries when a generated link id collides.
const DefaultLinkIDAttempts = 5

// Realtime event names for status changes.
const (
	EventStatus = "opin_status"
)

// CreateParams are the caller-supplied fields of a new opin.
type CreateParams struct {
	Name          string
	Question      string
	Options       []string
	ExpiresAt     time.Time
	MultiSelect   bool
	MaxSelections int
	Anonymous     bool
}

// Service implements the opin lifecycle on top of a Store.
type Service struct {
	store       Store
	origin      string
	broadcaster Broadcaster
	logger      *zap.Logger
	attempts    int

	now       func() time.Time
	newLinkID func() (string, error)
}

// NewService creates an opins service. origin is the public base URL used in share links.
func NewService(store Store, origin string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		origin:    strings.TrimRight(origin, "/"),
		logger:    logger,
		attempts:  DefaultLinkIDAttempts,
		now:       time.Now,
		newLinkID: GenerateLinkID,
	}
}

// SetBroadcaster attaches the realtime hub used to announce status changes.
func (s *Service) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// SetLinkIDAttempts overrides how many link ids are tried before Create gives up.
func (s *Service) SetLinkIDAttempts(n int) {
	if n > 0 {
		s.attempts = n
	}
}

// Create validates and stores a new active opin owned by the caller.
func (s *Service) Create(ctx context.Context, caller *models.Identity, p CreateParams) (*models.Opin, error) {
	if caller == nil {
		return nil, models.ErrUnauthenticated
	}
	o, err := s.build(caller, p)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		o.LinkID, err = s.newLinkID()
		if err != nil {
			return nil, fmt.Errorf("generate link id: %w", err)
		}
		err = s.store.Insert(ctx, o)
		if errors.Is(err, models.ErrLinkIDTaken) {
			s.logger.Warn("link id collision", zap.String("link_id", o.LinkID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert opin: %w", err)
		}
		s.logger.Info("opin created",
			zap.String("opin_id", o.ID.String()),
			zap.String("link_id", o.LinkID),
			zap.String("creator_id", caller.UserID.String()),
			zap.Int("options", len(o.Options)))
		return o, nil
	}
	return nil, fmt.Errorf("insert opin: %w after %d attempts", models.ErrLinkIDTaken, s.attempts)
}

func (s *Service) build(caller *models.Identity, p CreateParams) (*models.Opin, error) {
	name := strings.TrimSpace(p.Name)
	question := strings.TrimSpace(p.Question)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrInvalidOpin)
	}
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", models.ErrInvalidOpin)
	}
	options := make([]string, 0, len(p.Options))
	for _, opt := range p.Options {
		if opt = strings.TrimSpace(opt); opt != "" {
			options = append(options, opt)
		}
	}
	if len(options) < models.MinOptions {
		return nil, fmt.Errorf("%w: at least %d options are required", models.ErrInvalidOpin, models.MinOptions)
	}
	if !p.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w: expiration must be in the future", models.ErrInvalidOpin)
	}

	maxSelections := 1
	if p.MultiSelect && p.MaxSelections > 1 {
		maxSelections = p.MaxSelections
	}
	return &models.Opin{
		Name:          name,
		Question:      question,
		Options:       options,
		MultiSelect:   p.MultiSelect,
		MaxSelections: maxSelections,
		Anonymous:     p.Anonymous,
		Status:        models.StatusActive,
		CreatorID:     caller.UserID,
		CreatorEmail:  caller.Email,
		ExpiresAt:     p.ExpiresAt.UTC(),
		Votes:         models.NewTally(len(options)),
	}, nil
}

// ListMine returns the caller's opins, most recently created first. Opins
// without a creation time sort last. An anonymous caller gets an empty list.
func (s *Service) ListMine(ctx context.Context, caller *models.Identity) ([]models.Opin, error) {
	if caller == nil {
		return []models.Opin{}, nil
	}
	list, err := s.store.ListByCreator(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list opins: %w", err)
	}
	if list == nil {
		list = []models.Opin{}
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].CreatedAt, list[j].CreatedAt
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		return a.After(b)
	})
	return list, nil
}

// GetByLinkID returns the opin shared under linkID.
func (s *Service) GetByLinkID(ctx context.Context, linkID string) (*models.Opin, error) {
	if !ValidLinkID(linkID) {
		return nil, models.ErrNotFound
	}
	return s.store.GetByLinkID(ctx, linkID)
}

// GetByID returns the opin with the given ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Opin, error) {
	return s.store.GetByID(ctx, id)
}

// Pause stops an opin from accepting votes until it is reactivated.
func (s *Service) Pause(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Opin, error) {
	return s.transition(ctx, caller, id, models.StatusPaused, func(from models.OpinStatus) bool {
		return from != models.StatusEnded
	})
}

// Reactivate resumes a paused opin.
func (s *Service) Reactivate(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Opin, error) {
	return s.transition(ctx, caller, id, models.StatusActive, func(from models.OpinStatus) bool {
		return from == models.StatusPaused
	})
}

// End closes an opin permanently. Ending an ended opin is a no-op.
func (s *Service) End(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Opin, error) {
	return s.transition(ctx, caller, id, models.StatusEnded, func(models.OpinStatus) bool {
		return true
	})
}

func (s *Service) transition(ctx context.Context, caller *models.Identity, id uuid.UUID, to models.OpinStatus, allowed func(models.OpinStatus) bool) (*models.Opin, error) {
	if caller == nil {
		return nil, models.ErrUnauthenticated
	}
	o, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.IsOwnedBy(caller) {
		return nil, models.ErrForbidden
	}
	if !allowed(o.Status) {
		return nil, fmt.Errorf("%w: %s to %s", models.ErrInvalidTransition, o.Status, to)
	}
	if err := s.store.SetStatus(ctx, id, to); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	from := o.Status
	o.Status = to
	s.logger.Info("opin status changed",
		zap.String("opin_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	s.announce(id, to)
	return o, nil
}

// SweepExpired ends the caller's active or paused opins whose expiry has
// passed and returns how many were ended.
func (s *Service) SweepExpired(ctx context.Context, caller *models.Identity) (int, error) {
	if caller == nil {
		return 0, nil
	}
	creator := caller.UserID
	return s.sweep(ctx, &creator)
}

// SweepAll ends expired opins of every creator.
func (s *Service) SweepAll(ctx context.Context) (int, error) {
	return s.sweep(ctx, nil)
}

func (s *Service) sweep(ctx context.Context, creator *uuid.UUID) (int, error) {
	ids, err := s.store.EndExpired(ctx, s.now(), creator)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.announce(id, models.StatusEnded)
	}
	if len(ids) > 0 {
		s.logger.Info("expired opins ended", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

func (s *Service) announce(id uuid.UUID, status models.OpinStatus) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastToOpinAndPublish(id, EventStatus, map[string]interface{}{
		"opin_id": id, "status": status,
	})
}

// ShareURL is the public voting link for an opin.
func (s *Service) ShareURL(linkID string) string {
	return s.origin + "/vote/" + linkID
}

// GraphShareURL is the public results link for an opin.
func (s *Service) GraphShareURL(linkID string) string {
	return s.origin + "/graph/" + linkID
}
