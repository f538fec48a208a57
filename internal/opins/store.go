package opins

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opin-voting/backend/internal/models"
)

// Store is the persistence contract for opins. Implementations return
// models.ErrNotFound for missing records and models.ErrLinkIDTaken when an
// insert collides on link id.
type Store interface {
	Insert(ctx context.Context, o *models.Opin) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Opin, error)
	GetByLinkID(ctx context.Context, linkID string) (*models.Opin, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]models.Opin, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.OpinStatus) error
	// EndExpired ends every active or paused opin whose expiry is before now.
	// A nil creatorID sweeps all creators.
	EndExpired(ctx context.Context, now time.Time, creatorID *uuid.UUID) ([]uuid.UUID, error)
}

// Broadcaster pushes events to clients watching an opin.
type Broadcaster interface {
	BroadcastToOpinAndPublish(opinID uuid.UUID, event string, payload interface{})
}
