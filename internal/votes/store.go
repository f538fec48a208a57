package votes

import (
	"context"

	"github.com/google/uuid"

	"github.com/opin-voting/backend/internal/models"
)

// Store is the ballot persistence contract.
type Store interface {
	HasVoted(ctx context.Context, opinID, voterID uuid.UUID) (bool, error)
	// Record stores the ballot and increments the tally of every selected
	// option as one atomic step. It fails with models.ErrAlreadyVoted when the
	// voter already has a ballot and models.ErrInvalidTransition when the opin
	// is no longer active. On success v.ID and v.VotedAt are filled in and the
	// updated tally is returned.
	Record(ctx context.Context, v *models.Vote) (models.Tally, error)
	ListByOpin(ctx context.Context, opinID uuid.UUID) ([]models.Vote, error)
	CountByOpin(ctx context.Context, opinID uuid.UUID) (int, error)
}

// OpinReader loads the opin a ballot is cast for.
type OpinReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Opin, error)
}

// Broadcaster pushes events to clients watching an opin.
type Broadcaster interface {
	BroadcastToOpinAndPublish(opinID uuid.UUID, event string, payload interface{})
}
