package votes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opin-voting/backend/internal/models"
)

// EventVoteCast is broadcast to an opin's room after a ballot is recorded.
const EventVoteCast = "vote_cast"

// Service validates and records ballots and builds result sets.
type Service struct {
	store       Store
	opins       OpinReader
	broadcaster Broadcaster
	logger      *zap.Logger
}

// NewService creates a votes service.
func NewService(store Store, opins OpinReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, opins: opins, logger: logger}
}

// SetBroadcaster attaches the realtime hub used to announce new tallies.
func (s *Service) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// HasVoted reports whether the caller already voted on the opin. An
// anonymous caller has never voted.
func (s *Service) HasVoted(ctx context.Context, caller *models.Identity, opinID uuid.UUID) (bool, error) {
	if caller == nil {
		return false, nil
	}
	return s.store.HasVoted(ctx, opinID, caller.UserID)
}

// Submit records the caller's ballot. Failures are checked in a fixed order:
// authentication, existence, status, prior ballot, then the selection itself.
func (s *Service) Submit(ctx context.Context, caller *models.Identity, opinID uuid.UUID, selected []int) (*models.Vote, error) {
	if caller == nil {
		return nil, models.ErrUnauthenticated
	}
	o, err := s.opins.GetByID(ctx, opinID)
	if err != nil {
		return nil, err
	}
	if o.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: opin is %s", models.ErrInvalidTransition, o.Status)
	}
	voted, err := s.store.HasVoted(ctx, opinID, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("check ballot: %w", err)
	}
	if voted {
		return nil, models.ErrAlreadyVoted
	}
	if err := validateSelection(o, selected); err != nil {
		return nil, err
	}

	v := &models.Vote{
		OpinID:          opinID,
		VoterID:         caller.UserID,
		VoterEmail:      caller.Email,
		SelectedOptions: append([]int(nil), selected...),
	}
	tally, err := s.store.Record(ctx, v)
	if err != nil {
		if isDomain(err) {
			return nil, err
		}
		return nil, fmt.Errorf("record vote: %w", err)
	}
	s.logger.Info("vote recorded",
		zap.String("opin_id", opinID.String()),
		zap.String("voter_id", caller.UserID.String()),
		zap.Ints("selected", v.SelectedOptions))
	s.announce(ctx, opinID, tally)
	return v, nil
}

func validateSelection(o *models.Opin, selected []int) error {
	if len(selected) == 0 {
		return models.ErrEmptySelection
	}
	if !o.MultiSelect && len(selected) > 1 {
		return models.ErrTooManySelections
	}
	if o.MultiSelect && len(selected) > o.MaxSelections {
		return fmt.Errorf("%w: at most %d", models.ErrTooManySelections, o.MaxSelections)
	}
	seen := make(map[int]bool, len(selected))
	for _, i := range selected {
		if i < 0 || i >= len(o.Options) {
			return fmt.Errorf("%w: %d is out of range", models.ErrInvalidOption, i)
		}
		if seen[i] {
			return fmt.Errorf("%w: %d selected twice", models.ErrInvalidOption, i)
		}
		seen[i] = true
	}
	return nil
}

func isDomain(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrInvalidTransition) ||
		errors.Is(err, models.ErrAlreadyVoted) ||
		errors.Is(err, models.ErrInvalidOption)
}

func (s *Service) announce(ctx context.Context, opinID uuid.UUID, tally models.Tally) {
	if s.broadcaster == nil {
		return
	}
	total, err := s.store.CountByOpin(ctx, opinID)
	if err != nil {
		s.logger.Warn("count ballots", zap.String("opin_id", opinID.String()), zap.Error(err))
	}
	s.broadcaster.BroadcastToOpinAndPublish(opinID, EventVoteCast, map[string]interface{}{
		"opin_id": opinID, "votes": tally, "total_votes": total,
	})
}

// GetVoteDetails returns the per-option breakdown of an opin. Voter emails
// are never included for anonymous opins.
func (s *Service) GetVoteDetails(ctx context.Context, opinID uuid.UUID) (*models.VoteDetails, error) {
	o, err := s.opins.GetByID(ctx, opinID)
	if err != nil {
		return nil, err
	}
	return s.Details(ctx, o)
}

// Details builds the result set for an already loaded opin.
func (s *Service) Details(ctx context.Context, o *models.Opin) (*models.VoteDetails, error) {
	ballots, err := s.store.ListByOpin(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list ballots: %w", err)
	}
	d := &models.VoteDetails{
		Opin:       o,
		Options:    make([]models.OptionDetail, len(o.Options)),
		TotalVotes: len(ballots),
	}
	for i, text := range o.Options {
		opt := models.OptionDetail{Index: i, Text: text, Voters: []string{}}
		if i < len(o.Votes) {
			opt.Count = o.Votes[i]
		}
		if !o.Anonymous {
			for j := range ballots {
				if ballots[j].Includes(i) {
					opt.Voters = append(opt.Voters, ballots[j].VoterEmail)
				}
			}
		}
		d.Options[i] = opt
	}
	return d, nil
}
