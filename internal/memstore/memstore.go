// Package memstore is an in-memory implementation of the opin and vote stores.
// It honours the same contracts as the PostgreSQL repositories and is used by
// tests and by the server when started with STORE=memory.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opin-voting/backend/internal/models"
)

// Store keeps opins and votes in maps guarded by one mutex, so recording a
// vote and incrementing the tally happen atomically.
type Store struct {
	mu    sync.Mutex
	opins map[uuid.UUID]*models.Opin
	votes map[uuid.UUID][]models.Vote
	now   func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		opins: make(map[uuid.UUID]*models.Opin),
		votes: make(map[uuid.UUID][]models.Vote),
		now:   time.Now,
	}
}

// SetClock replaces the clock used for created_at and voted_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Insert adds a new opin.
func (s *Store) Insert(_ context.Context, o *models.Opin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.opins {
		if existing.LinkID == o.LinkID {
			return models.ErrLinkIDTaken
		}
	}
	o.ID = uuid.New()
	o.CreatedAt = s.now()
	s.opins[o.ID] = cloneOpin(o)
	return nil
}

// Put stores an opin as-is, bypassing link id checks. Useful for fixtures.
// A missing tally is zeroed.
func (s *Store) Put(o *models.Opin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Votes == nil {
		o.Votes = models.NewTally(len(o.Options))
	}
	s.opins[o.ID] = cloneOpin(o)
}

// GetByID returns a copy of the opin.
func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*models.Opin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.opins[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneOpin(o), nil
}

// GetByLinkID returns the earliest created opin with the link id.
func (s *Store) GetByLinkID(_ context.Context, linkID string) (*models.Opin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Opin
	for _, o := range s.opins {
		if o.LinkID == linkID && (found == nil || o.CreatedAt.Before(found.CreatedAt)) {
			found = o
		}
	}
	if found == nil {
		return nil, models.ErrNotFound
	}
	return cloneOpin(found), nil
}

// ListByCreator returns copies of the creator's opins in no particular order.
func (s *Store) ListByCreator(_ context.Context, creatorID uuid.UUID) ([]models.Opin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Opin
	for _, o := range s.opins {
		if o.CreatorID == creatorID {
			list = append(list, *cloneOpin(o))
		}
	}
	return list, nil
}

// SetStatus overwrites the opin status.
func (s *Store) SetStatus(_ context.Context, id uuid.UUID, status models.OpinStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.opins[id]
	if !ok {
		return models.ErrNotFound
	}
	o.Status = status
	return nil
}

// EndExpired ends active or paused opins with expiry before now.
func (s *Store) EndExpired(_ context.Context, now time.Time, creatorID *uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, o := range s.opins {
		if creatorID != nil && o.CreatorID != *creatorID {
			continue
		}
		if o.Expired(now) {
			o.Status = models.StatusEnded
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// HasVoted reports whether the voter has a ballot for the opin.
func (s *Store) HasVoted(_ context.Context, opinID, voterID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.votes[opinID] {
		if v.VoterID == voterID {
			return true, nil
		}
	}
	return false, nil
}

// Record stores the ballot and increments the tally of each selected option.
func (s *Store) Record(_ context.Context, v *models.Vote) (models.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.opins[v.OpinID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if o.Status != models.StatusActive {
		return nil, models.ErrInvalidTransition
	}
	for _, existing := range s.votes[v.OpinID] {
		if existing.VoterID == v.VoterID {
			return nil, models.ErrAlreadyVoted
		}
	}
	for _, i := range v.SelectedOptions {
		if i < 0 || i >= len(o.Votes) {
			return nil, models.ErrInvalidOption
		}
	}
	v.ID = uuid.New()
	v.VotedAt = s.now()
	stored := *v
	stored.SelectedOptions = append([]int(nil), v.SelectedOptions...)
	s.votes[v.OpinID] = append(s.votes[v.OpinID], stored)
	for _, i := range v.SelectedOptions {
		o.Votes[i]++
	}
	return append(models.Tally(nil), o.Votes...), nil
}

// CountByOpin returns the number of ballots for the opin.
func (s *Store) CountByOpin(_ context.Context, opinID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.votes[opinID]), nil
}

// ListByOpin returns the opin's ballots in the order they were cast.
func (s *Store) ListByOpin(_ context.Context, opinID uuid.UUID) ([]models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]models.Vote, len(s.votes[opinID]))
	copy(list, s.votes[opinID])
	sort.SliceStable(list, func(i, j int) bool { return list[i].VotedAt.Before(list[j].VotedAt) })
	return list, nil
}

func cloneOpin(o *models.Opin) *models.Opin {
	c := *o
	c.Options = append([]string(nil), o.Options...)
	c.Votes = append(models.Tally(nil), o.Votes...)
	return &c
}
