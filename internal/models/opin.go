package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// OpinStatus is the lifecycle state of an Opin.
type OpinStatus string

const (
	StatusActive OpinStatus = "active"
	StatusPaused OpinStatus = "paused"
	StatusEnded  OpinStatus = "ended"
)

// MinOptions is the smallest number of options an Opin may have.
const MinOptions = 2

// Opin is a poll: a question with an ordered list of options. The position of
// an option in Options is its identity for the lifetime of the Opin.
type Opin struct {
	ID            uuid.UUID  `json:"id"`
	LinkID        string     `json:"link_id"`
	Name          string     `json:"name"`
	Question      string     `json:"question"`
	Options       []string   `json:"options"`
	MultiSelect   bool       `json:"multi_select"`
	MaxSelections int        `json:"max_selections"`
	Anonymous     bool       `json:"anonymous"`
	Status        OpinStatus `json:"status"`
	CreatorID     uuid.UUID  `json:"creator_id"`
	CreatorEmail  string     `json:"creator_email"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	Votes         Tally      `json:"votes"`
}

// IsOwnedBy reports whether the identity created the Opin.
func (o *Opin) IsOwnedBy(id *Identity) bool {
	return id != nil && o.CreatorID == id.UserID
}

// Expired reports whether an active or paused Opin is past its expiry.
func (o *Opin) Expired(now time.Time) bool {
	if o.Status != StatusActive && o.Status != StatusPaused {
		return false
	}
	return !o.ExpiresAt.IsZero() && o.ExpiresAt.Before(now)
}

// Tally holds the running vote count per option index.
type Tally []int

// NewTally returns a zeroed tally for n options.
func NewTally(n int) Tally {
	return make(Tally, n)
}

// Sum returns the total of all option counts. Under multi-select this can
// exceed the number of ballots.
func (t Tally) Sum() int {
	n := 0
	for _, c := range t {
		n += c
	}
	return n
}

// MarshalJSON renders the tally as an object keyed by option index.
func (t Tally) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, len(t))
	for i, c := range t {
		m[strconv.Itoa(i)] = c
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the object form produced by MarshalJSON.
func (t *Tally) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Tally, len(m))
	for k, c := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(m) {
			return fmt.Errorf("invalid tally key %q", k)
		}
		out[i] = c
	}
	*t = out
	return nil
}
