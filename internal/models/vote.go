package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote is one user's ballot for an Opin. Ballots are immutable once recorded.
type Vote struct {
	ID              uuid.UUID `json:"id"`
	OpinID          uuid.UUID `json:"opin_id"`
	VoterID         uuid.UUID `json:"voter_id"`
	VoterEmail      string    `json:"voter_email"`
	SelectedOptions []int     `json:"selected_options"`
	VotedAt         time.Time `json:"voted_at"`
}

// Includes reports whether the ballot selected the option index.
func (v *Vote) Includes(index int) bool {
	for _, i := range v.SelectedOptions {
		if i == index {
			return true
		}
	}
	return false
}

// OptionDetail is the per-option breakdown of an Opin's results.
type OptionDetail struct {
	Index  int      `json:"index"`
	Text   string   `json:"text"`
	Count  int      `json:"count"`
	Voters []string `json:"voters"`
}

// VoteDetails is the result set of an Opin used by the graph and exports.
type VoteDetails struct {
	Opin       *Opin          `json:"opin"`
	Options    []OptionDetail `json:"options"`
	TotalVotes int            `json:"total_votes"`
}

// MaxCount returns the largest option count, or 0 when there are no options.
func (d *VoteDetails) MaxCount() int {
	m := 0
	for _, o := range d.Options {
		if o.Count > m {
			m = o.Count
		}
	}
	return m
}
