package models

import "errors"

// Domain errors returned by the opin and vote services. Callers match them
// with errors.Is; services may wrap them with more context.
var (
	ErrUnauthenticated   = errors.New("not signed in")
	ErrNotFound          = errors.New("opin not found")
	ErrForbidden         = errors.New("only the creator can change this opin")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyVoted      = errors.New("already voted on this opin")
	ErrEmptySelection    = errors.New("select at least one option")
	ErrTooManySelections = errors.New("too many options selected")
	ErrInvalidOption     = errors.New("invalid option selected")
	ErrInvalidOpin       = errors.New("invalid opin")

	// ErrLinkIDTaken is returned by stores when a generated link id already exists.
	ErrLinkIDTaken = errors.New("link id already in use")
)
