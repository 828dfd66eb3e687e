package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrSigningFailed = errors.New("signing failed")
	ErrInvalidInput  = errors.New("invalid input")
)

// Indexing error kinds. Handlers return exactly one of these (wrapped in an
// IndexError) and write nothing when they do.
var (
	ErrMarketNotFound        = errors.New("market not found")
	ErrMarketNotResolved     = errors.New("market not resolved")
	ErrMarketAlreadyResolved = errors.New("market already resolved")
	ErrMarketExists          = errors.New("market already exists")
	ErrPositionNotFound      = errors.New("position not found")
	ErrAlreadyClaimed        = errors.New("position already claimed")
	ErrUnknownEvent          = errors.New("unknown event")
	ErrInvalidEvent          = errors.New("invalid event")
	ErrOutOfOrder            = errors.New("event at or before cursor")
)

// IndexError reports why an event could not be applied.
type IndexError struct {
	Kind   error
	Event  EventKind
	Cursor Cursor
	Detail string
}

func (e *IndexError) Error() string {
	msg := fmt.Sprintf("%s at %s: %v", e.Event, e.Cursor, e.Kind)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap exposes the kind to errors.Is.
func (e *IndexError) Unwrap() error { return e.Kind }

// NewIndexError builds an IndexError for ev.
func NewIndexError(kind error, ev Event, detail string) *IndexError {
	return &IndexError{Kind: kind, Event: ev.Kind(), Cursor: ev.Header().Cursor(), Detail: detail}
}

// IsInconsistency reports whether err is a referential kind: the event names
// an entity whose state does not allow it. These can only come from a stream
// that violates chain ordering, and a lenient indexer may skip them.
func IsInconsistency(err error) bool {
	return errors.Is(err, ErrMarketNotFound) ||
		errors.Is(err, ErrMarketNotResolved) ||
		errors.Is(err, ErrMarketAlreadyResolved) ||
		errors.Is(err, ErrMarketExists) ||
		errors.Is(err, ErrPositionNotFound) ||
		errors.Is(err, ErrAlreadyClaimed)
}
