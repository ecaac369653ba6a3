package chat

import "errors"

var (
	// ErrStorage wraps any backend read/write failure. Surfaced to the user
	// and the operation aborted; never retried.
	ErrStorage = errors.New("storage error")

	// ErrNotFound means the conversation does not exist (or is not owned by
	// the caller).
	ErrNotFound = errors.New("conversation not found")

	// ErrTurnActive rejects a submission while a previous turn for the same
	// conversation has not settled.
	ErrTurnActive = errors.New("a turn is already in flight")

	// ErrEmptyMessage rejects blank submissions.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrClosed rejects operations on a torn-down session.
	ErrClosed = errors.New("session closed")
)
