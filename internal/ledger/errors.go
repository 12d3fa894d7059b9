package ledger

import "errors"

var (
	// ErrNotStarted is returned by operations that need the background
	// components before Start has been called.
	ErrNotStarted = errors.New("ledger: service not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("ledger: service already started")

	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("ledger: service stopped")

	// ErrLocalOnly is returned by SyncOnce when no remote is configured.
	ErrLocalOnly = errors.New("ledger: replication not configured")
)
