package replication

import (
	"errors"
	"fmt"
)

// ReplicationError reports a failed push, pull, or realtime round.
// It never reaches ledger callers; it is logged and surfaces on Status.
type ReplicationError struct {
	// Op is the failed flow ("push", "pull", "realtime").
	Op string

	// Err is the underlying network, remote, or storage error.
	Err error
}

// Error implements the error interface.
func (e *ReplicationError) Error() string {
	return fmt.Sprintf("replication %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReplicationError) Unwrap() error {
	return e.Err
}

// IsReplication returns true if err is or wraps a ReplicationError.
func IsReplication(err error) bool {
	var re *ReplicationError
	return errors.As(err, &re)
}

func replicationError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ReplicationError{Op: op, Err: err}
}
