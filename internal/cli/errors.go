package cli

import (
	"errors"

	"github.com/roach88/frugalflow/internal/lease"
	"github.com/roach88/frugalflow/internal/ledger"
	"github.com/roach88/frugalflow/internal/record"
	"github.com/roach88/frugalflow/internal/replication"
)

// reportError prints err through f and returns the matching ExitError.
// Rejected input and failed syncs exit with ExitFailure; anything else is
// a command error.
func reportError(f *OutputFormatter, message string, err error) error {
	var ve *record.ValidationError
	switch {
	case errors.As(err, &ve):
		_ = f.Error(CodeInvalidInput, ve.Message, map[string]string{"field": ve.Field})
		return WrapExitError(ExitFailure, message, err)

	case errors.Is(err, ledger.ErrLocalOnly):
		_ = f.Error(CodeConfig, "replication is not configured: set FRUGALFLOW_REMOTE_URL", nil)
		return WrapExitError(ExitCommandError, message, err)

	case errors.Is(err, lease.ErrHeld):
		_ = f.Error(CodeReplication, "another instance is replicating this ledger", nil)
		return WrapExitError(ExitFailure, message, err)

	case replication.IsReplication(err):
		_ = f.Error(CodeReplication, err.Error(), nil)
		return WrapExitError(ExitFailure, message, err)
	}

	_ = f.Error(CodeStorage, err.Error(), nil)
	return WrapExitError(ExitCommandError, message, err)
}
