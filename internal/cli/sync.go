package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/frugalflow/internal/replication"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replicate once with the remote",
		Long: `Pull remote changes and push pending local transactions once.

Fails if no remote is configured or if another instance currently holds
the replication lease.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts)
		},
	}
}

func runSync(cmd *cobra.Command, opts *RootOptions) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := opts.openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.svc.SyncOnce(ctx); err != nil {
		return reportError(f, "sync failed", err)
	}

	st := s.svc.CurrentStatus()
	return f.Success(formatStatus(st), st)
}

func formatStatus(st replication.Status) string {
	text := fmt.Sprintf("pushed=%d pulled=%d skipped=%d", st.Pushed, st.Pulled, st.Skipped)
	if st.LastError != "" {
		text += fmt.Sprintf(" failures=%d last_error=%q", st.Failures, st.LastError)
	}
	return text
}
