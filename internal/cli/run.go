package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/frugalflow/internal/replication"
)

// RunEvent is one JSON line of run output.
type RunEvent struct {
	Role   string              `json:"role,omitempty"`
	Status *replication.Status `json:"status,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the ledger live and replicating",
		Long: `Run the ledger until interrupted.

The instance watches the database for writes from other processes and,
when a remote is configured, competes for the replication lease. The
leader pushes local transactions and pulls remote ones; other instances
wait and take over if the leader stops.

Role changes are printed as they happen; the final replication status is
printed on exit.

Example:
  FRUGALFLOW_REMOTE_URL=postgres://localhost/ledger frugalflow run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(cmd, rootOpts)
		},
	}
}

func runLedger(cmd *cobra.Command, opts *RootOptions) error {
	f := opts.formatter(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := opts.openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.close()

	if !s.svc.Replicated() {
		f.VerboseLog("no remote configured; running local-only")
	}

	roles := s.svc.Roles()
	defer roles.Cancel()

	if err := s.start(ctx); err != nil {
		return err
	}
	slog.Info("ledger running", "component", "cli", "instance", s.cfg.InstanceID, "db", s.cfg.DBPath)

	rolesC := roles.C()
	for {
		select {
		case <-ctx.Done():
			s.svc.Stop()
			st := s.svc.CurrentStatus()
			return f.Success("stopped: "+formatStatus(st), RunEvent{Status: &st})

		case role, ok := <-rolesC:
			if !ok {
				// Ends when the coordinator stops; shutdown follows.
				rolesC = nil
				continue
			}
			if err := f.Success("role: "+role.String(), RunEvent{Role: role.String()}); err != nil {
				return err
			}
		}
	}
}
