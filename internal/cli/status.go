package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/frugalflow/internal/config"
	"github.com/roach88/frugalflow/internal/lease"
	"github.com/roach88/frugalflow/internal/store"
)

// StatusReport is the payload of the status command.
type StatusReport struct {
	Database    string      `json:"database"`
	Instance    string      `json:"instance"`
	Replication bool        `json:"replication"`
	Stats       store.Stats `json:"stats"`
	PushCursor  int64       `json:"push_cursor"`
	PullCursor  int64       `json:"pull_cursor"`
	Leader      string      `json:"leader,omitempty"`
	LeaderUntil time.Time   `json:"leader_until,omitzero"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local replication state",
		Long: `Show record counts, replication checkpoints and, for the local lease
backend, which instance currently replicates. The remote is not contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts)
		},
	}
}

func runStatus(cmd *cobra.Command, opts *RootOptions) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := opts.openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	report := StatusReport{
		Database:    s.cfg.DBPath,
		Instance:    s.cfg.InstanceID,
		Replication: s.cfg.ReplicationEnabled(),
	}
	if report.Stats, err = s.store.Stats(ctx); err != nil {
		return reportError(f, "failed to read status", err)
	}
	if report.PushCursor, err = s.store.PushCursor(ctx); err != nil {
		return reportError(f, "failed to read status", err)
	}
	if report.PullCursor, err = s.store.PullCursor(ctx); err != nil {
		return reportError(f, "failed to read status", err)
	}
	if s.cfg.LeaseBackend == config.LeaseLocal {
		claim, held, err := lease.NewSQLite(s.store, leaseName).Holder(ctx)
		if err != nil {
			return reportError(f, "failed to read status", err)
		}
		if held {
			report.Leader = claim.Owner
			report.LeaderUntil = claim.Expires
		}
	}

	return f.Success(formatReport(report), report)
}

func formatReport(r StatusReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "database:    %s\n", r.Database)
	fmt.Fprintf(&b, "instance:    %s\n", r.Instance)
	fmt.Fprintf(&b, "records:     %d live, %d deleted\n", r.Stats.Live, r.Stats.Tombstones)
	fmt.Fprintf(&b, "pending:     %d\n", r.Stats.Pending)
	if !r.Replication {
		b.WriteString("replication: off")
		return b.String()
	}
	b.WriteString("replication: on\n")
	if r.PullCursor > 0 {
		fmt.Fprintf(&b, "pulled to:   remote position %d\n", r.PullCursor)
	}
	if r.Leader != "" {
		fmt.Fprintf(&b, "leader:      %s\n", r.Leader)
	}
	return strings.TrimRight(b.String(), "\n")
}
