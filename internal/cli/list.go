package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/frugalflow/internal/record"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		Long:  "List live transactions ordered by date. Deleted transactions are not shown.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, rootOpts)
		},
	}
}

func runList(cmd *cobra.Command, opts *RootOptions) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := opts.openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	recs, err := s.svc.ListTransactions(ctx)
	if err != nil {
		return reportError(f, "failed to list transactions", err)
	}
	if recs == nil {
		recs = []record.Record{}
	}
	return f.Success(formatTable(recs, s.cfg.Currency), recs)
}

func formatTable(recs []record.Record, currency string) string {
	if len(recs) == 0 {
		return "No transactions."
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tAMOUNT\tMERCHANT\tCATEGORY")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Date.Local().Format(dateLayout),
			FormatMoney(r.Signed(), currency),
			r.Merchant,
			r.Category,
		)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}
