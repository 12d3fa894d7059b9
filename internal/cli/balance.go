package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// BalanceOptions holds flags for the balance command.
type BalanceOptions struct {
	*RootOptions
	Watch bool
}

// BalanceResult is the JSON payload of the balance command.
type BalanceResult struct {
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BalanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print the current balance",
		Long: `Print total income minus total expenses.

With --watch the balance is printed again every time it changes, including
changes written by other processes using the same database, until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "keep printing the balance as it changes")

	return cmd
}

func runBalance(cmd *cobra.Command, opts *BalanceOptions) error {
	f := opts.formatter(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := opts.openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()
	if err := s.start(ctx); err != nil {
		return err
	}

	sub := s.svc.Balance()
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			if opts.Watch && errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return WrapExitError(ExitCommandError, "balance interrupted", ctx.Err())

		case bal, ok := <-sub.C():
			if !ok {
				return NewExitError(ExitCommandError, "balance feed closed")
			}
			text := FormatMoney(bal, s.cfg.Currency)
			if err := f.Success(text, BalanceResult{Balance: bal.String(), Currency: s.cfg.Currency}); err != nil {
				return err
			}
			if !opts.Watch {
				return nil
			}
		}
	}
}
