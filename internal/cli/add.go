package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/frugalflow/internal/ledger"
	"github.com/roach88/frugalflow/internal/record"
)

// dateLayout is the accepted --date format.
const dateLayout = "2006-01-02"

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Merchant string
	Category string
	Type     string
	Date     string
}

// AddResult is the JSON payload of the add command.
type AddResult struct {
	Transaction record.Record `json:"transaction"`
	Balance     string        `json:"balance"`
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <amount>",
		Short: "Record a transaction",
		Long: `Record an income or expense transaction and print the new balance.

The amount is a non-negative decimal; --type decides its sign. Merchant,
category, type and date default to "Unknown", "Uncategorized", expense
and today.

Example:
  frugalflow add 42.50 --merchant CoffeeCo --category Coffee
  frugalflow add 2500 --type income --merchant Employer --date 2026-10-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Merchant, "merchant", "m", "", "merchant name")
	cmd.Flags().StringVarP(&opts.Category, "category", "c", "", "category")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", string(record.TypeExpense), "income or expense")
	cmd.Flags().StringVar(&opts.Date, "date", "", "transaction date (YYYY-MM-DD, default today)")

	return cmd
}

func runAdd(cmd *cobra.Command, opts *AddOptions, amount string) error {
	f := opts.formatter(cmd)

	in := ledger.Input{
		Amount:   amount,
		Merchant: opts.Merchant,
		Category: opts.Category,
		Type:     record.Type(opts.Type),
	}
	if opts.Date != "" {
		date, err := time.ParseInLocation(dateLayout, opts.Date, time.Local)
		if err != nil {
			_ = f.Error(CodeInvalidInput, fmt.Sprintf("invalid date %q: want YYYY-MM-DD", opts.Date), nil)
			return WrapExitError(ExitCommandError, "invalid date", err)
		}
		in.Date = date
	}

	ctx := cmd.Context()
	s, err := opts.openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()
	if err := s.start(ctx); err != nil {
		return err
	}

	rec, err := s.svc.AddTransaction(ctx, in)
	if err != nil {
		return reportError(f, "failed to add transaction", err)
	}

	bal, _ := s.svc.CurrentBalance()
	text := fmt.Sprintf("Added %s %s at %s (%s) on %s\nBalance: %s",
		rec.Type,
		FormatMoney(rec.Amount, s.cfg.Currency),
		rec.Merchant,
		rec.Category,
		rec.Date.Local().Format(dateLayout),
		FormatMoney(bal, s.cfg.Currency),
	)
	return f.Success(text, AddResult{Transaction: rec, Balance: bal.String()})
}
