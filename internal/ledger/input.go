package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/frugalflow/internal/record"
)

// Input is a transaction as entered by a user. Empty fields take their
// defaults: merchant "Unknown", category "Uncategorized", type expense,
// date now.
type Input struct {
	// Amount is a non-negative decimal string such as "42.50".
	Amount   string
	Merchant string
	Category string
	Type     record.Type
	Date     time.Time
}

// ParseAmount parses a user-entered amount. Unparsable, negative and
// non-finite values are rejected with a "Invalid amount" ValidationError.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, record.NewValidationError("amount", "Invalid amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, record.NewValidationError("amount", "Invalid amount")
	}
	return d, nil
}

// build turns in into a complete record stamped with now. The id is drawn
// from newID only once the content is valid, so rejected input does not
// consume an identifier.
func (in Input) build(newID func() string, now time.Time) (record.Record, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return record.Record{}, err
	}

	rec := record.Record{
		Amount:    amount,
		Merchant:  in.Merchant,
		Category:  in.Category,
		Type:      in.Type,
		Date:      in.Date,
		UpdatedAt: now,
	}.Normalize()

	if rec.Merchant == "" {
		rec.Merchant = record.DefaultMerchant
	}
	if rec.Category == "" {
		rec.Category = record.DefaultCategory
	}
	if rec.Type == "" {
		rec.Type = record.DefaultType
	}
	if rec.Date.IsZero() {
		rec.Date = rec.UpdatedAt
	}

	if err := record.ValidateContent(rec); err != nil {
		return record.Record{}, err
	}
	rec.ID = newID()
	if err := record.Validate(rec); err != nil {
		return record.Record{}, err
	}
	return rec, nil
}
