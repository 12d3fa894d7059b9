package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Type distinguishes money coming in from money going out.
type Type string

const (
	// TypeIncome adds to the balance.
	TypeIncome Type = "income"
	// TypeExpense subtracts from the balance.
	TypeExpense Type = "expense"
)

// Valid reports whether t is one of the enumerated types.
func (t Type) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// Field defaults applied by the ledger when the caller leaves them empty.
const (
	DefaultMerchant = "Unknown"
	DefaultCategory = "Uncategorized"
	DefaultType     = TypeExpense
)

// MaxIDLength bounds client-generated ids.
const MaxIDLength = 100

// Record is one ledger transaction.
type Record struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Merchant  string          `json:"merchant"`
	Category  string          `json:"category"`
	Type      Type            `json:"type"`
	Date      time.Time       `json:"date"`
	UpdatedAt time.Time       `json:"updated_at"`
	Deleted   bool            `json:"deleted"`
}

// Normalize returns a copy of r with trimmed, NFC-normalized strings and
// stamped timestamps. Empty merchant/category stay empty; defaults are the
// caller's decision.
func (r Record) Normalize() Record {
	r.ID = strings.TrimSpace(r.ID)
	r.Merchant = norm.NFC.String(strings.TrimSpace(r.Merchant))
	r.Category = norm.NFC.String(strings.TrimSpace(r.Category))
	r.Type = Type(strings.ToLower(strings.TrimSpace(string(r.Type))))
	r.Date = Stamp(r.Date)
	r.UpdatedAt = Stamp(r.UpdatedAt)
	return r
}

// Signed returns the amount's contribution to the balance: positive for
// income, negative for expense, zero for tombstones.
func (r Record) Signed() decimal.Decimal {
	if r.Deleted {
		return decimal.Zero
	}
	if r.Type == TypeIncome {
		return r.Amount
	}
	return r.Amount.Neg()
}

// canonicalRecord fixes field order and representations for hashing.
type canonicalRecord struct {
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	Merchant  string `json:"merchant"`
	Category  string `json:"category"`
	Type      string `json:"type"`
	Date      int64  `json:"date"`
	UpdatedAt int64  `json:"updated_at"`
	Deleted   bool   `json:"deleted"`
}

// Revision returns the hex SHA-256 of the canonical encoding of r.
func (r Record) Revision() string {
	data, err := json.Marshal(canonicalRecord{
		ID:        r.ID,
		Amount:    r.Amount.String(),
		Merchant:  r.Merchant,
		Category:  r.Category,
		Type:      string(r.Type),
		Date:      r.Date.UnixMicro(),
		UpdatedAt: r.UpdatedAt.UnixMicro(),
		Deleted:   r.Deleted,
	})
	if err != nil {
		// Only strings, ints and bools: Marshal cannot fail.
		panic("record: canonical encoding: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Compare orders two versions of the same record under last-write-wins.
// It returns a positive number when a supersedes b, negative when b
// supersedes a, and zero when they are identical versions.
//
// Ordering is by UpdatedAt, then by Revision. Both are derived from the
// record alone, so every replica resolves a conflict the same way whatever
// the delivery order.
func Compare(a, b Record) int {
	if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.Revision(), b.Revision())
}

// Supersedes reports whether incoming should replace current.
func Supersedes(incoming, current Record) bool {
	return Compare(incoming, current) > 0
}
