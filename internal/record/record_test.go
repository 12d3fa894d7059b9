package record

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(id string) Record {
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return Record{
		ID:        id,
		Amount:    decimal.RequireFromString("42.50"),
		Merchant:  "CoffeeCo",
		Category:  "Food",
		Type:      TypeExpense,
		Date:      ts,
		UpdatedAt: ts,
	}
}

func TestValidate_Valid(t *testing.T) {
	require.NoError(t, Validate(testRecord("tx-1")))
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Record)
		field   string
		message string
	}{
		{"missing id", func(r *Record) { r.ID = "" }, "id", "Missing id"},
		{"long id", func(r *Record) { r.ID = strings.Repeat("x", MaxIDLength+1) }, "id", ""},
		{"negative amount", func(r *Record) { r.Amount = decimal.NewFromInt(-1) }, "amount", "Invalid amount"},
		{"bad type", func(r *Record) { r.Type = "transfer" }, "type", ""},
		{"empty type", func(r *Record) { r.Type = "" }, "type", ""},
		{"missing merchant", func(r *Record) { r.Merchant = "" }, "merchant", "Missing merchant"},
		{"missing category", func(r *Record) { r.Category = "" }, "category", "Missing category"},
		{"missing date", func(r *Record) { r.Date = time.Time{} }, "date", "Missing date"},
		{"missing updated_at", func(r *Record) { r.UpdatedAt = time.Time{} }, "updated_at", "Missing updated_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRecord("tx-1")
			tt.mutate(&r)

			err := Validate(r)
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			if tt.message != "" {
				assert.Equal(t, tt.message, ve.Error())
			}
		})
	}
}

func TestValidateContent_IgnoresID(t *testing.T) {
	r := testRecord("")
	assert.NoError(t, ValidateContent(r))

	r.Type = "transfer"
	var ve *ValidationError
	require.ErrorAs(t, ValidateContent(r), &ve)
	assert.Equal(t, "type", ve.Field)
}

func TestValidate_ZeroAmountAllowed(t *testing.T) {
	r := testRecord("tx-1")
	r.Amount = decimal.Zero
	assert.NoError(t, Validate(r))
}

func TestNormalize(t *testing.T) {
	r := testRecord(" tx-1 ")
	// "Cafe" with a combining acute accent normalizes to the precomposed form.
	r.Merchant = "  Cafe\u0301 "
	r.Type = " Income "
	r.Date = time.Date(2026, 10, 1, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))

	n := r.Normalize()
	assert.Equal(t, "tx-1", n.ID)
	assert.Equal(t, "Caf\u00e9", n.Merchant)
	assert.Equal(t, TypeIncome, n.Type)
	assert.Equal(t, time.UTC, n.Date.Location())
	assert.Equal(t, 123456000, n.Date.Nanosecond())
}

func TestSigned(t *testing.T) {
	r := testRecord("tx-1")
	assert.True(t, r.Signed().Equal(decimal.RequireFromString("-42.5")))

	r.Type = TypeIncome
	assert.True(t, r.Signed().Equal(decimal.RequireFromString("42.5")))

	r.Deleted = true
	assert.True(t, r.Signed().IsZero())
}

func TestRevision_StableAcrossAmountScale(t *testing.T) {
	a := testRecord("tx-1")
	b := testRecord("tx-1")
	b.Amount = decimal.RequireFromString("42.5")
	assert.Equal(t, a.Revision(), b.Revision())

	b.Merchant = "TeaCo"
	assert.NotEqual(t, a.Revision(), b.Revision())
}

func TestCompare_LaterUpdateWins(t *testing.T) {
	older := testRecord("tx-1")
	newer := testRecord("tx-1")
	newer.UpdatedAt = older.UpdatedAt.Add(time.Second)
	newer.Deleted = true

	assert.True(t, Supersedes(newer, older))
	assert.False(t, Supersedes(older, newer))
}

func TestCompare_TieBrokenByRevision(t *testing.T) {
	a := testRecord("tx-1")
	b := testRecord("tx-1")
	b.Merchant = "TeaCo"

	// Exactly one of the two wins, from either side.
	assert.NotEqual(t, Supersedes(a, b), Supersedes(b, a))
	assert.Equal(t, 0, Compare(a, a))
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := gen.Generate()
		assert.Len(t, id, 36)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestStamp(t *testing.T) {
	assert.True(t, Stamp(time.Time{}).IsZero())
	ts := Stamp(time.Date(2026, 1, 1, 0, 0, 0, 999, time.UTC))
	assert.Equal(t, 0, ts.Nanosecond())
}
