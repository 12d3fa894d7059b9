package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/roach88/frugalflow/internal/record"
)

func TestQueryAll_Empty(t *testing.T) {
	s := createTestStore(t)

	recs, err := s.QueryAll(context.Background())
	if err != nil {
		t.Fatalf("QueryAll() failed: %v", err)
	}

	// Should return empty slice, not nil
	if recs == nil {
		t.Error("records is nil, want empty slice")
	}
	if len(recs) != 0 {
		t.Errorf("len(records) = %d, want 0", len(recs))
	}
}

func TestQueryAll_DeterministicOrdering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Inserted out of date order.
	for _, minutes := range []int{5, 1, 3} {
		id := "tx-" + string(rune('a'+minutes))
		if _, err := s.Insert(ctx, createTestRecord(id, "1", record.TypeIncome, minutes)); err != nil {
			t.Fatalf("Insert(%s) failed: %v", id, err)
		}
	}

	recs, err := s.QueryAll(ctx)
	if err != nil {
		t.Fatalf("QueryAll() failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(recs))
	}

	expected := []string{"tx-b", "tx-d", "tx-f"}
	for i, rec := range recs {
		if rec.ID != expected[i] {
			t.Errorf("records[%d].ID = %q, want %q (date ASC)", i, rec.ID, expected[i])
		}
	}
}

func TestQueryAll_SameDateOrderedByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"tx-z", "tx-a", "tx-m"} {
		if _, err := s.Insert(ctx, createTestRecord(id, "1", record.TypeIncome, 0)); err != nil {
			t.Fatalf("Insert(%s) failed: %v", id, err)
		}
	}

	recs, err := s.QueryAll(ctx)
	if err != nil {
		t.Fatalf("QueryAll() failed: %v", err)
	}

	expected := []string{"tx-a", "tx-m", "tx-z"}
	for i, rec := range recs {
		if rec.ID != expected[i] {
			t.Errorf("records[%d].ID = %q, want %q (id ASC tiebreaker)", i, rec.ID, expected[i])
		}
	}
}

func TestQueryAll_ExcludesTombstones(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	live := createTestRecord("tx-1", "10", record.TypeIncome, 0)
	gone := createTestRecord("tx-2", "5", record.TypeExpense, 0)
	for _, r := range []record.Record{live, gone} {
		if _, err := s.Insert(ctx, r); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}
	if _, err := s.Merge(ctx, tombstone(gone, 1)); err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}

	recs, err := s.QueryAll(ctx)
	if err != nil {
		t.Fatalf("QueryAll() failed: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "tx-1" {
		t.Errorf("QueryAll() = %v, want only tx-1", recs)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Get(context.Background(), "nonexistent")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Get() error = %v, want sql.ErrNoRows", err)
	}
}

func TestGet_RoundTripsFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := createTestRecord("tx-1", "42.50", record.TypeExpense, 2)
	want.Merchant = "CoffeeCo"
	want.Category = "Food"
	if _, err := s.Insert(ctx, want); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	got, err := s.Get(ctx, "tx-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Revision() != want.Revision() {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestPending_OnlyLocalAfterSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq1, err := s.Insert(ctx, createTestRecord("local-1", "1", record.TypeIncome, 0))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if _, err := s.Merge(ctx, createTestRecord("remote-1", "2", record.TypeIncome, 1)); err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	seq3, err := s.Insert(ctx, createTestRecord("local-2", "3", record.TypeIncome, 2))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	muts, err := s.Pending(ctx, 0, 10)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(muts) != 2 {
		t.Fatalf("len(pending) = %d, want 2", len(muts))
	}
	if muts[0].Seq != seq1 || muts[1].Seq != seq3 {
		t.Errorf("pending seqs = [%d %d], want [%d %d]", muts[0].Seq, muts[1].Seq, seq1, seq3)
	}

	muts, err = s.Pending(ctx, seq1, 10)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(muts) != 1 || muts[0].Record.ID != "local-2" {
		t.Errorf("Pending(after %d) = %v, want only local-2", seq1, muts)
	}
}

func TestPending_RemoteOverwriteIsNotPushed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	local := createTestRecord("tx-1", "1", record.TypeIncome, 0)
	if _, err := s.Insert(ctx, local); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if _, err := s.Merge(ctx, tombstone(local, 1)); err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}

	muts, err := s.Pending(ctx, 0, 10)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(muts) != 0 {
		t.Errorf("len(pending) = %d, want 0 once the remote version won", len(muts))
	}
}

func TestPending_Limit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		if _, err := s.Insert(ctx, createTestRecord(id, "1", record.TypeIncome, 0)); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}

	muts, err := s.Pending(ctx, 0, 3)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(muts) != 3 {
		t.Errorf("len(pending) = %d, want 3", len(muts))
	}
}

func TestStats(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.Insert(ctx, createTestRecord("a", "1", record.TypeIncome, 0))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if _, err := s.Insert(ctx, createTestRecord("b", "1", record.TypeIncome, 0)); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if _, err := s.Merge(ctx, tombstone(createTestRecord("c", "1", record.TypeIncome, 0), 1)); err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if err := s.SavePushCursor(ctx, seq); err != nil {
		t.Fatalf("SavePushCursor() failed: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	want := Stats{Live: 2, Tombstones: 1, Pending: 1, MaxSeq: 3}
	if st != want {
		t.Errorf("Stats() = %+v, want %+v", st, want)
	}
}
