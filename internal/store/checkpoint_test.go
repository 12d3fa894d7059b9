package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/frugalflow/internal/record"
)

func TestCheckpoint_DefaultsToZero(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	pull, err := s.PullCursor(ctx)
	if err != nil {
		t.Fatalf("PullCursor() failed: %v", err)
	}
	if pull != 0 {
		t.Errorf("PullCursor() = %d, want 0", pull)
	}

	push, err := s.PushCursor(ctx)
	if err != nil {
		t.Fatalf("PushCursor() failed: %v", err)
	}
	if push != 0 {
		t.Errorf("PushCursor() = %d, want 0", push)
	}
}

func TestSavePushCursor_NeverMovesBackwards(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, seq := range []int64{4, 9, 2} {
		if err := s.SavePushCursor(ctx, seq); err != nil {
			t.Fatalf("SavePushCursor(%d) failed: %v", seq, err)
		}
	}

	push, err := s.PushCursor(ctx)
	if err != nil {
		t.Fatalf("PushCursor() failed: %v", err)
	}
	if push != 9 {
		t.Errorf("PushCursor() = %d, want 9", push)
	}
}

func TestCheckpoint_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	page := []record.Record{createTestRecord("r-1", "1", record.TypeIncome, 3)}
	if _, err := s1.ApplyPull(ctx, page, 12); err != nil {
		t.Fatalf("ApplyPull() failed: %v", err)
	}
	if err := s1.SavePushCursor(ctx, 7); err != nil {
		t.Fatalf("SavePushCursor() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	pull, err := s2.PullCursor(ctx)
	if err != nil {
		t.Fatalf("PullCursor() failed: %v", err)
	}
	if pull != 12 {
		t.Errorf("PullCursor() = %d, want 12", pull)
	}

	push, err := s2.PushCursor(ctx)
	if err != nil {
		t.Fatalf("PushCursor() failed: %v", err)
	}
	if push != 7 {
		t.Errorf("PushCursor() = %d, want 7", push)
	}
}
