// Package remote is the authoritative store replicas synchronize with.
//
// Postgres is the production implementation: records live in a
// transactions table, conflicts are resolved server-side with the same
// last-write-wins rule replicas use, and changes are announced with
// LISTEN/NOTIFY. Memory implements the same contract in-process for tests
// and scenario runs.
package remote

import (
	"context"
	"errors"

	"github.com/roach88/frugalflow/internal/record"
)

// ErrOffline is returned by Memory while it simulates a network outage.
var ErrOffline = errors.New("remote: offline")

// Change is a record version accepted by the remote, tagged with the
// position the remote assigned when it committed the write. Positions are
// strictly increasing in commit order and are unrelated to UpdatedAt, which
// only orders versions of one record.
type Change struct {
	Seq    int64
	Record record.Record
}

// Remote is the remote store API used by replication.
type Remote interface {
	// Upsert applies recs under last-write-wins. The call is atomic: either
	// every record is considered or none is.
	Upsert(ctx context.Context, recs []record.Record) error

	// Since returns up to limit changes committed after position after, in
	// position order. A record rewritten since appears once, at its latest
	// position.
	Since(ctx context.Context, after int64, limit int) ([]Change, error)

	// Subscribe calls fn for every record changed on the remote until ctx
	// ends or the channel fails. ready, if non-nil, is called once the
	// channel is listening; changes committed after that are delivered.
	// fn is called from one goroutine, in notification order. Always
	// returns a non-nil error.
	Subscribe(ctx context.Context, ready func(), fn func(record.Record)) error
}
