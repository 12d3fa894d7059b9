// Package record defines the ledger's transaction record.
//
// A Record is the unit stored locally, replicated to the remote store and
// aggregated into the running balance. Records are never edited in place:
// a newer version of the same id (including a tombstone) supersedes an older
// one under last-write-wins ordering (see Compare).
//
// # Timestamps
//
// Date and UpdatedAt are always UTC and truncated to microseconds (Stamp).
// Postgres timestamptz stores microseconds, so anything finer would not
// survive a round trip and two replicas would disagree on ordering.
//
// # Revision
//
// Revision is the hex SHA-256 of the record's canonical encoding. It only
// matters when two versions of one id carry the same UpdatedAt: the greater
// revision wins, so every replica picks the same survivor.
package record
