// Package ledger is the entry point for recording transactions and reading
// the balance.
//
// A Service ties one local store to the components that keep it live:
//
//	AddTransaction ──► store.Insert ──► change feed ──► balance.Aggregator ──► Balance()
//	                                        │
//	                                        └──► replication.Engine (leader only) ──► remote
//
// Services are constructed explicitly with New and own their background
// work between Start and Stop. Without WithReplication the ledger is
// local-only: writes stay on this device and no lease is contested.
package ledger
