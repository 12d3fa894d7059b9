// Package harness runs multi-replica ledger scenarios.
//
// A scenario declares a set of replicas, each with its own local store,
// sharing one in-memory remote. Steps add transactions, replicate, and
// manipulate the remote directly; assertions then check balances and
// convergence.
//
// # Scenario Format
//
//	name: offline_convergence
//	description: "Two offline replicas converge after reconnecting"
//	start: 2026-10-01T09:00:00Z     # optional
//	replicas: [a, b]
//	steps:
//	  - action: offline
//	  - action: add
//	    replica: a
//	    amount: "10"
//	    type: income
//	  - action: sync
//	    replica: a
//	    expect_error: offline
//	  - action: online
//	  - action: sync
//	    replica: a
//	assertions:
//	  - type: balance
//	    replica: a
//	    equals: "10"
//	  - type: converged
//
// # Step Actions
//
//   - add: AddTransaction on a replica (amount, merchant, category, type, date)
//   - sync: one pull and push round for a replica
//   - offline, online: toggle the simulated remote outage
//   - remote_put: write a record straight to the remote (id, amount, ...)
//   - remote_delete: tombstone a record on the remote (id)
//   - advance: move the clock forward (duration)
//
// # Assertion Types
//
//   - balance: a replica's balance equals a decimal
//   - transaction_count: a replica lists exactly count transactions
//   - contains, absent: a replica does or does not list id
//   - remote_count: the remote stores count records, tombstones included
//   - converged: every replica lists the remote's live records with equal balances
//
// # Deterministic Testing
//
// Replicas share a fake clock that starts at the scenario's start time and
// advances one second after every step. Each replica names its records
// "<replica>-0001", "<replica>-0002", and so on. Replication only happens
// in sync steps, never in the background, so a scenario always produces the
// same trace and final state and can be compared against a golden file.
package harness
