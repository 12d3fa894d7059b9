// Package lease arbitrates which of several running instances performs
// replication.
//
// A Lease is a named, time-bounded claim with an owner. Two backends are
// provided: SQLite stores the claim in the shared local database, for
// several instances on one device; Postgres stores it in the remote
// database, for instances spread over several hosts.
//
// The Coordinator drives one instance through the election:
//
//	Candidate --acquire ok--> Leader --renew fails--> Follower
//	    ^                                                 |
//	    +-------------------- lease released -------------+
//
// A leader that cannot renew stops its replication work, waits for it to
// finish, and releases the lease before anyone else can be elected, so two
// instances never replicate at once.
package lease
