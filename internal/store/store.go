package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/frugalflow/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (transactions, checkpoints, leases)
const currentSchemaVersion = 1

// DefaultPollInterval is how often Watch checks for commits by other
// processes when no filesystem event arrives.
const DefaultPollInterval = time.Second

// MigrationFunc upgrades an existing database to a new schema version.
// It runs inside the transaction that bumps PRAGMA user_version.
type MigrationFunc func(ctx context.Context, tx *sql.Tx) error

// Store provides durable storage for ledger records.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db    *sql.DB
	path  string
	clock record.Clock

	pollInterval time.Duration
	migrations   map[int]MigrationFunc

	// mu serializes transaction-table writes with feed publication.
	mu          sync.Mutex
	subs        []*Subscription
	dataVersion int64
	closed      bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for lease expiry and checkpoint stamps.
func WithClock(c record.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithPollInterval sets the Watch poll fallback interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		s.pollInterval = d
	}
}

// WithMigration registers fn to run when an existing database's
// user_version is below version. Migrations run in ascending version order
// and the stored version is bumped to the highest registered version.
func WithMigration(version int, fn MigrationFunc) Option {
	return func(s *Store) {
		s.migrations[version] = fn
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times, and safe to
// call from several processes on the same file.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:         path,
		clock:        record.SystemClock{},
		pollInterval: DefaultPollInterval,
		migrations:   make(map[int]MigrationFunc),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, storageError("open", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageError("open", fmt.Errorf("connect: %w", err))
	}

	// SQLite only supports one writer at a time, so limit connections.
	// A single connection also keeps PRAGMA data_version meaningful: it only
	// moves when another connection commits.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, storageError("open", err)
	}

	if err := s.applySchema(db); err != nil {
		db.Close()
		return nil, storageError("open", err)
	}

	if err := db.QueryRow("PRAGMA data_version").Scan(&s.dataVersion); err != nil {
		db.Close()
		return nil, storageError("open", fmt.Errorf("read data_version: %w", err))
	}

	s.db = db
	return s, nil
}

// Close stops every feed subscription and closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SchemaVersion returns the stored PRAGMA user_version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, storageError("schema version", err)
	}
	return version, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func (s *Store) applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := s.runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies registered migrations based on user_version.
func (s *Store) runMigrations(db *sql.DB) error {
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	versions := make([]int, 0, len(s.migrations))
	for v := range s.migrations {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	target := currentSchemaVersion
	for _, v := range versions {
		if v > target {
			target = v
		}
		// A fresh database (version 0) starts at the current schema, so
		// only hooks above it apply.
		if v <= version || v <= currentSchemaVersion {
			continue
		}
		if err := s.migrations[v](ctx, tx); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v, err)
		}
	}

	if target > version {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return tx.Commit()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// withTx runs fn in an immediate transaction. Validation errors from fn
// pass through untouched; everything else becomes a StorageError.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(op, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		if record.IsValidation(err) {
			return err
		}
		return storageError(op, err)
	}

	if err := tx.Commit(); err != nil {
		return storageError(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}
