package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/roach88/frugalflow/internal/record"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying changed rows.
const NotifyChannel = "ledger_transactions"

// writeLockKey is the transaction-scoped advisory lock every Upsert holds.
// Writers commit one at a time, so server_seq values become visible in
// increasing order and a reader never sees a gap that fills in later.
const writeLockKey int64 = 0x6c6564676572

// schemaStatements create the remote table, its commit sequence, and the
// trigger that announces every insert and update. Each is idempotent.
var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS transactions_server_seq`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id         TEXT PRIMARY KEY,
		amount     NUMERIC NOT NULL CHECK (amount >= 0),
		merchant   TEXT NOT NULL,
		category   TEXT NOT NULL,
		type       TEXT NOT NULL CHECK (type IN ('income', 'expense')),
		date       TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		deleted    BOOLEAN NOT NULL DEFAULT false,
		revision   TEXT NOT NULL,
		server_seq BIGINT NOT NULL DEFAULT nextval('transactions_server_seq')
	)`,
	`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS
		server_seq BIGINT NOT NULL DEFAULT nextval('transactions_server_seq')`,
	`DROP INDEX IF EXISTS transactions_cursor`,
	`CREATE UNIQUE INDEX IF NOT EXISTS transactions_server_seq_idx
		ON transactions (server_seq)`,
	`CREATE OR REPLACE FUNCTION ledger_transactions_notify() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('` + NotifyChannel + `', row_to_json(NEW)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS ledger_transactions_notify ON transactions`,
	`CREATE TRIGGER ledger_transactions_notify
		AFTER INSERT OR UPDATE ON transactions
		FOR EACH ROW EXECUTE FUNCTION ledger_transactions_notify()`,
}

// Postgres is a Remote backed by a Postgres database.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool to url. A non-empty password overrides
// the one in the URL.
func Connect(ctx context.Context, url, password string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if password != "" {
		cfg.ConnConfig.Password = password
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect remote: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping remote: %w", err)
	}
	return pool, nil
}

// NewPostgres wraps pool. The caller owns the pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the transactions table and notify trigger.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ensure schema: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ensure schema: commit: %w", err)
	}
	return nil
}

const upsertSQL = `
	INSERT INTO transactions
	(id, amount, merchant, category, type, date, updated_at, deleted, revision)
	VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		amount = excluded.amount,
		merchant = excluded.merchant,
		category = excluded.category,
		type = excluded.type,
		date = excluded.date,
		updated_at = excluded.updated_at,
		deleted = excluded.deleted,
		revision = excluded.revision,
		server_seq = excluded.server_seq
	WHERE (excluded.updated_at, excluded.revision COLLATE "C")
		> (transactions.updated_at, transactions.revision COLLATE "C")`

// Upsert implements Remote. The batch runs in one transaction. Every
// inserted or replaced row takes a fresh server_seq.
func (p *Postgres) Upsert(ctx context.Context, recs []record.Record) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		rec = rec.Normalize()
		batch.Queue(upsertSQL,
			rec.ID,
			rec.Amount.String(),
			rec.Merchant,
			rec.Category,
			string(rec.Type),
			rec.Date,
			rec.UpdatedAt,
			rec.Deleted,
			rec.Revision(),
		)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("upsert: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", writeLockKey); err != nil {
		return fmt.Errorf("upsert: lock: %w", err)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(recs), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("upsert: commit: %w", err)
	}
	return nil
}

// Since implements Remote.
func (p *Postgres) Since(ctx context.Context, after int64, limit int) ([]Change, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT server_seq, id, amount::text, merchant, category, type, date, updated_at, deleted
		FROM transactions
		WHERE server_seq > $1
		ORDER BY server_seq ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("since: %w", err)
	}

	changes, err := pgx.CollectRows(rows, scanRow)
	if err != nil {
		return nil, fmt.Errorf("since: %w", err)
	}
	return changes, nil
}

func scanRow(row pgx.CollectableRow) (Change, error) {
	var (
		ch     Change
		rec    = &ch.Record
		amount string
		typ    string
	)
	if err := row.Scan(&ch.Seq, &rec.ID, &amount, &rec.Merchant, &rec.Category, &typ,
		&rec.Date, &rec.UpdatedAt, &rec.Deleted); err != nil {
		return Change{}, err
	}

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return Change{}, fmt.Errorf("parse amount of %s: %w", rec.ID, err)
	}
	rec.Amount = amt
	rec.Type = record.Type(typ)
	rec.Date = record.Stamp(rec.Date)
	rec.UpdatedAt = record.Stamp(rec.UpdatedAt)
	return ch, nil
}

// Subscribe implements Remote. It holds one pooled connection in LISTEN
// mode for its whole lifetime. Payloads that cannot be decoded are logged
// and skipped.
func (p *Postgres) Subscribe(ctx context.Context, ready func(), fn func(record.Record)) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("subscribe: listen: %w", err)
	}
	defer func() {
		unlistenCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		conn.Exec(unlistenCtx, "UNLISTEN "+NotifyChannel)
	}()

	if ready != nil {
		ready()
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("subscribe: wait: %w", err)
		}

		rec, err := DecodeNotification(n.Payload)
		if err != nil {
			slog.Warn("skipping malformed notification", "component", "remote", "error", err)
			continue
		}
		fn(rec)
	}
}

// wireRecord is a transactions row as rendered by row_to_json.
type wireRecord struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Merchant  string          `json:"merchant"`
	Category  string          `json:"category"`
	Type      string          `json:"type"`
	Date      time.Time       `json:"date"`
	UpdatedAt time.Time       `json:"updated_at"`
	Deleted   bool            `json:"deleted"`
}

// DecodeNotification parses a NOTIFY payload into a record. The record is
// not validated.
func DecodeNotification(payload string) (record.Record, error) {
	var w wireRecord
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return record.Record{}, fmt.Errorf("decode notification: %w", err)
	}
	if w.ID == "" {
		return record.Record{}, fmt.Errorf("decode notification: missing id")
	}
	return record.Record{
		ID:        w.ID,
		Amount:    w.Amount,
		Merchant:  w.Merchant,
		Category:  w.Category,
		Type:      record.Type(w.Type),
		Date:      record.Stamp(w.Date),
		UpdatedAt: record.Stamp(w.UpdatedAt),
		Deleted:   w.Deleted,
	}, nil
}
