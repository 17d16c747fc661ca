package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/trafficear/pkg/types"
)

// JournalSchema is the SQL DDL for the decision journal. Execute it via
// [Journal.Migrate] or apply it manually during deployment.
const JournalSchema = `
CREATE TABLE IF NOT EXISTS vehicle_decisions (
    id          BIGSERIAL PRIMARY KEY,
    stream      TEXT NOT NULL,
    class       INTEGER NOT NULL,
    label       TEXT NOT NULL DEFAULT '',
    polarity    TEXT NOT NULL,
    cycle       BIGINT NOT NULL,
    decided_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_vehicle_decisions_stream_time ON vehicle_decisions(stream, decided_at DESC);
`

// DB is the database interface used by [Journal]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// JournalEntry is one persisted decision.
type JournalEntry struct {
	ID        int64
	Stream    string
	Class     int
	Label     string
	Polarity  string
	Cycle     uint64
	DecidedAt time.Time
}

// Journal persists decisions to PostgreSQL.
type Journal struct {
	db    DB
	now   func() time.Time
	close func()
}

// NewJournal returns a Journal writing through db. The caller owns db.
func NewJournal(db DB) *Journal {
	return &Journal{db: db, now: time.Now, close: func() {}}
}

// OpenJournal connects a pool to dsn, verifies the connection and applies
// [JournalSchema]. Close releases the pool.
func OpenJournal(ctx context.Context, dsn string) (*Journal, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("sink: journal: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sink: journal: ping: %w", err)
	}
	j := NewJournal(pool)
	j.close = pool.Close
	if err := j.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return j, nil
}

// Migrate executes [JournalSchema].
func (j *Journal) Migrate(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, JournalSchema); err != nil {
		return fmt.Errorf("sink: journal: migrate: %w", err)
	}
	return nil
}

// Name returns "journal".
func (*Journal) Name() string { return "journal" }

// Emit inserts d.
func (j *Journal) Emit(ctx context.Context, d types.Decision) error {
	_, err := j.db.Exec(ctx,
		`INSERT INTO vehicle_decisions (stream, class, label, polarity, cycle, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.Stream, d.Class, d.Label, d.Polarity.String(), int64(d.Cycle), j.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sink: journal: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit decisions of stream, newest first.
func (j *Journal) Recent(ctx context.Context, stream string, limit int) ([]JournalEntry, error) {
	rows, err := j.db.Query(ctx,
		`SELECT id, stream, class, label, polarity, cycle, decided_at
		 FROM vehicle_decisions WHERE stream = $1
		 ORDER BY decided_at DESC, id DESC LIMIT $2`,
		stream, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sink: journal: query: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (JournalEntry, error) {
		var (
			e     JournalEntry
			cycle int64
		)
		err := row.Scan(&e.ID, &e.Stream, &e.Class, &e.Label, &e.Polarity, &cycle, &e.DecidedAt)
		e.Cycle = uint64(cycle)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("sink: journal: scan: %w", err)
	}
	return entries, nil
}

// Close releases the pool opened by [OpenJournal]. It is a no-op for
// journals built with [NewJournal].
func (j *Journal) Close() { j.close() }
