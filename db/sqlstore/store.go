// Package sqlstore persists stack metadata snapshots in a SQL database.
// Snapshots are append-only; the newest row for a stack and region wins.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"cdkop/internal/metadata"
)

// Supported database/sql driver names.
const (
	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite3"
	DriverClickHouse = "clickhouse"
)

type dialect struct {
	driver      string
	createTable string
	positional  bool // $1, $2 instead of ?
}

var dialects = map[string]dialect{
	DriverPostgres: {
		driver: DriverPostgres,
		createTable: `
			CREATE TABLE IF NOT EXISTS stack_snapshots (
				id         TEXT PRIMARY KEY,
				stack      TEXT NOT NULL,
				region     TEXT NOT NULL,
				fetched_at TIMESTAMPTZ NOT NULL,
				records    TEXT NOT NULL
			)`,
		positional: true,
	},
	DriverSQLite: {
		driver: DriverSQLite,
		createTable: `
			CREATE TABLE IF NOT EXISTS stack_snapshots (
				id         TEXT PRIMARY KEY,
				stack      TEXT NOT NULL,
				region     TEXT NOT NULL,
				fetched_at TIMESTAMP NOT NULL,
				records    TEXT NOT NULL
			)`,
	},
	DriverClickHouse: {
		driver: DriverClickHouse,
		createTable: `
			CREATE TABLE IF NOT EXISTS stack_snapshots (
				id         String,
				stack      String,
				region     String,
				fetched_at DateTime64(3, 'UTC'),
				records    String
			) ENGINE = MergeTree
			ORDER BY (stack, region, fetched_at)`,
	},
}

// Store implements metadata.Store on database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects using a DSN whose scheme selects the driver:
// postgres://..., postgresql://..., sqlite3://<file>, clickhouse://...
func Open(dsn string) (*Store, error) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, fmt.Errorf("cache DSN %q has no scheme", dsn)
	}

	driver, source := scheme, dsn
	switch scheme {
	case "postgres", "postgresql":
		driver = DriverPostgres
	case DriverSQLite:
		source = rest
	case DriverClickHouse:
	default:
		return nil, fmt.Errorf("unsupported cache DSN scheme %q", scheme)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s cache: %w", driver, err)
	}
	return New(db, driver)
}

// New wraps an open database. driver must be one of the Driver constants.
func New(db *sql.DB, driver string) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	return &Store{db: db, dialect: d}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the snapshot table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createTable); err != nil {
		return fmt.Errorf("failed to create stack_snapshots: %w", err)
	}
	return nil
}

// Save inserts a snapshot.
func (s *Store) Save(ctx context.Context, snap *metadata.Snapshot) error {
	records, err := json.Marshal(snap.Records)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	query := s.rebind(`
		INSERT INTO stack_snapshots (id, stack, region, fetched_at, records)
		VALUES (?, ?, ?, ?, ?)
	`)
	_, err = s.db.ExecContext(ctx, query,
		snap.ID.String(),
		snap.Stack,
		snap.Region,
		snap.FetchedAt.UTC(),
		string(records),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Latest returns the newest snapshot for stack in region.
func (s *Store) Latest(ctx context.Context, stack, region string) (*metadata.Snapshot, error) {
	query := s.rebind(`
		SELECT id, fetched_at, records
		FROM stack_snapshots
		WHERE stack = ? AND region = ?
		ORDER BY fetched_at DESC
		LIMIT 1
	`)

	var (
		id        string
		fetchedAt time.Time
		records   string
	)
	err := s.db.QueryRowContext(ctx, query, stack, region).Scan(&id, &fetchedAt, &records)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metadata.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	snap := &metadata.Snapshot{
		Stack:     stack,
		Region:    region,
		FetchedAt: fetchedAt.UTC(),
	}
	if snap.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid snapshot id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(records), &snap.Records); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}
	return snap, nil
}

// rebind rewrites ? placeholders for drivers that use positional parameters.
func (s *Store) rebind(query string) string {
	if !s.dialect.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
