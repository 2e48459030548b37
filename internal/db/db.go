package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

// PragmaConfig controls the journaling and durability settings applied to
// the storage handle at open (§6 PRAGMA_JOURNAL_MODE / PRAGMA_SYNCHRONOUS).
type PragmaConfig struct {
	JournalMode string
	Synchronous string
}

// maxReadConns bounds the pool used for concurrent Pull reads. WAL allows
// any number of readers alongside the one in-flight writer; this just keeps
// the pool from growing unbounded under load.
const maxReadConns = 8

// NewSQLite opens the single embedded storage handle. Write serialization
// comes from the _txlock=immediate DSN parameter plus busy_timeout below
// (every BeginTx issues "BEGIN IMMEDIATE", acquiring SQLite's reserved
// writer lock up front and queuing a second writer rather than failing it),
// not from pinning the Go connection pool to one connection — doing that
// would make Pull, which never opens a transaction, queue behind the full
// duration of any in-flight Push. An in-memory database is the one
// exception: each new connection to ":memory:" opens a distinct, empty
// database, so it must stay pinned to a single connection for all callers
// to see the same data.
func NewSQLite(path string, cfg PragmaConfig) (*sqlx.DB, error) {
	// Per-connection pragmas go in the DSN so every pooled connection gets
	// them, not only the one that runs the Exec below.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(%s)", path, cfg.Synchronous)
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(maxReadConns)
	}

	pragmas := fmt.Sprintf(
		"PRAGMA journal_mode=%s; PRAGMA synchronous=%s; PRAGMA foreign_keys=ON; PRAGMA busy_timeout=5000;",
		cfg.JournalMode, cfg.Synchronous,
	)
	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return db, nil
}

// BeginImmediate starts a transaction holding the reserved writer lock from
// the first statement, so two concurrent pushes cannot race on counter
// allocation (§4.2 step 3, §5). It relies on the connection's _txlock=immediate
// DSN setting applied in NewSQLite.
func BeginImmediate(ctx context.Context, db *sqlx.DB) (*sqlx.Tx, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin immediate: %w", err)
	}
	return tx, nil
}

func NewRedis(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
