package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"time"

	"github.com/achille-roussel/sqlrange"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
	"modernc.org/sqlite"

	"github.com/bundlesmith/bundlesmith/internal/config"
	"github.com/bundlesmith/bundlesmith/internal/logging"
)

// SQLiteMemoryOnlyDSN is the DSN used when no database is configured and in
// tests.
const SQLiteMemoryOnlyDSN = "file::memory:?cache=shared"

var ErrNotFound = errors.New("not found")

// Database records build history. SQLite is the only supported backend.
type Database struct {
	db     *sql.DB
	config *config.Database
	log    *logging.Logger
}

func New() *Database {
	return &Database{}
}

func (d *Database) WithConfig(config *config.Database) *Database {
	d.config = config
	return d
}

func (d *Database) WithLogger(log *logging.Logger) *Database {
	d.log = log
	return d
}

func (d *Database) DB() *sql.DB {
	return d.db
}

func (d *Database) InitDB(ctx context.Context) error {
	driver, dsn := "sqlite", SQLiteMemoryOnlyDSN
	if d.config != nil && d.config.SQL != nil {
		if d.config.SQL.Driver != "" {
			driver = d.config.SQL.Driver
		}
		if d.config.SQL.DSN != "" {
			dsn = os.ExpandEnv(d.config.SQL.DSN)
		}
	}

	switch driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	if d.log != nil {
		// Route driver-level events through the structured logger.
		d.db = sqldblogger.OpenDriver(dsn, &sqlite.Driver{}, zerologadapter.New(d.log.ZeroLog()))
	} else {
		var err error
		if d.db, err = sql.Open("sqlite", dsn); err != nil {
			return err
		}
	}

	// SQLite locks the database file per connection.
	d.db.SetMaxOpenConns(1)

	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return d.createSchema(ctx)
}

func (d *Database) createSchema(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS builds (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pipeline TEXT NOT NULL,
	revision TEXT NOT NULL,
	state TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS builds_pipeline_idx ON builds (pipeline, id);
`)
	return err
}

func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Build is one build history row.
type Build struct {
	ID         int64  `sql:"id"`
	Pipeline   string `sql:"pipeline"`
	Revision   string `sql:"revision"`
	State      string `sql:"state"`
	Message    string `sql:"message"`
	StartedAt  int64  `sql:"started_at"` // unix milliseconds
	DurationMS int64  `sql:"duration_ms"`
}

func (b Build) Started() time.Time {
	return time.UnixMilli(b.StartedAt)
}

func (d *Database) InsertBuild(ctx context.Context, b Build) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO builds (pipeline, revision, state, message, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		b.Pipeline, b.Revision, b.State, b.Message, b.StartedAt, b.DurationMS)
	return err
}

// ListBuilds returns history rows, newest first. An empty pipeline name
// lists all pipelines.
func (d *Database) ListBuilds(ctx context.Context, pipeline string, limit int) iter.Seq2[Build, error] {
	if limit <= 0 {
		limit = 50
	}

	if pipeline != "" {
		return sqlrange.QueryContext[Build](ctx, d.db,
			`SELECT id, pipeline, revision, state, message, started_at, duration_ms FROM builds WHERE pipeline = ? ORDER BY id DESC LIMIT ?`,
			pipeline, limit)
	}

	return sqlrange.QueryContext[Build](ctx, d.db,
		`SELECT id, pipeline, revision, state, message, started_at, duration_ms FROM builds ORDER BY id DESC LIMIT ?`,
		limit)
}

// LastBuild returns the most recent build of the named pipeline.
func (d *Database) LastBuild(ctx context.Context, pipeline string) (*Build, error) {
	for b, err := range d.ListBuilds(ctx, pipeline, 1) {
		if err != nil {
			return nil, err
		}
		return &b, nil
	}
	return nil, fmt.Errorf("no builds for pipeline %q: %w", pipeline, ErrNotFound)
}
