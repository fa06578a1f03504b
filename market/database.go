package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Database provides high-level helpers around a SQL connection. SQLite is the
// default; Postgres is reachable through the pgx stdlib driver.
type Database struct {
	db      *sqlx.DB
	driver  string
	dialect goqu.DialectWrapper
}

// NewDatabase opens (or creates) the database, applies schema migrations and
// returns a ready store. For sqlite3 the dsn is a file path.
func NewDatabase(driver, dsn string) (*Database, error) {
	var (
		connStr = dsn
		dialect string
	)
	switch driver {
	case "", DriverSQLite:
		driver, dialect = DriverSQLite, "sqlite3"
		// Ensure directory exists so first-run succeeds.
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		connStr = fmt.Sprintf("file:%s?_busy_timeout=5000", dsn)
	case DriverPostgres:
		dialect = "postgres"
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	d := &Database{db: db, driver: driver, dialect: goqu.Dialect(dialect)}
	if err := d.applyMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// Driver returns the driver name the store was opened with.
func (d *Database) Driver() string { return d.driver }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 2

// migrations[i] brings the schema from version i to i+1.
var migrations = [][]string{{
	`CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        email TEXT NOT NULL UNIQUE,
        password_hash TEXT NOT NULL,
        full_name TEXT NOT NULL,
        student_id TEXT NOT NULL UNIQUE,
        phone TEXT NOT NULL DEFAULT '',
        faculty TEXT NOT NULL DEFAULT '',
        role TEXT NOT NULL,
        trust_score DOUBLE PRECISION NOT NULL,
        active BOOLEAN NOT NULL,
        favorites TEXT NOT NULL DEFAULT '[]',
        created_at TIMESTAMP NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS books (
        id TEXT PRIMARY KEY,
        seq BIGINT NOT NULL,
        owner_id TEXT NOT NULL,
        title TEXT NOT NULL,
        author TEXT NOT NULL,
        subject TEXT NOT NULL DEFAULT '',
        faculty TEXT NOT NULL DEFAULT '',
        description TEXT NOT NULL DEFAULT '',
        image_url TEXT NOT NULL DEFAULT '',
        book_condition TEXT NOT NULL,
        available_types TEXT NOT NULL DEFAULT '[]',
        price DOUBLE PRECISION NOT NULL DEFAULT 0,
        borrow_days INTEGER NOT NULL DEFAULT 0,
        status TEXT NOT NULL,
        posted_at TIMESTAMP NOT NULL,
        view_count INTEGER NOT NULL DEFAULT 0,
        visible BOOLEAN NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_books_owner ON books(owner_id)`,
	`CREATE TABLE IF NOT EXISTS transactions (
        id TEXT PRIMARY KEY,
        book_id TEXT NOT NULL,
        owner_id TEXT NOT NULL,
        borrower_id TEXT NOT NULL,
        type TEXT NOT NULL,
        status TEXT NOT NULL,
        message TEXT NOT NULL DEFAULT '',
        reason TEXT NOT NULL DEFAULT '',
        amount DOUBLE PRECISION NOT NULL DEFAULT 0,
        requested_at TIMESTAMP NOT NULL,
        approved_at TIMESTAMP,
        delivered_at TIMESTAMP,
        returned_at TIMESTAMP,
        due_date TIMESTAMP,
        owner_rating INTEGER,
        owner_review TEXT,
        borrower_rating INTEGER,
        borrower_review TEXT
    )`,
	`CREATE INDEX IF NOT EXISTS idx_tx_book ON transactions(book_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tx_owner ON transactions(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tx_borrower ON transactions(borrower_id)`,
	// At most one open transaction per book.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_one_active ON transactions(book_id)
        WHERE status IN ('PENDING','APPROVED','IN_PROGRESS')`,
	`CREATE TABLE IF NOT EXISTS notifications (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        kind TEXT NOT NULL,
        title TEXT NOT NULL,
        body TEXT NOT NULL DEFAULT '',
        related_id TEXT NOT NULL DEFAULT '',
        is_read BOOLEAN NOT NULL,
        created_at TIMESTAMP NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id)`,
	`CREATE TABLE IF NOT EXISTS reports (
        id TEXT PRIMARY KEY,
        reporter_id TEXT NOT NULL,
        reported_user_id TEXT NOT NULL,
        transaction_id TEXT NOT NULL DEFAULT '',
        type TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL,
        admin_note TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMP NOT NULL,
        resolved_at TIMESTAMP
    )`,
}, {
	`ALTER TABLE transactions ADD COLUMN reminded_at TIMESTAMP`,
}}

func (d *Database) applyMigrations() error {
	if d.driver == DriverSQLite {
		// WAL improves write concurrency.
		if _, err := d.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
	}

	if _, err := d.db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return fmt.Errorf("create meta: %w", err)
	}

	current, err := d.schemaVersion()
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := d.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for v := current; v < schemaVersion; v++ {
		for _, stmt := range migrations[v] {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("migration %d failed: %w", v+1, err)
			}
		}
	}

	query, args, err := d.dialect.Insert("meta").
		Rows(goqu.Record{"key": "schema_version", "value": strconv.Itoa(schemaVersion)}).
		OnConflict(goqu.DoUpdate("key", goqu.Record{"value": strconv.Itoa(schemaVersion)})).
		Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

func (d *Database) schemaVersion() (int, error) {
	query, args, err := d.dialect.From("meta").Select("value").
		Where(goqu.Ex{"key": "schema_version"}).Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}
	var v string
	if err := d.db.Get(&v, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	n, _ := strconv.Atoi(strings.TrimSpace(v))
	return n, nil
}

// ---------------------------------------------------------------------------
// Transactions and query helpers
// ---------------------------------------------------------------------------

// inTx runs fn inside a database transaction, committing only if fn succeeds.
func (d *Database) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func getOne[T any](ctx context.Context, q sqlx.QueryerContext, ds *goqu.SelectDataset) (*T, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var v T
	if err := sqlx.GetContext(ctx, q, &v, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func selectAll[T any](ctx context.Context, q sqlx.QueryerContext, ds *goqu.SelectDataset) ([]T, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var out []T
	if err := sqlx.SelectContext(ctx, q, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func exec(ctx context.Context, q sqlx.ExecerContext, b interface {
	ToSQL() (string, []any, error)
}) (int64, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// upsert inserts rec or overwrites the row sharing its id.
func (d *Database) upsert(ctx context.Context, q sqlx.ExecerContext, table string, rec goqu.Record) error {
	update := goqu.Record{}
	for k, v := range rec {
		if k != "id" {
			update[k] = v
		}
	}
	ds := d.dialect.Insert(table).Rows(rec).
		OnConflict(goqu.DoUpdate("id", update)).Prepared(true)
	if _, err := exec(ctx, q, ds); err != nil {
		return fmt.Errorf("save %s: %w", table, err)
	}
	return nil
}

func (d *Database) deleteByID(ctx context.Context, q sqlx.ExecerContext, table, id string) error {
	ds := d.dialect.Delete(table).Where(goqu.Ex{"id": id}).Prepared(true)
	n, err := exec(ctx, q, ds)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
