package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"  // Postgres driver.
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"strikelab/internal/maxpain"
	"strikelab/internal/util"
)

// Compile-time interface check.
var _ ResultStore = (*SQLStore)(nil)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		strategy   TEXT NOT NULL,
		symbol     TEXT NOT NULL,
		direction  TEXT NOT NULL,
		mode       TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		cells      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at)`,
	`CREATE TABLE IF NOT EXISTS max_pain (
		symbol    TEXT NOT NULL,
		expiry    BIGINT NOT NULL,
		ts        BIGINT NOT NULL,
		result    TEXT,
		error     TEXT,
		PRIMARY KEY (symbol, expiry, ts)
	)`,
}

// SQLStore implements ResultStore on SQLite or Postgres.
type SQLStore struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

// OpenSQLStore opens the database, waits for it to answer a ping and runs
// migrations. driver is "sqlite" (dsn is a file path) or "postgres".
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY under concurrent handlers.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, driver: driver, log: slog.Default().With("component", "sqlstore", "driver", driver)}
	ping := func() error {
		err := db.PingContext(ctx)
		if ctx.Err() != nil {
			return util.Permanent(err)
		}
		return err
	}
	if err := util.Retry(ctx, "ping "+driver, 5, 200*time.Millisecond, ping); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", driver, err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Info("result store ready")
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for i, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (s *SQLStore) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// SaveRun inserts a sweep. An empty ID is filled with a new UUID and a zero
// CreatedAt with the current time.
func (s *SQLStore) SaveRun(ctx context.Context, run *RunRecord) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	cells, err := json.Marshal(run.Cells)
	if err != nil {
		return "", fmt.Errorf("encoding cells: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO runs (id, strategy, symbol, direction, mode, created_at, cells) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.Strategy, run.Symbol, run.Direction, run.Mode, run.CreatedAt.UnixMilli(), string(cells))
	if err != nil {
		return "", fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return run.ID, nil
}

// GetRun loads one sweep with its cells.
func (s *SQLStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, strategy, symbol, direction, mode, created_at, cells FROM runs WHERE id = ?`), id)

	var (
		r       RunRecord
		created int64
		cells   string
	)
	if err := row.Scan(&r.ID, &r.Strategy, &r.Symbol, &r.Direction, &r.Mode, &created, &cells); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	if err := json.Unmarshal([]byte(cells), &r.Cells); err != nil {
		return nil, fmt.Errorf("decoding cells of run %s: %w", id, err)
	}
	for i := range r.Cells {
		if r.Cells[i].Error != "" {
			r.Cells[i].Err = errors.New(r.Cells[i].Error)
		}
	}
	return &r, nil
}

// ListRuns returns run headers, newest first.
func (s *SQLStore) ListRuns(ctx context.Context, f RunFilter) ([]RunRecord, error) {
	q := `SELECT id, strategy, symbol, direction, mode, created_at FROM runs`
	var (
		where []string
		args  []any
	)
	if f.Strategy != "" {
		where = append(where, "strategy = ?")
		args = append(args, f.Strategy)
	}
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, strings.ToUpper(f.Symbol))
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r       RunRecord
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Strategy, &r.Symbol, &r.Direction, &r.Mode, &created); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ---------------------------------------------------------------------------
// Max pain
// ---------------------------------------------------------------------------

// SaveMaxPain upserts one row per entry keyed by (symbol, expiry, timestamp).
func (s *SQLStore) SaveMaxPain(ctx context.Context, symbol string, expiry time.Time, entries []maxpain.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO max_pain (symbol, expiry, ts, result, error) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (symbol, expiry, ts) DO UPDATE SET result = excluded.result, error = excluded.error`))
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	sym := strings.ToUpper(symbol)
	for _, e := range entries {
		var result, errText sql.NullString
		if e.Result != nil {
			b, err := json.Marshal(e.Result)
			if err != nil {
				return fmt.Errorf("encoding max pain %s: %w", e.Timestamp.Format(time.DateOnly), err)
			}
			result = sql.NullString{String: string(b), Valid: true}
		}
		if e.Err != nil {
			errText = sql.NullString{String: e.Err.Error(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, sym, expiry.UnixMilli(), e.Timestamp.UnixMilli(), result, errText); err != nil {
			return fmt.Errorf("saving max pain %s: %w", e.Timestamp.Format(time.DateOnly), err)
		}
	}
	return tx.Commit()
}

// ListMaxPain returns the stored entries of one expiry ordered by timestamp.
func (s *SQLStore) ListMaxPain(ctx context.Context, symbol string, expiry time.Time) ([]maxpain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT ts, result, error FROM max_pain WHERE symbol = ? AND expiry = ? ORDER BY ts`),
		strings.ToUpper(symbol), expiry.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("listing max pain: %w", err)
	}
	defer rows.Close()

	var entries []maxpain.Entry
	for rows.Next() {
		var (
			ts            int64
			result, errTx sql.NullString
		)
		if err := rows.Scan(&ts, &result, &errTx); err != nil {
			return nil, fmt.Errorf("scanning max pain: %w", err)
		}
		e := maxpain.Entry{Timestamp: time.UnixMilli(ts).UTC()}
		if result.Valid {
			e.Result = new(maxpain.Result)
			if err := json.Unmarshal([]byte(result.String), e.Result); err != nil {
				return nil, fmt.Errorf("decoding max pain: %w", err)
			}
		}
		if errTx.Valid {
			e.Err = errors.New(errTx.String)
			e.Error = errTx.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
