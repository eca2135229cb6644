// Package history keeps every processed run in a SQL database so results can
// be queried across runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/signalnine/expandbench/internal/result"
)

type Backend string

const (
	None     Backend = "none"
	SQLite   Backend = "sqlite"
	MySQL    Backend = "mysql"
	Postgres Backend = "postgres"
)

const (
	runsTable    = "expandbench_runs"
	metricsTable = "expandbench_metrics"
)

// Store records runs. A store opened with the none backend accepts every
// call and does nothing.
type Store struct {
	db      *sql.DB
	backend Backend
}

// MetricRow is one stored metric value.
type MetricRow struct {
	TestFile       string
	Variant        string
	ExpansionLimit int
	Metric         string
	Value          string
}

func Open(backend Backend, dsn string) (*Store, error) {
	var driverName string
	switch backend {
	case None, "":
		return &Store{backend: None}, nil
	case SQLite:
		driverName = "sqlite"
	case MySQL:
		driverName = "mysql"
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parsing MySQL dsn: %w. Expected user:password@tcp(host:port)/dbname", err)
		}
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	case Postgres:
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported history backend: %s", backend)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s history database: %w", backend, err)
	}
	if backend == SQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s history database: %w", backend, err)
	}

	s := &Store{db: db, backend: backend}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Enabled() bool { return s.db != nil }

func (s *Store) Backend() Backend { return s.backend }

func (s *Store) createTables() error {
	for _, q := range s.createQueries() {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("creating history tables: %w", err)
		}
	}
	return nil
}

func (s *Store) createQueries() []string {
	switch s.backend {
	case MySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS expandbench_runs (
				run_id VARCHAR(36) PRIMARY KEY,
				started_at DATETIME(6) NOT NULL,
				finished_at DATETIME(6),
				corpus_root TEXT NOT NULL,
				files INT
			)`,
			`CREATE TABLE IF NOT EXISTS expandbench_metrics (
				run_id VARCHAR(36) NOT NULL,
				test_file VARCHAR(512) NOT NULL,
				variant VARCHAR(16) NOT NULL,
				expansion_limit INT NOT NULL,
				metric VARCHAR(32) NOT NULL,
				value VARCHAR(64) NOT NULL,
				PRIMARY KEY (run_id, test_file, variant, expansion_limit, metric)
			)`,
		}
	case Postgres:
		return []string{
			`CREATE TABLE IF NOT EXISTS expandbench_runs (
				run_id TEXT PRIMARY KEY,
				started_at TIMESTAMPTZ NOT NULL,
				finished_at TIMESTAMPTZ,
				corpus_root TEXT NOT NULL,
				files INT
			)`,
			`CREATE TABLE IF NOT EXISTS expandbench_metrics (
				run_id TEXT NOT NULL,
				test_file TEXT NOT NULL,
				variant TEXT NOT NULL,
				expansion_limit INT NOT NULL,
				metric TEXT NOT NULL,
				value TEXT NOT NULL,
				PRIMARY KEY (run_id, test_file, variant, expansion_limit, metric)
			)`,
		}
	default:
		return []string{
			`CREATE TABLE IF NOT EXISTS expandbench_runs (
				run_id TEXT PRIMARY KEY,
				started_at TEXT NOT NULL,
				finished_at TEXT,
				corpus_root TEXT NOT NULL,
				files INTEGER
			)`,
			`CREATE TABLE IF NOT EXISTS expandbench_metrics (
				run_id TEXT NOT NULL,
				test_file TEXT NOT NULL,
				variant TEXT NOT NULL,
				expansion_limit INTEGER NOT NULL,
				metric TEXT NOT NULL,
				value TEXT NOT NULL,
				PRIMARY KEY (run_id, test_file, variant, expansion_limit, metric)
			)`,
		}
	}
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.backend != Postgres {
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

func (s *Store) formatTime(t time.Time) any {
	if s.backend == SQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t
}

func (s *Store) RecordRun(ctx context.Context, runID string, startedAt time.Time, corpusRoot string) error {
	if !s.Enabled() {
		return nil
	}
	q := s.rebind(`INSERT INTO ` + runsTable + ` (run_id, started_at, corpus_root) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, runID, s.formatTime(startedAt), corpusRoot); err != nil {
		return fmt.Errorf("recording run %s: %w", runID, err)
	}
	return nil
}

// RecordMetrics stores one row per metric key. Recording the same run, file
// and variant again replaces the earlier values.
func (s *Store) RecordMetrics(ctx context.Context, runID, testFile string, variant result.Variant, limit int, m result.Metrics) error {
	if !s.Enabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del := s.rebind(`DELETE FROM ` + metricsTable + ` WHERE run_id = ? AND test_file = ? AND variant = ? AND expansion_limit = ?`)
	if _, err := tx.ExecContext(ctx, del, runID, testFile, string(variant), limit); err != nil {
		return fmt.Errorf("clearing metrics for %s: %w", testFile, err)
	}
	ins := s.rebind(`INSERT INTO ` + metricsTable + ` (run_id, test_file, variant, expansion_limit, metric, value) VALUES (?, ?, ?, ?, ?, ?)`)
	for _, e := range m.Record() {
		if _, err := tx.ExecContext(ctx, ins, runID, testFile, string(variant), limit, e.Key, e.Value); err != nil {
			return fmt.Errorf("recording %s for %s: %w", e.Key, testFile, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing metrics for %s: %w", testFile, err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt time.Time, files int) error {
	if !s.Enabled() {
		return nil
	}
	q := s.rebind(`UPDATE ` + runsTable + ` SET finished_at = ?, files = ? WHERE run_id = ?`)
	res, err := s.db.ExecContext(ctx, q, s.formatTime(finishedAt), files, runID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run %s: no such run", runID)
	}
	return nil
}

// Metrics returns the stored rows of a run ordered by file, variant, limit
// and metric.
func (s *Store) Metrics(ctx context.Context, runID string) ([]MetricRow, error) {
	if !s.Enabled() {
		return nil, nil
	}
	q := s.rebind(`SELECT test_file, variant, expansion_limit, metric, value FROM ` + metricsTable +
		` WHERE run_id = ? ORDER BY test_file, variant, expansion_limit, metric`)
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("querying metrics of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []MetricRow
	for rows.Next() {
		var r MetricRow
		if err := rows.Scan(&r.TestFile, &r.Variant, &r.ExpansionLimit, &r.Metric, &r.Value); err != nil {
			return nil, fmt.Errorf("scanning metric row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunFiles returns the file count stored by FinishRun, or -1 while the run
// is unfinished.
func (s *Store) RunFiles(ctx context.Context, runID string) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	var files sql.NullInt64
	q := s.rebind(`SELECT files FROM ` + runsTable + ` WHERE run_id = ?`)
	if err := s.db.QueryRowContext(ctx, q, runID).Scan(&files); err != nil {
		return 0, fmt.Errorf("reading run %s: %w", runID, err)
	}
	if !files.Valid {
		return -1, nil
	}
	return int(files.Int64), nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
