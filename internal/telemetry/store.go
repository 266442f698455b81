package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// MaxRecentFallbacks bounds the fallback_queries table.
const MaxRecentFallbacks = 100

// Store persists events in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the telemetry database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := InitSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// InitSchema creates the telemetry tables if they don't exist.
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS retrieval_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		k INTEGER NOT NULL,
		candidates INTEGER NOT NULL,
		matched INTEGER NOT NULL,
		returned INTEGER NOT NULL,
		fallback INTEGER NOT NULL,
		filters INTEGER NOT NULL,
		duration_ms REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS generation_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		backend TEXT NOT NULL,
		model TEXT NOT NULL,
		success INTEGER NOT NULL,
		error_code TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		duration_ms REAL NOT NULL
	);

	-- Daily counters keyed by metric name
	CREATE TABLE IF NOT EXISTS daily_stats (
		date TEXT NOT NULL,
		metric TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, metric)
	);

	-- Retrieval latency histogram
	CREATE TABLE IF NOT EXISTS retrieval_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);

	-- Queries that fell back to unfiltered results (most recent only)
	CREATE TABLE IF NOT EXISTS fallback_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		ts INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// RecordRetrieval stores a retrieval event and bumps the daily counters.
func (s *Store) RecordRetrieval(ctx context.Context, ev RetrievalEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	date := ev.Timestamp.UTC().Format(time.DateOnly)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO retrieval_events (ts, k, candidates, matched, returned, fallback, filters, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.Timestamp.UnixMilli(), ev.K, ev.Candidates, ev.Matched, ev.Returned, boolInt(ev.Fallback), ev.Filters, durationMs(ev.Duration))
	if err != nil {
		return fmt.Errorf("insert retrieval event: %w", err)
	}

	counters := map[string]int64{"retrievals": 1}
	if ev.Fallback {
		counters["retrieval_fallbacks"] = 1
	}
	if err := upsertCounters(ctx, tx, date, counters); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO retrieval_latency_stats (date, bucket, count)
		VALUES (?, ?, 1)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
	`, date, string(LatencyToBucket(ev.Duration)))
	if err != nil {
		return fmt.Errorf("insert latency count: %w", err)
	}

	if ev.Fallback && ev.Query != "" {
		if _, err := tx.ExecContext(ctx, `INSERT INTO fallback_queries (query, ts) VALUES (?, ?)`,
			ev.Query, ev.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("insert fallback query: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM fallback_queries
			WHERE id NOT IN (
				SELECT id FROM fallback_queries
				ORDER BY id DESC
				LIMIT ?
			)
		`, MaxRecentFallbacks)
		if err != nil {
			return fmt.Errorf("trim fallback queries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RecordGeneration stores a generation event and bumps the daily counters.
func (s *Store) RecordGeneration(ctx context.Context, ev GenerationEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Source == "" {
		ev.Source = SourceDirect
	}
	date := ev.Timestamp.UTC().Format(time.DateOnly)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO generation_events (ts, backend, model, success, error_code, source, reason, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.Timestamp.UnixMilli(), ev.Backend, ev.Model, boolInt(ev.Success), ev.ErrorCode, string(ev.Source), ev.Reason, durationMs(ev.Duration))
	if err != nil {
		return fmt.Errorf("insert generation event: %w", err)
	}

	counters := map[string]int64{"listings_" + string(ev.Source): 1}
	if ev.Backend != "" {
		counters["generations"] = 1
		if !ev.Success {
			counters["generation_failures"] = 1
		}
	}
	if err := upsertCounters(ctx, tx, date, counters); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func upsertCounters(ctx context.Context, tx *sql.Tx, date string, counters map[string]int64) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_stats (date, metric, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, metric) DO UPDATE SET count = count + excluded.count
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for metric, count := range counters {
		if _, err := stmt.ExecContext(ctx, date, metric, count); err != nil {
			return fmt.Errorf("upsert %s: %w", metric, err)
		}
	}
	return nil
}

// DailyCounts returns the summed daily counters between two dates
// (inclusive, YYYY-MM-DD).
func (s *Store) DailyCounts(ctx context.Context, from, to string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric, SUM(count) as total
		FROM daily_stats
		WHERE date >= ? AND date <= ?
		GROUP BY metric
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var metric string
		var count int64
		if err := rows.Scan(&metric, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[metric] = count
	}
	return counts, rows.Err()
}

// Summary aggregates events recorded at or after since. A zero since
// covers everything.
func (s *Store) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	sum := &Summary{
		GenerationFailures:  make(map[string]int),
		Listings:            make(map[Source]int),
		LatencyDistribution: make(map[LatencyBucket]int64),
		Since:               since,
	}
	sinceMs := since.UnixMilli()

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(fallback), 0), AVG(duration_ms)
		FROM retrieval_events WHERE ts >= ?
	`, sinceMs).Scan(&sum.Retrievals, &sum.Fallbacks, &avg)
	if err != nil {
		return nil, fmt.Errorf("query retrievals: %w", err)
	}
	if avg.Valid {
		sum.AvgRetrievalMs = avg.Float64
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM generation_events WHERE ts >= ? AND backend != ''
	`, sinceMs).Scan(&sum.Generations)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}

	if err := s.scanGroups(ctx, `
		SELECT error_code, COUNT(*) FROM generation_events
		WHERE ts >= ? AND success = 0 AND backend != ''
		GROUP BY error_code
	`, sinceMs, func(key string, n int) { sum.GenerationFailures[key] = n }); err != nil {
		return nil, fmt.Errorf("query generation failures: %w", err)
	}

	if err := s.scanGroups(ctx, `
		SELECT source, COUNT(*) FROM generation_events
		WHERE ts >= ?
		GROUP BY source
	`, sinceMs, func(key string, n int) { sum.Listings[Source(key)] = n }); err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}

	from := "0000-00-00"
	if !since.IsZero() {
		from = since.UTC().Format(time.DateOnly)
	}
	if err := s.scanGroups(ctx, `
		SELECT bucket, SUM(count) FROM retrieval_latency_stats
		WHERE date >= ?
		GROUP BY bucket
	`, from, func(key string, n int) { sum.LatencyDistribution[LatencyBucket(key)] = int64(n) }); err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}

	recent, err := s.RecentFallbacks(ctx, 10)
	if err != nil {
		return nil, err
	}
	sum.RecentFallbacks = recent
	return sum, nil
}

func (s *Store) scanGroups(ctx context.Context, query string, arg any, fn func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		fn(key, n)
	}
	return rows.Err()
}

// RecentFallbacks returns the most recent queries that fell back, newest
// first.
func (s *Store) RecentFallbacks(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query FROM fallback_queries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query fallback queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
