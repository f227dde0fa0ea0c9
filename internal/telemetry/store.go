package telemetry

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// MetricsStore persists query metrics across restarts.
type MetricsStore interface {
	// SaveKindCounts adds daily query kind counts.
	SaveKindCounts(date string, counts map[QueryKind]int64) error

	// GetKindCounts sums counts for a date range.
	GetKindCounts(from, to string) (map[QueryKind]int64, error)

	// UpsertTermCounts adds to term frequency counts.
	UpsertTermCounts(terms map[string]int64) error

	// GetTopTerms retrieves the top N terms by frequency.
	GetTopTerms(limit int) ([]TermCount, error)

	// AddZeroResultQuery appends to the bounded zero-result log.
	AddZeroResultQuery(query string, timestamp time.Time) error

	// GetZeroResultQueries retrieves recent zero-result queries, newest first.
	GetZeroResultQueries(limit int) ([]string, error)

	// SaveLatencyCounts adds daily latency histogram counts.
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error

	// GetLatencyCounts sums latency counts for a date range.
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)

	// Close releases resources.
	Close() error
}

// maxZeroResultRows bounds the persisted zero-result log.
const maxZeroResultRows = 100

const telemetrySchema = `
CREATE TABLE IF NOT EXISTS query_kind_stats (
	date TEXT NOT NULL,
	kind TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, kind)
);

CREATE TABLE IF NOT EXISTS query_terms (
	term TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 1,
	last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

CREATE TABLE IF NOT EXISTS zero_result_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS query_latency_stats (
	date TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);
`

// SQLiteMetricsStore implements MetricsStore on a SQLite file.
type SQLiteMetricsStore struct {
	db *sqlx.DB
}

// OpenSQLiteMetricsStore opens (creating if needed) the telemetry database
// at path. driver is a registered SQLite driver name ("sqlite" or "sqlite3").
func OpenSQLiteMetricsStore(path, driver string) (*SQLiteMetricsStore, error) {
	if driver == "" {
		driver = "sqlite"
	}
	db, err := sqlx.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(telemetrySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &SQLiteMetricsStore{db: db}, nil
}

type countRow struct {
	Key   string `db:"k"`
	Count int64  `db:"total"`
}

func (s *SQLiteMetricsStore) upsertDaily(table, column, date string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Preparex(fmt.Sprintf(`
		INSERT INTO %s (date, %s, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, %s) DO UPDATE SET count = count + excluded.count
	`, table, column, column))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, count := range counts {
		if _, err := stmt.Exec(date, key, count); err != nil {
			return fmt.Errorf("insert %s count: %w", column, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteMetricsStore) sumDaily(table, column, from, to string) (map[string]int64, error) {
	var rows []countRow
	err := s.db.Select(&rows, fmt.Sprintf(`
		SELECT %s AS k, SUM(count) AS total
		FROM %s
		WHERE date >= ? AND date <= ?
		GROUP BY %s
	`, column, table, column), from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s counts: %w", column, err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out, nil
}

// SaveKindCounts adds daily query kind counts.
func (s *SQLiteMetricsStore) SaveKindCounts(date string, counts map[QueryKind]int64) error {
	m := make(map[string]int64, len(counts))
	for k, v := range counts {
		m[string(k)] = v
	}
	return s.upsertDaily("query_kind_stats", "kind", date, m)
}

// GetKindCounts sums counts for a date range.
func (s *SQLiteMetricsStore) GetKindCounts(from, to string) (map[QueryKind]int64, error) {
	raw, err := s.sumDaily("query_kind_stats", "kind", from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[QueryKind]int64, len(raw))
	for k, v := range raw {
		out[QueryKind(k)] = v
	}
	return out, nil
}

// UpsertTermCounts adds to term frequency counts.
func (s *SQLiteMetricsStore) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Preparex(`
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for term, count := range terms {
		if _, err := stmt.Exec(term, count); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetTopTerms retrieves the top N terms by frequency.
func (s *SQLiteMetricsStore) GetTopTerms(limit int) ([]TermCount, error) {
	var terms []TermCount
	err := s.db.Select(&terms, `
		SELECT term, count
		FROM query_terms
		ORDER BY count DESC, term ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	return terms, nil
}

// AddZeroResultQuery appends a query and trims the log to the newest rows.
func (s *SQLiteMetricsStore) AddZeroResultQuery(query string, timestamp time.Time) error {
	if _, err := s.db.Exec(`INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`,
		query, timestamp.Unix()); err != nil {
		return fmt.Errorf("insert zero-result query: %w", err)
	}
	_, err := s.db.Exec(`
		DELETE FROM zero_result_queries
		WHERE id NOT IN (
			SELECT id FROM zero_result_queries
			ORDER BY id DESC
			LIMIT ?
		)
	`, maxZeroResultRows)
	if err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// GetZeroResultQueries retrieves recent zero-result queries, newest first.
func (s *SQLiteMetricsStore) GetZeroResultQueries(limit int) ([]string, error) {
	var queries []string
	err := s.db.Select(&queries, `
		SELECT query
		FROM zero_result_queries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	return queries, nil
}

// SaveLatencyCounts adds daily latency histogram counts.
func (s *SQLiteMetricsStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	m := make(map[string]int64, len(counts))
	for k, v := range counts {
		m[string(k)] = v
	}
	return s.upsertDaily("query_latency_stats", "bucket", date, m)
}

// GetLatencyCounts sums latency counts for a date range.
func (s *SQLiteMetricsStore) GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	raw, err := s.sumDaily("query_latency_stats", "bucket", from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[LatencyBucket]int64, len(raw))
	for k, v := range raw {
		out[LatencyBucket(k)] = v
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteMetricsStore) Close() error {
	return s.db.Close()
}
