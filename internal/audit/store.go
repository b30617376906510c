// Package audit persists remediation outcomes and alert dispatches to an
// embedded DuckDB database.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Register DuckDB driver

	"hostsentry/internal/engine"
	"hostsentry/internal/remediation"
)

const schema = `
CREATE TABLE IF NOT EXISTS remediation_outcomes (
	action_id   VARCHAR NOT NULL,
	host_id     VARCHAR NOT NULL,
	trigger     VARCHAR NOT NULL,
	executed_at TIMESTAMP NOT NULL,
	succeeded   BOOLEAN NOT NULL,
	detail      VARCHAR
);
CREATE TABLE IF NOT EXISTS alert_dispatches (
	host_id   VARCHAR NOT NULL,
	metric    VARCHAR NOT NULL,
	severity  VARCHAR NOT NULL,
	value     DOUBLE NOT NULL,
	delivered BOOLEAN NOT NULL,
	error     VARCHAR,
	sent_at   TIMESTAMP NOT NULL
);
`

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds each audit write and query.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithThreads sets the number of DuckDB threads.
func WithThreads(n int) Option {
	return func(s *Store) {
		s.threads = n
	}
}

// Store is the audit trail. The empty DSN keeps the trail in memory, which
// matches how the engine treats audit data: an operational record for the
// running process, not long-term history.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	threads int
}

// NewStore opens (or creates) the audit database.
// DSN examples: "" or ":memory:" for in-memory, "/var/lib/hostsentry/audit.db"
// for a file.
func NewStore(dsn string, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	// DuckDB is embedded; serial access is often safer/faster for writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := s.opCtx(context.Background())
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	if s.threads > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA threads=%d", s.threads)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure audit db: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	s.db = db
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// RecordOutcome appends one remediation outcome.
func (s *Store) RecordOutcome(ctx context.Context, out remediation.Outcome) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO remediation_outcomes (action_id, host_id, trigger, executed_at, succeeded, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		out.ActionID, out.HostID, out.Trigger, out.ExecutedAt, out.Succeeded, out.Detail)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// RecordDispatch appends one alert dispatch attempt.
func (s *Store) RecordDispatch(ctx context.Context, rec engine.DispatchRecord) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_dispatches (host_id, metric, severity, value, delivered, error, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.HostID, rec.Metric, rec.Severity, rec.Value, rec.Delivered, rec.Error, rec.SentAt)
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

// RecentOutcomes returns up to limit outcomes, newest first.
func (s *Store) RecentOutcomes(ctx context.Context, limit int) ([]remediation.Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT action_id, host_id, trigger, executed_at, succeeded, detail
		 FROM remediation_outcomes ORDER BY executed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	// Initialize as empty slice
	outcomes := []remediation.Outcome{}
	for rows.Next() {
		var out remediation.Outcome
		if err := rows.Scan(&out.ActionID, &out.HostID, &out.Trigger, &out.ExecutedAt, &out.Succeeded, &out.Detail); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, rows.Err()
}

// RecentDispatches returns up to limit dispatch records, newest first.
func (s *Store) RecentDispatches(ctx context.Context, limit int) ([]engine.DispatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT host_id, metric, severity, value, delivered, error, sent_at
		 FROM alert_dispatches ORDER BY sent_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	// Initialize as empty slice
	records := []engine.DispatchRecord{}
	for rows.Next() {
		var rec engine.DispatchRecord
		if err := rows.Scan(&rec.HostID, &rec.Metric, &rec.Severity, &rec.Value, &rec.Delivered, &rec.Error, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
