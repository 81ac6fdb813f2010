// Package store persists privacy-conscious visitor metrics and the contact
// submission log in sqlite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Visitor is one tracked page view. IPs are stored hashed.
type Visitor struct {
	ID        int       `json:"id"`
	HashedIP  string    `json:"hashed_ip"`
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// ContactRecord is one contact submission outcome. Name and Email are only
// kept for successful submissions.
type ContactRecord struct {
	ID        int       `json:"id"`
	Status    string    `json:"status"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	TotalVisitors     int64           `json:"total_visitors"`
	UniqueVisitors    int64           `json:"unique_visitors"`
	VisitorsToday     int64           `json:"visitors_today"`
	VisitorsThisWeek  int64           `json:"visitors_this_week"`
	ContactsSent      int64           `json:"contacts_sent"`
	ContactsFailed    int64           `json:"contacts_failed"`
	RecentVisitors    []Visitor       `json:"recent_visitors"`
	RecentSubmissions []ContactRecord `json:"recent_submissions"`
}

// Store wraps the database handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the sqlite database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS visitors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hashed_ip TEXT NOT NULL,
		user_agent TEXT,
		path TEXT,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_visitors_timestamp ON visitors(timestamp);

	CREATE TABLE IF NOT EXISTS contact_submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		status TEXT NOT NULL CHECK (status IN ('success', 'error')),
		name TEXT,
		email TEXT,
		error TEXT,
		created_at DATETIME NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// RecordVisit stores one page view.
func (s *Store) RecordVisit(ctx context.Context, hashedIP, userAgent, path string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visitors (hashed_ip, user_agent, path, timestamp)
		VALUES (?, ?, ?, ?)
	`, hashedIP, userAgent, path, s.now().UTC())
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

// RecordContactSuccess logs a delivered message.
func (s *Store) RecordContactSuccess(ctx context.Context, name, email string) error {
	return s.recordContact(ctx, "success", name, email, "")
}

// RecordContactFailure logs a failed delivery without the visitor's input.
func (s *Store) RecordContactFailure(ctx context.Context, reason string) error {
	return s.recordContact(ctx, "error", "", "", reason)
}

func (s *Store) recordContact(ctx context.Context, status, name, email, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contact_submissions (status, name, email, error, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, status, name, email, reason, s.now().UTC())
	if err != nil {
		return fmt.Errorf("record contact: %w", err)
	}
	return nil
}

// RecentVisitors returns the latest visits, newest first.
func (s *Store) RecentVisitors(ctx context.Context, limit int) ([]Visitor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hashed_ip, COALESCE(user_agent, ''), COALESCE(path, ''), timestamp
		FROM visitors
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query visitors: %w", err)
	}
	defer rows.Close()

	var out []Visitor
	for rows.Next() {
		var v Visitor
		if err := rows.Scan(&v.ID, &v.HashedIP, &v.UserAgent, &v.Path, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scan visitor: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// RecentSubmissions returns the latest contact outcomes, newest first.
func (s *Store) RecentSubmissions(ctx context.Context, limit int) ([]ContactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, COALESCE(name, ''), COALESCE(email, ''), COALESCE(error, ''), created_at
		FROM contact_submissions
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []ContactRecord
	for rows.Next() {
		var r ContactRecord
		if err := rows.Scan(&r.ID, &r.Status, &r.Name, &r.Email, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats summarizes visits and contact outcomes.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stats := &Stats{}

	counts := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&stats.TotalVisitors, `SELECT COUNT(*) FROM visitors`, nil},
		{&stats.UniqueVisitors, `SELECT COUNT(DISTINCT hashed_ip) FROM visitors`, nil},
		{&stats.VisitorsToday, `SELECT COUNT(*) FROM visitors WHERE timestamp >= ?`, []any{dayStart}},
		{&stats.VisitorsThisWeek, `SELECT COUNT(*) FROM visitors WHERE timestamp >= ?`, []any{now.Add(-7 * 24 * time.Hour)}},
		{&stats.ContactsSent, `SELECT COUNT(*) FROM contact_submissions WHERE status = 'success'`, nil},
		{&stats.ContactsFailed, `SELECT COUNT(*) FROM contact_submissions WHERE status = 'error'`, nil},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}

	var err error
	if stats.RecentVisitors, err = s.RecentVisitors(ctx, 50); err != nil {
		return nil, err
	}
	if stats.RecentSubmissions, err = s.RecentSubmissions(ctx, 20); err != nil {
		return nil, err
	}
	return stats, nil
}

// CleanupVisitors deletes visits older than retention and reports how many.
func (s *Store) CleanupVisitors(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM visitors WHERE timestamp < ?`, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("cleanup visitors: %w", err)
	}
	return res.RowsAffected()
}
