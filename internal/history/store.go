// Package history records fetch and merge runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/kgmerge/internal/event"
)

// DefaultLimit is used when a listing is requested without a limit.
const DefaultLimit = 20

// Store reads and writes run history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a store on a migrated database.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger.With(slog.String("component", "history"))}
}

// RecordFetch inserts a fetch run. ID and StartedAt are filled in when empty.
func (s *Store) RecordFetch(ctx context.Context, r *FetchRun) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_runs (id, endpoint, category, variant, status, row_count, path, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Endpoint, r.Category, r.Variant, r.Status, r.Rows, r.Path, r.Error,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("inserting fetch run: %w", err)
	}
	return nil
}

// RecordMerge inserts a merge run. ID and StartedAt are filled in when empty.
func (s *Store) RecordMerge(ctx context.Context, r *MergeRun) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merge_runs (id, endpoint, category, status, entities, sources, skipped, path, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Endpoint, r.Category, r.Status, r.Entities, r.Sources, r.Skipped, r.Path, r.Error,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("inserting merge run: %w", err)
	}
	return nil
}

// RecentFetches returns the newest fetch runs first.
func (s *Store) RecentFetches(ctx context.Context, limit int) ([]FetchRun, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, endpoint, category, variant, status, row_count, path, error, started_at, duration_ms
		FROM fetch_runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing fetch runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []FetchRun
	for rows.Next() {
		var r FetchRun
		var started string
		var ms int64
		if err := rows.Scan(&r.ID, &r.Endpoint, &r.Category, &r.Variant, &r.Status, &r.Rows,
			&r.Path, &r.Error, &started, &ms); err != nil {
			return nil, fmt.Errorf("scanning fetch run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecentMerges returns the newest merge runs first.
func (s *Store) RecentMerges(ctx context.Context, limit int) ([]MergeRun, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, endpoint, category, status, entities, sources, skipped, path, error, started_at, duration_ms
		FROM merge_runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing merge runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []MergeRun
	for rows.Next() {
		var r MergeRun
		var started string
		var ms int64
		if err := rows.Scan(&r.ID, &r.Endpoint, &r.Category, &r.Status, &r.Entities, &r.Sources,
			&r.Skipped, &r.Path, &r.Error, &started, &ms); err != nil {
			return nil, fmt.Errorf("scanning merge run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Subscribe records every fetch and merge event published on bus. Handlers
// run on the bus goroutine, so inserts are serialized.
func (s *Store) Subscribe(bus *event.Bus) {
	bus.Subscribe(s.handle,
		event.FetchCompleted, event.FetchFailed, event.FetchSkipped,
		event.MergeCompleted, event.MergeFailed)
}

func (s *Store) handle(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch {
	case e.Fetch != nil:
		err = s.RecordFetch(ctx, fetchRunFromEvent(e))
	case e.Merge != nil:
		err = s.RecordMerge(ctx, mergeRunFromEvent(e))
	default:
		return
	}
	if err != nil {
		s.logger.Error("recording run history", "type", string(e.Type), "error", err)
	}
}

func fetchRunFromEvent(e event.Event) *FetchRun {
	f := e.Fetch
	status := StatusOK
	switch e.Type {
	case event.FetchFailed:
		status = StatusFailed
	case event.FetchSkipped:
		status = StatusSkipped
	}
	return &FetchRun{
		Endpoint:  f.Endpoint,
		Category:  f.Category,
		Variant:   f.Variant,
		Status:    status,
		Rows:      f.Rows,
		Path:      f.Path,
		Error:     f.Err,
		StartedAt: f.Started,
		Duration:  f.Duration,
	}
}

func mergeRunFromEvent(e event.Event) *MergeRun {
	m := e.Merge
	status := StatusOK
	if e.Type == event.MergeFailed {
		status = StatusFailed
	}
	return &MergeRun{
		Endpoint:  m.Endpoint,
		Category:  m.Category,
		Status:    status,
		Entities:  m.Entities,
		Sources:   m.Sources,
		Skipped:   m.Skipped,
		Path:      m.Path,
		Error:     m.Err,
		StartedAt: m.Started,
		Duration:  m.Duration,
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
