// Package merge turns the fetched result files of one category into
// <output>/result/<category>.json.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sydlexius/kgmerge/internal/aggregate"
	"github.com/sydlexius/kgmerge/internal/catalog"
	"github.com/sydlexius/kgmerge/internal/event"
	"github.com/sydlexius/kgmerge/internal/filesystem"
	"github.com/sydlexius/kgmerge/internal/resultset"
)

// Options configures a Merger.
type Options struct {
	OutputDir string
	// Workers bounds concurrent file decodes.
	Workers int
	// Strict fails the merge, without writing, when any source is skipped.
	Strict bool
}

// Report describes a finished merge.
type Report struct {
	Endpoint string
	Category string
	Entities int
	Sources  int
	Skipped  []aggregate.Diagnostic
	Stats    aggregate.Stats
	Path     string
	Duration time.Duration
}

// StrictError is returned in strict mode when sources had to be skipped.
type StrictError struct {
	Category string
	Skipped  []aggregate.Diagnostic
}

func (e *StrictError) Error() string {
	return fmt.Sprintf("merging %s: %d source(s) skipped, first: %s", e.Category, len(e.Skipped), e.Skipped[0])
}

// Unwrap exposes the per-source errors to errors.Is and errors.As.
func (e *StrictError) Unwrap() []error {
	errs := make([]error, len(e.Skipped))
	for i, d := range e.Skipped {
		errs[i] = d.Err
	}
	return errs
}

// Merger aggregates categories and writes result documents.
type Merger struct {
	catalog *catalog.Registry
	bus     *event.Bus
	opts    Options
	logger  *slog.Logger
}

// New creates a Merger. bus may be nil.
func New(reg *catalog.Registry, bus *event.Bus, opts Options, logger *slog.Logger) *Merger {
	return &Merger{
		catalog: reg,
		bus:     bus,
		opts:    opts,
		logger:  logger.With(slog.String("component", "merge")),
	}
}

// ResultPath is where the merged document for category is written.
func ResultPath(output, category string) string {
	return filepath.Join(output, "result", category+".json")
}

// Merge loads every result file fetched for (endpoint, category), aggregates
// them in file-name order, and writes the document. Unreadable or malformed
// files are skipped and listed in the report unless the merger is strict.
func (m *Merger) Merge(ctx context.Context, endpoint, category string) (Report, error) {
	start := time.Now()
	rep, err := m.merge(ctx, endpoint, category, start)
	rep.Duration = time.Since(start)

	info := &event.Merge{
		Endpoint: endpoint,
		Category: category,
		Entities: rep.Entities,
		Sources:  rep.Sources,
		Skipped:  len(rep.Skipped),
		Path:     rep.Path,
		Started:  start.UTC(),
		Duration: rep.Duration,
	}
	if err != nil {
		info.Err = err.Error()
		m.publish(event.Event{Type: event.MergeFailed, Merge: info})
		return rep, err
	}
	m.publish(event.Event{Type: event.MergeCompleted, Merge: info})
	return rep, nil
}

func (m *Merger) merge(ctx context.Context, endpoint, category string, start time.Time) (Report, error) {
	rep := Report{Endpoint: endpoint, Category: category}
	logger := m.logger.With(slog.String("endpoint", endpoint), slog.String("category", category))

	dir := resultset.SourceDir(m.opts.OutputDir, endpoint, category)
	sources, err := resultset.Load(ctx, dir, m.opts.Workers)
	if err != nil {
		return rep, fmt.Errorf("merging %s: %w", category, err)
	}
	rep.Sources = len(sources)

	agg := aggregate.New(m.catalog.EntityVar(endpoint, category))
	rep.Skipped = agg.AddSources(sources)
	for _, d := range rep.Skipped {
		logger.Warn("skipping result file", slog.String("source", d.Source), slog.String("error", d.Err.Error()))
	}
	if m.opts.Strict && len(rep.Skipped) > 0 {
		return rep, &StrictError{Category: category, Skipped: rep.Skipped}
	}

	doc := agg.Document()
	data, err := doc.Encode()
	if err != nil {
		return rep, fmt.Errorf("merging %s: %w", category, err)
	}
	path := ResultPath(m.opts.OutputDir, category)
	if err := filesystem.WriteFileAtomic(path, data, 0o644); err != nil {
		return rep, fmt.Errorf("writing %s: %w", path, err)
	}

	rep.Stats = agg.Stats()
	rep.Entities = rep.Stats.Entities
	rep.Path = path
	if rep.Stats.Shadowed > 0 {
		logger.Debug("generic values hidden by structured fields of the same name",
			slog.Int("values", rep.Stats.Shadowed))
	}

	logger.Info("merged category",
		slog.Int("entities", rep.Entities),
		slog.Int("sources", rep.Sources),
		slog.Int("skipped", len(rep.Skipped)),
		slog.Int("unclassified_rows", rep.Stats.Unclassified),
		slog.Int("shadowed_values", rep.Stats.Shadowed),
		slog.Duration("duration", time.Since(start)))
	return rep, nil
}

// IsStrict reports whether err came from a strict-mode rejection.
func IsStrict(err error) bool {
	var se *StrictError
	return errors.As(err, &se)
}

func (m *Merger) publish(e event.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}
