// Package resultset loads the fetched result files of one category directory.
package resultset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/kgmerge/internal/aggregate"
	"github.com/sydlexius/kgmerge/internal/sparql"
)

// DefaultWorkers bounds concurrent file decodes when the caller passes zero.
const DefaultWorkers = 4

// SourceError is a per-file load failure.
type SourceError struct {
	Name string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.Name, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// SourceDir is where fetched result files for one category live:
// <output>/sparql/<endpoint>/<category>.
func SourceDir(output, endpoint, category string) string {
	return filepath.Join(output, "sparql", endpoint, category)
}

// SourcePath is the result file of one variant inside SourceDir.
func SourcePath(output, endpoint, category, variant string) string {
	return filepath.Join(SourceDir(output, endpoint, category), variant+".json")
}

// List returns the regular *.json files in dir, sorted by name. Directory
// listing order is platform-defined, and the aggregation appends generic
// values in file order, so sorting here is what makes merges reproducible.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading result directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Load decodes every result file in dir using up to workers goroutines. The
// returned sources follow List order regardless of completion order. A file
// that cannot be read or decoded becomes a source carrying a *SourceError;
// only a failure to list dir is returned as an error.
func Load(ctx context.Context, dir string, workers int) ([]aggregate.Source, error) {
	names, err := List(dir)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	sources := make([]aggregate.Source, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sources[i] = loadOne(dir, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

func loadOne(dir, name string) aggregate.Source {
	src := aggregate.Source{Name: name}
	f, err := os.Open(filepath.Join(dir, name)) //nolint:gosec // G304: name comes from listing dir
	if err != nil {
		src.Err = &SourceError{Name: name, Err: err}
		return src
	}
	defer f.Close() //nolint:errcheck

	rs, err := sparql.Decode(f)
	if err != nil {
		src.Err = &SourceError{Name: name, Err: err}
		return src
	}
	src.Set = rs
	return src
}
