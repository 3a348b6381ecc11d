// Package fetch runs catalog queries against SPARQL endpoints and stores each
// result set as <output>/sparql/<endpoint>/<category>/<variant>.json.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sydlexius/kgmerge/internal/catalog"
	"github.com/sydlexius/kgmerge/internal/event"
	"github.com/sydlexius/kgmerge/internal/filesystem"
	"github.com/sydlexius/kgmerge/internal/resultset"
	"github.com/sydlexius/kgmerge/internal/sparql"
)

// ErrCircuitOpen is returned when an endpoint's breaker rejects a fetch.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Querier runs a SPARQL query. *sparql.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, endpoint, query string) (*sparql.ResultSet, error)
}

// Options configures a Fetcher.
type Options struct {
	OutputDir string
	// MaxFailures is the number of consecutive failures that opens an
	// endpoint's breaker. Zero disables the breaker.
	MaxFailures uint32
	// Cooldown is how long an open breaker rejects fetches before letting one
	// through again.
	Cooldown time.Duration
}

// Result describes a stored result file.
type Result struct {
	Endpoint string
	Category string
	Variant  string
	Rows     int
	Path     string
	Duration time.Duration
}

// Failure is one variant that could not be fetched during FetchAll.
type Failure struct {
	Category string
	Variant  string
	Err      error
}

// Summary totals a FetchAll run.
type Summary struct {
	Fetched  int
	Failed   int
	Skipped  int
	Rows     int
	Failures []Failure
	Canceled bool
}

// Fetcher resolves catalog entries, queries endpoints, and writes results.
type Fetcher struct {
	client  Querier
	catalog *catalog.Registry
	bus     *event.Bus
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates a Fetcher. bus may be nil.
func New(client Querier, reg *catalog.Registry, bus *event.Bus, opts Options, logger *slog.Logger) *Fetcher {
	if opts.Cooldown <= 0 {
		opts.Cooldown = time.Minute
	}
	return &Fetcher{
		client:   client,
		catalog:  reg,
		bus:      bus,
		opts:     opts,
		logger:   logger.With(slog.String("component", "fetch")),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Fetch runs one catalog query and stores the result set. Nothing is written
// when the query fails.
func (f *Fetcher) Fetch(ctx context.Context, endpoint, category, variant string) (Result, error) {
	start := time.Now()
	info := event.Fetch{Endpoint: endpoint, Category: category, Variant: variant, Started: start.UTC()}

	q, err := f.catalog.Lookup(endpoint, category, variant)
	if err != nil {
		f.publishFailure(event.FetchFailed, info, start, err)
		return Result{}, err
	}
	info.Variant = q.Variant

	rs, err := f.query(ctx, q)
	if err != nil {
		typ := event.FetchFailed
		if errors.Is(err, ErrCircuitOpen) {
			typ = event.FetchSkipped
		}
		f.publishFailure(typ, info, start, err)
		return Result{}, err
	}

	path := resultset.SourcePath(f.opts.OutputDir, endpoint, q.Category, q.Variant)
	err = filesystem.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return sparql.Encode(w, rs)
	})
	if err != nil {
		err = fmt.Errorf("storing %s/%s: %w", q.Category, q.Variant, err)
		f.publishFailure(event.FetchFailed, info, start, err)
		return Result{}, err
	}

	res := Result{
		Endpoint: endpoint,
		Category: q.Category,
		Variant:  q.Variant,
		Rows:     rs.Len(),
		Path:     path,
		Duration: time.Since(start),
	}
	f.logger.Info("fetched result set",
		slog.String("endpoint", endpoint),
		slog.String("category", res.Category),
		slog.String("variant", res.Variant),
		slog.Int("rows", res.Rows),
		slog.Duration("duration", res.Duration))

	info.Rows = res.Rows
	info.Path = path
	info.Duration = res.Duration
	f.publish(event.Event{Type: event.FetchCompleted, Fetch: &info})
	return res, nil
}

// FetchAll fetches every variant of every category registered for endpoint,
// one at a time in catalog order. Failures are logged and skipped. The loop
// stops early only when ctx is canceled.
func (f *Fetcher) FetchAll(ctx context.Context, endpoint string) Summary {
	var sum Summary
	for _, c := range f.catalog.Categories(endpoint) {
		for _, v := range c.Variants {
			if ctx.Err() != nil {
				sum.Canceled = true
				return sum
			}
			res, err := f.Fetch(ctx, endpoint, c.Name, v.Name)
			switch {
			case err == nil:
				sum.Fetched++
				sum.Rows += res.Rows
			case ctx.Err() != nil:
				sum.Canceled = true
				return sum
			case errors.Is(err, ErrCircuitOpen):
				sum.Skipped++
				sum.Failures = append(sum.Failures, Failure{Category: c.Name, Variant: v.Name, Err: err})
			default:
				sum.Failed++
				sum.Failures = append(sum.Failures, Failure{Category: c.Name, Variant: v.Name, Err: err})
				f.logger.Warn("fetch failed, continuing",
					slog.String("endpoint", endpoint),
					slog.String("category", c.Name),
					slog.String("variant", v.Name),
					slog.String("error", err.Error()))
			}
		}
	}
	return sum
}

func (f *Fetcher) query(ctx context.Context, q catalog.Query) (*sparql.ResultSet, error) {
	cb := f.breaker(q.Endpoint)
	if cb == nil {
		return f.client.Query(ctx, q.Endpoint, q.Text)
	}
	out, err := cb.Execute(func() (any, error) {
		return f.client.Query(ctx, q.Endpoint, q.Text)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", q.Endpoint, ErrCircuitOpen)
	}
	if err != nil {
		return nil, err
	}
	return out.(*sparql.ResultSet), nil
}

// breaker returns the endpoint's breaker, creating it on first use.
func (f *Fetcher) breaker(endpoint string) *gobreaker.CircuitBreaker {
	if f.opts.MaxFailures == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[endpoint]; ok {
		return cb
	}
	maxFailures := f.opts.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1,
		Timeout:     f.opts.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("endpoint breaker state changed",
				slog.String("endpoint", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
		// A canceled run says nothing about the endpoint.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	f.breakers[endpoint] = cb
	return cb
}

func (f *Fetcher) publishFailure(typ event.Type, info event.Fetch, start time.Time, err error) {
	info.Err = err.Error()
	info.Duration = time.Since(start)
	f.publish(event.Event{Type: typ, Fetch: &info})
}

func (f *Fetcher) publish(e event.Event) {
	if f.bus != nil {
		f.bus.Publish(e)
	}
}
