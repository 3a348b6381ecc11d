package event

import (
	"log/slog"
	"sync"
	"time"
)

// Type identifies a category of event.
type Type string

// Known event types.
const (
	FetchCompleted Type = "fetch.completed"
	FetchFailed    Type = "fetch.failed"
	FetchSkipped   Type = "fetch.skipped"
	MergeCompleted Type = "merge.completed"
	MergeFailed    Type = "merge.failed"
)

// Fetch describes one (endpoint, category, variant) fetch.
type Fetch struct {
	Endpoint string
	Category string
	Variant  string
	Rows     int
	Path     string
	Err      string
	Started  time.Time
	Duration time.Duration
}

// Merge describes one category merge.
type Merge struct {
	Endpoint string
	Category string
	Entities int
	Sources  int
	Skipped  int
	Path     string
	Err      string
	Started  time.Time
	Duration time.Duration
}

// Event represents something that happened during a run. Exactly one of
// Fetch or Merge is set, matching Type.
type Event struct {
	Type      Type
	Timestamp time.Time
	Fetch     *Fetch
	Merge     *Merge
}

// Handler processes an event.
type Handler func(Event)

// Bus is an in-process event bus backed by a buffered channel. Handlers run
// on a single dispatch goroutine, in publish order.
type Bus struct {
	ch      chan Event
	mu      sync.RWMutex
	subs    map[Type][]Handler
	logger  *slog.Logger
	done    chan struct{}
	drained chan struct{}
	started bool
	closed  bool
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:      make(chan Event, bufSize),
		subs:    make(map[Type][]Handler),
		logger:  logger.With(slog.String("component", "event")),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Subscribe registers a handler for the given event types.
func (b *Bus) Subscribe(h Handler, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.subs[t] = append(b.subs[t], h)
	}
}

// Publish queues an event. It never blocks: when the buffer is full, or the
// bus is closed, the event is dropped with a warning.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Warn("event bus closed, dropping event", "type", string(e.Type))
		return
	}
	select {
	case b.ch <- e:
	default:
		b.logger.Warn("event bus full, dropping event", "type", string(e.Type))
	}
}

// Start launches the dispatch goroutine. Calling it more than once is a no-op.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	go b.run()
}

func (b *Bus) run() {
	defer close(b.drained)
	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-b.done:
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

// Close stops accepting events, dispatches everything already queued, and
// returns once the dispatch goroutine has exited.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	started := b.started
	close(b.done)
	b.mu.Unlock()

	if !started {
		// Nothing is dispatching; deliver the backlog inline.
		for {
			select {
			case e := <-b.ch:
				b.dispatch(e)
			default:
				return
			}
		}
	}
	<-b.drained
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "type", string(e.Type), "panic", r)
				}
			}()
			h(e)
		}()
	}
}
