package history

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sydlexius/kgmerge/internal/database"
	"github.com/sydlexius/kgmerge/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "kgmerge.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, testLogger())
}

func TestRecordAndListFetches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, v := range []string{"label", "flag", "capital"} {
		run := &FetchRun{
			Endpoint:  "wikidata",
			Category:  "country",
			Variant:   v,
			Status:    StatusOK,
			Rows:      i * 10,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Duration:  1500 * time.Millisecond,
		}
		if err := s.RecordFetch(ctx, run); err != nil {
			t.Fatalf("RecordFetch: %v", err)
		}
		if run.ID == "" {
			t.Error("expected ID to be assigned")
		}
	}

	runs, err := s.RecentFetches(ctx, 2)
	if err != nil {
		t.Fatalf("RecentFetches: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Variant != "capital" || runs[1].Variant != "flag" {
		t.Errorf("order = %s, %s", runs[0].Variant, runs[1].Variant)
	}
	if runs[0].Rows != 20 || runs[0].Duration != 1500*time.Millisecond {
		t.Errorf("unexpected run: %+v", runs[0])
	}
	if !runs[0].StartedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("StartedAt = %v", runs[0].StartedAt)
	}
}

func TestRecordAndListMerges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	want := MergeRun{
		Endpoint:  "wikidata",
		Category:  "war",
		Status:    StatusOK,
		Entities:  120,
		Sources:   6,
		Skipped:   1,
		Path:      "data/result/war.json",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  250 * time.Millisecond,
	}
	in := want
	if err := s.RecordMerge(ctx, &in); err != nil {
		t.Fatalf("RecordMerge: %v", err)
	}
	want.ID = in.ID

	runs, err := s.RecentMerges(ctx, 0)
	if err != nil {
		t.Fatalf("RecentMerges: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if diff := cmp.Diff(want, runs[0]); diff != "" {
		t.Errorf("merge run mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribeRecordsEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	bus := event.NewBus(testLogger(), 16)
	s.Subscribe(bus)
	bus.Start()

	bus.Publish(event.Event{Type: event.FetchCompleted, Fetch: &event.Fetch{
		Endpoint: "wikidata", Category: "battle", Variant: "label", Rows: 3,
	}})
	bus.Publish(event.Event{Type: event.FetchFailed, Fetch: &event.Fetch{
		Endpoint: "wikidata", Category: "battle", Variant: "image", Err: "HTTP 500",
	}})
	bus.Publish(event.Event{Type: event.FetchSkipped, Fetch: &event.Fetch{
		Endpoint: "wikidata", Category: "battle", Variant: "person", Err: "circuit breaker open",
	}})
	bus.Publish(event.Event{Type: event.MergeFailed, Merge: &event.Merge{
		Endpoint: "wikidata", Category: "battle", Err: "no such directory",
	}})
	bus.Close()

	fetches, err := s.RecentFetches(ctx, 10)
	if err != nil {
		t.Fatalf("RecentFetches: %v", err)
	}
	statuses := map[string]string{}
	for _, r := range fetches {
		statuses[r.Variant] = r.Status
	}
	wantStatuses := map[string]string{"label": StatusOK, "image": StatusFailed, "person": StatusSkipped}
	if diff := cmp.Diff(wantStatuses, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}

	merges, err := s.RecentMerges(ctx, 10)
	if err != nil {
		t.Fatalf("RecentMerges: %v", err)
	}
	if len(merges) != 1 || merges[0].Status != StatusFailed || merges[0].Error != "no such directory" {
		t.Errorf("merges = %+v", merges)
	}
}
