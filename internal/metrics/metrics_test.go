package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sydlexius/kgmerge/internal/event"
)

func TestObserveAndWriteTextfile(t *testing.T) {
	m := New()
	m.Observe(event.Event{Type: event.FetchCompleted, Fetch: &event.Fetch{
		Endpoint: "wikidata", Category: "country", Variant: "label", Rows: 10, Duration: time.Second,
	}})
	m.Observe(event.Event{Type: event.FetchCompleted, Fetch: &event.Fetch{
		Endpoint: "wikidata", Category: "country", Variant: "flag", Rows: 5, Duration: time.Second,
	}})
	m.Observe(event.Event{Type: event.FetchFailed, Fetch: &event.Fetch{
		Endpoint: "wikidata", Category: "country", Variant: "capital", Err: "HTTP 500",
	}})
	m.Observe(event.Event{Type: event.FetchSkipped, Fetch: &event.Fetch{
		Endpoint: "wikidata", Category: "war", Variant: "label",
	}})
	m.Observe(event.Event{Type: event.MergeCompleted, Merge: &event.Merge{
		Endpoint: "wikidata", Category: "country", Entities: 7, Skipped: 1,
	}})
	// Missing payloads are ignored.
	m.Observe(event.Event{Type: event.MergeCompleted})

	path := filepath.Join(t.TempDir(), "kgmerge.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		`kgmerge_fetch_total{category="country",endpoint="wikidata",status="ok"} 2`,
		`kgmerge_fetch_total{category="country",endpoint="wikidata",status="error"} 1`,
		`kgmerge_fetch_total{category="war",endpoint="wikidata",status="skipped"} 1`,
		`kgmerge_fetch_rows_total{category="country",endpoint="wikidata"} 15`,
		`kgmerge_merge_entities{category="country",endpoint="wikidata"} 7`,
		`kgmerge_merge_skipped_sources_total{category="country",endpoint="wikidata"} 1`,
		`kgmerge_fetch_duration_seconds_count{endpoint="wikidata"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q\n%s", want, out)
		}
	}
}

func TestWriteTextfileEmptyPath(t *testing.T) {
	if err := New().WriteTextfile(""); err != nil {
		t.Errorf("empty path should be a no-op, got %v", err)
	}
}
