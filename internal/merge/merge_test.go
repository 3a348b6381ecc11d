package merge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sydlexius/kgmerge/internal/aggregate"
	"github.com/sydlexius/kgmerge/internal/catalog"
	"github.com/sydlexius/kgmerge/internal/event"
	"github.com/sydlexius/kgmerge/internal/resultset"
	"github.com/sydlexius/kgmerge/internal/sparql"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeSources(t *testing.T, out, endpoint, category string, files map[string]string) {
	t.Helper()
	dir := resultset.SourceDir(out, endpoint, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readResult(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading result: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, data)
	}
	return doc
}

const (
	countryCapital = `{"head":{"vars":["country","capital","startTime","endTime","pointInTime"]},"results":{"bindings":[
		{"country":{"type":"uri","value":"Q183"},"capital":{"type":"uri","value":"Q64"},"pointInTime":{"type":"literal","value":"1990"}}
	]}}`
	countryLabel = `{"head":{"vars":["country","label","language"]},"results":{"bindings":[
		{"country":{"type":"uri","value":"Q183"},"label":{"type":"literal","xml:lang":"en","value":"Germany"},"language":{"type":"literal","value":"en"}},
		{"country":{"type":"uri","value":"Q183"},"label":{"type":"literal","xml:lang":"de","value":"Deutschland"},"language":{"type":"literal","value":"de"}}
	]}}`
	countryFlagA = `{"head":{"vars":["country","flag"]},"results":{"bindings":[
		{"country":{"type":"uri","value":"Q183"},"flag":{"type":"uri","value":"a.svg"}}
	]}}`
	countryFlagB = `{"head":{"vars":["country","flag"]},"results":{"bindings":[
		{"country":{"type":"uri","value":"Q183"},"flag":{"type":"uri","value":"b.svg"}},
		{"country":{"type":"uri","value":"Q17"},"flag":{"type":"uri","value":"jp.svg"}}
	]}}`
	malformed = `{"head":{"vars":["flag"]},"results":{"bindings":[{"flag":{"type":"uri","value":"x.svg"}}]}}`
)

func TestMergeWritesDocument(t *testing.T) {
	out := t.TempDir()
	// Sorted order puts flag_a before flag_b regardless of listing order.
	writeSources(t, out, sparql.Wikidata, "country", map[string]string{
		"capital.json": countryCapital,
		"label.json":   countryLabel,
		"flag_b.json":  countryFlagB,
		"flag_a.json":  countryFlagA,
	})

	bus := event.NewBus(testLogger(), 8)
	var got []event.Event
	bus.Subscribe(func(e event.Event) { got = append(got, e) }, event.MergeCompleted)
	bus.Start()

	m := New(catalog.Default(), bus, Options{OutputDir: out, Workers: 2}, testLogger())
	rep, err := m.Merge(context.Background(), sparql.Wikidata, "country")
	bus.Close()
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if rep.Entities != 2 || rep.Sources != 4 || len(rep.Skipped) != 0 {
		t.Errorf("unexpected report: %+v", rep)
	}
	if rep.Path != ResultPath(out, "country") {
		t.Errorf("Path = %s", rep.Path)
	}

	want := map[string]any{
		"Q183": map[string]any{
			"capital": map[string]any{"Q64": map[string]any{"point_in_time": "1990"}},
			"flag":    []any{"a.svg", "b.svg"},
			"label":   map[string]any{"de": "Deutschland", "en": "Germany"},
		},
		"Q17": map[string]any{
			"flag": []any{"jp.svg"},
		},
	}
	if diff := cmp.Diff(want, readResult(t, rep.Path)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	if len(got) != 1 || got[0].Merge.Entities != 2 || got[0].Merge.Sources != 4 {
		t.Errorf("events = %+v", got)
	}
}

func TestMergeSkipsBadSources(t *testing.T) {
	out := t.TempDir()
	writeSources(t, out, sparql.Wikidata, "country", map[string]string{
		"flag.json":      countryFlagA,
		"truncated.json": `{"head":{"vars":`,
		"other.json":     malformed,
	})

	m := New(catalog.Default(), nil, Options{OutputDir: out}, testLogger())
	rep, err := m.Merge(context.Background(), sparql.Wikidata, "country")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(rep.Skipped) != 2 {
		t.Fatalf("skipped = %v", rep.Skipped)
	}
	if rep.Skipped[0].Source != "other.json" || rep.Skipped[1].Source != "truncated.json" {
		t.Errorf("skipped order = %v", rep.Skipped)
	}
	var mbe *aggregate.MalformedBindingError
	if !errors.As(rep.Skipped[0].Err, &mbe) {
		t.Errorf("expected MalformedBindingError, got %v", rep.Skipped[0].Err)
	}
	var se *resultset.SourceError
	if !errors.As(rep.Skipped[1].Err, &se) {
		t.Errorf("expected SourceError, got %v", rep.Skipped[1].Err)
	}

	doc := readResult(t, rep.Path)
	if len(doc) != 1 {
		t.Errorf("expected one entity, got %v", doc)
	}
}

func TestMergeStrictWritesNothing(t *testing.T) {
	out := t.TempDir()
	writeSources(t, out, sparql.Wikidata, "country", map[string]string{
		"flag.json":  countryFlagA,
		"other.json": malformed,
	})

	m := New(catalog.Default(), nil, Options{OutputDir: out, Strict: true}, testLogger())
	_, err := m.Merge(context.Background(), sparql.Wikidata, "country")
	if !IsStrict(err) {
		t.Fatalf("expected StrictError, got %v", err)
	}
	var mbe *aggregate.MalformedBindingError
	if !errors.As(err, &mbe) {
		t.Errorf("strict error should unwrap to MalformedBindingError")
	}
	if _, err := os.Stat(ResultPath(out, "country")); !os.IsNotExist(err) {
		t.Errorf("result file should not exist, stat err = %v", err)
	}
}

func TestMergeLeagueMemberUsesEntityColumn(t *testing.T) {
	out := t.TempDir()
	writeSources(t, out, sparql.Wikidata, "league_member", map[string]string{
		"flag.json": `{"head":{"vars":["leagueMember","flag"]},"results":{"bindings":[
			{"leagueMember":{"type":"uri","value":"Q1"},"flag":{"type":"uri","value":"f.svg"}}]}}`,
	})

	m := New(catalog.Default(), nil, Options{OutputDir: out}, testLogger())
	rep, err := m.Merge(context.Background(), sparql.Wikidata, "league_member")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if rep.Entities != 1 || len(rep.Skipped) != 0 {
		t.Errorf("unexpected report: %+v", rep)
	}
}

func TestMergeMissingDirectory(t *testing.T) {
	out := t.TempDir()
	bus := event.NewBus(testLogger(), 8)
	var failed int
	bus.Subscribe(func(event.Event) { failed++ }, event.MergeFailed)
	bus.Start()

	m := New(catalog.Default(), bus, Options{OutputDir: out}, testLogger())
	_, err := m.Merge(context.Background(), sparql.Wikidata, "war")
	bus.Close()
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
	if failed != 1 {
		t.Errorf("MergeFailed events = %d, want 1", failed)
	}
}

func TestMergeIsReproducible(t *testing.T) {
	out := t.TempDir()
	writeSources(t, out, sparql.Wikidata, "country", map[string]string{
		"capital.json": countryCapital,
		"flag_a.json":  countryFlagA,
		"flag_b.json":  countryFlagB,
		"label.json":   countryLabel,
	})
	m := New(catalog.Default(), nil, Options{OutputDir: out, Workers: 4}, testLogger())

	var first []byte
	for i := range 5 {
		rep, err := m.Merge(context.Background(), sparql.Wikidata, "country")
		if err != nil {
			t.Fatalf("Merge: %v", err)
		}
		data, err := os.ReadFile(rep.Path)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = data
			continue
		}
		if string(data) != string(first) {
			t.Fatalf("run %d differs:\n%s\n---\n%s", i, first, data)
		}
	}
}
