package sparql

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("loading fixture %s: %v", name, err)
	}
	return data
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	endpoints := NewEndpoints()
	endpoints.Set(Wikidata, srv.URL)
	c := NewClient(endpoints, NewRateLimiterMap(0), ClientOptions{Timeout: 5 * time.Second}, testLogger())
	return c, srv
}

func TestQuery(t *testing.T) {
	fixture := loadFixture(t, "country_capital.json")
	type seen struct{ query, format, ua, accept string }
	seenCh := make(chan seen, 1)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seenCh <- seen{
			query:  r.URL.Query().Get("query"),
			format: r.URL.Query().Get("format"),
			ua:     r.Header.Get("User-Agent"),
			accept: r.Header.Get("Accept"),
		}
		w.Header().Set("Content-Type", "application/sparql-results+json")
		w.Write(fixture) //nolint:errcheck
	})

	rs, err := c.Query(context.Background(), Wikidata, "SELECT DISTINCT ?country WHERE { }")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got := <-seenCh
	if got.query != "SELECT DISTINCT ?country WHERE { }" {
		t.Errorf("query param = %q", got.query)
	}
	if got.format != "json" {
		t.Errorf("format param = %q, want json", got.format)
	}
	if got.ua != DefaultUserAgent {
		t.Errorf("User-Agent = %q", got.ua)
	}
	if got.accept != "application/sparql-results+json" {
		t.Errorf("Accept = %q", got.accept)
	}
	if rs.Len() != 3 {
		t.Fatalf("expected 3 bindings, got %d", rs.Len())
	}
	if len(rs.Head.Vars) != 5 {
		t.Errorf("expected 5 vars, got %v", rs.Head.Vars)
	}
	first := rs.Results.Bindings[0]
	if first.Value("capital") != "http://www.wikidata.org/entity/Q64" {
		t.Errorf("capital = %q", first.Value("capital"))
	}
	if first["startTime"].Datatype != "http://www.w3.org/2001/XMLSchema#dateTime" {
		t.Errorf("datatype = %q", first["startTime"].Datatype)
	}
	if first.Has("endTime") {
		t.Error("expected endTime to be unbound")
	}
}

func TestQueryHTTPError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Query(context.Background(), Wikidata, "SELECT ?x WHERE {}")
	var unavailable *ErrEndpointUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrEndpointUnavailable, got %T (%v)", err, err)
	}
	if unavailable.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", unavailable.StatusCode)
	}
	if unavailable.Endpoint != Wikidata {
		t.Errorf("endpoint = %q", unavailable.Endpoint)
	}
}

func TestQueryMalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"html", "<html>busy</html>"},
		{"missing results", `{"head":{"vars":["x"]}}`},
		{"missing head", `{"results":{"bindings":[]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tt.body)) //nolint:errcheck
			})
			_, err := c.Query(context.Background(), Wikidata, "SELECT ?x WHERE {}")
			var malformed *ErrMalformedResponse
			if !errors.As(err, &malformed) {
				t.Fatalf("expected ErrMalformedResponse, got %T (%v)", err, err)
			}
		})
	}
}

func TestQueryUnknownEndpoint(t *testing.T) {
	c := NewClient(NewEndpoints(), nil, ClientOptions{}, testLogger())
	_, err := c.Query(context.Background(), "nowhere", "SELECT ?x WHERE {}")
	var unknown *ErrUnknownEndpoint
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownEndpoint, got %T", err)
	}
}

func TestQueryCanceledContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"head":{"vars":[]},"results":{"bindings":[]}}`)) //nolint:errcheck
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Query(ctx, Wikidata, "SELECT ?x WHERE {}")
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestQueryIsPaced(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"head":{"vars":[]},"results":{"bindings":[]}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	endpoints := NewEndpoints()
	endpoints.Set(Wikidata, srv.URL)
	interval := 150 * time.Millisecond
	c := NewClient(endpoints, NewRateLimiterMap(interval), ClientOptions{}, testLogger())

	start := time.Now()
	for range 3 {
		if _, err := c.Query(context.Background(), Wikidata, "SELECT ?x WHERE {}"); err != nil {
			t.Fatalf("Query: %v", err)
		}
	}
	elapsed := time.Since(start)

	if n := calls.Load(); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
	// First request is immediate, the next two wait one interval each.
	if elapsed < 2*interval-20*time.Millisecond {
		t.Errorf("requests not paced: elapsed %v", elapsed)
	}
}

func TestEndpointsSet(t *testing.T) {
	e := NewEndpoints()
	e.Set(DBpedia, "")
	ep, err := e.Get(DBpedia)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ep.URL != DefaultDBpediaURL {
		t.Errorf("empty Set should not replace URL, got %s", ep.URL)
	}
	e.Set(DBpedia, "http://localhost:8890/sparql")
	ep, _ = e.Get(DBpedia)
	if !strings.HasPrefix(ep.URL, "http://localhost") {
		t.Errorf("URL = %s", ep.URL)
	}
}
