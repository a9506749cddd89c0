package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestReadValueMissingConfig(t *testing.T) {
	c := NewClient(Options{}, noopLogger())
	if _, err := c.ReadValue(context.Background(), "a.b"); err == nil {
		t.Fatal("missing base url should error")
	}

	c = NewClient(Options{BaseURL: "http://localhost"}, noopLogger())
	if _, err := c.ReadValue(context.Background(), ""); err == nil {
		t.Fatal("empty objectId should error")
	}
}

func TestReadValueSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/get/") {
			t.Fatalf("path should start with /get/, got %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"val": 123.5})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	value, err := c.ReadValue(context.Background(), "meter.house")
	if err != nil {
		t.Fatalf("read should succeed: %v", err)
	}
	if value != 123.5 {
		t.Fatalf("value = %#v, want 123.5", value)
	}
}

func TestReadValueHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no such state"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := c.ReadValue(context.Background(), "missing"); err == nil {
		t.Fatal("HTTP 404 should error")
	}
}

func TestReadHistoryFiltersNonNumeric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("instance"); got != "influxdb.0" {
			t.Fatalf("instance = %q", got)
		}
		if got := r.URL.Query().Get("aggregate"); got != "average" {
			t.Fatalf("aggregate = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"ts": 1000, "val": 10.0},
			{"ts": 2000, "val": nil},
			{"ts": 3000, "val": "broken"},
			{"ts": 4000, "val": 20.0},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	samples, err := c.ReadHistory(context.Background(), "influxdb.0", "meter.house", time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("history read should succeed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 numeric samples, got %d", len(samples))
	}
	if samples[0].Value != 10 || samples[1].Value != 20 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
	if samples[0].Timestamp.UnixMilli() != 1000 {
		t.Fatalf("timestamp not preserved: %+v", samples[0])
	}
}

func TestReadHistoryValidation(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://localhost"}, noopLogger())
	if _, err := c.ReadHistory(context.Background(), "", "id", time.Hour, time.Minute); err == nil {
		t.Fatal("missing instance should error")
	}
	if _, err := c.ReadHistory(context.Background(), "influxdb.0", "id", 0, time.Minute); err == nil {
		t.Fatal("zero window should error")
	}
}
