package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-test/deep"

	"e32-hal/internal/shell"
)

type fakeStats struct {
	snap shell.StatsSnapshot
}

func (f *fakeStats) Snapshot() shell.StatsSnapshot { return f.snap }

func (f *fakeStats) Count(name string) (int, bool) {
	n, ok := f.snap.PerCommand[name]
	return n, ok
}

func newTestRouter(stats StatsSource) http.Handler {
	r := chi.NewRouter()
	SetupRoutes(r, NewHALHandler(stats))
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {
	rec := get(t, newTestRouter(&fakeStats{}), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(body, map[string]string{"status": "ok", "service": "e32-hal"}); diff != nil {
		t.Error(diff)
	}
}

func TestGetShellStats(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stats := &fakeStats{snap: shell.StatsSnapshot{
		StartedAt:     at,
		Commands:      3,
		PerCommand:    map[string]int{"list": 0, "status": 2, "send": 1},
		LastCommand:   "send",
		LastError:     "send: open missing.jpg: no such file or directory",
		LastErrorAt:   &at,
		LastConfigHex: "00001a1703",
	}}

	rec := get(t, newTestRouter(stats), "/hal/shell/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got shell.StatsSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(got, stats.snap); diff != nil {
		t.Error(diff)
	}
}

func TestGetCommandStats(t *testing.T) {
	stats := &fakeStats{snap: shell.StatsSnapshot{PerCommand: map[string]int{"status": 2}}}
	router := newTestRouter(stats)

	rec := get(t, router, "/hal/shell/stats/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got CommandCount
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(got, CommandCount{Command: "status", Count: 2}); diff != nil {
		t.Error(diff)
	}

	rec = get(t, router, "/hal/shell/stats/reboot")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown command status = %d, want 404", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	if rec := get(t, newTestRouter(&fakeStats{}), "/hal/network/interfaces"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
