package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/af-corp/quieter-gateway/internal/config"
)

func layersOn() map[string]bool {
	return map[string]bool{"identity": true, "crypto": true, "financial": false, "medical": true}
}

func newTestReporter(t *testing.T, endpoint string, enabled bool) *InstanceReporter {
	t.Helper()
	idPath := filepath.Join(t.TempDir(), "instance_id")
	r := NewInstanceReporter(func() config.InstanceTelemetryConfig {
		return config.InstanceTelemetryConfig{
			Enabled:  enabled,
			Endpoint: endpoint,
			Schedule: "@daily",
			IDPath:   idPath,
		}
	}, layersOn, "1.2.3")
	return r
}

func TestInstanceReporter_DisabledIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	r := newTestReporter(t, srv.URL, false)
	r.RecordRequest(KindQuery)
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()

	if called {
		t.Error("disabled reporter must not send")
	}
	snap := r.Snapshot()
	if snap.Enabled || snap.InstanceID != "" || snap.Counts.TotalRequests != 0 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestInstanceReporter_Flush(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []InstancePayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p InstancePayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	r := newTestReporter(t, srv.URL, true)
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	r.lastFlush = start
	r.now = func() time.Time { return start.Add(90 * time.Second) }

	r.RecordRequest(KindQuery)
	r.RecordRequest(KindQuery)
	r.RecordRequest(KindProxy)
	r.RecordRequest("other")

	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(payloads))
	}
	p := payloads[0]
	want := InstanceCounts{TotalRequests: 4, ProxyRequests: 1, QueryRequests: 2}
	if p.Counts != want {
		t.Errorf("counts = %+v, want %+v", p.Counts, want)
	}
	if p.IntervalSeconds != 90 {
		t.Errorf("interval = %d, want 90", p.IntervalSeconds)
	}
	if p.Version != "1.2.3" || p.InstanceID == "" {
		t.Errorf("unexpected payload %+v", p)
	}
	if p.ScrubLayersEnabled["financial"] || !p.ScrubLayersEnabled["identity"] {
		t.Errorf("unexpected layers %v", p.ScrubLayersEnabled)
	}

	if snap := r.Snapshot(); snap.Counts.TotalRequests != 0 {
		t.Errorf("counters should reset after flush, got %+v", snap.Counts)
	}
}

func TestInstanceReporter_SkipsEmptyInterval(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	r := newTestReporter(t, srv.URL, true)
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if called {
		t.Error("nothing should be sent when no requests were counted")
	}
}

func TestInstanceReporter_EndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newTestReporter(t, srv.URL, true)
	r.RecordRequest(KindProxy)
	if err := r.Flush(context.Background()); err == nil {
		t.Error("expected error from failing endpoint")
	}
}

func TestInstanceReporter_InstanceIDPersisted(t *testing.T) {
	dir := t.TempDir()
	idPath := filepath.Join(dir, "nested", "instance_id")
	cfg := func() config.InstanceTelemetryConfig {
		return config.InstanceTelemetryConfig{Enabled: true, IDPath: idPath}
	}

	first := NewInstanceReporter(cfg, layersOn, "v").InstanceID()
	if first == "" {
		t.Fatal("expected an instance id")
	}
	data, err := os.ReadFile(idPath)
	if err != nil {
		t.Fatalf("id file not written: %v", err)
	}
	if string(data) != first {
		t.Errorf("file = %q, want %q", data, first)
	}

	second := NewInstanceReporter(cfg, layersOn, "v").InstanceID()
	if second != first {
		t.Errorf("id changed across restarts: %q -> %q", first, second)
	}
}

func TestInstanceReporter_InvalidSchedule(t *testing.T) {
	r := NewInstanceReporter(func() config.InstanceTelemetryConfig {
		return config.InstanceTelemetryConfig{Enabled: true, Schedule: "not a schedule", IDPath: filepath.Join(t.TempDir(), "id")}
	}, layersOn, "v")
	if err := r.Start(context.Background()); err == nil {
		r.Stop()
		t.Error("expected schedule parse error")
	}
}
