package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/af-corp/quieter-gateway/internal/config"
)

// Request kinds counted by the instance reporter.
const (
	KindProxy = "proxy"
	KindQuery = "query"
)

// InstanceCounts are aggregate, per-process request counters. They carry no
// tenant or request data.
type InstanceCounts struct {
	TotalRequests int64 `json:"totalRequests"`
	ProxyRequests int64 `json:"proxyRequests"`
	QueryRequests int64 `json:"queryRequests"`
}

// InstancePayload is the body POSTed on each flush.
type InstancePayload struct {
	InstanceID         string          `json:"instance_id"`
	Version            string          `json:"quieter_version"`
	ScrubLayersEnabled map[string]bool `json:"scrub_layers_enabled"`
	IntervalSeconds    int64           `json:"interval_seconds"`
	Counts             InstanceCounts  `json:"counts"`
}

// InstanceSnapshot is a read-only view of the reporter for operators.
type InstanceSnapshot struct {
	Enabled            bool            `json:"enabled"`
	InstanceID         string          `json:"instance_id,omitempty"`
	Version            string          `json:"quieter_version"`
	ScrubLayersEnabled map[string]bool `json:"scrub_layers_enabled"`
	Schedule           string          `json:"schedule"`
	Endpoint           string          `json:"telemetry_endpoint"`
	Counts             InstanceCounts  `json:"counts"`
}

// InstanceReporter counts requests and periodically reports the totals when
// instance telemetry is enabled. Every method is a no-op while disabled.
type InstanceReporter struct {
	cfg     func() config.InstanceTelemetryConfig
	layers  func() map[string]bool
	version string
	client  *http.Client
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	counts    InstanceCounts
	lastFlush time.Time
	id        string

	cron    *cron.Cron
	running bool
}

// NewInstanceReporter creates a reporter. layers reports the scrub layer
// toggles included in each payload.
func NewInstanceReporter(cfg func() config.InstanceTelemetryConfig, layers func() map[string]bool, version string) *InstanceReporter {
	return &InstanceReporter{
		cfg:       cfg,
		layers:    layers,
		version:   version,
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
		logger:    slog.Default().With("component", "telemetry.instance"),
		lastFlush: time.Now(),
		cron:      cron.New(),
	}
}

// RecordRequest counts one request of the given kind.
func (r *InstanceReporter) RecordRequest(kind string) {
	if !r.cfg().Enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts.TotalRequests++
	switch kind {
	case KindProxy:
		r.counts.ProxyRequests++
	case KindQuery:
		r.counts.QueryRequests++
	}
}

// InstanceID loads the persisted id or creates one. A write failure keeps the
// new id for this process only.
func (r *InstanceReporter) InstanceID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instanceIDLocked()
}

func (r *InstanceReporter) instanceIDLocked() string {
	if r.id != "" {
		return r.id
	}
	path := r.cfg().IDPath
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				r.id = id
				return r.id
			}
		}
	}

	r.id = uuid.NewString()
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err == nil {
			if err := os.WriteFile(path, []byte(r.id), 0o600); err != nil {
				r.logger.Debug("instance id not persisted", "path", path, "error", err)
			}
		}
	}
	return r.id
}

// Flush sends the counters accumulated since the last flush and resets them.
// It does nothing while disabled or when no requests were counted.
func (r *InstanceReporter) Flush(ctx context.Context) error {
	cfg := r.cfg()
	if !cfg.Enabled {
		return nil
	}

	payload, ok := r.takePayload()
	if !ok {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal instance telemetry: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telemetry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send instance telemetry: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (r *InstanceReporter) takePayload() (InstancePayload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.counts.TotalRequests <= 0 {
		return InstancePayload{}, false
	}

	now := r.now()
	payload := InstancePayload{
		InstanceID:         r.instanceIDLocked(),
		Version:            r.version,
		ScrubLayersEnabled: r.layers(),
		IntervalSeconds:    int64(now.Sub(r.lastFlush).Round(time.Second) / time.Second),
		Counts:             r.counts,
	}
	r.counts = InstanceCounts{}
	r.lastFlush = now
	return payload, true
}

// Snapshot returns the reporter configuration and the current counters.
func (r *InstanceReporter) Snapshot() InstanceSnapshot {
	cfg := r.cfg()
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := InstanceSnapshot{
		Enabled:            cfg.Enabled,
		Version:            r.version,
		ScrubLayersEnabled: r.layers(),
		Schedule:           cfg.Schedule,
		Endpoint:           cfg.Endpoint,
		Counts:             r.counts,
	}
	if cfg.Enabled {
		snap.InstanceID = r.instanceIDLocked()
	}
	return snap
}

// Start schedules Flush on the configured cron schedule. Flush errors are
// logged at debug level and otherwise ignored.
func (r *InstanceReporter) Start(ctx context.Context) error {
	cfg := r.cfg()
	if !cfg.Enabled {
		r.logger.Info("instance telemetry disabled")
		return nil
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return fmt.Errorf("invalid telemetry schedule %q: %w", cfg.Schedule, err)
	}

	r.InstanceID()
	_, err := r.cron.AddFunc(cfg.Schedule, func() {
		flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := r.Flush(flushCtx); err != nil {
			r.logger.Debug("instance telemetry flush failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule instance telemetry: %w", err)
	}

	r.mu.Lock()
	r.cron.Start()
	r.running = true
	r.mu.Unlock()

	r.logger.Info("instance telemetry enabled", "schedule", cfg.Schedule, "endpoint", cfg.Endpoint)
	return nil
}

// Stop stops the schedule and waits for a running flush.
func (r *InstanceReporter) Stop() {
	r.mu.Lock()
	running := r.running
	r.running = false
	r.mu.Unlock()

	if running {
		<-r.cron.Stop().Done()
	}
}
