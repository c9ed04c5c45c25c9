package router

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/af-corp/quieter-gateway/internal/config"
	"github.com/af-corp/quieter-gateway/internal/router/adapters"
)

var (
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Registry maps provider names to adapters. A reload swaps the whole map, so
// an in-flight request keeps the adapter it started with.
type Registry struct {
	adapters atomic.Pointer[map[string]adapters.ProviderAdapter]
}

// BuildFromConfig builds provider adapters from the providers config.
func BuildFromConfig(provCfg *config.ProvidersConfig) *Registry {
	r := &Registry{}
	r.Load(provCfg)
	return r
}

// Load replaces every adapter with those built from provCfg.
func (r *Registry) Load(provCfg *config.ProvidersConfig) {
	built := make(map[string]adapters.ProviderAdapter)
	if provCfg != nil {
		for name, cfg := range provCfg.Providers {
			built[name] = newAdapter(cfg)
		}
	}
	r.adapters.Store(&built)
}

func (r *Registry) Get(name string) (adapters.ProviderAdapter, bool) {
	m := r.adapters.Load()
	if m == nil {
		return nil, false
	}
	a, ok := (*m)[name]
	return a, ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	m := r.adapters.Load()
	if m == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(*m))
}

// newAdapter picks the wire format by type; unknown types speak the OpenAI
// chat completions API. MaxConcurrent caps connections to the upstream host.
func newAdapter(cfg config.ProviderConfig) adapters.ProviderAdapter {
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxConnsPerHost:     cfg.MaxConcurrent,
			MaxIdleConnsPerHost: cfg.MaxConcurrent,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
	if cfg.Type == config.ProviderAnthropic {
		return adapters.NewAnthropicAdapter(cfg, client)
	}
	return adapters.NewOpenAIAdapter(cfg, client)
}

// Router sends completions to a named provider behind its circuit breaker.
type Router struct {
	registry *Registry
	health   *HealthTracker
	cfg      func() config.RoutingConfig
}

func NewRouter(registry *Registry, health *HealthTracker, cfg func() config.RoutingConfig) *Router {
	return &Router{registry: registry, health: health, cfg: cfg}
}

// Health exposes the per-provider breaker states.
func (r *Router) Health() *HealthTracker { return r.health }

// Complete calls the provider once. There are no retries; an open circuit
// fails fast with ErrProviderUnavailable.
func (r *Router) Complete(ctx context.Context, provider string, req *adapters.CompletionRequest) (*adapters.Completion, error) {
	adapter, ok := r.registry.Get(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if !r.health.IsAvailable(provider) {
		return nil, fmt.Errorf("%w: %s circuit open", ErrProviderUnavailable, provider)
	}

	if timeout := r.cfg().DefaultTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	completion, err := adapter.Complete(ctx, req)
	switch outcome(ctx, err) {
	case healthy:
		r.health.RecordSuccess(provider)
	case unhealthy:
		r.health.RecordFailure(provider)
	}
	if err != nil {
		return nil, err
	}
	return completion, nil
}

type callOutcome int

const (
	healthy callOutcome = iota
	unhealthy
	unknown
)

// outcome classifies a call for the breaker. A 4xx other than 429 means the
// provider is up and rejected the request. A caller that went away tells us
// nothing about the provider.
func outcome(ctx context.Context, err error) callOutcome {
	if err == nil {
		return healthy
	}
	var se *adapters.StatusError
	if errors.As(err, &se) {
		if se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests {
			return unhealthy
		}
		return healthy
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return unknown
	}
	return unhealthy
}
