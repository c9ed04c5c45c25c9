package router

import (
	"slices"
	"sync"
	"time"

	"github.com/af-corp/quieter-gateway/internal/config"
)

// TransitionFunc observes breaker state changes.
type TransitionFunc func(provider string, from, to CircuitState)

// HealthTracker owns one circuit breaker per provider, created on first use.
// Thresholds come from cfg on every decision.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	cfg          func() config.CircuitBreakerConfig
	now          func() time.Time
	onTransition TransitionFunc
}

func NewHealthTracker(cfg func() config.CircuitBreakerConfig) *HealthTracker {
	return &HealthTracker{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
		now:      time.Now,
	}
}

// OnTransition registers fn for state changes of breakers created afterwards.
func (ht *HealthTracker) OnTransition(fn TransitionFunc) {
	ht.mu.Lock()
	ht.onTransition = fn
	ht.mu.Unlock()
}

func (ht *HealthTracker) breaker(provider string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if cb, ok := ht.breakers[provider]; ok {
		return cb
	}
	var onChange func(from, to CircuitState)
	if fn := ht.onTransition; fn != nil {
		onChange = func(from, to CircuitState) { fn(provider, from, to) }
	}
	cb = newBreaker(func() (int, time.Duration) {
		c := ht.cfg()
		return c.FailureThreshold, c.RecoveryProbeInterval
	}, ht.now, onChange)
	ht.breakers[provider] = cb
	return cb
}

// IsAvailable reports whether a request to provider may be sent now.
func (ht *HealthTracker) IsAvailable(provider string) bool {
	return ht.breaker(provider).Allow()
}

func (ht *HealthTracker) RecordSuccess(provider string) { ht.breaker(provider).RecordSuccess() }
func (ht *HealthTracker) RecordFailure(provider string) { ht.breaker(provider).RecordFailure() }

// ProviderState is a point-in-time view of one breaker.
type ProviderState struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
}

// States lists every provider seen so far, sorted by name.
func (ht *HealthTracker) States() []ProviderState {
	ht.mu.RLock()
	names := make([]string, 0, len(ht.breakers))
	for name := range ht.breakers {
		names = append(names, name)
	}
	ht.mu.RUnlock()
	slices.Sort(names)

	out := make([]ProviderState, len(names))
	for i, name := range names {
		out[i] = ProviderState{Provider: name, State: ht.breaker(name).State().String()}
	}
	return out
}
