package router

import (
	"sync"
	"testing"
	"time"

	"github.com/af-corp/quieter-gateway/internal/config"
)

func newTestTracker(threshold int, interval time.Duration) (*HealthTracker, *fakeClock) {
	clock := newFakeClock()
	ht := NewHealthTracker(func() config.CircuitBreakerConfig {
		return config.CircuitBreakerConfig{FailureThreshold: threshold, RecoveryProbeInterval: interval}
	})
	ht.now = clock.Now
	return ht, clock
}

func TestHealthTracker_PerProvider(t *testing.T) {
	ht, clock := newTestTracker(2, 10*time.Second)

	if !ht.IsAvailable("openai") {
		t.Fatal("unseen provider should be available")
	}
	ht.RecordFailure("openai")
	ht.RecordFailure("openai")
	if ht.IsAvailable("openai") {
		t.Error("openai should be unavailable after 2 failures")
	}
	if !ht.IsAvailable("anthropic") {
		t.Error("anthropic has its own breaker")
	}

	clock.Advance(10 * time.Second)
	if !ht.IsAvailable("openai") {
		t.Fatal("expected half-open probe")
	}
	ht.RecordSuccess("openai")
	if !ht.IsAvailable("openai") {
		t.Error("expected openai to be available after a good probe")
	}
}

func TestHealthTracker_States(t *testing.T) {
	ht, _ := newTestTracker(1, 5*time.Second)
	ht.RecordSuccess("openai")
	ht.RecordFailure("anthropic")

	states := ht.States()
	want := []ProviderState{
		{Provider: "anthropic", State: "open"},
		{Provider: "openai", State: "closed"},
	}
	if len(states) != len(want) {
		t.Fatalf("got %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %+v, want %+v", i, states[i], want[i])
		}
	}
}

func TestHealthTracker_OnTransition(t *testing.T) {
	ht, _ := newTestTracker(1, time.Minute)
	var (
		mu  sync.Mutex
		got []string
	)
	ht.OnTransition(func(provider string, from, to CircuitState) {
		mu.Lock()
		got = append(got, provider+":"+to.String())
		mu.Unlock()
	})

	ht.RecordFailure("ollama")
	ht.RecordFailure("ollama")

	if len(got) != 1 || got[0] != "ollama:open" {
		t.Errorf("transitions = %v", got)
	}
}
