package router

import (
	"sync"
	"time"
)

// CircuitState is the position of a provider's breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half_open"}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// BreakerSettings is read on every decision so reloaded thresholds apply to
// breakers that already exist.
type BreakerSettings func() (threshold int, probeInterval time.Duration)

// CircuitBreaker fails fast for a provider after threshold consecutive
// failures. Once the probe interval has passed a single request is let
// through; its outcome closes the circuit or opens it for another interval.
type CircuitBreaker struct {
	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool

	settings BreakerSettings
	now      func() time.Time
	// onChange is called with mu held; it must not call back into the breaker.
	onChange func(from, to CircuitState)
}

func NewCircuitBreaker(threshold int, probeInterval time.Duration) *CircuitBreaker {
	return newBreaker(func() (int, time.Duration) { return threshold, probeInterval }, time.Now, nil)
}

func newBreaker(settings BreakerSettings, now func() time.Time, onChange func(from, to CircuitState)) *CircuitBreaker {
	return &CircuitBreaker{settings: settings, now: now, onChange: onChange}
}

func (cb *CircuitBreaker) limits() (int, time.Duration) {
	threshold, interval := cb.settings()
	return max(threshold, 1), interval
}

func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.probing = false
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.failures = 0
	}
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}

// advance promotes an expired OPEN circuit to HALF_OPEN. Callers hold mu.
func (cb *CircuitBreaker) advance() CircuitState {
	if cb.state == StateOpen {
		if _, interval := cb.limits(); cb.now().Sub(cb.openedAt) >= interval {
			cb.setState(StateHalfOpen)
		}
	}
	return cb.state
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.advance()
}

// Allow reports whether a request may be sent, claiming the probe slot when
// the circuit is half open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.advance() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	threshold, _ := cb.limits()
	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failures >= threshold {
			cb.setState(StateOpen)
		}
	}
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failures = 0
}
