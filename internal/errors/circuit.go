package errors

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker refuses calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a breaker state.
type State int

// Breaker states. Open turns into HalfOpen once the cooldown has passed;
// the next call is then a probe.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a failing dependency (the snapshot file)
// after consecutive failures, and lets one probe through per cooldown.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	open     bool
	failures int
	openedAt time.Time
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets how many consecutive failures open the breaker.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.threshold = max(n, 1)
	}
}

// WithResetTimeout sets how long the breaker stays open before a probe.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.cooldown = d
	}
}

// NewCircuitBreaker returns a closed breaker: 5 failures, 30s cooldown
// unless overridden.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{name: name, threshold: 5, cooldown: 30 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() State {
	switch {
	case !cb.open:
		return StateClosed
	case cb.now().Sub(cb.openedAt) >= cb.cooldown:
		return StateHalfOpen
	default:
		return StateOpen
	}
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Execute calls fn unless the breaker is open, in which case it returns
// ErrCircuitOpen. A failed half-open probe restarts the cooldown.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	before := cb.stateLocked()
	cb.mu.Unlock()
	if before == StateOpen {
		return ErrCircuitOpen
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		if cb.open {
			slog.Info("circuit_closed", slog.String("breaker", cb.name))
		}
		cb.open, cb.failures = false, 0
		return nil
	}

	cb.failures++
	if before == StateHalfOpen || cb.failures >= cb.threshold {
		cb.open, cb.openedAt = true, cb.now()
		slog.Warn("circuit_opened",
			slog.String("breaker", cb.name),
			slog.Int("failures", cb.failures),
			slog.Duration("cooldown", cb.cooldown),
			slog.String("error", err.Error()))
	}
	return err
}
