package rest

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState string

const (
	StateClosed   CircuitState = "closed"    // Normal operation, requests pass through
	StateOpen     CircuitState = "open"      // Provider is failing, requests fail fast
	StateHalfOpen CircuitState = "half-open" // Testing if the provider recovered
)

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	halfOpenSuccesses       = 2
)

// Provider services with independent circuits
const (
	serviceAuth = "auth"
	serviceRest = "rest"
)

// circuitBreaker keeps one circuit per provider service so an outage of the
// data API does not block sign-in, and the other way round.
type circuitBreaker struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int           // consecutive failures before opening
	cooldown  time.Duration // time open before a trial request
	now       func() time.Time
}

type circuit struct {
	state           CircuitState
	failures        int
	successes       int
	lastStateChange time.Time
}

// CircuitOpenError is returned when a circuit is open
type CircuitOpenError struct {
	Service  string
	Failures int
	RetryIn  time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for provider %s service (failures: %d, retry in %s)",
		e.Service, e.Failures, e.RetryIn.Round(time.Second))
}

func newCircuitBreaker(threshold int, cooldown time.Duration, now func() time.Time) *circuitBreaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	return &circuitBreaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
	}
}

// Allow returns a *CircuitOpenError while the service's circuit is open. An
// open circuit turns half-open once the cooldown has passed.
func (cb *circuitBreaker) Allow(service string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[service]
	if !ok || c.state != StateOpen {
		return nil
	}

	now := cb.now()
	if elapsed := now.Sub(c.lastStateChange); elapsed < cb.cooldown {
		return &CircuitOpenError{Service: service, Failures: c.failures, RetryIn: cb.cooldown - elapsed}
	}
	c.state = StateHalfOpen
	c.successes = 0
	c.lastStateChange = now
	return nil
}

// RecordSuccess records a request the provider answered
func (cb *circuitBreaker) RecordSuccess(service string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[service]
	if !ok {
		return
	}

	c.failures = 0
	if c.state == StateHalfOpen {
		c.successes++
		if c.successes >= halfOpenSuccesses {
			c.state = StateClosed
			c.lastStateChange = cb.now()
		}
	}
}

// RecordFailure records a request the provider did not answer usefully
func (cb *circuitBreaker) RecordFailure(service string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[service]
	if !ok {
		c = &circuit{state: StateClosed, lastStateChange: cb.now()}
		cb.circuits[service] = c
	}

	c.failures++
	switch c.state {
	case StateClosed:
		if c.failures >= cb.threshold {
			c.state = StateOpen
			c.lastStateChange = cb.now()
		}
	case StateHalfOpen:
		c.state = StateOpen
		c.successes = 0
		c.lastStateChange = cb.now()
	}
}

// State returns the current state of a service's circuit
func (cb *circuitBreaker) State(service string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if c, ok := cb.circuits[service]; ok {
		return c.state
	}
	return StateClosed
}

// serviceOf maps a request path to its provider service
func serviceOf(path string) string {
	if strings.HasPrefix(path, "/auth/") {
		return serviceAuth
	}
	return serviceRest
}

// countsAsFailure reports whether a provider status means the provider itself
// is unhealthy. Client errors are answers and keep the circuit closed.
func countsAsFailure(status int) bool {
	return status >= http.StatusInternalServerError
}
