// Package circuitbreaker guards outbound provider calls with per-operation
// circuits. A circuit trips open after a run of consecutive failures, sheds
// load for a cooldown period, then lets a single probe through before
// closing again.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State represents a circuit's position in the closed → open → half-open cycle.
type State int

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
		return "half_open"
	default:
		return "unknown"
	}
}

var stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tapdeck",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by operation, from-state, and to-state.",
}, []string{"operation", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(stateTransitions)
}

// circuit is the state of one guarded operation. Each circuit has its own
// lock so a tripped operation never contends with a healthy one.
type circuit struct {
	mu        sync.Mutex
	state     State
	failures  int
	trippedAt time.Time
}

// Breaker holds one circuit per named operation.
type Breaker struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	cooldown  time.Duration
}

// New creates a breaker whose circuits open after threshold consecutive
// failures and stay open for the cooldown before probing.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (b *Breaker) circuitFor(op string) *circuit {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[op]
	if !ok {
		c = &circuit{}
		b.circuits[op] = c
	}
	return c
}

// Allow reports whether a call to op should proceed. An open circuit whose
// cooldown has elapsed moves to half-open and admits exactly one probe.
func (b *Breaker) Allow(op string) bool {
	c := b.circuitFor(op)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateOpen:
		if time.Since(c.trippedAt) >= b.cooldown {
			c.setState(op, StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		// A probe is already in flight.
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure run and closes a half-open circuit.
func (b *Breaker) RecordSuccess(op string) {
	c := b.circuitFor(op)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = 0
	if c.state == StateHalfOpen {
		c.setState(op, StateClosed)
	}
}

// RecordFailure extends the failure run and trips the circuit when the run
// reaches the threshold. A failed probe re-opens immediately.
func (b *Breaker) RecordFailure(op string) {
	c := b.circuitFor(op)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	if c.state == StateHalfOpen || (c.state == StateClosed && c.failures >= b.threshold) {
		c.setState(op, StateOpen)
		c.trippedAt = time.Now()
	}
}

// State returns the circuit state for op, StateClosed if op has never failed.
func (b *Breaker) State(op string) State {
	c := b.circuitFor(op)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setState transitions the circuit and records the metric.
// Caller must hold c.mu.
func (c *circuit) setState(op string, to State) {
	if c.state == to {
		return
	}
	stateTransitions.WithLabelValues(op, c.state.String(), to.String()).Inc()
	c.state = to
}
