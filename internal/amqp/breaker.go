package amqp

import (
	"errors"
	"sync"
	"time"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// breaker stops publishing after maxFailures consecutive broker failures.
// After openTimeout one probe is let through; its outcome closes or reopens
// the circuit.
type breaker struct {
	mu       sync.Mutex
	state    int32
	failures int
	openedAt time.Time
	now      func() time.Time
}

func newBreaker() *breaker {
	return &breaker{now: time.Now}
}

// allow reports whether a publish may proceed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) > openTimeout {
		b.state = StateHalfOpen
	}
	return b.state != StateOpen
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = StateClosed
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= maxFailures || b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

func (b *breaker) current() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
