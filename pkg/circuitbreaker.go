package pkg

import (
	"sync"
	"time"

	"github.com/arrasopromo/nextads/pkg/common"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	breakerFailureThreshold = 3
	breakerSuccessThreshold = 2
	breakerOpenTimeout      = 30 * time.Second
)

// CircuitBreaker protege as chamadas à API Woovi: após uma sequência de
// falhas o circuito abre e as chamadas falham imediatamente, até que um
// probe em half-open volte a fechá-lo.
type CircuitBreaker struct {
	mu                   sync.Mutex
	state                BreakerState
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailureTime      time.Time

	failureThreshold int
	successThreshold int
	timeout          time.Duration
}

func NewCircuitBreaker(failureThreshold, successThreshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
	}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen {
		if time.Since(cb.lastFailureTime) > cb.timeout {
			cb.state = BreakerHalfOpen
			cb.consecutiveSuccesses = 0
			return true
		}
		return false
	}

	return true
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerHalfOpen {
		cb.open()
		return
	}

	cb.consecutiveFailures++
	if cb.state == BreakerClosed && cb.consecutiveFailures >= cb.failureThreshold {
		cb.open()
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerHalfOpen {
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.successThreshold {
			cb.state = BreakerClosed
			cb.consecutiveFailures = 0
		}
		return
	}

	cb.consecutiveFailures = 0
}

func (cb *CircuitBreaker) open() {
	cb.state = BreakerOpen
	cb.lastFailureTime = time.Now()
}

type BreakerStatus struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time"`
}

func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerStatus{
		State:               cb.state.String(),
		ConsecutiveFailures: cb.consecutiveFailures,
		LastFailureTime:     cb.lastFailureTime,
	}
}

// BreakerStore mantém um circuito por ambiente Woovi.
type BreakerStore struct {
	mu       sync.RWMutex
	circuits map[common.Environment]*CircuitBreaker
}

func NewBreakerStore() *BreakerStore {
	store := &BreakerStore{
		circuits: make(map[common.Environment]*CircuitBreaker),
	}

	store.circuits[common.EnvironmentProduction] = newDefaultBreaker()
	store.circuits[common.EnvironmentSandbox] = newDefaultBreaker()

	return store
}

func newDefaultBreaker() *CircuitBreaker {
	return NewCircuitBreaker(breakerFailureThreshold, breakerSuccessThreshold, breakerOpenTimeout)
}

func (s *BreakerStore) Allow(env common.Environment) bool {
	return s.getOrCreate(env).Allow()
}

func (s *BreakerStore) RecordFailure(env common.Environment) {
	s.getOrCreate(env).RecordFailure()
}

func (s *BreakerStore) RecordSuccess(env common.Environment) {
	s.getOrCreate(env).RecordSuccess()
}

func (s *BreakerStore) Statuses() map[string]BreakerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[string]BreakerStatus, len(s.circuits))
	for env, cb := range s.circuits {
		statuses[string(env)] = cb.Status()
	}
	return statuses
}

func (s *BreakerStore) getOrCreate(env common.Environment) *CircuitBreaker {
	s.mu.RLock()
	cb, ok := s.circuits[env]
	s.mu.RUnlock()

	if ok {
		return cb
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok = s.circuits[env]
	if ok {
		return cb
	}

	cb = newDefaultBreaker()
	s.circuits[env] = cb
	return cb
}
