package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/telemetry"
)

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultTimeout          = 60 * time.Second
)

type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	Timeout          time.Duration

	// OnStateChange is called with the breaker lock held; it must not call back
	// into the breaker.
	OnStateChange func(name string, from, to CircuitState)

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Snapshot is a point-in-time copy of the breaker bookkeeping.
type Snapshot struct {
	State           CircuitState `json:"-"`
	StateName       string       `json:"state"`
	FailureCount    int          `json:"failure_count"`
	LastFailureTime *time.Time   `json:"last_failure_time,omitempty"`
}

var errOperationPanicked = errors.New("gateway operation panicked")

// CircuitBreaker gates calls to one downstream payment provider. While half-open
// it admits a single probe; concurrent callers wait for the probe to finish and
// then follow whatever state it left behind.
type CircuitBreaker struct {
	name          string
	threshold     int
	timeout       time.Duration
	now           func() time.Time
	onStateChange func(name string, from, to CircuitState)

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	lastFailureTime time.Time
	probe           chan struct{}

	// generation changes on every transition. Results of calls admitted under
	// an earlier generation are ignored.
	generation uint64
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	telemetry.CircuitState.WithLabelValues(config.Name).Set(float64(CircuitClosed))
	return &CircuitBreaker{
		name:          config.Name,
		threshold:     config.FailureThreshold,
		timeout:       config.Timeout,
		now:           config.Now,
		onStateChange: config.OnStateChange,
		state:         CircuitClosed,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs op at most once. It fails with models.ErrGatewayUnavailable
// without calling op while the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) (err error) {
	admitted, err := cb.admit(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.record(admitted, errOperationPanicked)
			panic(r)
		}
		cb.record(admitted, err)
	}()

	return op(ctx)
}

// admission is what record needs to know about how a call was let through.
type admission struct {
	generation uint64
	probe      bool
}

// admit decides whether the caller may reach the provider. It blocks only while
// another caller's half-open probe is in flight.
func (cb *CircuitBreaker) admit(ctx context.Context) (admission, error) {
	for {
		cb.mu.Lock()

		if cb.state == CircuitOpen {
			if cb.now().Sub(cb.lastFailureTime) < cb.timeout {
				cb.mu.Unlock()
				return admission{}, fmt.Errorf("%w: circuit breaker %s is open", models.ErrGatewayUnavailable, cb.name)
			}
			cb.setState(CircuitHalfOpen)
		}

		if cb.state == CircuitHalfOpen {
			if cb.probe != nil {
				wait := cb.probe
				cb.mu.Unlock()
				select {
				case <-wait:
					continue
				case <-ctx.Done():
					return admission{}, ctx.Err()
				}
			}
			cb.probe = make(chan struct{})
			a := admission{generation: cb.generation, probe: true}
			cb.mu.Unlock()
			return a, nil
		}

		a := admission{generation: cb.generation}
		cb.mu.Unlock()
		return a, nil
	}
}

// record applies a result only if the circuit has not moved on since the call
// was admitted. A call admitted while CLOSED that finishes after the circuit
// opened must not close it again or extend the open window.
func (cb *CircuitBreaker) record(a admission, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if a.generation == cb.generation {
		if err != nil {
			cb.onFailure()
		} else {
			cb.onSuccess()
		}
	}

	if a.probe && cb.probe != nil {
		close(cb.probe)
		cb.probe = nil
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failureCount = 0
	if cb.state != CircuitClosed {
		cb.setState(CircuitClosed)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		if cb.failureCount >= cb.threshold {
			cb.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.setState(CircuitOpen)
	}
}

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.generation++
	if to == CircuitClosed {
		cb.failureCount = 0
	}

	fields := []zap.Field{
		zap.String("gateway", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("failures", cb.failureCount),
	}
	if to == CircuitOpen {
		telemetry.Logger.Warn("Circuit breaker opened", fields...)
	} else {
		telemetry.Logger.Info("Circuit breaker state change", fields...)
	}

	telemetry.CircuitState.WithLabelValues(cb.name).Set(float64(to))
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Snapshot{
		State:        cb.state,
		StateName:    cb.state.String(),
		FailureCount: cb.failureCount,
	}
	if !cb.lastFailureTime.IsZero() {
		t := cb.lastFailureTime
		s.LastFailureTime = &t
	}
	return s
}
