package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
)

var errProvider = errors.New("provider timeout")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func failing(context.Context) error    { return errProvider }
func succeeding(context.Context) error { return nil }

func tripBreaker(t *testing.T, cb *CircuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := cb.Execute(context.Background(), failing)
		require.ErrorIs(t, err, errProvider)
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 3, Timeout: time.Minute, Now: clock.Now})

	tripBreaker(t, cb, 3)

	snap := cb.Snapshot()
	assert.Equal(t, CircuitOpen, snap.State)
	assert.Equal(t, 3, snap.FailureCount)
	require.NotNil(t, snap.LastFailureTime)
	assert.Equal(t, clock.Now(), *snap.LastFailureTime)

	var calls int32
	err := cb.Execute(context.Background(), func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
	assert.Zero(t, atomic.LoadInt32(&calls), "open circuit must not invoke the operation")
}

func TestCircuitBreaker_StaysClosedBelowThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 5})

	tripBreaker(t, cb, 4)

	snap := cb.Snapshot()
	assert.Equal(t, CircuitClosed, snap.State)
	assert.Equal(t, 4, snap.FailureCount)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 5})

	tripBreaker(t, cb, 2)
	require.Equal(t, 2, cb.Snapshot().FailureCount)

	require.NoError(t, cb.Execute(context.Background(), succeeding))

	snap := cb.Snapshot()
	assert.Equal(t, CircuitClosed, snap.State)
	assert.Zero(t, snap.FailureCount)
}

func TestCircuitBreaker_RejectsUntilTimeoutElapses(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 1, Timeout: 60 * time.Second, Now: clock.Now})
	tripBreaker(t, cb, 1)

	clock.Advance(59 * time.Second)
	err := cb.Execute(context.Background(), succeeding)
	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
	assert.Equal(t, CircuitOpen, cb.Snapshot().State)
}

func TestCircuitBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "paystack",
		FailureThreshold: 3,
		Timeout:          60 * time.Second,
		Now:              clock.Now,
		OnStateChange: func(_ string, from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	tripBreaker(t, cb, 3)

	clock.Advance(61 * time.Second)

	var calls int32
	err := cb.Execute(context.Background(), func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls)

	snap := cb.Snapshot()
	assert.Equal(t, CircuitClosed, snap.State)
	assert.Zero(t, snap.FailureCount)
	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, transitions)
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 2, Timeout: 60 * time.Second, Now: clock.Now})
	tripBreaker(t, cb, 2)

	clock.Advance(61 * time.Second)
	err := cb.Execute(context.Background(), failing)
	require.ErrorIs(t, err, errProvider)

	snap := cb.Snapshot()
	assert.Equal(t, CircuitOpen, snap.State)
	assert.Equal(t, 3, snap.FailureCount)
	assert.Equal(t, clock.Now(), *snap.LastFailureTime)

	// The timeout restarts from the failed probe.
	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, cb.Execute(context.Background(), succeeding), models.ErrGatewayUnavailable)
}

func TestCircuitBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 1, Timeout: 60 * time.Second, Now: clock.Now})
	tripBreaker(t, cb, 1)
	clock.Advance(61 * time.Second)

	var calls int32
	entered := make(chan struct{})
	release := make(chan struct{})
	probe := func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		close(entered)
		<-release
		return errProvider
	}

	probeErr := make(chan error, 1)
	go func() { probeErr <- cb.Execute(context.Background(), probe) }()
	<-entered

	waiterErr := make(chan error, 1)
	go func() {
		waiterErr <- cb.Execute(context.Background(), func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}()

	select {
	case err := <-waiterErr:
		t.Fatalf("second caller returned while probe in flight: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	close(release)
	assert.ErrorIs(t, <-probeErr, errProvider)
	assert.ErrorIs(t, <-waiterErr, models.ErrGatewayUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "only the probe may reach the provider")
}

func TestCircuitBreaker_WaiterProceedsAfterSuccessfulProbe(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 1, Timeout: 60 * time.Second, Now: clock.Now})
	tripBreaker(t, cb, 1)
	clock.Advance(61 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	probeErr := make(chan error, 1)
	go func() {
		probeErr <- cb.Execute(context.Background(), func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	waiterErr := make(chan error, 1)
	go func() { waiterErr <- cb.Execute(context.Background(), succeeding) }()

	close(release)
	require.NoError(t, <-probeErr)
	require.NoError(t, <-waiterErr)
	assert.Equal(t, CircuitClosed, cb.Snapshot().State)
}

func TestCircuitBreaker_WaiterHonoursContext(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 1, Timeout: time.Second, Now: clock.Now})
	tripBreaker(t, cb, 1)
	clock.Advance(2 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	go cb.Execute(context.Background(), func(context.Context) error {
		close(entered)
		<-release
		return nil
	})
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := cb.Execute(ctx, succeeding)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCircuitBreaker_ConcurrentFailuresOpenExactlyOnce(t *testing.T) {
	var opened int32
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "paystack",
		FailureThreshold: 5,
		OnStateChange: func(_ string, _, to CircuitState) {
			if to == CircuitOpen {
				atomic.AddInt32(&opened, 1)
			}
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(context.Background(), failing)
		}()
	}
	wg.Wait()

	snap := cb.Snapshot()
	assert.Equal(t, CircuitOpen, snap.State)
	assert.Equal(t, 5, snap.FailureCount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&opened))
}

func TestCircuitBreaker_PanicCountsAsFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 1})

	assert.Panics(t, func() {
		_ = cb.Execute(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, CircuitOpen, cb.Snapshot().State)
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack"})

	assert.Equal(t, DefaultFailureThreshold, cb.threshold)
	assert.Equal(t, DefaultTimeout, cb.timeout)
	assert.Equal(t, "CLOSED", cb.Snapshot().StateName)
	assert.Nil(t, cb.Snapshot().LastFailureTime)
}

// slowCall starts op through cb and returns once op is running. Sending on the
// returned channel makes op return that error.
func slowCall(cb *CircuitBreaker) (chan<- error, <-chan error) {
	entered := make(chan struct{})
	result := make(chan error)
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(context.Context) error {
			close(entered)
			return <-result
		})
	}()
	<-entered
	return result, done
}

func TestCircuitBreaker_LateSuccessDoesNotCloseOpenCircuit(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 2, Timeout: 60 * time.Second, Now: clock.Now})

	result, done := slowCall(cb)
	tripBreaker(t, cb, 2)
	require.Equal(t, CircuitOpen, cb.Snapshot().State)

	result <- nil
	require.NoError(t, <-done)

	snap := cb.Snapshot()
	assert.Equal(t, CircuitOpen, snap.State)
	assert.Equal(t, 2, snap.FailureCount)

	var calls int32
	err := cb.Execute(context.Background(), func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestCircuitBreaker_LateFailureDoesNotExtendOpenWindow(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 2, Timeout: 60 * time.Second, Now: clock.Now})

	result, done := slowCall(cb)
	tripBreaker(t, cb, 2)
	trippedAt := clock.Now()

	clock.Advance(50 * time.Second)
	result <- errProvider
	require.ErrorIs(t, <-done, errProvider)

	snap := cb.Snapshot()
	assert.Equal(t, 2, snap.FailureCount)
	require.NotNil(t, snap.LastFailureTime)
	assert.Equal(t, trippedAt, *snap.LastFailureTime)

	clock.Advance(11 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), succeeding))
	assert.Equal(t, CircuitClosed, cb.Snapshot().State)
}

func TestCircuitBreaker_LateSuccessDoesNotPreemptProbe(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "paystack", FailureThreshold: 1, Timeout: 60 * time.Second, Now: clock.Now})

	lateResult, lateDone := slowCall(cb)
	tripBreaker(t, cb, 1)
	clock.Advance(61 * time.Second)

	probeResult, probeDone := slowCall(cb)
	require.Equal(t, CircuitHalfOpen, cb.Snapshot().State)

	lateResult <- nil
	require.NoError(t, <-lateDone)
	assert.Equal(t, CircuitHalfOpen, cb.Snapshot().State, "only the probe may leave HALF_OPEN")

	probeResult <- errProvider
	require.ErrorIs(t, <-probeDone, errProvider)
	assert.Equal(t, CircuitOpen, cb.Snapshot().State)
}
