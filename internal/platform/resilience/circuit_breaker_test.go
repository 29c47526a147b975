package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProbe = errors.New("probe failed")

func failingConfig() Config {
	return Config{
		MaxFailures:     3,
		ResetTimeout:    20 * time.Millisecond,
		HalfOpenSuccess: 2,
	}
}

func fail() error { return errProbe }

func succeed() error { return nil }

func TestBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("db", failingConfig())

	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(succeed))
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("db", failingConfig())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errProbe)
	}
	assert.Equal(t, StateOpen, cb.State())
}

func TestOpenBreakerShortCircuits(t *testing.T) {
	cb := NewCircuitBreaker("db", failingConfig())
	for i := 0; i < 3; i++ {
		cb.Execute(fail)
	}

	calls := 0
	err := cb.Execute(func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls)
}

func TestBreakerClosesAfterHalfOpenSuccesses(t *testing.T) {
	cb := NewCircuitBreaker("db", failingConfig())
	for i := 0; i < 3; i++ {
		cb.Execute(fail)
	}

	time.Sleep(30 * time.Millisecond)

	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker("db", failingConfig())
	for i := 0; i < 3; i++ {
		cb.Execute(fail)
	}

	time.Sleep(30 * time.Millisecond)

	assert.ErrorIs(t, cb.Execute(fail), errProbe)
	assert.Equal(t, StateOpen, cb.State())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("db", failingConfig())

	cb.Execute(fail)
	cb.Execute(fail)
	cb.Execute(succeed)
	cb.Execute(fail)
	cb.Execute(fail)

	assert.Equal(t, StateClosed, cb.State())
}

func TestOnStateChangeFires(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
		done        = make(chan struct{}, 4)
	)
	cfg := failingConfig()
	cfg.OnStateChange = func(name string, from, to State) {
		mu.Lock()
		transitions = append(transitions, from.String()+"->"+to.String())
		mu.Unlock()
		done <- struct{}{}
	}

	cb := NewCircuitBreaker("polygon", cfg)
	for i := 0; i < 3; i++ {
		cb.Execute(fail)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("state change callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 1)
	assert.Equal(t, "closed->open", transitions[0])
}

func TestRegistryReturnsSameBreakerPerName(t *testing.T) {
	reg := NewRegistry(DefaultConfig())

	assert.Same(t, reg.Get("database"), reg.Get("database"))
	assert.NotSame(t, reg.Get("database"), reg.Get("polygon"))
}

func TestRegistryStates(t *testing.T) {
	reg := NewRegistry(failingConfig())

	reg.Get("database")
	polygon := reg.Get("polygon")
	for i := 0; i < 3; i++ {
		polygon.Execute(fail)
	}

	states := reg.States()
	assert.Equal(t, "closed", states["database"])
	assert.Equal(t, "open", states["polygon"])
}
