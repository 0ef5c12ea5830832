package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBroker = errors.New("broker down")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	c := &clock{t: time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("kite", CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Cooldown:         time.Minute,
		Now:              c.now,
	})

	calls := 0
	failing := func() error { calls++; return errBroker }

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(failing), errBroker)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(failing), ErrCircuitOpen)
	assert.Equal(t, 3, calls, "open circuit does not call through")
	assert.Equal(t, int64(1), cb.Rejected())

	c.t = c.t.Add(time.Minute)
	v, err := ExecuteWithResult(cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	c := &clock{t: time.Now()}
	cb := NewCircuitBreaker("kite", CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Second, Now: c.now})

	assert.Error(t, cb.Execute(func() error { return errBroker }))
	assert.Equal(t, CircuitOpen, cb.State())

	c.t = c.t.Add(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(func() error { return errBroker }), errBroker)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_IgnoresCallerErrors(t *testing.T) {
	errBadSymbol := errors.New("unknown underlying")
	cb := NewCircuitBreaker("kite", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, errBadSymbol) },
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errBadSymbol }), errBadSymbol)
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_NilPassesThrough(t *testing.T) {
	var cb *CircuitBreaker
	v, err := ExecuteWithResult(cb, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
