package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

func succeeding(val string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return val, nil }
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("openai", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	boom := eris.New("model unavailable")

	for i := 0; i < 3; i++ {
		_, err := ExecuteVal(context.Background(), cb, failing(boom))
		assert.True(t, eris.Is(err, boom))
	}
	assert.Equal(t, CircuitOpen, cb.State())

	calls := 0
	_, err := ExecuteVal(context.Background(), cb, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	assert.True(t, eris.Is(err, ErrCircuitOpen))
	assert.Zero(t, calls, "open circuit must not reach the service")
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("openai", CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	boom := eris.New("timeout")

	_, _ = ExecuteVal(context.Background(), cb, failing(boom))
	_, err := ExecuteVal(context.Background(), cb, succeeding("ok"))
	require.NoError(t, err)
	_, _ = ExecuteVal(context.Background(), cb, failing(boom))

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_ProbeClosesAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker("openai", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_, _ = ExecuteVal(context.Background(), cb, failing(eris.New("down")))
	require.Equal(t, CircuitOpen, cb.State())

	now = now.Add(31 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	got, err := ExecuteVal(context.Background(), cb, succeeding("transcript"))
	require.NoError(t, err)
	assert.Equal(t, "transcript", got)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker("openai", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_, _ = ExecuteVal(context.Background(), cb, failing(eris.New("down")))
	now = now.Add(31 * time.Second)

	_, err := ExecuteVal(context.Background(), cb, failing(eris.New("still down")))
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())

	// The failed probe restarts the full reset timeout.
	_, err = ExecuteVal(context.Background(), cb, succeeding("ok"))
	assert.True(t, eris.Is(err, ErrCircuitOpen))
}

func TestServiceBreakers_IsolatePerService(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	_, _ = ExecuteVal(context.Background(), sb.Get("openai"), failing(eris.New("quota exhausted")))

	assert.Equal(t, CircuitOpen, sb.Get("openai").State())
	assert.Equal(t, CircuitClosed, sb.Get("twilio").State())
	assert.Same(t, sb.Get("openai"), sb.Get("openai"))
}
