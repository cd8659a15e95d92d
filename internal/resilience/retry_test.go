package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestDoVal_ReturnsOnFirstSuccess(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), fastRetry(3), func(context.Context) ([]byte, error) {
		calls++
		return []byte("audio"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), got)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RetriesTransientUntilExhausted(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		return "", NewTransientError(eris.New("recording fetch status 503"), 503)
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoVal_PermanentErrorFailsFast(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		return "", eris.New("recording exceeds byte limit")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RecoversMidway(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(eris.New("bad gateway"), 502)
		}
		return "transcript", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "transcript", got)
	assert.Equal(t, 3, calls)
}

func TestDoVal_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastRetry(5), func(context.Context) (string, error) {
		calls++
		cancel()
		return "", NewTransientError(eris.New("connection reset"), 0)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_OnRetryObservesEachAttempt(t *testing.T) {
	cfg := fastRetry(3)
	var attempts []int
	cfg.OnRetry = func(attempt int, _ error) {
		attempts = append(attempts, attempt)
	}

	_, _ = DoVal(context.Background(), cfg, func(context.Context) (string, error) {
		return "", NewTransientError(eris.New("throttled"), 429)
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetryConfig_DelayCappedByMaxBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
		Multiplier:     10,
	}.withDefaults()

	assert.Equal(t, time.Second, cfg.delay(1))
	assert.Equal(t, 3*time.Second, cfg.delay(2))
}
