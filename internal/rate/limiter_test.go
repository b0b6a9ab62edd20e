package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsUpToPerMin(t *testing.T) {
	l := NewLimiter(3, true)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow(1)
		require.True(t, ok, "event %d", i)
	}

	ok, retryAfter := l.Allow(1)
	require.False(t, ok)
	require.Greater(t, retryAfter, time.Duration(0))
	require.LessOrEqual(t, retryAfter, time.Minute)
}

func TestLimiterWindowSlides(t *testing.T) {
	l := NewLimiter(2, true)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow(1)
	require.True(t, ok)
	ok, _ = l.Allow(1)
	require.True(t, ok)
	ok, _ = l.Allow(1)
	require.False(t, ok)

	// Once the first event ages out, one slot frees up.
	now = now.Add(61 * time.Second)
	ok, _ = l.Allow(1)
	require.True(t, ok)
}

func TestLimiterRetryAfterMatchesOldestEvent(t *testing.T) {
	l := NewLimiter(1, true)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow(1)
	require.True(t, ok)

	now = now.Add(20 * time.Second)
	ok, retryAfter := l.Allow(1)
	require.False(t, ok)
	require.Equal(t, 40*time.Second, retryAfter)
}

func TestLimiterPerDeviceIsolation(t *testing.T) {
	l := NewLimiter(1, true)

	ok, _ := l.Allow(1)
	require.True(t, ok)
	ok, _ = l.Allow(2)
	require.True(t, ok)
	ok, _ = l.Allow(1)
	require.False(t, ok)
}

func TestLimiterDisabledAlwaysAllows(t *testing.T) {
	l := NewLimiter(0, false)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow(1)
		require.True(t, ok)
	}
}

func TestLimiterReset(t *testing.T) {
	l := NewLimiter(1, true)
	ok, _ := l.Allow(1)
	require.True(t, ok)
	ok, _ = l.Allow(1)
	require.False(t, ok)

	l.Reset(1)
	ok, _ = l.Allow(1)
	require.True(t, ok)
}
