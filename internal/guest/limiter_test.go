package guest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterEnforcesLimit(t *testing.T) {
	l := NewMemoryLimiter(1)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, ok)

	// Other callers are unaffected.
	ok, err = l.Allow(ctx, "203.0.113.10")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiterCounterExpires(t *testing.T) {
	l := NewMemoryLimiter(1)
	ctx := context.Background()

	now := time.Now()
	l.now = func() time.Time { return now }

	ok, _ := l.Allow(ctx, "203.0.113.9")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "203.0.113.9")
	assert.False(t, ok)

	l.now = func() time.Time { return now.Add(counterTTL + time.Minute) }
	ok, err := l.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, ok, "counter resets after the expiry window")
}
