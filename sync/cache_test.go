package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecayingCacheFreshAfterUpdate(t *testing.T) {
	c := NewDecayingCache[int](time.Hour)
	_, ok := c.Get()
	require.False(t, ok)

	c.Update(42)
	v, ok := c.Get()
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestDecayingCacheExpires(t *testing.T) {
	c := NewDecayingCache[int](time.Millisecond)
	c.Update(1)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get()
	require.False(t, ok)
}

func TestDecayingCacheZeroTTLUsesDefault(t *testing.T) {
	c := NewDecayingCache[int](0)
	require.Equal(t, DefaultCacheTTL, c.ttl)
}
