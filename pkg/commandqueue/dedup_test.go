package commandqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupCache_GetSet(t *testing.T) {
	cache := newDedupCache(context.Background(), time.Minute)
	defer cache.Stop()

	_, ok := cache.Get("req-1")
	assert.False(t, ok)

	cache.Set("req-1", taskResult{value: "cached"})

	result, ok := cache.Get("req-1")
	assert.True(t, ok)
	assert.Equal(t, "cached", result.value)
}

func TestDedupCache_Expiry(t *testing.T) {
	cache := newDedupCache(context.Background(), 10*time.Millisecond)
	defer cache.Stop()

	cache.Set("req-1", taskResult{value: "cached"})
	time.Sleep(30 * time.Millisecond)

	_, ok := cache.Get("req-1")
	assert.False(t, ok)
}

func TestDedupCache_Shutdown(t *testing.T) {
	cache := newDedupCache(context.Background(), 50*time.Millisecond)
	cache.Stop()

	select {
	case <-cache.done:
		// ok
	case <-time.After(1 * time.Second):
		t.Fatalf("dedup cache cleanup did not stop within timeout")
	}
}
