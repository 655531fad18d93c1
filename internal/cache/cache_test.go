package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New()

	c.Set("key1", "value1", 10*time.Second)
	val, exists := c.Get("key1")
	assert.True(t, exists)
	assert.Equal(t, "value1", val)

	val, exists = c.Get("nonexistent")
	assert.False(t, exists)
	assert.Nil(t, val)
}

func TestCache_Expiration(t *testing.T) {
	c := New()

	c.Set("expiring", "value", 50*time.Millisecond)

	val, exists := c.Get("expiring")
	assert.True(t, exists)
	assert.Equal(t, "value", val)

	time.Sleep(80 * time.Millisecond)

	_, exists = c.Get("expiring")
	assert.False(t, exists)
	// Expired entry is evicted on access
	assert.Equal(t, 0, c.Len())
}

func TestCache_LastWriteWins(t *testing.T) {
	c := New()

	c.Set("key", "value1", 10*time.Second)
	c.Set("key", "value2", 10*time.Second)

	val, exists := c.Get("key")
	assert.True(t, exists)
	assert.Equal(t, "value2", val)
}

func TestCache_DeleteAndPurge(t *testing.T) {
	c := New()

	c.Set("a", 1, 10*time.Second)
	c.Set("b", 2, 10*time.Second)

	c.Delete("a")
	_, exists := c.Get("a")
	assert.False(t, exists)

	// Deleting a missing key is a no-op
	c.Delete("missing")

	c.Purge()
	_, exists = c.Get("b")
	assert.False(t, exists)
	assert.Equal(t, 0, c.Len())
}

func TestCache_NegativeTTLExpiresImmediately(t *testing.T) {
	c := New()

	c.Set("gone", "value", -time.Second)
	_, exists := c.Get("gone")
	assert.False(t, exists)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func(n int) {
			defer wg.Done()
			c.Set("key", n, 10*time.Second)
		}(i)
		go func() {
			defer wg.Done()
			c.Get("key")
		}()
		go func(n int) {
			defer wg.Done()
			if n%10 == 0 {
				c.Delete("key")
			}
		}(i)
	}
	wg.Wait()

	c.Set("final", "value", 10*time.Second)
	val, exists := c.Get("final")
	assert.True(t, exists)
	assert.Equal(t, "value", val)
}
