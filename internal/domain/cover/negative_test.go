package cover

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNegativeCache_CoolDown(t *testing.T) {
	clock := newFakeClock()
	n := NewNegativeCache(time.Hour)
	n.SetClock(clock.Now)

	assert.False(t, n.Suppressed("q"))

	n.Record("q")
	assert.True(t, n.Suppressed("q"))

	clock.Advance(59 * time.Minute)
	assert.True(t, n.Suppressed("q"), "still inside the window")

	clock.Advance(time.Minute)
	assert.False(t, n.Suppressed("q"), "window elapsed")
	assert.Equal(t, 0, n.Len(), "expired entry is dropped")
}

func TestNegativeCache_RecordRefreshes(t *testing.T) {
	clock := newFakeClock()
	n := NewNegativeCache(time.Hour)
	n.SetClock(clock.Now)

	n.Record("q")
	clock.Advance(50 * time.Minute)
	n.Record("q")
	clock.Advance(50 * time.Minute)

	assert.True(t, n.Suppressed("q"))
}

func TestNegativeCache_KeysAreIndependent(t *testing.T) {
	n := NewNegativeCache(time.Hour)
	n.Record("a")

	assert.True(t, n.Suppressed("a"))
	assert.False(t, n.Suppressed("b"))
}

func TestNegativeCache_DefaultCoolDown(t *testing.T) {
	clock := newFakeClock()
	n := NewNegativeCache(0)
	n.SetClock(clock.Now)

	n.Record("q")
	clock.Advance(DefaultCoolDown - time.Second)
	assert.True(t, n.Suppressed("q"))
	clock.Advance(time.Second)
	assert.False(t, n.Suppressed("q"))
}

func TestNegativeCache_Clear(t *testing.T) {
	n := NewNegativeCache(time.Hour)
	n.Record("a")
	n.Record("b")
	assert.Equal(t, 2, n.Len())

	n.Clear()
	assert.Equal(t, 0, n.Len())
	assert.False(t, n.Suppressed("a"))
}

func TestNegativeCache_Concurrent(t *testing.T) {
	n := NewNegativeCache(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%5))
			n.Record(key)
			n.Suppressed(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, n.Len())
}
