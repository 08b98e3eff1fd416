package plugin

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// countingDebouncer returns a debouncer and the number of callbacks so far.
func countingDebouncer(t *testing.T, window time.Duration) (*Debouncer, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	d := NewDebouncer(window, func() { calls.Add(1) })
	t.Cleanup(d.Stop)
	return d, &calls
}

func TestDebouncer_RapidPlayerEventsCollapseToOne(t *testing.T) {
	d, calls := countingDebouncer(t, 50*time.Millisecond)

	for i := 0; i < 10; i++ {
		d.Trigger("player")
	}
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_IgnoresOtherSubsystems(t *testing.T) {
	d, calls := countingDebouncer(t, 20*time.Millisecond)

	d.Trigger("mixer")
	d.Trigger("options")
	d.Trigger("database")
	time.Sleep(60 * time.Millisecond)

	assert.Zero(t, calls.Load())
}

func TestDebouncer_PlaylistCounts(t *testing.T) {
	d, calls := countingDebouncer(t, 20*time.Millisecond)

	d.Trigger("playlist")
	d.Trigger("mixer")
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	d, calls := countingDebouncer(t, 20*time.Millisecond)

	d.Trigger("player")
	time.Sleep(60 * time.Millisecond)
	d.Trigger("player")
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, int32(2), calls.Load())
}

func TestDebouncer_StopPreventsCallback(t *testing.T) {
	d, calls := countingDebouncer(t, 30*time.Millisecond)

	d.Trigger("player")
	d.Stop()
	d.Trigger("player")
	time.Sleep(80 * time.Millisecond)

	assert.Zero(t, calls.Load(), "no callback after Stop")
}
