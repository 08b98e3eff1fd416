package plugin

import (
	"sync"
	"time"
)

// DefaultDebounce is how long the watcher waits for MPD to settle after a
// player event before it looks at the current song.
const DefaultDebounce = 150 * time.Millisecond

// Debouncer collapses rapid MPD subsystem events into one song check.
// Seeking, pausing and skipping through a queue all raise "player" events;
// only the last one inside the window matters.
type Debouncer struct {
	window   time.Duration
	callback func()

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer that calls callback once the window
// elapses without further player events.
func NewDebouncer(window time.Duration, callback func()) *Debouncer {
	return &Debouncer{
		window:   window,
		callback: callback,
	}
}

// Trigger records that the given MPD subsystem has changed. Subsystems other
// than "player" and "playlist" are ignored.
func (d *Debouncer) Trigger(subsystem string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	switch subsystem {
	case "player", "playlist":
		d.pending = true
	default:
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	fire := d.pending && !d.stopped
	d.pending = false
	d.mu.Unlock()

	if fire && d.callback != nil {
		d.callback()
	}
}

// Stop prevents any further callbacks from firing.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = false
}
