package watcher

import (
	"sync"
	"time"
)

// debouncer coalesces rapid filesystem events for a single watched path into
// one callback invocation per window, firing `window` after the last
// trigger. Unlike the teacher's Debouncer, which multiplexes many paths
// under one coalescing map, each watcher entry here owns exactly one path,
// so a bare per-entry timer is enough.
type debouncer struct {
	window   time.Duration
	callback func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newDebouncer(window time.Duration, callback func()) *debouncer {
	return &debouncer{window: window, callback: callback}
}

// trigger (re)starts the coalescing window.
func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if !stopped && d.callback != nil {
		d.callback()
	}
}

// stop cancels any pending timer; subsequent triggers are no-ops.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
