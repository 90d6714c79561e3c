package reconcile

import (
	"sync"
	"time"
)

type stopper interface{ Stop() bool }

type pending struct {
	timer stopper
	gen   uint64
}

// Debouncer collapses bursts of triggers per key into a single call, made once the key
// has been quiet for the window.
type Debouncer struct {
	window    time.Duration
	afterFunc func(d time.Duration, f func()) stopper

	mu      sync.Mutex
	timers  map[string]pending
	gen     uint64
	stopped bool
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:    window,
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
		timers:    make(map[string]pending),
	}
}

// Trigger (re)starts the window for key; fn runs when it elapses without another trigger.
// A non-positive window runs fn right away.
func (d *Debouncer) Trigger(key string, fn func()) {
	if d.window <= 0 {
		fn()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if p, ok := d.timers[key]; ok {
		p.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timers[key] = pending{gen: gen, timer: d.afterFunc(d.window, func() {
		d.mu.Lock()
		p, ok := d.timers[key]
		if !ok || p.gen != gen {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})}
}

// Pending reports whether a call is scheduled for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// Stop cancels every scheduled call; later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, p := range d.timers {
		p.timer.Stop()
		delete(d.timers, key)
	}
}
