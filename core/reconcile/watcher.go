package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/rtcache"
)

const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultQuietWindow = 2 * time.Second
)

// Guard reports whether some local mutation is mid-flight; reloads wait for it to settle.
type Guard interface {
	Any() bool
}

// ReloadFunc reloads the list watched under a path and renders it.
type ReloadFunc func(ctx context.Context) error

// Watcher turns real-time pushes into list reloads. Pushes whose item count did not change
// are dropped; the rest are debounced per path. A reload is held back while the app is
// loading that path or has just loaded it, and while the guard reports work in progress;
// a held-back change stays pending and is retried once the path settles.
type Watcher struct {
	tree     rtcache.Tree
	debounce *Debouncer
	quiet    time.Duration
	interval time.Duration
	guard    Guard
	now      core.Clock
	logger   core.Logger

	mu       sync.Mutex
	loads    map[rtcache.Path]*load
	limiters map[rtcache.Path]*rate.Limiter
}

type load struct {
	inFlight int
	at       time.Time
}

type Option func(*options)

type options struct {
	debounce time.Duration
	quiet    time.Duration
	interval time.Duration
	guard    Guard
	now      core.Clock
	logger   core.Logger
}

func WithDebounce(d time.Duration) Option    { return func(o *options) { o.debounce = d } }
func WithQuietWindow(d time.Duration) Option { return func(o *options) { o.quiet = d } }
func WithGuard(g Guard) Option               { return func(o *options) { o.guard = g } }
func WithClock(now core.Clock) Option        { return func(o *options) { o.now = now } }
func WithLogger(logger core.Logger) Option   { return func(o *options) { o.logger = logger } }

// WithReloadInterval caps reloads of a path to one per interval.
func WithReloadInterval(d time.Duration) Option { return func(o *options) { o.interval = d } }

func NewWatcher(tree rtcache.Tree, opts ...Option) *Watcher {
	o := options{
		debounce: DefaultDebounce,
		quiet:    DefaultQuietWindow,
		now:      core.UTCNow,
		logger:   core.NopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Watcher{
		tree:     tree,
		debounce: NewDebouncer(o.debounce),
		quiet:    o.quiet,
		interval: o.interval,
		guard:    o.guard,
		now:      o.now,
		logger:   o.logger,
		loads:    make(map[rtcache.Path]*load),
		limiters: make(map[rtcache.Path]*rate.Limiter),
	}
}

// BeginLoad marks an app-initiated load of the list watched under path.
func (w *Watcher) BeginLoad(path rtcache.Path) {
	w.mu.Lock()
	w.loadOf(path).inFlight++
	w.mu.Unlock()
}

// EndLoad closes a load opened by BeginLoad and starts the quiet window of path.
func (w *Watcher) EndLoad(path rtcache.Path) {
	w.mu.Lock()
	l := w.loadOf(path)
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.at = w.now()
	w.mu.Unlock()
}

// loadOf must be called with w.mu held.
func (w *Watcher) loadOf(path rtcache.Path) *load {
	l, ok := w.loads[path]
	if !ok {
		l = &load{}
		w.loads[path] = l
	}
	return l
}

// Stop cancels scheduled reloads.
func (w *Watcher) Stop() { w.debounce.Stop() }

type watch struct {
	mu     sync.Mutex
	count  int
	seeded bool
	dirty  bool
}

// observe records n and reports whether a reload is owed: the count differs from the
// last known one, or an earlier change has not been reloaded yet.
// The first observation only seeds the count.
func (wt *watch) observe(n int) bool {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	if !wt.seeded {
		wt.count, wt.seeded = n, true
		return false
	}
	if n != wt.count {
		wt.count, wt.dirty = n, true
	}
	return wt.dirty
}

// claim clears the pending change and reports whether there was one.
func (wt *watch) claim() bool {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	dirty := wt.dirty
	wt.dirty = false
	return dirty
}

func (wt *watch) markDirty() {
	wt.mu.Lock()
	wt.dirty = true
	wt.mu.Unlock()
}

func (wt *watch) isDirty() bool {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	return wt.dirty
}

// Watch subscribes to path until ctx is done and calls reload on accepted changes.
// Only the subscription itself can fail; errors delivered later are logged.
func (w *Watcher) Watch(ctx context.Context, path rtcache.Path, reload ReloadFunc) error {
	wt := &watch{}

	// seed before subscribing: the first push always carries the current state
	if snap, err := w.tree.Get(ctx, path); err != nil {
		w.logger.Warn(errors.Wrapf(err, "seeding %s", path).Error())
	} else {
		wt.observe(snap.Count())
	}

	err := w.tree.Subscribe(ctx, path, func(snap rtcache.Snapshot, err error) {
		if err != nil {
			pushes.WithLabelValues(resultError).Inc()
			w.logger.Warn(errors.Wrapf(err, "watching %s", path).Error())
			return
		}
		if !wt.observe(snap.Count()) {
			pushes.WithLabelValues(resultUnchanged).Inc()
			return
		}
		pushes.WithLabelValues(resultAccepted).Inc()
		w.schedule(ctx, path, wt, reload)
	})
	return errors.Wrapf(err, "subscribing to %s", path)
}

func (w *Watcher) schedule(ctx context.Context, path rtcache.Path, wt *watch, reload ReloadFunc) {
	w.debounce.Trigger(path.String(), func() { w.fire(ctx, path, wt, reload) })
}

func (w *Watcher) suppressed(path rtcache.Path) (string, bool) {
	w.mu.Lock()
	var inFlight int
	var loadedAt time.Time
	if l, ok := w.loads[path]; ok {
		inFlight, loadedAt = l.inFlight, l.at
	}
	w.mu.Unlock()

	switch {
	case inFlight > 0:
		return outcomeLoading, true
	case !loadedAt.IsZero() && w.now().Sub(loadedAt) < w.quiet:
		return outcomeQuiet, true
	case w.guard != nil && w.guard.Any():
		return outcomeProcessing, true
	}
	return "", false
}

func (w *Watcher) limiter(path rtcache.Path) *rate.Limiter {
	w.mu.Lock()
	defer w.mu.Unlock()
	lim, ok := w.limiters[path]
	if !ok {
		lim = rate.NewLimiter(rate.Every(w.interval), 1)
		w.limiters[path] = lim
	}
	return lim
}

// retry re-arms the debounce for a change that was held back. Without a debounce window
// the change waits for the next push instead.
func (w *Watcher) retry(ctx context.Context, path rtcache.Path, wt *watch, reload ReloadFunc) {
	if w.debounce.window > 0 {
		w.schedule(ctx, path, wt, reload)
	}
}

func (w *Watcher) fire(ctx context.Context, path rtcache.Path, wt *watch, reload ReloadFunc) {
	if ctx.Err() != nil || !wt.isDirty() {
		return
	}
	if outcome, skip := w.suppressed(path); skip {
		reloads.WithLabelValues(outcome).Inc()
		w.retry(ctx, path, wt, reload)
		return
	}
	if w.interval > 0 && !w.limiter(path).AllowN(w.now(), 1) {
		reloads.WithLabelValues(outcomeThrottled).Inc()
		w.retry(ctx, path, wt, reload)
		return
	}
	if !wt.claim() {
		return
	}

	w.BeginLoad(path)
	err := reload(ctx)
	w.EndLoad(path)
	if err != nil {
		// left pending for the next push
		wt.markDirty()
		reloads.WithLabelValues(outcomeFailed).Inc()
		w.logger.Warn(errors.Wrapf(err, "reloading %s", path).Error())
		return
	}
	reloads.WithLabelValues(outcomeOK).Inc()
}
