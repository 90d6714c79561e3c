package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/engage/core/rtcache"
	"github.com/trezcool/engage/storage/tree/memtree"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type manualTimer struct {
	f       func()
	stopped bool
	fired   bool
}

func (m *manualTimer) Stop() bool {
	if m.fired || m.stopped {
		return false
	}
	m.stopped = true
	return true
}

// scheduler hands out timers that only fire on flush.
type scheduler struct {
	timers []*manualTimer
}

func (s *scheduler) afterFunc(_ time.Duration, f func()) stopper {
	t := &manualTimer{f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *scheduler) flush() {
	timers := s.timers
	s.timers = nil
	for _, t := range timers {
		if t.stopped || t.fired {
			continue
		}
		t.fired = true
		t.f()
	}
}

type flag bool

func (f *flag) Any() bool { return bool(*f) }

func TestDebouncer(t *testing.T) {
	sched := &scheduler{}
	d := NewDebouncer(time.Second)
	d.afterFunc = sched.afterFunc

	calls := map[string]int{}
	d.Trigger("a", func() { calls["a"]++ })
	d.Trigger("a", func() { calls["a"]++ })
	d.Trigger("b", func() { calls["b"]++ })
	d.Trigger("a", func() { calls["a"]++ })
	assert.True(t, d.Pending("a"))

	sched.flush()
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, calls)
	assert.False(t, d.Pending("a"))

	d.Trigger("a", func() { calls["a"]++ })
	d.Stop()
	sched.flush()
	assert.Equal(t, 1, calls["a"])

	d.Trigger("a", func() { calls["a"]++ })
	assert.False(t, d.Pending("a"), "stopped debouncer ignores triggers")
}

func TestDebouncer_NoWindow(t *testing.T) {
	d := NewDebouncer(0)
	n := 0
	d.Trigger("a", func() { n++ })
	d.Trigger("a", func() { n++ })
	assert.Equal(t, 2, n)
}

type watchFixture struct {
	tree    *memtree.Tree
	watcher *Watcher
	sched   *scheduler
	clock   *clock
	guard   *flag
	reloads int
	path    rtcache.Path
}

func (f *watchFixture) add(t *testing.T, id string) {
	require.NoError(t, f.tree.Set(f.path.Child(id), true))
}

func watchSetup(t *testing.T, opts ...Option) *watchFixture {
	t.Helper()
	f := &watchFixture{
		tree:  memtree.New(),
		sched: &scheduler{},
		clock: &clock{t: t0},
		guard: new(flag),
		path:  rtcache.SubmissionsWithStatus("pending"),
	}
	require.NoError(t, f.tree.Set(f.path, map[string]bool{"s1": true, "s2": true}))

	opts = append([]Option{WithClock(f.clock.now), WithGuard(f.guard)}, opts...)
	f.watcher = NewWatcher(f.tree, opts...)
	f.watcher.debounce.afterFunc = f.sched.afterFunc

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, f.watcher.Watch(ctx, f.path, func(context.Context) error {
		f.reloads++
		return nil
	}))
	return f
}

func TestWatcher_InitialPushIgnored(t *testing.T) {
	f := watchSetup(t)
	f.sched.flush()
	assert.Zero(t, f.reloads)
}

func TestWatcher_UnchangedCountIgnored(t *testing.T) {
	f := watchSetup(t)

	// a sibling write under the same path that keeps the item count
	require.NoError(t, f.tree.Set(f.path.Child("s1"), false))
	assert.False(t, f.watcher.debounce.Pending(f.path.String()))
	f.sched.flush()
	assert.Zero(t, f.reloads)
}

func TestWatcher_BurstReloadsOnce(t *testing.T) {
	f := watchSetup(t)
	f.add(t, "s3")
	f.add(t, "s4")
	f.add(t, "s5")
	assert.Zero(t, f.reloads, "nothing happens before the debounce window")

	f.sched.flush()
	assert.Equal(t, 1, f.reloads)
}

func TestWatcher_Suppression(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *watchFixture)
		before  func(f *watchFixture)
		want    int
	}{
		{
			name: "accepted",
			want: 1,
		},
		{
			name:    "load in flight",
			prepare: func(f *watchFixture) { f.watcher.BeginLoad(f.path) },
		},
		{
			name:   "load starts during the debounce window",
			before: func(f *watchFixture) { f.watcher.BeginLoad(f.path) },
		},
		{
			name:    "another list loading",
			prepare: func(f *watchFixture) { f.watcher.BeginLoad(rtcache.SubmissionsWithStatus("approved")) },
			want:    1,
		},
		{
			name: "quiet window after own load",
			prepare: func(f *watchFixture) {
				f.watcher.BeginLoad(f.path)
				f.watcher.EndLoad(f.path)
				f.clock.advance(time.Second)
			},
		},
		{
			name: "quiet window elapsed",
			prepare: func(f *watchFixture) {
				f.watcher.BeginLoad(f.path)
				f.watcher.EndLoad(f.path)
				f.clock.advance(3 * time.Second)
			},
			want: 1,
		},
		{
			name:    "submission processing",
			prepare: func(f *watchFixture) { *f.guard = true },
		},
		{
			name:   "submission starts during the debounce window",
			before: func(f *watchFixture) { *f.guard = true },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := watchSetup(t)
			if tt.prepare != nil {
				tt.prepare(f)
			}
			f.add(t, "s3")
			if tt.before != nil {
				tt.before(f)
			}
			f.sched.flush()
			assert.Equal(t, tt.want, f.reloads)
		})
	}
}

func TestWatcher_OwnReloadStartsQuietWindow(t *testing.T) {
	f := watchSetup(t)
	f.add(t, "s3")
	f.sched.flush()
	require.Equal(t, 1, f.reloads)

	f.add(t, "s4")
	f.sched.flush()
	assert.Equal(t, 1, f.reloads)

	f.clock.advance(3 * time.Second)
	f.add(t, "s5")
	f.sched.flush()
	assert.Equal(t, 2, f.reloads)
}

func TestWatcher_HeldBackChangeIsRetried(t *testing.T) {
	f := watchSetup(t)
	*f.guard = true
	f.add(t, "s3")
	f.sched.flush()
	require.Zero(t, f.reloads)
	assert.True(t, f.watcher.debounce.Pending(f.path.String()), "retry re-armed")

	f.sched.flush()
	require.Zero(t, f.reloads)

	*f.guard = false
	f.sched.flush()
	assert.Equal(t, 1, f.reloads)

	f.sched.flush()
	assert.Equal(t, 1, f.reloads, "nothing left pending")
}

func TestWatcher_HeldBackChangeReloadsOnNextPush(t *testing.T) {
	// without a debounce window nothing is re-armed; the next push carries the change
	f := watchSetup(t, WithDebounce(0))
	*f.guard = true
	f.add(t, "s3")
	require.Zero(t, f.reloads)

	*f.guard = false
	require.NoError(t, f.tree.Set(f.path.Child("s1"), false))
	assert.Equal(t, 1, f.reloads)

	require.NoError(t, f.tree.Set(f.path.Child("s2"), false))
	assert.Equal(t, 1, f.reloads, "same count and nothing pending")
}

func TestWatcher_PathsSettleIndependently(t *testing.T) {
	f := watchSetup(t)
	approved := rtcache.SubmissionsWithStatus("approved")
	approvedReloads := 0

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, f.watcher.Watch(ctx, approved, func(context.Context) error {
		approvedReloads++
		return nil
	}))

	// s1 moves from pending to approved: both lists change at once
	f.tree.Delete(f.path.Child("s1"))
	require.NoError(t, f.tree.Set(approved.Child("s1"), true))
	f.sched.flush()
	assert.Equal(t, 1, f.reloads)
	assert.Equal(t, 1, approvedReloads, "the pending reload must not silence approved")

	f.clock.advance(time.Minute)
	f.sched.flush()
	assert.Equal(t, 1, f.reloads)
	assert.Equal(t, 1, approvedReloads)
}

func TestWatcher_Throttle(t *testing.T) {
	f := watchSetup(t, WithQuietWindow(0), WithReloadInterval(time.Minute))
	f.add(t, "s3")
	f.sched.flush()
	f.add(t, "s4")
	f.sched.flush()
	assert.Equal(t, 1, f.reloads)

	f.clock.advance(time.Minute)
	f.add(t, "s5")
	f.sched.flush()
	assert.Equal(t, 2, f.reloads)
}

func TestWatcher_ReloadErrorIsSwallowed(t *testing.T) {
	tree := memtree.New()
	sched := &scheduler{}
	path := rtcache.SubmissionsWithStatus("approved")
	w := NewWatcher(tree, WithQuietWindow(0))
	w.debounce.afterFunc = sched.afterFunc

	calls := 0
	require.NoError(t, w.Watch(context.Background(), path, func(context.Context) error {
		calls++
		return errors.New("permission denied")
	}))
	require.NoError(t, tree.Set(path.Child("s1"), true))
	sched.flush()
	assert.Equal(t, 1, calls)

	w.mu.Lock()
	assert.Zero(t, w.loads[path].inFlight)
	w.mu.Unlock()
}

// brokenTree pushes an error to every subscriber.
type brokenTree struct{ err error }

func (b brokenTree) Get(_ context.Context, path rtcache.Path) (rtcache.Snapshot, error) {
	return rtcache.Snapshot{Path: path}, b.err
}

func (b brokenTree) Subscribe(_ context.Context, path rtcache.Path, h rtcache.Handler) error {
	h(rtcache.Snapshot{Path: path}, b.err)
	return nil
}

func TestWatcher_SubscriptionErrorsAreLogged(t *testing.T) {
	w := NewWatcher(brokenTree{err: errors.New("listener closed")})
	calls := 0
	err := w.Watch(context.Background(), rtcache.AdminStats(), func(context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Zero(t, calls)
}

func TestWatcher_SeedFailureSeedsOnFirstPush(t *testing.T) {
	tree := memtree.New()
	sched := &scheduler{}
	path := rtcache.SubmissionsWithStatus("rejected")
	require.NoError(t, tree.Set(path.Child("s1"), true))
	tree.FailReads(errors.New("offline"))

	w := NewWatcher(tree, WithQuietWindow(0))
	w.debounce.afterFunc = sched.afterFunc
	calls := 0
	reload := func(context.Context) error { calls++; return nil }

	// the immediate push fails too; the next successful one seeds
	require.NoError(t, w.Watch(context.Background(), path, reload))
	tree.FailReads(nil)
	require.NoError(t, tree.Set(path.Child("s1"), "resubmitted"))
	sched.flush()
	assert.Zero(t, calls)

	require.NoError(t, tree.Set(path.Child("s2"), true))
	sched.flush()
	assert.Equal(t, 1, calls)
}
