package optimistic

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/engage/core"
)

const (
	DefaultWindow    = 30 * time.Second
	DefaultExitDelay = 300 * time.Millisecond
)

type OpKind string

const (
	OpAdd    OpKind = "add"
	OpUpdate OpKind = "update"
	OpRemove OpKind = "remove"
)

type State string

const (
	StatePending    State = "pending"
	StateConfirmed  State = "confirmed"
	StateRolledBack State = "rolled_back"
)

// RenderFunc is called with the list each time its rendered content changes.
type RenderFunc[T Item] func(list *List[T])

type operation[T Item] struct {
	id        string
	kind      OpKind
	itemType  string
	itemID    string
	prior     T
	hasPrior  bool
	list      *List[T]
	render    RenderFunc[T]
	createdAt time.Time
	state     State
	exitTimer stopper
}

type stopper interface{ Stop() bool }

// Tracker records in-flight local mutations so they can be rolled back if their write fails.
// An operation leaves the table when it is committed, rolled back or once Window has elapsed,
// after which it is assumed confirmed.
type Tracker[T Item] struct {
	mu  sync.Mutex
	ops map[string]*operation[T]

	window    time.Duration
	exitDelay time.Duration
	now       core.Clock
	afterFunc func(d time.Duration, f func()) stopper
	logger    core.Logger
}

type Option func(*options)

type options struct {
	window    time.Duration
	exitDelay time.Duration
	now       core.Clock
	afterFunc func(d time.Duration, f func()) stopper
	logger    core.Logger
}

func WithWindow(d time.Duration) Option    { return func(o *options) { o.window = d } }
func WithExitDelay(d time.Duration) Option { return func(o *options) { o.exitDelay = d } }
func WithClock(now core.Clock) Option      { return func(o *options) { o.now = now } }
func WithLogger(logger core.Logger) Option { return func(o *options) { o.logger = logger } }

func NewTracker[T Item](opts ...Option) *Tracker[T] {
	o := options{
		window:    DefaultWindow,
		exitDelay: DefaultExitDelay,
		now:       core.UTCNow,
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
		logger:    core.NopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Tracker[T]{
		ops:       make(map[string]*operation[T]),
		window:    o.window,
		exitDelay: o.exitDelay,
		now:       o.now,
		afterFunc: o.afterFunc,
		logger:    o.logger,
	}
}

// AddItem inserts item into list and renders immediately.
// Items without an id are refused: it returns "", false.
func (t *Tracker[T]) AddItem(itemType string, item T, render RenderFunc[T], list *List[T]) (string, bool) {
	if item.ItemID() == "" {
		t.logger.Debug("optimistic add refused: item has no id", map[string]interface{}{"type": itemType})
		return "", false
	}
	prior, existed := list.insert(item)
	op := t.track(OpAdd, itemType, item.ItemID(), prior, existed, list, render)
	t.emit(render, list)
	return op.id, true
}

// RemoveItem marks the item as exiting and renders; once the exit transition is over
// the item is spliced out and the list rendered again.
func (t *Tracker[T]) RemoveItem(itemType, id string, render RenderFunc[T], list *List[T]) (string, bool) {
	prior, ok := list.Get(id)
	if !ok {
		return "", false
	}
	op := t.track(OpRemove, itemType, id, prior, true, list, render)

	if t.exitDelay <= 0 {
		list.remove(id)
		t.emit(render, list)
		return op.id, true
	}

	list.setExiting(id, true)
	t.emit(render, list)

	timer := t.afterFunc(t.exitDelay, func() { t.completeExit(op) })
	t.mu.Lock()
	op.exitTimer = timer
	t.mu.Unlock()
	return op.id, true
}

// completeExit splices the item out unless the operation was rolled back. The state check
// and the removal share t.mu so a concurrent Rollback either wins outright or re-inserts after.
func (t *Tracker[T]) completeExit(op *operation[T]) {
	t.mu.Lock()
	op.exitTimer = nil
	if op.state == StateRolledBack {
		t.mu.Unlock()
		return
	}
	_, removed := op.list.remove(op.itemID)
	t.mu.Unlock()
	if removed {
		t.emit(op.render, op.list)
	}
}

// UpdateItem applies patch to the item with the given id and renders immediately.
func (t *Tracker[T]) UpdateItem(itemType, id string, patch func(T) T, render RenderFunc[T], list *List[T]) (string, bool) {
	prior, ok := list.update(id, patch)
	if !ok {
		return "", false
	}
	op := t.track(OpUpdate, itemType, id, prior, true, list, render)
	t.emit(render, list)
	return op.id, true
}

// Rollback restores the state captured by operation opID then renders.
// Unknown, expired or already resolved operations return false.
func (t *Tracker[T]) Rollback(opID string, render RenderFunc[T]) bool {
	t.mu.Lock()
	t.sweep()
	op, ok := t.ops[opID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.ops, opID)
	op.state = StateRolledBack
	timer := op.exitTimer
	op.exitTimer = nil
	t.mu.Unlock()

	if render == nil {
		render = op.render
	}

	switch op.kind {
	case OpAdd:
		if op.hasPrior {
			op.list.insert(op.prior)
		} else {
			op.list.remove(op.itemID)
		}
	case OpRemove:
		if timer != nil && timer.Stop() {
			op.list.setExiting(op.itemID, false)
		} else {
			op.list.insert(op.prior)
		}
	case OpUpdate:
		op.list.update(op.itemID, func(T) T { return op.prior })
	}
	opsResolved.WithLabelValues(string(op.kind), string(StateRolledBack)).Inc()
	t.emit(render, op.list)
	return true
}

// Commit runs the authoritative write for opID: success confirms the operation, failure rolls it back.
// The write error is returned as is.
func (t *Tracker[T]) Commit(ctx context.Context, opID string, write func(ctx context.Context) error) error {
	if err := write(ctx); err != nil {
		t.Rollback(opID, nil)
		return err
	}
	t.Confirm(opID)
	return nil
}

// Confirm resolves opID as written. Unknown ids are ignored.
func (t *Tracker[T]) Confirm(opID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[opID]
	if !ok {
		return
	}
	delete(t.ops, opID)
	op.state = StateConfirmed
	opsResolved.WithLabelValues(string(op.kind), string(StateConfirmed)).Inc()
}

// State returns the state of a tracked operation; resolved or expired operations are not tracked.
func (t *Tracker[T]) State(opID string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweep()
	if op, ok := t.ops[opID]; ok {
		return op.state, true
	}
	return "", false
}

// Pending returns the number of tracked operations.
func (t *Tracker[T]) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweep()
	return len(t.ops)
}

func (t *Tracker[T]) track(kind OpKind, itemType, itemID string, prior T, hasPrior bool, list *List[T], render RenderFunc[T]) *operation[T] {
	op := &operation[T]{
		id:        uuid.NewString(),
		kind:      kind,
		itemType:  itemType,
		itemID:    itemID,
		prior:     prior,
		hasPrior:  hasPrior,
		list:      list,
		render:    render,
		createdAt: t.now(),
		state:     StatePending,
	}
	t.mu.Lock()
	t.sweep()
	t.ops[op.id] = op
	t.mu.Unlock()
	opsStarted.WithLabelValues(string(kind)).Inc()
	return op
}

// sweep drops expired operations. t.mu must be held.
func (t *Tracker[T]) sweep() {
	now := t.now()
	for id, op := range t.ops {
		if now.Sub(op.createdAt) >= t.window {
			delete(t.ops, id)
			op.state = StateConfirmed
			opsResolved.WithLabelValues(string(op.kind), "expired").Inc()
		}
	}
}

func (t *Tracker[T]) emit(render RenderFunc[T], list *List[T]) {
	if render != nil {
		render(list)
	}
}
