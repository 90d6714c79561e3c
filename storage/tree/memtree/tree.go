// Package memtree is an in-process read-through tree.
// Set and Delete stand in for the external aggregation jobs in development and tests.
package memtree

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/engage/core/rtcache"
)

type subscription struct {
	path rtcache.Path
	h    rtcache.Handler
}

type Tree struct {
	mu     sync.RWMutex
	docs   map[rtcache.Path]json.RawMessage
	subs   map[int]subscription
	nextID int
	getErr error
}

var _ rtcache.Tree = (*Tree)(nil)

func New() *Tree {
	return &Tree{
		docs: make(map[rtcache.Path]json.RawMessage),
		subs: make(map[int]subscription),
	}
}

// Set replaces the value at path, including anything nested under it, and notifies subscribers.
func (t *Tree) Set(path rtcache.Path, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", path)
	}
	t.mu.Lock()
	t.dropUnder(path)
	t.docs[path] = raw
	t.mu.Unlock()

	t.notify(path)
	return nil
}

// Delete removes the value at path and everything under it.
func (t *Tree) Delete(path rtcache.Path) {
	t.mu.Lock()
	t.dropUnder(path)
	for p := range t.docs {
		if p.Contains(path) {
			// mask the copy held by an enclosing document
			t.docs[path] = json.RawMessage("null")
			break
		}
	}
	t.mu.Unlock()

	t.notify(path)
}

// FailReads makes every Get fail with err until called again with nil.
func (t *Tree) FailReads(err error) {
	t.mu.Lock()
	t.getErr = err
	t.mu.Unlock()
}

func (t *Tree) Get(_ context.Context, path rtcache.Path) (rtcache.Snapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.getErr != nil {
		return rtcache.Snapshot{Path: path}, t.getErr
	}
	raw, ok, err := rtcache.Assemble(path, t.docs)
	if err != nil {
		return rtcache.Snapshot{Path: path}, err
	}
	return rtcache.Snapshot{Path: path, Raw: raw, Exists: ok}, nil
}

func (t *Tree) Subscribe(ctx context.Context, path rtcache.Path, h rtcache.Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = subscription{path: path, h: h}
	t.mu.Unlock()

	h(t.Get(ctx, path))

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}()
	return nil
}

// Subscribers returns the number of live subscriptions.
func (t *Tree) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// dropUnder deletes path and every document nested under it. t.mu must be held.
func (t *Tree) dropUnder(path rtcache.Path) {
	for p := range t.docs {
		if path.Contains(p) {
			delete(t.docs, p)
		}
	}
}

func (t *Tree) notify(changed rtcache.Path) {
	t.mu.RLock()
	var targets []subscription
	for _, s := range t.subs {
		if rtcache.Related(s.path, changed) {
			targets = append(targets, s)
		}
	}
	t.mu.RUnlock()

	for _, s := range targets {
		s.h(t.Get(context.Background(), s.path))
	}
}
