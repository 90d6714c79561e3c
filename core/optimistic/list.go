package optimistic

import (
	"sort"
	"sync"
	"time"
)

// Item is anything rendered in an optimistic list.
type Item interface {
	ItemID() string
	RecencyKey() time.Time
}

// List is an ordered set of items, de-duplicated by id and sorted by recency (newest first).
// Items in an exit transition stay listed until the transition completes.
type List[T Item] struct {
	mu      sync.RWMutex
	items   []T
	exiting map[string]bool
}

func NewList[T Item](items ...T) *List[T] {
	l := &List[T]{exiting: make(map[string]bool)}
	l.Replace(items)
	return l
}

// Replace swaps the content for an authoritative list, dropping duplicates and exit marks.
func (l *List[T]) Replace(items []T) {
	seen := make(map[string]bool, len(items))
	res := make([]T, 0, len(items))
	for _, it := range items {
		if id := it.ItemID(); id != "" && !seen[id] {
			seen[id] = true
			res = append(res, it)
		}
	}
	sortByRecency(res)

	l.mu.Lock()
	l.items = res
	l.exiting = make(map[string]bool)
	l.mu.Unlock()
}

// Items returns a copy of the current items.
func (l *List[T]) Items() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res := make([]T, len(l.items))
	copy(res, l.items)
	return res
}

func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *List[T]) Get(id string) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.index(id); i >= 0 {
		return l.items[i], true
	}
	var zero T
	return zero, false
}

// Exiting reports whether id is in its exit transition.
func (l *List[T]) Exiting(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.exiting[id]
}

// insert adds or replaces item; it reports the replaced item, if any.
func (l *List[T]) insert(item T) (prior T, existed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.index(item.ItemID()); i >= 0 {
		prior, existed = l.items[i], true
		l.items[i] = item
	} else {
		l.items = append(l.items, item)
	}
	delete(l.exiting, item.ItemID())
	sortByRecency(l.items)
	return prior, existed
}

func (l *List[T]) remove(id string) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.exiting, id)
	i := l.index(id)
	if i < 0 {
		var zero T
		return zero, false
	}
	item := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)
	return item, true
}

// update applies patch in place, keeping the position of the item.
func (l *List[T]) update(id string, patch func(T) T) (prior T, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.index(id)
	if i < 0 {
		return prior, false
	}
	prior = l.items[i]
	l.items[i] = patch(prior)
	return prior, true
}

func (l *List[T]) setExiting(id string, exiting bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.index(id) < 0 {
		return false
	}
	if exiting {
		l.exiting[id] = true
	} else {
		delete(l.exiting, id)
	}
	return true
}

func (l *List[T]) index(id string) int {
	for i, it := range l.items {
		if it.ItemID() == id {
			return i
		}
	}
	return -1
}

func sortByRecency[T Item](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RecencyKey().After(items[j].RecencyKey())
	})
}
