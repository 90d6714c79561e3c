package rtcache

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Tree is the read-through cache store: a key-path tree of JSON documents populated by
// external aggregation jobs. It is read-only from here.
type Tree interface {
	// Get returns the value at path, assembled from nested documents when path is an inner node.
	Get(ctx context.Context, path Path) (Snapshot, error)

	// Subscribe calls h with the current value at path right away, then on every change at,
	// above or under path until ctx is done.
	Subscribe(ctx context.Context, path Path, h Handler) error
}

// Handler receives pushes of a subscription. err is set when the subscription failed.
type Handler func(snap Snapshot, err error)

// Snapshot is the value of a path at one point in time.
type Snapshot struct {
	Path   Path
	Raw    json.RawMessage
	Exists bool
}

// Count is the number of children of an object or array value, 1 for scalars and 0 when absent.
func (s Snapshot) Count() int {
	if !s.Exists || len(s.Raw) == 0 {
		return 0
	}
	switch bytes.TrimSpace(s.Raw)[0] {
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(s.Raw, &m); err != nil {
			return 0
		}
		return len(m)
	case '[':
		var a []json.RawMessage
		if err := json.Unmarshal(s.Raw, &a); err != nil {
			return 0
		}
		return len(a)
	case 'n':
		return 0
	}
	return 1
}

// Keys returns the sorted child keys of an object value.
func (s Snapshot) Keys() []string {
	var m map[string]json.RawMessage
	if !s.Exists || json.Unmarshal(s.Raw, &m) != nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s Snapshot) Decode(dst interface{}) error {
	if !s.Exists {
		return errors.Wrapf(ErrNotFound, "decoding %s", s.Path)
	}
	return errors.Wrapf(json.Unmarshal(s.Raw, dst), "decoding %s", s.Path)
}

var ErrNotFound = errors.New("path not found")

// Related reports whether a change at changed affects a subscription at watched.
func Related(watched, changed Path) bool {
	return watched.Contains(changed) || changed.Contains(watched)
}

// Assemble builds the value at root from flat documents keyed by path. Documents nested deeper
// override the ones above them, the way writes to a child path do.
func Assemble(root Path, docs map[Path]json.RawMessage) (json.RawMessage, bool, error) {
	paths := make([]Path, 0, len(docs))
	for p := range docs {
		if Related(root, p) {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, false, nil
	}
	// shallow paths first so nested writes land on top
	sort.Slice(paths, func(i, j int) bool {
		return strings.Count(string(paths[i]), "/") < strings.Count(string(paths[j]), "/")
	})

	var tree interface{}
	for _, p := range paths {
		var val interface{}
		if err := json.Unmarshal(docs[p], &val); err != nil {
			return nil, false, errors.Wrapf(err, "decoding document %s", p)
		}
		tree = place(tree, segments(p), val)
	}

	node, ok := lookup(tree, segments(root))
	if !ok || node == nil {
		return nil, false, nil
	}
	raw, err := json.Marshal(node)
	if err != nil {
		return nil, false, errors.Wrapf(err, "encoding %s", root)
	}
	return raw, true, nil
}

func segments(p Path) []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), "/")
}

func place(node interface{}, segs []string, val interface{}) interface{} {
	if len(segs) == 0 {
		return val
	}
	m, ok := node.(map[string]interface{})
	if !ok {
		m = make(map[string]interface{})
	}
	// null deletes, as in the tree itself
	if child := place(m[segs[0]], segs[1:], val); child != nil {
		m[segs[0]] = child
	} else {
		delete(m, segs[0])
	}
	return m
}

func lookup(node interface{}, segs []string) (interface{}, bool) {
	for _, s := range segs {
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if node, ok = m[s]; !ok {
			return nil, false
		}
	}
	return node, true
}
