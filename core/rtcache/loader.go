package rtcache

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/cache"
)

// Fallback reads a value from the durable store when the tree has none.
type Fallback[T any] func(ctx context.Context) (T, error)

// Loader reads through the local cache, then the tree, then the durable store.
// Concurrent loads of the same key share a single fetch.
type Loader struct {
	tree   Tree
	cache  *cache.Cache
	logger core.Logger
	group  singleflight.Group
}

func NewLoader(tree Tree, c *cache.Cache, logger core.Logger) *Loader {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Loader{tree: tree, cache: c, logger: logger}
}

func (l *Loader) Cache() *cache.Cache { return l.cache }
func (l *Loader) Tree() Tree          { return l.tree }

// Load returns the value cached under key, loading it from path (or fallback) on a miss.
// A nil fallback turns a missing path into ErrNotFound.
func Load[T any](ctx context.Context, l *Loader, key cache.Key, kind cache.Kind, path Path, fallback Fallback[T]) (T, error) {
	var v T
	if l.cache.Get(key, &v) {
		loads.WithLabelValues(sourceLocal).Inc()
		return v, nil
	}
	return fetch(ctx, l, key.String(), key, kind, func(ctx context.Context) (T, error) {
		return read(ctx, l, path, fallback)
	})
}

// LoadFresh skips the local cache read; the result still refreshes the local cache.
func LoadFresh[T any](ctx context.Context, l *Loader, key cache.Key, kind cache.Kind, path Path, fallback Fallback[T]) (T, error) {
	return fetch(ctx, l, "fresh:"+key.String(), key, kind, func(ctx context.Context) (T, error) {
		return read(ctx, l, path, fallback)
	})
}

// Through caches whatever load returns under key, for values assembled from several paths.
// fresh skips the local cache read.
func Through[T any](ctx context.Context, l *Loader, key cache.Key, kind cache.Kind, fresh bool, load func(ctx context.Context) (T, error)) (T, error) {
	if !fresh {
		var v T
		if l.cache.Get(key, &v) {
			loads.WithLabelValues(sourceLocal).Inc()
			return v, nil
		}
		return fetch(ctx, l, key.String(), key, kind, load)
	}
	return fetch(ctx, l, "fresh:"+key.String(), key, kind, load)
}

func fetch[T any](ctx context.Context, l *Loader, group string, key cache.Key, kind cache.Kind, load func(ctx context.Context) (T, error)) (T, error) {
	res, err, _ := l.group.Do(group, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		l.cache.Set(key, v, kind)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func read[T any](ctx context.Context, l *Loader, path Path, fallback Fallback[T]) (T, error) {
	var v T
	snap, err := l.tree.Get(ctx, path)
	switch {
	case err != nil:
		// the tree is an optimization: fall through to the durable store
		l.logger.Warn(errors.Wrapf(err, "reading %s", path).Error())
	case snap.Exists:
		err := snap.Decode(&v)
		if err == nil {
			loads.WithLabelValues(sourceTree).Inc()
			return v, nil
		}
		l.logger.Warn(err.Error())
	}

	if fallback == nil {
		return v, errors.Wrapf(ErrNotFound, "loading %s", path)
	}
	v, err = fallback(ctx)
	if err != nil {
		return v, errors.Wrapf(err, "loading %s from durable store", path)
	}
	loads.WithLabelValues(sourceDurable).Inc()
	return v, nil
}
