package cache

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/engage/core"
)

// Store is a raw byte store backing a Cache. Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) (val []byte, found bool, err error)
	Set(key string, val []byte) error
	Delete(key string) error
	DeletePrefix(prefix string) error
	DeleteAll() error
}

// entry is the stored envelope.
type entry struct {
	Value    json.RawMessage `json:"value"`
	Kind     Kind            `json:"kind"`
	StoredAt time.Time       `json:"storedAt"`
}

// Cache is a TTL-bounded key/value cache over a Store.
// Every storage failure is logged and swallowed: a failed Set leaves the entry absent and a failed Get
// reports a miss. Expired entries are evicted lazily on read.
type Cache struct {
	name   string
	store  Store
	ttls   TTLs
	now    core.Clock
	logger core.Logger
}

type Option func(*Cache)

func WithTTLs(ttls TTLs) Option            { return func(c *Cache) { c.ttls = ttls } }
func WithClock(now core.Clock) Option      { return func(c *Cache) { c.now = now } }
func WithLogger(logger core.Logger) Option { return func(c *Cache) { c.logger = logger } }

// New returns a cache named name (used as the metrics label) over store.
func New(name string, store Store, opts ...Option) *Cache {
	c := &Cache{
		name:   name,
		store:  store,
		ttls:   DefaultTTLs(),
		now:    core.UTCNow,
		logger: core.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Name() string { return c.name }

// Set stores value under key with the TTL class kind.
func (c *Cache) Set(key Key, value interface{}, kind Kind) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.fail("encoding", key, err)
		return
	}
	data, err := json.Marshal(entry{Value: raw, Kind: kind, StoredAt: c.now()})
	if err != nil {
		c.fail("encoding", key, err)
		return
	}
	if err := c.store.Set(key.String(), data); err != nil {
		c.fail("writing", key, err)
		return
	}
	cacheWrites.WithLabelValues(c.name).Inc()
}

// Get decodes the entry stored under key into dst and reports whether a valid entry was found.
// dst must be a pointer. An entry is valid iff now - storedAt < TTL(kind).
func (c *Cache) Get(key Key, dst interface{}) bool {
	data, found, err := c.store.Get(key.String())
	if err != nil {
		c.fail("reading", key, err)
		c.miss()
		return false
	}
	if !found {
		c.miss()
		return false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.fail("decoding", key, err)
		c.Clear(key)
		c.miss()
		return false
	}
	if c.now().Sub(e.StoredAt) >= c.ttls.Of(e.Kind) {
		c.Clear(key)
		cacheExpirations.WithLabelValues(c.name).Inc()
		c.miss()
		return false
	}
	if err := json.Unmarshal(e.Value, dst); err != nil {
		c.fail("decoding", key, err)
		c.miss()
		return false
	}
	cacheLookups.WithLabelValues(c.name, "hit").Inc()
	return true
}

// Clear deletes key.
func (c *Cache) Clear(key Key) {
	if err := c.store.Delete(key.String()); err != nil {
		c.fail("deleting", key, err)
	}
}

// ClearPrefix deletes every key whose rendered form starts with prefix.
func (c *Cache) ClearPrefix(prefix string) {
	if err := c.store.DeletePrefix(prefix); err != nil {
		c.logger.Warn(errors.Wrapf(err, "%s cache: clearing prefix %q", c.name, prefix).Error())
	}
}

// ClearAll deletes every entry.
func (c *Cache) ClearAll() {
	if err := c.store.DeleteAll(); err != nil {
		c.logger.Warn(errors.Wrapf(err, "%s cache: clearing all", c.name).Error())
	}
}

func (c *Cache) miss() {
	cacheLookups.WithLabelValues(c.name, "miss").Inc()
}

func (c *Cache) fail(op string, key Key, err error) {
	cacheErrors.WithLabelValues(c.name, op).Inc()
	c.logger.Warn(errors.Wrapf(err, "%s cache: %s %q", c.name, op, key.String()).Error())
}
