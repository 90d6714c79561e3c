// Package pgtree serves the read-through tree from the aggregates table filled by the
// aggregation jobs. Changes reach subscribers through LISTEN/NOTIFY.
package pgtree

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/rtcache"
)

// Channel is the notification channel the aggregates trigger publishes changed paths on.
const Channel = "aggregate_changed"

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	pingInterval = 90 * time.Second
)

type (
	fetchFunc func(ctx context.Context, path rtcache.Path) (map[rtcache.Path]json.RawMessage, error)

	subscription struct {
		path rtcache.Path
		h    rtcache.Handler
	}

	Tree struct {
		db       *sqlx.DB
		listener *pq.Listener
		fetch    fetchFunc
		logger   core.Logger

		mu     sync.RWMutex
		subs   map[int]subscription
		nextID int
	}

	row struct {
		Path  string          `db:"path"`
		Value json.RawMessage `db:"value"`
	}
)

var _ rtcache.Tree = (*Tree)(nil) // interface compliance check

// New returns a tree reading from db. dsn is used by the dedicated listener connection.
func New(db *sql.DB, dsn string, logger core.Logger) *Tree {
	if logger == nil {
		logger = core.NopLogger{}
	}
	t := &Tree{
		db:     sqlx.NewDb(db, "postgres"),
		logger: logger,
		subs:   make(map[int]subscription),
	}
	t.fetch = t.fetchDocs
	t.listener = pq.NewListener(dsn, minReconnect, maxReconnect, t.onListenerEvent)
	return t
}

func (t *Tree) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
		t.logger.Warn(errors.Wrap(err, "aggregates listener").Error())
	case pq.ListenerEventReconnected:
		t.logger.Info("aggregates listener reconnected")
	}
}

// fetchDocs loads the documents at, above and under path.
func (t *Tree) fetchDocs(ctx context.Context, path rtcache.Path) (map[rtcache.Path]json.RawMessage, error) {
	q := `
		SELECT path, value FROM aggregates
		WHERE path = $1 OR path LIKE $1 || '/%' OR $1 LIKE path || '/%'`
	var rows []row
	if err := t.db.SelectContext(ctx, &rows, q, string(path)); err != nil {
		return nil, errors.Wrapf(err, "querying aggregates under %s", path)
	}
	docs := make(map[rtcache.Path]json.RawMessage, len(rows))
	for _, r := range rows {
		docs[rtcache.Path(r.Path)] = r.Value
	}
	return docs, nil
}

func (t *Tree) Get(ctx context.Context, path rtcache.Path) (rtcache.Snapshot, error) {
	docs, err := t.fetch(ctx, path)
	if err != nil {
		return rtcache.Snapshot{Path: path}, err
	}
	raw, ok, err := rtcache.Assemble(path, docs)
	if err != nil {
		return rtcache.Snapshot{Path: path}, err
	}
	return rtcache.Snapshot{Path: path, Raw: raw, Exists: ok}, nil
}

// Subscribe delivers the current value at path, then every change at, above or under it
// until ctx is done. Pushes only flow while Run is running.
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

// Run listens for aggregate changes until ctx is done.
func (t *Tree) Run(ctx context.Context) error {
	if err := t.listener.Listen(Channel); err != nil {
		return errors.Wrapf(err, "listening on %s", Channel)
	}
	defer func() { _ = t.listener.Close() }()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-t.listener.Notify:
			if n == nil {
				// reconnected: notifications may have been missed
				t.dispatch(ctx, "")
				continue
			}
			t.dispatch(ctx, rtcache.Path(n.Extra))
		case <-ticker.C:
			go func() {
				if err := t.listener.Ping(); err != nil {
					t.logger.Warn(errors.Wrap(err, "pinging aggregates listener").Error())
				}
			}()
		}
	}
}

// dispatch pushes the value of every subscription related to changed; an empty path
// refreshes them all.
func (t *Tree) dispatch(ctx context.Context, changed rtcache.Path) {
	t.mu.RLock()
	var targets []subscription
	for _, s := range t.subs {
		if changed == "" || rtcache.Related(s.path, changed) {
			targets = append(targets, s)
		}
	}
	t.mu.RUnlock()

	for _, s := range targets {
		s.h(t.Get(ctx, s.path))
	}
}
