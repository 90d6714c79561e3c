package cache

import "time"

// Kind is the TTL class of a cache entry.
type Kind string

const (
	KindUserAggregate   Kind = "user_aggregate"   // per-user derived lists
	KindUserCompletions Kind = "user_completions" // per-user completion blob
	KindActivityList    Kind = "activity_list"    // rarely changing task/quiz/form lists
	KindAdminList       Kind = "admin_list"       // admin submission lists & stats
	KindDirectory       Kind = "directory"        // attendee directory & leaderboard
	KindVersion         Kind = "version"          // version counters
	KindFlag            Kind = "flag"             // transient single-process flags
)

var defaultTTLs = TTLs{
	KindUserAggregate:   5 * time.Minute,
	KindUserCompletions: 5 * time.Minute,
	KindActivityList:    30 * time.Minute,
	KindAdminList:       2 * time.Minute,
	KindDirectory:       30 * time.Minute,
	KindVersion:         30 * time.Minute,
	KindFlag:            10 * time.Minute,
}

// TTLs is a static lookup of time-to-live by Kind.
type TTLs map[Kind]time.Duration

// DefaultTTLs returns a copy of the default TTL table.
func DefaultTTLs() TTLs {
	ttls := make(TTLs, len(defaultTTLs))
	for k, d := range defaultTTLs {
		ttls[k] = d
	}
	return ttls
}

// WithOverrides returns a copy of ttls where known kinds are replaced by their override.
// Unknown kind names and non-positive durations are ignored.
func (ttls TTLs) WithOverrides(overrides map[string]time.Duration) TTLs {
	res := make(TTLs, len(ttls))
	for k, d := range ttls {
		res[k] = d
	}
	for name, d := range overrides {
		kind := Kind(name)
		if _, ok := res[kind]; ok && d > 0 {
			res[kind] = d
		}
	}
	return res
}

// Of returns the TTL of kind; unknown kinds have no TTL and are never valid.
func (ttls TTLs) Of(kind Kind) time.Duration {
	return ttls[kind]
}
