package cache

import "sync"

// Event is a mutation that invalidates derived cache entries.
type Event string

const (
	EventSubmissionCreated  Event = "submission_created"
	EventSubmissionReviewed Event = "submission_reviewed"
	EventCompletionMarked   Event = "completion_marked"
	EventActivitiesChanged  Event = "activities_changed"
)

// Params identify what a mutation touched. Unset fields are empty.
type Params struct {
	UserID       string
	ActivityType string
	ActivityID   string
	Status       string
}

// Target is an exact key or, when Prefix is set, every key under it.
type Target struct {
	Key    Key
	Prefix bool
}

func Exact(k Key) Target { return Target{Key: k} }
func Under(k Key) Target { return Target{Key: k, Prefix: true} }

func (t Target) String() string {
	if t.Prefix {
		return t.Key.Prefix()
	}
	return t.Key.String()
}

// Resolver maps mutation params to the entries to drop.
type Resolver func(p Params) []Target

// Graph declares, for every cached value, the events that invalidate it.
type Graph struct {
	mu   sync.RWMutex
	deps map[Event][]Resolver
}

func NewGraph() *Graph {
	return &Graph{deps: make(map[Event][]Resolver)}
}

// Declare registers resolve for each of events.
func (g *Graph) Declare(resolve Resolver, events ...Event) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ev := range events {
		g.deps[ev] = append(g.deps[ev], resolve)
	}
	return g
}

// Targets resolves everything event invalidates.
func (g *Graph) Targets(event Event, p Params) []Target {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var res []Target
	for _, resolve := range g.deps[event] {
		res = append(res, resolve(p)...)
	}
	return res
}

// Invalidate drops every target of event from each of caches.
func (g *Graph) Invalidate(event Event, p Params, caches ...*Cache) {
	targets := g.Targets(event, p)
	for _, c := range caches {
		for _, t := range targets {
			if t.Prefix {
				c.ClearPrefix(t.Key.Prefix())
			} else {
				c.Clear(t.Key)
			}
		}
	}
	cacheInvalidations.WithLabelValues(string(event)).Inc()
}

func userCompletionDerived(p Params) []Target {
	if p.UserID == "" {
		return nil
	}
	targets := []Target{
		Exact(UserCompletions(p.UserID)),
		Exact(UserVersion(p.UserID)),
		Exact(UserPending(p.UserID, "")),
		Exact(UserCompleted(p.UserID, "")),
	}
	if p.ActivityType != "" {
		targets = append(targets,
			Exact(UserPending(p.UserID, p.ActivityType)),
			Exact(UserCompleted(p.UserID, p.ActivityType)),
		)
	}
	return targets
}

func adminDerived(Params) []Target {
	return []Target{
		Under(AdminSubmissions("")),
		Exact(AdminSubmissions("")),
		Exact(AdminStats()),
		Exact(AdminRecentActivity()),
	}
}

func activityDerived(p Params) []Target {
	return []Target{
		Exact(ActivityList(p.ActivityType)),
		Exact(ActivityList("")),
		Under(UserActivities("")),
	}
}

// DefaultGraph is the dependency table of the engagement backend.
func DefaultGraph() *Graph {
	return NewGraph().
		Declare(userCompletionDerived, EventSubmissionCreated, EventSubmissionReviewed, EventCompletionMarked).
		Declare(adminDerived, EventSubmissionCreated, EventSubmissionReviewed).
		Declare(func(Params) []Target { return []Target{Exact(Leaderboard())} }, EventSubmissionReviewed).
		Declare(activityDerived, EventActivitiesChanged)
}
