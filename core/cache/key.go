package cache

import "strings"

type Scope string

const (
	ScopeUser     Scope = "user"
	ScopeActivity Scope = "activity"
	ScopeAdmin    Scope = "admin"
	ScopeAttendee Scope = "attendee"
)

// Key renders to `<scope>_<entity>_<id>_<facet>`; empty trailing parts are dropped.
// Build keys with the constructors below rather than by hand.
type Key struct {
	Scope  Scope
	Entity string
	ID     string
	Facet  string
}

func (k Key) String() string {
	parts := []string{string(k.Scope), k.Entity, k.ID, k.Facet}
	end := len(parts)
	for end > 1 && parts[end-1] == "" {
		end--
	}
	return strings.Join(parts[:end], "_")
}

// Prefix is the rendered key followed by the separator, matching every key nested under k.
func (k Key) Prefix() string {
	return k.String() + "_"
}

const (
	entityActivities  = "activities"
	entityCompletions = "completions"
	entityVersion     = "version"
	entityList        = "list"
	entitySubmissions = "submissions"
	entityStats       = "stats"
	entityRecent      = "recentActivity"
	entityLeaderboard = "leaderboard"
	entityDirectory   = "directory"

	facetPending   = "pending"
	facetCompleted = "completed"
	facetLocal     = "local"
)

func facet(base, activityType string) string {
	if activityType == "" {
		return base
	}
	return base + "-" + activityType
}

// UserCompletions is the per-user completion blob.
func UserCompletions(userID string) Key {
	return Key{Scope: ScopeUser, Entity: entityCompletions, ID: userID}
}

// UserLocalCompletions holds completion records marked by this process and not yet confirmed
// by the authoritative aggregate.
func UserLocalCompletions(userID string) Key {
	return Key{Scope: ScopeUser, Entity: entityCompletions, ID: userID, Facet: facetLocal}
}

// UserPending is the user's pending activity list, combined when activityType is empty.
func UserPending(userID, activityType string) Key {
	return Key{Scope: ScopeUser, Entity: entityActivities, ID: userID, Facet: facet(facetPending, activityType)}
}

// UserCompleted is the user's completed activity list, combined when activityType is empty.
func UserCompleted(userID, activityType string) Key {
	return Key{Scope: ScopeUser, Entity: entityActivities, ID: userID, Facet: facet(facetCompleted, activityType)}
}

// UserActivities matches every pending/completed list of every user when userID is empty.
func UserActivities(userID string) Key {
	return Key{Scope: ScopeUser, Entity: entityActivities, ID: userID}
}

// UserVersion is the counter used to short-circuit re-fetches of a user's lists.
func UserVersion(userID string) Key {
	return Key{Scope: ScopeUser, Entity: entityVersion, ID: userID}
}

// ActivityList is the cached list of all activities of a type, every type when empty.
func ActivityList(activityType string) Key {
	if activityType == "" {
		activityType = "all"
	}
	return Key{Scope: ScopeActivity, Entity: entityList, ID: activityType}
}

func AdminSubmissions(status string) Key {
	return Key{Scope: ScopeAdmin, Entity: entitySubmissions, ID: status}
}

func AdminStats() Key {
	return Key{Scope: ScopeAdmin, Entity: entityStats}
}

func AdminRecentActivity() Key {
	return Key{Scope: ScopeAdmin, Entity: entityRecent}
}

func Leaderboard() Key {
	return Key{Scope: ScopeAttendee, Entity: entityLeaderboard}
}

func Directory() Key {
	return Key{Scope: ScopeAttendee, Entity: entityDirectory}
}
