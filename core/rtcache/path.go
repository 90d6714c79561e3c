package rtcache

import "strings"

// Path is a slash separated location in the read-through tree.
type Path string

func join(parts ...string) Path {
	return Path(strings.Join(parts, "/"))
}

func (p Path) String() string { return string(p) }

// Child returns p/name.
func (p Path) Child(name string) Path { return join(string(p), name) }

// Parent returns the enclosing path, "" for a root level path.
func (p Path) Parent() Path {
	i := strings.LastIndex(string(p), "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Contains reports whether other is p or nested under it.
func (p Path) Contains(other Path) bool {
	return other == p || strings.HasPrefix(string(other), string(p)+"/")
}

func AdminStats() Path          { return "adminCache/stats" }
func AdminRecentActivity() Path { return "adminCache/recentActivity" }
func Leaderboard() Path         { return "adminCache/leaderboard" }
func Directory() Path           { return "attendeeCache/directory" }
func SubmissionIndex() Path     { return "admin/submissions" }
func SubmissionsByStatus() Path { return SubmissionIndex().Child("byStatus") }
func SubmissionsMetadata() Path { return SubmissionIndex().Child("metadata") }

func SubmissionsWithStatus(status string) Path {
	return SubmissionsByStatus().Child(status)
}

func SubmissionMetadata(id string) Path {
	return SubmissionsMetadata().Child(id)
}

func UserCompletions(userID string) Path {
	return join("userCache", userID, "completions")
}
