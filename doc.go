/*
	Project: Engage - live engagement for event attendees (tasks, quizzes, forms, leaderboard)
	Target: conference & meetup organizers
*/
package engage

/*
Read path: local cache (badger / memory) -> aggregates tree (postgres + LISTEN/NOTIFY) -> durable store.
Writes go to the durable store only; aggregation jobs own the tree.

TODO: per-user pending views pushed from the reconcile watcher (admin lists only for now)
TODO: aggregation jobs in this repo (leaderboard, stats) instead of the external workers

------------------------------------ Version X ----------------------------------------
FIXME:Edge-case:
- Approved task later rejected by an organizer ???: allowed (CanRejectSubmission), but the attendee gets no notice
- Attendee attending several events ???: completions are global, not per event

TODO: multi-event tenancy
- one schema per event ??? | event_id column everywhere ???
*/
