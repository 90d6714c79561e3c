package submission

import (
	"sync"

	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/optimistic"
)

// Renderer receives the rendered content of a view each time it changes.
type Renderer interface {
	Render(topic string, view interface{})
}

type NopRenderer struct{}

func (NopRenderer) Render(string, interface{}) {}

// View is what a renderer receives.
type View struct {
	Topic   string      `json:"topic"`
	Items   interface{} `json:"items"`
	Exiting []string    `json:"exiting,omitempty"`
}

func PendingTopic(userID string) string { return "user/" + userID + "/pending" }

func AdminTopic(status activity.Status) string { return "admin/submissions/" + string(status) }

// Views holds the lists currently rendered: each user's pending activities and the admin
// submission lists by status.
type Views struct {
	mu       sync.Mutex
	pending  map[string]*optimistic.List[activity.Activity]
	admin    map[activity.Status]*optimistic.List[activity.Submission]
	renderer Renderer
}

func NewViews(renderer Renderer) *Views {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	return &Views{
		pending:  make(map[string]*optimistic.List[activity.Activity]),
		admin:    make(map[activity.Status]*optimistic.List[activity.Submission]),
		renderer: renderer,
	}
}

func (v *Views) Pending(userID string) *optimistic.List[activity.Activity] {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, ok := v.pending[userID]
	if !ok {
		l = optimistic.NewList[activity.Activity]()
		v.pending[userID] = l
	}
	return l
}

func (v *Views) Admin(status activity.Status) *optimistic.List[activity.Submission] {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, ok := v.admin[status]
	if !ok {
		l = optimistic.NewList[activity.Submission]()
		v.admin[status] = l
	}
	return l
}

func (v *Views) RenderPending(userID string) optimistic.RenderFunc[activity.Activity] {
	topic := PendingTopic(userID)
	return func(l *optimistic.List[activity.Activity]) {
		v.renderer.Render(topic, snapshot(topic, l))
	}
}

func (v *Views) RenderAdmin(status activity.Status) optimistic.RenderFunc[activity.Submission] {
	topic := AdminTopic(status)
	return func(l *optimistic.List[activity.Submission]) {
		v.renderer.Render(topic, snapshot(topic, l))
	}
}

// ReplacePending swaps in an authoritative list and renders it.
func (v *Views) ReplacePending(userID string, items []activity.Activity) {
	l := v.Pending(userID)
	l.Replace(items)
	v.RenderPending(userID)(l)
}

// ReplaceAdmin swaps in an authoritative list and renders it.
func (v *Views) ReplaceAdmin(status activity.Status, items []activity.Submission) {
	l := v.Admin(status)
	l.Replace(items)
	v.RenderAdmin(status)(l)
}

func snapshot[T optimistic.Item](topic string, l *optimistic.List[T]) View {
	items := l.Items()
	view := View{Topic: topic, Items: items}
	for _, it := range items {
		if l.Exiting(it.ItemID()) {
			view.Exiting = append(view.Exiting, it.ItemID())
		}
	}
	return view
}
