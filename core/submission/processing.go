package submission

import (
	"errors"
	"strings"
	"sync"

	"github.com/trezcool/engage/core/reconcile"
)

const reviewPrefix = "review/"

func reviewKey(submissionID string) string { return reviewPrefix + submissionID }

// ErrAlreadyProcessing rejects a duplicate action while the first one is in flight.
// It is expected user behaviour (double clicks) and is not logged as an error.
var ErrAlreadyProcessing = errors.New("this action is already being processed, please wait")

// Processing is the set of ids with an action in flight. Duplicates are dropped, not queued.
type Processing struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewProcessing() *Processing {
	return &Processing{ids: make(map[string]struct{})}
}

// Begin claims id and reports false when it is already claimed.
func (p *Processing) Begin(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ids[id]; ok {
		return false
	}
	p.ids[id] = struct{}{}
	return true
}

func (p *Processing) End(id string) {
	p.mu.Lock()
	delete(p.ids, id)
	p.mu.Unlock()
}

// Any reports whether any action is in flight.
func (p *Processing) Any() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids) > 0
}

func (p *Processing) anyPrefix(prefix string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.ids {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

type reviews struct{ p *Processing }

func (r reviews) Any() bool { return r.p.anyPrefix(reviewPrefix) }

// Reviews reports in-flight reviews only. Admin list reloads wait on it; attendee
// submits do not touch those lists until they are reviewed.
func (p *Processing) Reviews() reconcile.Guard { return reviews{p} }
