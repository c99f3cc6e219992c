package realtime

import (
	"slices"
	"sync"

	"github.com/ZUXXSU/chathubserver/internal/identity"
)

// Presence is the process-wide set of identities currently online. It only
// holds state; broadcasting changes is the Hub's job.
type Presence struct {
	mu     sync.RWMutex
	online map[identity.ID]struct{}
}

func NewPresence() *Presence {
	return &Presence{online: make(map[identity.ID]struct{})}
}

// MarkJoined adds id and reports whether the set changed.
func (p *Presence) MarkJoined(id identity.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.online[id]; ok {
		return false
	}
	p.online[id] = struct{}{}
	return true
}

// MarkLeft removes id and reports whether the set changed.
func (p *Presence) MarkLeft(id identity.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.online[id]; !ok {
		return false
	}
	delete(p.online, id)
	return true
}

func (p *Presence) Contains(id identity.ID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[id]
	return ok
}

// Snapshot returns a sorted copy of the set.
func (p *Presence) Snapshot() []identity.ID {
	p.mu.RLock()
	out := make([]identity.ID, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	p.mu.RUnlock()
	slices.Sort(out)
	return out
}
