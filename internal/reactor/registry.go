package reactor

import "sync"

// Registry is the set of reactors a running process knows about. The
// Catch-Up Poller enumerates it every tick; the Notification Queuer
// consults ForType to map an appended message type to the reactors that
// care about it.
type Registry struct {
	mu       sync.RWMutex
	byGroup  map[string]Reactor
	ordered  []Reactor
}

func NewRegistry() *Registry {
	return &Registry{byGroup: make(map[string]Reactor)}
}

// Register adds r, keyed by its GroupID. Registering a GroupID that's
// already present replaces the prior registration.
func (reg *Registry) Register(r Reactor) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.byGroup[r.GroupID()]; !exists {
		reg.ordered = append(reg.ordered, r)
	} else {
		for i, existing := range reg.ordered {
			if existing.GroupID() == r.GroupID() {
				reg.ordered[i] = r
				break
			}
		}
	}
	reg.byGroup[r.GroupID()] = r
}

func (reg *Registry) Get(groupID string) (Reactor, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.byGroup[groupID]
	return r, ok
}

// All returns every registered reactor, in registration order.
func (reg *Registry) All() []Reactor {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]Reactor, len(reg.ordered))
	copy(out, reg.ordered)
	return out
}

// AllGroupIDs returns every registered GroupID, in registration order.
func (reg *Registry) AllGroupIDs() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]string, len(reg.ordered))
	for i, r := range reg.ordered {
		out[i] = r.GroupID()
	}
	return out
}

// ForType returns every reactor whose HandledTypes includes t.
func (reg *Registry) ForType(t string) []Reactor {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	var out []Reactor
	for _, r := range reg.ordered {
		for _, ht := range r.HandledTypes() {
			if ht == t {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
