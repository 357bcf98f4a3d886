package registry

import (
	"fmt"

	"github.com/daviddao/mimic/pkg/coverage"
	"github.com/daviddao/mimic/pkg/markov"
)

// Snapshot is the complete persisted state of a registry. Restoring a
// snapshot reproduces the registry exactly, finalization state included.
type Snapshot struct {
	Chains   map[string]markov.ChainState `json:"chains"`
	Trackers map[string]*coverage.Tracker `json:"trackers"`
}

// Snapshot captures the registry under its read lock.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{
		Chains:   make(map[string]markov.ChainState, len(r.chains)),
		Trackers: make(map[string]*coverage.Tracker, len(r.trackers)),
	}
	for id, c := range r.chains {
		s.Chains[id] = c.State()
	}
	for id, tr := range r.trackers {
		s.Trackers[id] = tr.Clone()
	}
	return s
}

// Restore builds a registry from s.
func Restore(s Snapshot) (*Registry, error) {
	r := New()
	for id, cs := range s.Chains {
		c, err := markov.RestoreChain(cs)
		if err != nil {
			return nil, fmt.Errorf("restore chain %s: %w", id, err)
		}
		r.chains[id] = c
	}
	for id, tr := range s.Trackers {
		if tr == nil {
			continue
		}
		if err := tr.Validate(); err != nil {
			return nil, fmt.Errorf("restore tracker %s: %w", id, err)
		}
		r.trackers[id] = tr.Clone()
	}
	return r, nil
}
