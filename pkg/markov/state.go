package markov

import "fmt"

// ChainState is the persisted form of a Chain. Restoring it yields a chain
// that generates identically for the same random draws.
type ChainState struct {
	TotalMessages uint64                               `json:"total_messages"`
	Pending       uint64                               `json:"pending"`
	Finalized     bool                                 `json:"finalized"`
	Lengths       DistributionState[int]               `json:"lengths"`
	Starters      DistributionState[string]            `json:"starters"`
	Successors    map[string]DistributionState[string] `json:"successors"`
}

// State captures c exactly.
func (c *Chain) State() ChainState {
	s := ChainState{
		TotalMessages: c.total,
		Pending:       c.pending,
		Finalized:     c.finalized,
		Lengths:       c.lengths.State(),
		Starters:      c.starters.State(),
		Successors:    make(map[string]DistributionState[string], len(c.successors)),
	}
	for word, d := range c.successors {
		s.Successors[word] = d.State()
	}
	return s
}

// RestoreChain rebuilds a Chain from s, checking the invariants that tie
// the three parts together.
func RestoreChain(s ChainState) (*Chain, error) {
	lengths, err := RestoreDistribution(s.Lengths)
	if err != nil {
		return nil, fmt.Errorf("lengths: %w", err)
	}
	starters, err := RestoreDistribution(s.Starters)
	if err != nil {
		return nil, fmt.Errorf("starters: %w", err)
	}
	if lengths.Total() != s.TotalMessages {
		return nil, fmt.Errorf("restore chain: length counts sum to %d, want %d", lengths.Total(), s.TotalMessages)
	}
	c := &Chain{
		lengths:    lengths,
		starters:   starters,
		successors: make(map[string]*Distribution[string], len(s.Successors)),
		total:      s.TotalMessages,
		pending:    s.Pending,
		finalized:  s.Finalized,
	}
	for word, ds := range s.Successors {
		d, err := RestoreDistribution(ds)
		if err != nil {
			return nil, fmt.Errorf("successors of %q: %w", word, err)
		}
		c.successors[word] = d
	}
	for _, e := range starters.entries {
		if _, ok := c.successors[e.Key]; !ok {
			return nil, fmt.Errorf("restore chain: start word %q has no successor entry", e.Key)
		}
	}
	return c, nil
}
