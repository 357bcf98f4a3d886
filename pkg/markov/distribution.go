// Package markov implements the per-author text model: weighted
// distributions over discrete keys and the first-order word chain built
// from them.
//
// Both types move between two states. While open they only count
// observations. Finalize sorts the entries and assigns cumulative
// probabilities, after which the structure can be sampled. Observing again
// re-opens it: counts keep accumulating over the lifetime of the model and a
// new Finalize is required before the next sample.
//
// Nothing in this package is goroutine-safe. The registry serializes access.
package markov

import (
	"fmt"
	"math"
	"sort"
)

// Entry is one key of a Distribution with its raw count and, once
// finalized, its cumulative probability.
type Entry[K comparable] struct {
	Key        K       `json:"key"`
	Count      uint64  `json:"count"`
	Cumulative float64 `json:"cumulative"`
}

// Distribution is a weighted choice over keys of type K.
type Distribution[K comparable] struct {
	entries   []Entry[K]
	index     map[K]int // key -> position in entries
	total     uint64
	finalized bool
}

// NewDistribution returns an empty, open distribution.
func NewDistribution[K comparable]() *Distribution[K] {
	return &Distribution[K]{index: make(map[K]int)}
}

// Observe increments the count for key, inserting it with count 1 if absent.
// A finalized distribution is re-opened.
func (d *Distribution[K]) Observe(key K) {
	if d.index == nil {
		d.index = make(map[K]int)
	}
	if i, ok := d.index[key]; ok {
		d.entries[i].Count++
	} else {
		d.index[key] = len(d.entries)
		d.entries = append(d.entries, Entry[K]{Key: key, Count: 1})
	}
	d.total++
	d.finalized = false
}

// Finalize stable-sorts the entries by ascending count and assigns each its
// cumulative probability. Ties keep their order from before the call: first
// observation order on the first Finalize, the previous sorted order after
// that. Finalizing the same sequence of observations therefore always
// yields the same entries. The last cumulative probability is exactly 1.
func (d *Distribution[K]) Finalize() error {
	if d.total == 0 {
		return ErrEmptyDistribution
	}
	sort.SliceStable(d.entries, func(i, j int) bool {
		return d.entries[i].Count < d.entries[j].Count
	})
	// Dividing the running integer sum keeps the sequence monotone and
	// makes the final entry total/total.
	total := float64(d.total)
	var running uint64
	for i := range d.entries {
		running += d.entries[i].Count
		d.entries[i].Cumulative = float64(running) / total
		d.index[d.entries[i].Key] = i
	}
	d.finalized = true
	return nil
}

// Sample returns the key of the first entry whose cumulative probability is
// >= r, for r in [0, 1). A draw above the last cumulative probability
// resolves to the last key.
func (d *Distribution[K]) Sample(r float64) (K, error) {
	var zero K
	if len(d.entries) == 0 {
		return zero, ErrEmptyDistribution
	}
	if !d.finalized {
		return zero, ErrNotFinalized
	}
	i := sort.Search(len(d.entries), func(i int) bool {
		return d.entries[i].Cumulative >= r
	})
	if i == len(d.entries) {
		i = len(d.entries) - 1
	}
	return d.entries[i].Key, nil
}

// Len returns the number of distinct keys.
func (d *Distribution[K]) Len() int { return len(d.entries) }

// Total returns the sum of all counts.
func (d *Distribution[K]) Total() uint64 { return d.total }

// Finalized reports whether the distribution can be sampled.
func (d *Distribution[K]) Finalized() bool { return d.finalized }

// Count returns the number of times key was observed.
func (d *Distribution[K]) Count(key K) uint64 {
	if i, ok := d.index[key]; ok {
		return d.entries[i].Count
	}
	return 0
}

// Entries returns a copy of the entries in their current order.
func (d *Distribution[K]) Entries() []Entry[K] {
	out := make([]Entry[K], len(d.entries))
	copy(out, d.entries)
	return out
}

// DistributionState is the persisted form of a Distribution.
type DistributionState[K comparable] struct {
	Entries   []Entry[K] `json:"entries"`
	Finalized bool       `json:"finalized"`
}

// State captures d exactly, including entry order and cumulative values.
func (d *Distribution[K]) State() DistributionState[K] {
	return DistributionState[K]{Entries: d.Entries(), Finalized: d.finalized}
}

// RestoreDistribution rebuilds a Distribution from s without recomputing
// anything, so a restored distribution samples exactly like the original.
func RestoreDistribution[K comparable](s DistributionState[K]) (*Distribution[K], error) {
	d := NewDistribution[K]()
	for _, e := range s.Entries {
		if e.Count == 0 {
			return nil, fmt.Errorf("restore distribution: key %v has zero count", e.Key)
		}
		if _, dup := d.index[e.Key]; dup {
			return nil, fmt.Errorf("restore distribution: duplicate key %v", e.Key)
		}
		d.index[e.Key] = len(d.entries)
		d.entries = append(d.entries, e)
		d.total += e.Count
	}
	if s.Finalized {
		if err := checkCumulative(d.entries); err != nil {
			return nil, fmt.Errorf("restore distribution: %w", err)
		}
	}
	d.finalized = s.Finalized
	return d, nil
}

// cumulativeTolerance bounds how far the last cumulative probability may
// stray from 1.
const cumulativeTolerance = 1e-9

// checkCumulative verifies the cumulative column Sample searches: within
// [0, 1], non-decreasing, and ending at 1.
func checkCumulative[K comparable](entries []Entry[K]) error {
	if len(entries) == 0 {
		return ErrEmptyDistribution
	}
	prev := 0.0
	for i, e := range entries {
		if math.IsNaN(e.Cumulative) || e.Cumulative < prev || e.Cumulative > 1+cumulativeTolerance {
			return fmt.Errorf("entry %d (%v): cumulative %v after %v", i, e.Key, e.Cumulative, prev)
		}
		prev = e.Cumulative
	}
	if math.Abs(prev-1) > cumulativeTolerance {
		return fmt.Errorf("last cumulative is %v, want 1", prev)
	}
	return nil
}
