// Package coverage tracks which parts of a source's history have already
// been folded into the models.
//
// A source (a chat room) is read newest-first, one page at a time, possibly
// many times over the life of the program and possibly only partway back.
// Each completed pass covers one closed interval of timestamps. The tracker
// keeps the union of those intervals coalesced, so that a later pass can skip
// every message it has already counted while still picking up messages in
// the gaps between earlier passes.
//
// Tracker is not goroutine-safe; the registry owns one per source and
// serializes access.
package coverage

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/daviddao/mimic/pkg/model"
)

// ErrInvalidRange is returned by MergeRange when min > max.
var ErrInvalidRange = errors.New("coverage: invalid range")

// Tracker is the coverage record of one source.
type Tracker struct {
	// FirstMessage is the timestamp of the oldest message in the source,
	// known once a pass has walked all the way to the beginning.
	FirstMessage *model.Timestamp `json:"first_message,omitempty"`

	// LastUpdate is the newest message timestamp seen by the latest pass.
	LastUpdate *model.Timestamp `json:"last_update,omitempty"`

	// Ranges is sorted ascending by Min, pairwise disjoint, and no two
	// entries touch.
	Ranges []model.Range `json:"ranges"`
}

// New returns an empty tracker.
func New() *Tracker { return &Tracker{} }

// MergeRange adds [min, max] to the covered set. Overlapping ranges and
// ranges that are adjacent on the millisecond grid are coalesced, so the
// result never depends on the order in which ranges were merged.
func (t *Tracker) MergeRange(min, max model.Timestamp) error {
	if max < min {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, min, max)
	}
	t.Ranges = Union(append(t.Ranges, model.Range{Min: min, Max: max}))
	return nil
}

// Union returns the coalesced union of ranges: sorted ascending, disjoint,
// with no two entries adjacent. The input slice is reordered in place.
func Union(ranges []model.Range) []model.Range {
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Min != ranges[j].Min {
			return ranges[i].Min < ranges[j].Min
		}
		return ranges[i].Max < ranges[j].Max
	})
	out := make([]model.Range, 0, len(ranges))
	cur := ranges[0]
	for _, next := range ranges[1:] {
		if touches(cur, next) {
			if next.Max > cur.Max {
				cur.Max = next.Max
			}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

// touches reports whether next (with next.Min >= cur.Min) overlaps cur or
// starts right after it.
func touches(cur, next model.Range) bool {
	if cur.Max == math.MaxInt64 {
		return true
	}
	return next.Min <= cur.Max+1
}

// IsCovered reports whether ts falls inside a covered range.
func (t *Tracker) IsCovered(ts model.Timestamp) bool {
	_, ok := t.rangeAt(ts)
	return ok
}

// rangeAt finds the covered range containing ts by binary search over the
// range starts.
func (t *Tracker) rangeAt(ts model.Timestamp) (model.Range, bool) {
	// First range starting after ts; the candidate is the one before it.
	i := sort.Search(len(t.Ranges), func(i int) bool { return t.Ranges[i].Min > ts })
	if i == 0 {
		return model.Range{}, false
	}
	r := t.Ranges[i-1]
	return r, r.Contains(ts)
}

// CoveredToStart reports whether ts lies in a covered range that reaches
// back to the first message of the source. A newest-first walk that hits
// such a timestamp has nothing older left to read.
func (t *Tracker) CoveredToStart(ts model.Timestamp) bool {
	if t.FirstMessage == nil {
		return false
	}
	r, ok := t.rangeAt(ts)
	return ok && r.Min <= *t.FirstMessage
}

// RecordSourceStart sets FirstMessage the first time it is called; later
// calls are ignored.
func (t *Tracker) RecordSourceStart(ts model.Timestamp) {
	if t.FirstMessage != nil {
		return
	}
	t.FirstMessage = &ts
}

// RecordLastUpdate sets LastUpdate to ts.
func (t *Tracker) RecordLastUpdate(ts model.Timestamp) {
	t.LastUpdate = &ts
}

// Gaps returns the uncovered intervals between the oldest known point of the
// source (FirstMessage, or the start of the first range) and the newest
// covered timestamp.
func (t *Tracker) Gaps() []model.Range {
	var gaps []model.Range
	if len(t.Ranges) == 0 {
		return nil
	}
	if t.FirstMessage != nil && *t.FirstMessage < t.Ranges[0].Min {
		gaps = append(gaps, model.Range{Min: *t.FirstMessage, Max: t.Ranges[0].Min - 1})
	}
	for i := 1; i < len(t.Ranges); i++ {
		gaps = append(gaps, model.Range{Min: t.Ranges[i-1].Max + 1, Max: t.Ranges[i].Min - 1})
	}
	return gaps
}

// Complete reports whether the whole known history of the source, from its
// first message to the last update, is covered without gaps.
func (t *Tracker) Complete() bool {
	return t.FirstMessage != nil && len(t.Ranges) == 1 && t.Ranges[0].Min <= *t.FirstMessage
}

// Clone returns a deep copy of t.
func (t *Tracker) Clone() *Tracker {
	c := &Tracker{Ranges: append([]model.Range(nil), t.Ranges...)}
	if t.FirstMessage != nil {
		v := *t.FirstMessage
		c.FirstMessage = &v
	}
	if t.LastUpdate != nil {
		v := *t.LastUpdate
		c.LastUpdate = &v
	}
	return c
}

// Validate checks the range invariants, for trackers restored from storage.
func (t *Tracker) Validate() error {
	for i, r := range t.Ranges {
		if r.Max < r.Min {
			return fmt.Errorf("%w: range %d is [%d, %d]", ErrInvalidRange, i, r.Min, r.Max)
		}
		if i > 0 && touches(t.Ranges[i-1], r) {
			return fmt.Errorf("coverage: ranges %d and %d are not coalesced", i-1, i)
		}
	}
	return nil
}
