// Package registry holds every author's chain and every source's coverage
// tracker. The registry is the unit that is persisted and restored as a
// whole; nothing is saved piecemeal.
//
// All methods are goroutine-safe. Ingestion stages its messages outside the
// registry and hands them over in a single Commit, so a run that fails or is
// cancelled leaves both the chains and the tracker exactly as they were.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/daviddao/mimic/pkg/coverage"
	"github.com/daviddao/mimic/pkg/markov"
	"github.com/daviddao/mimic/pkg/model"
)

var (
	// ErrUnknownAuthor is returned when generating for an author with no model.
	ErrUnknownAuthor = errors.New("registry: no data on that author")

	// ErrSourceBusy is returned by BeginRun when another run over the same
	// source is in progress.
	ErrSourceBusy = errors.New("registry: source already being ingested")
)

// Registry maps author IDs to chains and source IDs to coverage trackers.
type Registry struct {
	mu       sync.RWMutex
	chains   map[string]*markov.Chain
	trackers map[string]*coverage.Tracker
	running  map[string]bool // sources with a run in progress
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		chains:   make(map[string]*markov.Chain),
		trackers: make(map[string]*coverage.Tracker),
		running:  make(map[string]bool),
	}
}

// BeginRun claims sourceID for one ingestion run and returns a snapshot of
// its tracker to decide which messages are new. The returned release func
// must be called when the run ends, committed or not.
func (r *Registry) BeginRun(sourceID string) (*coverage.Tracker, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[sourceID] {
		return nil, nil, fmt.Errorf("%w: %s", ErrSourceBusy, sourceID)
	}
	r.running[sourceID] = true
	tr, ok := r.trackers[sourceID]
	if !ok {
		tr = coverage.New()
	}
	release := func() {
		r.mu.Lock()
		delete(r.running, sourceID)
		r.mu.Unlock()
	}
	return tr.Clone(), release, nil
}

// Batch is everything one successful ingestion run folds into the registry.
type Batch struct {
	SourceID string
	Messages []model.Message // cleaned, non-ignored messages
	Covered  model.Range     // oldest..newest timestamp walked
	// ReachedStart is set when the walk ran into the oldest message of the
	// source; Covered.Min is then the source start.
	ReachedStart bool
}

// Commit observes the batch's messages into their authors' chains, creates
// chains for new authors, finalizes every touched chain, and merges the
// covered range into the source tracker. Either all of it happens or, on
// error, none of it.
//
// Commit returns the sorted IDs of the authors whose chains changed.
func (r *Registry) Commit(b Batch) ([]string, error) {
	if b.Covered.Max < b.Covered.Min {
		return nil, fmt.Errorf("commit %s: %w", b.SourceID, coverage.ErrInvalidRange)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tr, ok := r.trackers[b.SourceID]
	if ok {
		tr = tr.Clone()
	} else {
		tr = coverage.New()
	}
	if err := tr.MergeRange(b.Covered.Min, b.Covered.Max); err != nil {
		return nil, fmt.Errorf("commit %s: %w", b.SourceID, err)
	}
	if b.ReachedStart {
		tr.RecordSourceStart(b.Covered.Min)
	}
	tr.RecordLastUpdate(b.Covered.Max)

	// Group first so new authors only get a chain if they said something.
	byAuthor := make(map[string][]string)
	for _, m := range b.Messages {
		if len(strings.Fields(m.Text)) == 0 {
			continue
		}
		byAuthor[m.AuthorID] = append(byAuthor[m.AuthorID], m.Text)
	}

	touched := make([]string, 0, len(byAuthor))
	for author, texts := range byAuthor {
		c, ok := r.chains[author]
		if !ok {
			c = markov.NewChain()
			r.chains[author] = c
		}
		for _, text := range texts {
			c.Observe(text)
		}
		// Finalize cannot fail: the chain has just seen a non-empty message.
		if err := c.Finalize(); err != nil {
			return nil, fmt.Errorf("commit %s: finalize %s: %w", b.SourceID, author, err)
		}
		touched = append(touched, author)
	}
	r.trackers[b.SourceID] = tr
	sort.Strings(touched)
	return touched, nil
}

// Generate produces a message in author's style.
func (r *Registry) Generate(author string, rng markov.Rand, lengthMultiplier float64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chains[author]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAuthor, author)
	}
	return c.Generate(rng, lengthMultiplier)
}

// GenerateRandom picks an author uniformly at random and generates a message
// in their style. It returns the chosen author.
func (r *Registry) GenerateRandom(rng markov.Rand, lengthMultiplier float64) (string, string, error) {
	authors := r.Authors()
	if len(authors) == 0 {
		return "", "", ErrUnknownAuthor
	}
	i := int(rng.Float64() * float64(len(authors)))
	if i >= len(authors) {
		i = len(authors) - 1
	}
	text, err := r.Generate(authors[i], rng, lengthMultiplier)
	return authors[i], text, err
}

// Authors returns the IDs of all authors with a chain, sorted.
func (r *Registry) Authors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.chains))
	for id := range r.chains {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Sources returns the IDs of all sources with a tracker, sorted.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.trackers))
	for id := range r.trackers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Tracker returns a copy of the tracker for sourceID.
func (r *Registry) Tracker(sourceID string) (*coverage.Tracker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tr, ok := r.trackers[sourceID]
	if !ok {
		return nil, false
	}
	return tr.Clone(), true
}

// AuthorStats summarizes one chain for display.
type AuthorStats struct {
	AuthorID   string `json:"author_id"`
	Messages   uint64 `json:"messages"`
	Vocabulary int    `json:"vocabulary"`
	Starters   int    `json:"starters"`
	Finalized  bool   `json:"finalized"`
}

// Stats returns per-author statistics, sorted by author ID.
func (r *Registry) Stats() []AuthorStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AuthorStats, 0, len(r.chains))
	for id, c := range r.chains {
		out = append(out, AuthorStats{
			AuthorID:   id,
			Messages:   c.TotalMessages(),
			Vocabulary: c.Vocabulary(),
			Starters:   c.Starters().Len(),
			Finalized:  c.Finalized(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuthorID < out[j].AuthorID })
	return out
}
