package markov

import (
	"fmt"
	"math"
	"strings"
)

// Rand is the source of uniform draws in [0, 1) used by Generate.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Chain is one author's model: how long their messages are, which word they
// start with, and which word tends to follow which.
type Chain struct {
	lengths    *Distribution[int]
	starters   *Distribution[string]
	successors map[string]*Distribution[string]

	total     uint64 // lifetime messages observed
	pending   uint64 // messages observed since the last Finalize
	finalized bool
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{
		lengths:    NewDistribution[int](),
		starters:   NewDistribution[string](),
		successors: make(map[string]*Distribution[string]),
	}
}

// Observe folds one message into the chain. The text is split on
// whitespace; a message without tokens is ignored and Observe returns false.
func (c *Chain) Observe(text string) bool {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return false
	}
	c.lengths.Observe(len(tokens))
	c.starters.Observe(tokens[0])
	// Every start word owns a successor distribution, possibly empty, so
	// starters stay a subset of the successor keys.
	c.successor(tokens[0])
	for i := 1; i < len(tokens); i++ {
		c.successor(tokens[i-1]).Observe(tokens[i])
	}
	c.total++
	c.pending++
	c.finalized = false
	return true
}

func (c *Chain) successor(word string) *Distribution[string] {
	d, ok := c.successors[word]
	if !ok {
		d = NewDistribution[string]()
		c.successors[word] = d
	}
	return d
}

// Finalize prepares the chain for generation. Each successor distribution is
// normalized over its own total. Empty successor distributions (words only
// ever seen alone) stay empty and act as dead ends.
func (c *Chain) Finalize() error {
	if c.total == 0 {
		return ErrEmptyModel
	}
	if err := c.lengths.Finalize(); err != nil {
		return fmt.Errorf("finalize lengths: %w", err)
	}
	if err := c.starters.Finalize(); err != nil {
		return fmt.Errorf("finalize starters: %w", err)
	}
	for word, d := range c.successors {
		if d.Len() == 0 {
			continue
		}
		if err := d.Finalize(); err != nil {
			return fmt.Errorf("finalize successors of %q: %w", word, err)
		}
	}
	c.pending = 0
	c.finalized = true
	return nil
}

// Generate produces a message in the author's style. The target length is
// drawn from the length distribution, scaled by lengthMultiplier and rounded,
// with a floor of 1. Starting from a sampled start word, up to that many
// transitions are followed; generation stops early at a word with no known
// successor. A multiplier that is not a positive number is treated as 1.
func (c *Chain) Generate(rng Rand, lengthMultiplier float64) (string, error) {
	if c.total == 0 {
		return "", ErrEmptyModel
	}
	if !c.finalized {
		return "", ErrNotFinalized
	}
	if !(lengthMultiplier > 0) || math.IsInf(lengthMultiplier, 0) {
		lengthMultiplier = 1
	}

	sampled, err := c.lengths.Sample(rng.Float64())
	if err != nil {
		return "", fmt.Errorf("sample length: %w", err)
	}
	target := int(math.Round(float64(sampled) * lengthMultiplier))
	if target < 1 {
		target = 1
	}

	word, err := c.starters.Sample(rng.Float64())
	if err != nil {
		return "", fmt.Errorf("sample start word: %w", err)
	}
	words := []string{word}
	for len(words) <= target {
		next, ok := c.successors[word]
		if !ok || next.Len() == 0 {
			break
		}
		word, err = next.Sample(rng.Float64())
		if err != nil {
			return "", fmt.Errorf("sample successor of %q: %w", words[len(words)-1], err)
		}
		words = append(words, word)
	}
	return strings.Join(words, " "), nil
}

// TotalMessages returns the lifetime number of messages observed. It always
// equals the sum of the length distribution's counts.
func (c *Chain) TotalMessages() uint64 { return c.total }

// Pending returns the number of messages observed since the last Finalize.
func (c *Chain) Pending() uint64 { return c.pending }

// Finalized reports whether the chain can generate.
func (c *Chain) Finalized() bool { return c.finalized }

// Vocabulary returns the number of distinct words with a successor entry.
func (c *Chain) Vocabulary() int { return len(c.successors) }

// Lengths exposes the message-length distribution. Callers must not mutate it.
func (c *Chain) Lengths() *Distribution[int] { return c.lengths }

// Starters exposes the start-word distribution. Callers must not mutate it.
func (c *Chain) Starters() *Distribution[string] { return c.starters }

// Successors returns the successor distribution for word, if any.
func (c *Chain) Successors(word string) (*Distribution[string], bool) {
	d, ok := c.successors[word]
	return d, ok
}
