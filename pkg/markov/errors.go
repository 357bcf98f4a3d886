package markov

import "errors"

// Sequencing errors. They signal a caller bug, never a transient condition,
// and are not retried anywhere.
var (
	// ErrEmptyDistribution is returned when finalizing or sampling a
	// distribution that has never observed a key.
	ErrEmptyDistribution = errors.New("markov: empty distribution")

	// ErrEmptyModel is returned when finalizing or generating from a chain
	// that has never observed a non-empty message.
	ErrEmptyModel = errors.New("markov: empty model")

	// ErrNotFinalized is returned when sampling before Finalize, or after an
	// Observe re-opened a finalized distribution.
	ErrNotFinalized = errors.New("markov: not finalized")
)
