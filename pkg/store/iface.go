// iface.go defines the StoreInterface for dependency injection and testing.
//
// The cmd layer and the Matrix server take a StoreInterface rather than a
// *Store, so tests can swap in a fake.
package store

import (
	"github.com/daviddao/mimic/pkg/model"
	"github.com/daviddao/mimic/pkg/registry"
)

// StoreInterface defines the full set of store operations.
type StoreInterface interface {
	// Close closes the database connection.
	Close() error

	// --- Registry ---

	// SaveRegistry replaces the stored models and trackers with snap.
	SaveRegistry(snap registry.Snapshot) error

	// LoadRegistry reads back what the last SaveRegistry wrote.
	LoadRegistry() (registry.Snapshot, error)

	// --- Runs ---

	// InsertRun appends a finished ingestion run to the log.
	InsertRun(r model.Run) error

	// ListRuns returns recent runs, newest first; "" means all sources.
	ListRuns(sourceID string, limit int) ([]model.Run, error)

	// CountRuns returns the total number of logged runs.
	CountRuns() int64
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
