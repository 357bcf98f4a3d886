// Package model defines the core domain types for mimic.
//
// mimic learns how people write from the chat rooms they post in:
//
//   - Messages arrive per source (a chat room) newest-first, each attributed
//     to an author and stamped with the time it was sent.
//   - Every author gets a first-order word chain built from their messages.
//   - Every source keeps a record of the time ranges already folded into the
//     chains, so a room can be re-read any number of times without counting a
//     message twice.
package model

import "time"

// Timestamp is an instant in milliseconds since the Unix epoch, the
// resolution chat servers report. Two timestamps one millisecond apart are
// adjacent: no message can fall between them.
type Timestamp int64

// FromTime converts t to a Timestamp, truncating to the millisecond.
func FromTime(t time.Time) Timestamp { return Timestamp(t.UnixMilli()) }

// Time returns ts as a UTC time.Time.
func (ts Timestamp) Time() time.Time { return time.UnixMilli(int64(ts)).UTC() }

// Less returns true if ts is strictly before other.
func (ts Timestamp) Less(other Timestamp) bool { return ts < other }

// LessEq returns true if ts is before or equal to other.
func (ts Timestamp) LessEq(other Timestamp) bool { return ts <= other }

// String formats ts as RFC 3339 with milliseconds.
func (ts Timestamp) String() string { return ts.Time().Format("2006-01-02T15:04:05.000Z07:00") }

// Range is a closed interval [Min, Max] of timestamps.
type Range struct {
	Min Timestamp `json:"min"`
	Max Timestamp `json:"max"`
}

// Contains reports whether ts lies inside r, bounds included.
func (r Range) Contains(ts Timestamp) bool { return r.Min <= ts && ts <= r.Max }

// Message is one chat message as handed to ingestion. Text is raw; cleaning
// happens in the ingestion driver.
type Message struct {
	AuthorID  string    `json:"author_id"`
	SourceID  string    `json:"source_id"`
	Timestamp Timestamp `json:"timestamp"`
	Text      string    `json:"text"`
}

// Run is the report of one ingestion pass over a source. Runs are appended
// to the store's log; only successful runs are recorded.
type Run struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	Observed     int       `json:"observed"`
	Skipped      int       `json:"skipped"`
	Ignored      int       `json:"ignored"`
	Authors      []string  `json:"authors,omitempty"`
	Covered      *Range    `json:"covered,omitempty"`
	ReachedStart bool      `json:"reached_start"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Walked returns the number of messages the run looked at.
func (r Run) Walked() int { return r.Observed + r.Skipped + r.Ignored }
