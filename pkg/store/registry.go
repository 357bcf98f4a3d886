package store

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/daviddao/mimic/pkg/coverage"
	"github.com/daviddao/mimic/pkg/markov"
	"github.com/daviddao/mimic/pkg/model"
	"github.com/daviddao/mimic/pkg/registry"
)

// Distribution kinds as stored in the kind column.
const (
	kindLength    = "length"
	kindStarter   = "starter"
	kindSuccessor = "successor"
)

// SaveRegistry replaces every stored chain and tracker with the contents of
// snap in one transaction.
func (s *Store) SaveRegistry(snap registry.Snapshot) error {
	return retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, table := range []string{"distribution_entries", "distributions", "chains", "covered_ranges", "trackers"} {
			if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		w, err := newSnapshotWriter(tx)
		if err != nil {
			return err
		}
		defer w.close()

		for _, author := range sortedKeys(snap.Chains) {
			if err := w.chain(author, snap.Chains[author]); err != nil {
				return fmt.Errorf("save chain %s: %w", author, err)
			}
		}
		for _, source := range sortedKeys(snap.Trackers) {
			tr := snap.Trackers[source]
			if tr == nil {
				continue
			}
			if err := w.tracker(source, tr); err != nil {
				return fmt.Errorf("save tracker %s: %w", source, err)
			}
		}
		return tx.Commit()
	})
}

// snapshotWriter holds the prepared inserts of one SaveRegistry transaction.
type snapshotWriter struct {
	chainStmt, distStmt, entryStmt, trackerStmt, rangeStmt *sql.Stmt
}

func newSnapshotWriter(tx *sql.Tx) (*snapshotWriter, error) {
	w := &snapshotWriter{}
	for _, p := range []struct {
		dst   **sql.Stmt
		query string
	}{
		{&w.chainStmt, `INSERT INTO chains (author_id, total_messages, pending, finalized) VALUES (?, ?, ?, ?)`},
		{&w.distStmt, `INSERT INTO distributions (author_id, kind, context, finalized) VALUES (?, ?, ?, ?)`},
		{&w.entryStmt, `INSERT INTO distribution_entries (author_id, kind, context, position, key_text, key_int, count, cumulative)
		                VALUES (?, ?, ?, ?, ?, ?, ?, ?)`},
		{&w.trackerStmt, `INSERT INTO trackers (source_id, first_message, last_update) VALUES (?, ?, ?)`},
		{&w.rangeStmt, `INSERT INTO covered_ranges (source_id, min_ts, max_ts) VALUES (?, ?, ?)`},
	} {
		stmt, err := tx.Prepare(p.query)
		if err != nil {
			w.close()
			return nil, fmt.Errorf("prepare: %w", err)
		}
		*p.dst = stmt
	}
	return w, nil
}

func (w *snapshotWriter) close() {
	for _, stmt := range []*sql.Stmt{w.chainStmt, w.distStmt, w.entryStmt, w.trackerStmt, w.rangeStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

func (w *snapshotWriter) chain(author string, cs markov.ChainState) error {
	if _, err := w.chainStmt.Exec(author, int64(cs.TotalMessages), int64(cs.Pending), boolToInt(cs.Finalized)); err != nil {
		return err
	}
	if _, err := w.distStmt.Exec(author, kindLength, "", boolToInt(cs.Lengths.Finalized)); err != nil {
		return err
	}
	for i, e := range cs.Lengths.Entries {
		if _, err := w.entryStmt.Exec(author, kindLength, "", i, nil, e.Key, int64(e.Count), e.Cumulative); err != nil {
			return err
		}
	}
	if err := w.words(author, kindStarter, "", cs.Starters); err != nil {
		return err
	}
	for _, word := range sortedKeys(cs.Successors) {
		if err := w.words(author, kindSuccessor, word, cs.Successors[word]); err != nil {
			return err
		}
	}
	return nil
}

func (w *snapshotWriter) words(author, kind, context string, ds markov.DistributionState[string]) error {
	if _, err := w.distStmt.Exec(author, kind, context, boolToInt(ds.Finalized)); err != nil {
		return err
	}
	for i, e := range ds.Entries {
		if _, err := w.entryStmt.Exec(author, kind, context, i, e.Key, nil, int64(e.Count), e.Cumulative); err != nil {
			return err
		}
	}
	return nil
}

func (w *snapshotWriter) tracker(source string, tr *coverage.Tracker) error {
	if _, err := w.trackerStmt.Exec(source, nullTS(tr.FirstMessage), nullTS(tr.LastUpdate)); err != nil {
		return err
	}
	for _, r := range tr.Ranges {
		if _, err := w.rangeStmt.Exec(source, int64(r.Min), int64(r.Max)); err != nil {
			return err
		}
	}
	return nil
}

// LoadRegistry reads the stored chains and trackers back into a snapshot.
// Entry order and cumulative values come back exactly as saved.
func (s *Store) LoadRegistry() (registry.Snapshot, error) {
	snap := registry.Snapshot{
		Chains:   make(map[string]markov.ChainState),
		Trackers: make(map[string]*coverage.Tracker),
	}
	if err := s.loadChains(snap.Chains); err != nil {
		return registry.Snapshot{}, err
	}
	if err := s.loadTrackers(snap.Trackers); err != nil {
		return registry.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) loadChains(chains map[string]markov.ChainState) error {
	rows, err := s.db.Query(`SELECT author_id, total_messages, pending, finalized FROM chains`)
	if err != nil {
		return fmt.Errorf("load chains: %w", err)
	}
	for rows.Next() {
		var (
			author         string
			total, pending int64
			finalized      int
		)
		if err := rows.Scan(&author, &total, &pending, &finalized); err != nil {
			rows.Close()
			return fmt.Errorf("load chains: %w", err)
		}
		chains[author] = markov.ChainState{
			TotalMessages: uint64(total),
			Pending:       uint64(pending),
			Finalized:     finalized != 0,
			Lengths:       markov.DistributionState[int]{Entries: []markov.Entry[int]{}},
			Starters:      markov.DistributionState[string]{Entries: []markov.Entry[string]{}},
			Successors:    make(map[string]markov.DistributionState[string]),
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load chains: %w", err)
	}

	rows, err = s.db.Query(`SELECT author_id, kind, context, finalized FROM distributions`)
	if err != nil {
		return fmt.Errorf("load distributions: %w", err)
	}
	for rows.Next() {
		var author, kind, context string
		var finalized int
		if err := rows.Scan(&author, &kind, &context, &finalized); err != nil {
			rows.Close()
			return fmt.Errorf("load distributions: %w", err)
		}
		cs, ok := chains[author]
		if !ok {
			rows.Close()
			return fmt.Errorf("load distributions: no chain for author %s", author)
		}
		switch kind {
		case kindLength:
			cs.Lengths.Finalized = finalized != 0
		case kindStarter:
			cs.Starters.Finalized = finalized != 0
		case kindSuccessor:
			cs.Successors[context] = markov.DistributionState[string]{
				Entries:   []markov.Entry[string]{},
				Finalized: finalized != 0,
			}
		default:
			rows.Close()
			return fmt.Errorf("load distributions: unknown kind %q", kind)
		}
		chains[author] = cs
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load distributions: %w", err)
	}

	rows, err = s.db.Query(
		`SELECT author_id, kind, context, key_text, key_int, count, cumulative
		 FROM distribution_entries ORDER BY author_id, kind, context, position`,
	)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			author, kind, context string
			keyText               sql.NullString
			keyInt                sql.NullInt64
			count                 int64
			cumulative            float64
		)
		if err := rows.Scan(&author, &kind, &context, &keyText, &keyInt, &count, &cumulative); err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		cs, ok := chains[author]
		if !ok {
			return fmt.Errorf("load entries: no chain for author %s", author)
		}
		switch kind {
		case kindLength:
			cs.Lengths.Entries = append(cs.Lengths.Entries, markov.Entry[int]{
				Key: int(keyInt.Int64), Count: uint64(count), Cumulative: cumulative,
			})
		case kindStarter:
			cs.Starters.Entries = append(cs.Starters.Entries, markov.Entry[string]{
				Key: keyText.String, Count: uint64(count), Cumulative: cumulative,
			})
		case kindSuccessor:
			ds := cs.Successors[context]
			ds.Entries = append(ds.Entries, markov.Entry[string]{
				Key: keyText.String, Count: uint64(count), Cumulative: cumulative,
			})
			cs.Successors[context] = ds
		default:
			return fmt.Errorf("load entries: unknown kind %q", kind)
		}
		chains[author] = cs
	}
	return rows.Err()
}

func (s *Store) loadTrackers(trackers map[string]*coverage.Tracker) error {
	rows, err := s.db.Query(`SELECT source_id, first_message, last_update FROM trackers`)
	if err != nil {
		return fmt.Errorf("load trackers: %w", err)
	}
	for rows.Next() {
		var source string
		var first, last sql.NullInt64
		if err := rows.Scan(&source, &first, &last); err != nil {
			rows.Close()
			return fmt.Errorf("load trackers: %w", err)
		}
		tr := coverage.New()
		tr.FirstMessage = tsPtr(first)
		tr.LastUpdate = tsPtr(last)
		trackers[source] = tr
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load trackers: %w", err)
	}

	rows, err = s.db.Query(`SELECT source_id, min_ts, max_ts FROM covered_ranges ORDER BY source_id, min_ts`)
	if err != nil {
		return fmt.Errorf("load ranges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var minTS, maxTS int64
		if err := rows.Scan(&source, &minTS, &maxTS); err != nil {
			return fmt.Errorf("load ranges: %w", err)
		}
		tr, ok := trackers[source]
		if !ok {
			return fmt.Errorf("load ranges: no tracker for source %s", source)
		}
		tr.Ranges = append(tr.Ranges, model.Range{Min: model.Timestamp(minTS), Max: model.Timestamp(maxTS)})
	}
	return rows.Err()
}

func nullTS(ts *model.Timestamp) sql.NullInt64 {
	if ts == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*ts), Valid: true}
}

func tsPtr(v sql.NullInt64) *model.Timestamp {
	if !v.Valid {
		return nil
	}
	ts := model.Timestamp(v.Int64)
	return &ts
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
