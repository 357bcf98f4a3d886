// Package ingest folds a source's message history into the registry.
//
// A run walks the source newest-first. Messages inside a range the source's
// tracker already covers are skipped; everything else is cleaned and staged.
// Only when the walk ends without error is the staged batch committed, which
// observes the messages, finalizes the touched chains and merges the walked
// span into the tracker in one step. An interrupted run changes nothing, and
// the next run picks up exactly where the coverage says it should.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/daviddao/mimic/pkg/model"
	"github.com/daviddao/mimic/pkg/registry"
)

// DefaultIgnorePrefixes are the bot's own commands, which say nothing about
// how anyone writes.
var DefaultIgnorePrefixes = []string{"!markov", "!help"}

// Options controls one ingestion run.
type Options struct {
	// MaxMessages stops the walk after this many new messages (observed or
	// ignored), plus any older messages sharing the last one's timestamp.
	// Zero means read the whole history.
	MaxMessages int

	// IgnorePrefixes lists command strings; a message whose cleaned text
	// starts with one is walked and covered but not observed.
	IgnorePrefixes []string

	// EOFIsSourceStart says that the end of the source is the beginning of
	// the room's history, so the oldest message walked is recorded as the
	// source's first message. True for a room's own timeline; false for a
	// partial export, whose oldest message may not be the room's first.
	EOFIsSourceStart bool

	// Logger receives run progress. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns Options reading a room's full history and ignoring
// the default command prefixes.
func DefaultOptions() Options {
	return Options{
		IgnorePrefixes:   append([]string(nil), DefaultIgnorePrefixes...),
		EOFIsSourceStart: true,
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Run performs one ingestion pass over src into reg and returns its report.
// The report's Covered field is nil when the walk found no messages, in
// which case nothing was committed.
func Run(ctx context.Context, reg *registry.Registry, sourceID string, src Source, opts Options) (model.Run, error) {
	run := model.Run{
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		StartedAt: time.Now().UTC(),
	}
	log := opts.logger().With("run", run.ID, "source", sourceID)

	tr, release, err := reg.BeginRun(sourceID)
	if err != nil {
		return run, err
	}
	defer release()

	var (
		staged []model.Message
		span   model.Range
		walked bool
	)
	extend := func(ts model.Timestamp) {
		if !walked {
			span = model.Range{Min: ts, Max: ts}
			walked = true
			return
		}
		if ts < span.Min {
			span.Min = ts
		}
		if ts > span.Max {
			span.Max = ts
		}
	}

	// Once the limit is hit the walk still takes every message sharing the
	// oldest timestamp walked so far: the covered span ends on that
	// timestamp, so a later run would skip any left behind.
	limited := false
walk:
	for {
		if !limited && opts.MaxMessages > 0 && run.Observed+run.Ignored >= opts.MaxMessages {
			log.Debug("message limit reached", "limit", opts.MaxMessages, "ts", span.Min)
			limited = true
		}
		m, err := src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			// The oldest message has been walked: span.Min is the
			// source start, if the source holds the whole history.
			run.ReachedStart = walked && opts.EOFIsSourceStart
			break walk
		case err != nil:
			log.Warn("ingest run aborted", "err", err, "walked", run.Walked())
			return run, fmt.Errorf("ingest %s: %w", sourceID, err)
		}
		if limited && m.Timestamp != span.Min {
			// Older than the span; left uncounted for the next run.
			break walk
		}

		if tr.CoveredToStart(m.Timestamp) {
			// Everything older was folded in by an earlier run.
			extend(m.Timestamp)
			run.Skipped++
			log.Debug("reached previously covered history", "ts", m.Timestamp)
			break walk
		}
		extend(m.Timestamp)
		if tr.IsCovered(m.Timestamp) {
			run.Skipped++
			continue
		}

		text := Clean(m.Text)
		if strings.TrimSpace(text) == "" || ignored(text, opts.IgnorePrefixes) {
			run.Ignored++
			continue
		}
		m.Text = text
		if m.SourceID == "" {
			m.SourceID = sourceID
		}
		staged = append(staged, m)
		run.Observed++
	}

	if !walked {
		run.FinishedAt = time.Now().UTC()
		log.Info("ingest run found no messages")
		return run, nil
	}

	touched, err := reg.Commit(registry.Batch{
		SourceID:     sourceID,
		Messages:     staged,
		Covered:      span,
		ReachedStart: run.ReachedStart,
	})
	if err != nil {
		return run, fmt.Errorf("ingest %s: %w", sourceID, err)
	}
	run.Authors = touched
	run.Covered = &span
	run.FinishedAt = time.Now().UTC()
	log.Info("ingest run committed",
		"observed", run.Observed,
		"skipped", run.Skipped,
		"ignored", run.Ignored,
		"authors", len(touched),
		"min", span.Min,
		"max", span.Max,
		"reached_start", run.ReachedStart,
	)
	return run, nil
}

// RunAll ingests several sources concurrently, at most limit at a time
// (limit <= 0 means no limit). Each source succeeds or fails on its own; the
// returned runs are ordered by source ID and the error joins every
// per-source failure.
func RunAll(ctx context.Context, reg *registry.Registry, sources map[string]Source, opts Options, limit int) ([]model.Run, error) {
	ids := make([]string, 0, len(sources))
	for id := range sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	runs := make([]model.Run, len(ids))
	errs := make([]error, len(ids))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			runs[i], errs[i] = Run(ctx, reg, id, sources[id], opts)
			return nil // per-source errors are collected, never cancel siblings
		})
	}
	_ = g.Wait()
	return runs, errors.Join(errs...)
}
