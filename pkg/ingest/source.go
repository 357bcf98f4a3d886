package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/daviddao/mimic/pkg/model"
)

// Source yields the messages of one chat room, newest first. Next returns
// io.EOF once the oldest message has been delivered. A Source is consumed
// once; restarting a walk means building a new Source.
type Source interface {
	Next(ctx context.Context) (model.Message, error)
}

// SliceSource serves an in-memory set of messages newest first.
type SliceSource struct {
	msgs []model.Message
	pos  int
}

// NewSliceSource sorts a copy of msgs newest first. Messages with equal
// timestamps keep their relative order.
func NewSliceSource(msgs []model.Message) *SliceSource {
	sorted := append([]model.Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})
	return &SliceSource{msgs: sorted}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	if s.pos >= len(s.msgs) {
		return model.Message{}, io.EOF
	}
	m := s.msgs[s.pos]
	s.pos++
	return m, nil
}

// scannerBufSize bounds one JSONL line.
const scannerBufSize = 4 * 1024 * 1024

// ReadJSONL parses an export with one JSON-encoded message per line (the
// model.Message field names). Blank lines are skipped. Messages without a
// source_id are attributed to sourceID.
func ReadJSONL(r io.Reader, sourceID string) ([]model.Message, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), scannerBufSize)
	var msgs []model.Message
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var m model.Message
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if m.AuthorID == "" {
			return nil, fmt.Errorf("line %d: missing author_id", line)
		}
		if m.SourceID == "" {
			m.SourceID = sourceID
		}
		msgs = append(msgs, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	return msgs, nil
}
