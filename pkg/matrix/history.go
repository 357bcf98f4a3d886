package matrix

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/time/rate"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/daviddao/mimic/pkg/model"
)

// messagesAPI is the slice of *mautrix.Client the history walk needs.
type messagesAPI interface {
	Messages(ctx context.Context, roomID id.RoomID, from, to string, dir mautrix.Direction, filter *mautrix.FilterPart, limit int) (*mautrix.RespMessages, error)
}

// HistorySource walks one room's timeline backwards from the newest event,
// one /messages page at a time, and yields its text messages newest first.
// It implements ingest.Source. Pages are fetched lazily, so a walk that stops
// early never requests older history.
type HistorySource struct {
	api      messagesAPI
	room     id.RoomID
	filter   userFilter
	limiter  *rate.Limiter
	pageSize int
	log      *slog.Logger

	from  string // pagination token of the next older page
	buf   []model.Message
	done  bool
	pages int
}

func newHistorySource(api messagesAPI, room id.RoomID, filter userFilter, limiter *rate.Limiter, pageSize int) *HistorySource {
	return &HistorySource{
		api:      api,
		room:     room,
		filter:   filter,
		limiter:  limiter,
		pageSize: pageSize,
		log:      slog.With("room", room.String()),
	}
}

// Next returns the next older text message, or io.EOF once the start of the
// room has been reached.
func (h *HistorySource) Next(ctx context.Context) (model.Message, error) {
	for len(h.buf) == 0 {
		if h.done {
			return model.Message{}, io.EOF
		}
		if err := h.fetch(ctx); err != nil {
			return model.Message{}, err
		}
	}
	m := h.buf[0]
	h.buf = h.buf[1:]
	return m, nil
}

func (h *HistorySource) fetch(ctx context.Context) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := h.api.Messages(ctx, h.room, h.from, "", mautrix.DirectionBackward, nil, h.pageSize)
	if err != nil {
		return fmt.Errorf("fetch history of %s: %w", h.room, err)
	}
	h.pages++
	for _, evt := range resp.Chunk {
		if m, ok := h.filter.message(evt); ok {
			m.SourceID = h.room.String()
			h.buf = append(h.buf, m)
		}
	}
	// No end token, or an empty chunk, means there is nothing older.
	if resp.End == "" || len(resp.Chunk) == 0 {
		h.done = true
	}
	h.from = resp.End
	h.log.Debug("fetched history page", "page", h.pages, "events", len(resp.Chunk), "messages", len(h.buf), "done", h.done)
	return nil
}

// Pages returns how many /messages requests the walk has made.
func (h *HistorySource) Pages() int { return h.pages }

// userFilter decides which timeline events become model messages.
type userFilter struct {
	self   id.UserID
	ignore map[id.UserID]bool
}

func newUserFilter(self string, ignore []string) userFilter {
	f := userFilter{self: id.UserID(self), ignore: make(map[id.UserID]bool, len(ignore))}
	for _, u := range ignore {
		f.ignore[id.UserID(u)] = true
	}
	return f
}

// message converts evt into a model message. Only plain text and emote
// messages from users other than the bot and the ignore list count; edits
// are skipped since the original message was already seen.
func (f userFilter) message(evt *event.Event) (model.Message, bool) {
	if evt == nil || evt.Type.Type != event.EventMessage.Type {
		return model.Message{}, false
	}
	if evt.Sender == f.self || f.ignore[evt.Sender] {
		return model.Message{}, false
	}
	if evt.Content.Parsed == nil {
		if err := evt.Content.ParseRaw(event.EventMessage); err != nil {
			return model.Message{}, false
		}
	}
	content := evt.Content.AsMessage()
	if content == nil {
		return model.Message{}, false
	}
	switch content.MsgType {
	case event.MsgText, event.MsgEmote:
	default:
		return model.Message{}, false
	}
	if content.RelatesTo.GetReplaceID() != "" {
		return model.Message{}, false
	}
	return model.Message{
		AuthorID:  evt.Sender.String(),
		SourceID:  evt.RoomID.String(),
		Timestamp: model.Timestamp(evt.Timestamp),
		Text:      content.Body,
	}, true
}
