// Package matrix connects mimic to a Matrix homeserver: it reads room
// history for ingestion and answers !markov commands in the same rooms.
//
// End-to-end encryption is not supported; encrypted rooms yield no text.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/daviddao/mimic/pkg/config"
	"github.com/daviddao/mimic/pkg/ingest"
)

// Client wraps a mautrix client for one bot account.
type Client struct {
	mxc    *mautrix.Client
	cfg    config.MatrixConfig
	filter userFilter
	rooms  map[id.RoomID]bool
}

// New creates a client but does not contact the homeserver.
func New(cfg config.MatrixConfig) (*Client, error) {
	mxc, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}
	c := &Client{
		mxc:    mxc,
		cfg:    cfg,
		filter: newUserFilter(cfg.UserID, cfg.IgnoreUsers),
		rooms:  make(map[id.RoomID]bool, len(cfg.Rooms)),
	}
	for _, r := range cfg.Rooms {
		c.rooms[id.RoomID(r)] = true
	}
	return c, nil
}

// History returns a fresh backward walk over room.
func (c *Client) History(room string) *HistorySource {
	limiter := rate.NewLimiter(rate.Limit(c.cfg.PagesPerSecond), 1)
	return newHistorySource(c.mxc, id.RoomID(room), c.filter, limiter, c.cfg.PageSize)
}

// Sources returns a history walk for each of rooms, keyed by room ID, ready
// for ingest.RunAll.
func (c *Client) Sources(rooms []string) map[string]ingest.Source {
	out := make(map[string]ingest.Source, len(rooms))
	for _, r := range rooms {
		out[r] = c.History(r)
	}
	return out
}

// Serve joins the configured rooms and answers commands until ctx is done.
// Only messages sent after Serve starts are answered. Sync errors are
// retried with exponential back-off.
func (c *Client) Serve(ctx context.Context, responder *Responder) error {
	slog.Warn("Matrix E2EE is not enabled; encrypted rooms are ignored")
	started := time.Now().UnixMilli()

	syncer, ok := c.mxc.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		if evt.Timestamp < started || evt.Sender == c.filter.self || !c.rooms[evt.RoomID] {
			return
		}
		content := evt.Content.AsMessage()
		if content == nil || content.MsgType != event.MsgText {
			return
		}
		var mentions []id.UserID
		if content.Mentions != nil {
			mentions = content.Mentions.UserIDs
		}
		reply, ok := responder.Reply(content.Body, mentions)
		if !ok {
			return
		}
		if _, err := c.mxc.SendText(ctx, evt.RoomID, reply); err != nil {
			slog.Error("send reply failed", "room", evt.RoomID, "err", err)
			return
		}
		slog.Info("answered command", "room", evt.RoomID, "sender", evt.Sender)
	})

	for room := range c.rooms {
		if _, err := c.mxc.JoinRoomByID(ctx, room); err != nil {
			// Homeservers answer M_FORBIDDEN for rooms the bot is already in.
			if !errors.Is(err, mautrix.MForbidden) {
				return fmt.Errorf("join %s: %w", room, err)
			}
			slog.Warn("join room: already a member or access denied, continuing", "room", room)
		}
	}

	const backoffMax = 5 * time.Minute
	backoff := 2 * time.Second
	for {
		err := c.mxc.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = 2 * time.Second
			continue
		}
		slog.Error("matrix sync error; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}
