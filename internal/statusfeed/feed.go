// Package statusfeed relays status post notifications. Posts themselves are
// stored by the chat service; the relay only fans out the events.
package statusfeed

import (
	"encoding/json"
	"log/slog"

	"github.com/ent0n29/chatrelay/internal/logging"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/protocol"
)

// Fanout is the part of the connection registry the feed needs.
type Fanout interface {
	Notify(userID string, msg protocol.Outbound) bool
	BroadcastExcept(userID string, msg protocol.Outbound) int
}

// View is one first-time view of a status post.
type View struct {
	StatusID     string
	OwnerID      string
	ViewerID     string
	TotalViewers int
	Viewers      json.RawMessage
}

type Feed struct {
	fanout  Fanout
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewFeed(fanout Fanout, logger *slog.Logger, metrics *observability.Metrics) *Feed {
	return &Feed{
		fanout:  fanout,
		logger:  logging.OrDefault(logger),
		metrics: metrics,
	}
}

// Created announces a new post to every connected user except its owner and
// returns how many connections accepted it.
func (f *Feed) Created(statusID, ownerID string, status json.RawMessage) int {
	sent := f.fanout.BroadcastExcept(ownerID, protocol.NewStatus{
		Type:     protocol.TypeNewStatus,
		StatusID: statusID,
		OwnerID:  ownerID,
		Status:   status,
	})
	f.metrics.ObserveStatusEvent("created")
	f.logger.Debug("status created", "status_id", statusID, "owner_id", ownerID, "notified", sent)
	return sent
}

// Viewed tells the owner about a view. Owners viewing their own post are
// not reported.
func (f *Feed) Viewed(v View) bool {
	if v.ViewerID == v.OwnerID {
		return false
	}
	viewers := v.Viewers
	if len(viewers) == 0 {
		viewers = json.RawMessage(`[]`)
	}
	ok := f.fanout.Notify(v.OwnerID, protocol.StatusViewed{
		Type:         protocol.TypeStatusViewed,
		StatusID:     v.StatusID,
		ViewerID:     v.ViewerID,
		TotalViewers: v.TotalViewers,
		Viewers:      viewers,
	})
	f.metrics.ObserveStatusEvent("viewed")
	if !ok {
		f.logger.Debug("status owner not connected", "status_id", v.StatusID, "owner_id", v.OwnerID)
	}
	return ok
}

// Deleted announces a removed post to every connected user except its owner.
func (f *Feed) Deleted(statusID, ownerID string) int {
	sent := f.fanout.BroadcastExcept(ownerID, protocol.StatusDeleted{
		Type:     protocol.TypeStatusDeleted,
		StatusID: statusID,
	})
	f.metrics.ObserveStatusEvent("deleted")
	f.logger.Debug("status deleted", "status_id", statusID, "owner_id", ownerID, "notified", sent)
	return sent
}
