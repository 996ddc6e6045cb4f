package notify

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/erazemk/knjiznica/internal/ledger"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultQueueSize is the number of events the dispatcher buffers.
const DefaultQueueSize = 256

// Pusher sends a message to a user's live connections.
type Pusher interface {
	Send(userID int64, msg []byte) int
}

// Message is what a WebSocket client receives for each notification.
type Message struct {
	EventID      string              `json:"event_id"`
	Notification *model.Notification `json:"notification"`
}

// Dispatcher is the ledger's Notifier. Published events are queued and a
// single worker persists each one and then pushes it to the user.
type Dispatcher struct {
	db      *sql.DB
	pusher  Pusher
	queue   chan ledger.Event
	dropped atomic.Int64
}

// NewDispatcher creates a dispatcher with a queue of the given size. A nil
// pusher only persists.
func NewDispatcher(db *sql.DB, pusher Pusher, size int) *Dispatcher {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &Dispatcher{db: db, pusher: pusher, queue: make(chan ledger.Event, size)}
}

// Publish queues an event without blocking. Events are dropped when the
// queue is full.
func (d *Dispatcher) Publish(e ledger.Event) {
	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
		slog.Warn("notification queue full, dropping event", "user_id", e.UserID, "type", e.Type)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// deliverTimeout bounds storing and pushing one event.
const deliverTimeout = 5 * time.Second

// Run delivers queued events until ctx is cancelled, then delivers whatever
// is still queued and returns. Cancelling ctx never aborts a delivery.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			d.drain(ctx)
			return
		}
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		case <-ctx.Done():
			d.drain(ctx)
			return
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e ledger.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
	defer cancel()

	n := &model.Notification{
		UserID:  e.UserID,
		Type:    e.Type,
		Title:   e.Title,
		Message: e.Message,
	}
	if len(e.Payload) > 0 {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			slog.Error("encoding notification payload", "type", e.Type, "error", err)
		} else {
			n.Payload = payload
		}
	}

	saved, err := store.CreateNotification(ctx, d.db, n)
	if err != nil {
		slog.Error("saving notification", "user_id", e.UserID, "type", e.Type, "error", err)
		return
	}

	if d.pusher == nil {
		return
	}
	msg, err := json.Marshal(Message{EventID: uuid.NewString(), Notification: saved})
	if err != nil {
		slog.Error("encoding notification message", "id", saved.ID, "error", err)
		return
	}
	d.pusher.Send(saved.UserID, msg)
}
