package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/knjiznica/internal/db"
	"github.com/erazemk/knjiznica/internal/ledger"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

type capturePusher struct {
	mu   sync.Mutex
	sent map[int64][][]byte
}

func (p *capturePusher) Send(userID int64, msg []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(map[int64][][]byte)
	}
	p.sent[userID] = append(p.sent[userID], msg)
	return 1
}

func (p *capturePusher) count(userID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent[userID])
}

func (p *capturePusher) first(userID int64) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[userID][0]
}

func TestDispatcherPersistsAndPushes(t *testing.T) {
	database := db.NewTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	user, err := store.CreateUser(ctx, database, "reader@library.test", "hash", "Reader", model.RoleMember)
	require.NoError(t, err)

	pusher := &capturePusher{}
	d := NewDispatcher(database, pusher, 8)
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Publish(ledger.Event{
		UserID:  user.ID,
		Type:    model.NotifyFineIssued,
		Title:   "Fine Added",
		Message: "A fine of 6000 has been added.",
		Payload: map[string]any{"fine_id": 7, "loan_id": 3},
	})

	require.Eventually(t, func() bool { return pusher.count(user.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	var msg Message
	require.NoError(t, json.Unmarshal(pusher.first(user.ID), &msg))
	assert.NotEmpty(t, msg.EventID)
	require.NotNil(t, msg.Notification)
	assert.Equal(t, model.NotifyFineIssued, msg.Notification.Type)
	assert.JSONEq(t, `{"fine_id":7,"loan_id":3}`, string(msg.Notification.Payload))

	saved, err := store.ListNotifications(ctx, database, user.ID, store.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "Fine Added", saved[0].Title)
	assert.False(t, saved[0].IsRead)

	cancel()
	<-done
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	database := db.NewTestDB(t)
	d := NewDispatcher(database, nil, 1)

	d.Publish(ledger.Event{UserID: 1, Type: model.NotifyLoanCreated})
	d.Publish(ledger.Event{UserID: 1, Type: model.NotifyLoanCreated})
	d.Publish(ledger.Event{UserID: 1, Type: model.NotifyLoanCreated})

	assert.Equal(t, int64(2), d.Dropped())
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user, err := store.CreateUser(ctx, database, "reader@library.test", "hash", "Reader", model.RoleMember)
	require.NoError(t, err)

	d := NewDispatcher(database, nil, 4)
	d.Publish(ledger.Event{UserID: user.ID, Type: model.NotifyLoanReturned, Title: "Book Returned", Message: "ok"})
	d.Publish(ledger.Event{UserID: user.ID, Type: model.NotifyLoanCreated, Title: "Book Borrowed", Message: "ok"})

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	d.Run(cancelled)

	n, err := store.CountUnreadNotifications(ctx, database, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDispatcherDrainsEveryEventOnShutdown(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user, err := store.CreateUser(ctx, database, "reader@library.test", "hash", "Reader", model.RoleMember)
	require.NoError(t, err)

	const rounds, perRound = 20, 8
	for i := 0; i < rounds; i++ {
		d := NewDispatcher(database, nil, perRound)
		for j := 0; j < perRound; j++ {
			d.Publish(ledger.Event{UserID: user.ID, Type: model.NotifyLoanOverdue, Title: "Book Overdue Notice", Message: "late"})
		}

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		d.Run(cancelled)
	}

	n, err := store.CountUnreadNotifications(ctx, database, user.ID)
	require.NoError(t, err)
	assert.Equal(t, rounds*perRound, n)
}

func TestDispatcherDeliversInFlightAfterCancel(t *testing.T) {
	database := db.NewTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	user, err := store.CreateUser(ctx, database, "reader@library.test", "hash", "Reader", model.RoleMember)
	require.NoError(t, err)

	d := NewDispatcher(database, nil, 64)
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	for i := 0; i < 50; i++ {
		d.Publish(ledger.Event{UserID: user.ID, Type: model.NotifyLoanDueSoon, Title: "Book Due Tomorrow", Message: "soon"})
	}
	cancel()
	<-done

	n, err := store.CountUnreadNotifications(context.Background(), database, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestDispatcherSurvivesStoreFailure(t *testing.T) {
	database := db.NewTestDB(t)
	pusher := &capturePusher{}
	d := NewDispatcher(database, pusher, 4)

	// No such user: the foreign key rejects the row and nothing is pushed.
	d.Publish(ledger.Event{UserID: 999, Type: model.NotifyLoanCreated, Title: "x", Message: "x"})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(cancelled)

	assert.Equal(t, 0, pusher.count(999))
}
