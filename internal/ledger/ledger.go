// Package ledger owns the loan, fine and payment lifecycle and enforces the
// borrowing rules.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/knjiznica/internal/model"
)

// Event is a user-facing notification produced by a committed ledger
// operation.
type Event struct {
	UserID  int64
	Type    model.NotificationType
	Title   string
	Message string
	Payload map[string]any
}

// Notifier receives events after their operation commits. Publish must not
// block; delivery is best effort.
type Notifier interface {
	Publish(Event)
}

// Ledger runs circulation operations against the database.
type Ledger struct {
	DB       *sql.DB
	Notifier Notifier
	Rules    Rules
	Clock    func() time.Time
}

// New creates a Ledger with the default rules and the wall clock.
func New(db *sql.DB, notifier Notifier) *Ledger {
	return &Ledger{
		DB:       db,
		Notifier: notifier,
		Rules:    DefaultRules(),
		Clock:    time.Now,
	}
}

// Now is the ledger's notion of the current instant, in UTC whole seconds.
func (l *Ledger) Now() time.Time {
	clock := l.Clock
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Truncate(time.Second)
}

// txn is one ledger transaction and the events it will publish on commit.
type txn struct {
	*sql.Tx
	events []Event
}

func (t *txn) publish(e Event) {
	t.events = append(t.events, e)
}

// run executes fn in a transaction. Events are handed to the notifier only
// after a successful commit.
func (l *Ledger) run(ctx context.Context, fn func(t *txn) error) error {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t := &txn{Tx: tx}
	if err := fn(t); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if l.Notifier != nil {
		for _, e := range t.events {
			l.Notifier.Publish(e)
		}
	}
	return nil
}
