package ledger

import (
	"context"
	"fmt"

	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

// PayInput is a payment against a fine. An empty method means cash.
type PayInput struct {
	FineID  int64
	PayerID int64
	IsAdmin bool
	Amount  int64
	Method  model.PaymentMethod
	Notes   string
}

// PaymentResult is a recorded payment and the fine it settled against.
type PaymentResult struct {
	Payment   *model.Payment `json:"payment"`
	Fine      *model.Fine    `json:"fine"`
	Remaining int64          `json:"remaining"`
}

// PayFine records a payment and applies it to the fine.
func (l *Ledger) PayFine(ctx context.Context, in PayInput) (*PaymentResult, error) {
	method := in.Method
	if method == "" {
		method = model.MethodCash
	}
	if !method.Valid() {
		return nil, ErrInvalidMethod
	}

	var result *PaymentResult
	err := l.run(ctx, func(t *txn) error {
		fine, err := store.GetFine(ctx, t, in.FineID)
		if err != nil {
			return err
		}
		if fine == nil {
			return ErrFineNotFound
		}
		if !in.IsAdmin && fine.UserID != in.PayerID {
			return ErrNotFineOwner
		}
		if fine.Status.Settled() {
			return ErrFineFinalized
		}
		if in.Amount <= 0 {
			return ErrInvalidAmount
		}
		remaining := fine.Remaining()
		if in.Amount > remaining {
			return ErrExceedsRemaining.withMessage("payment amount exceeds remaining balance (%d)", remaining)
		}

		now := l.Now()
		payment, err := store.CreatePayment(ctx, t, store.NewPayment{
			FineID:     fine.ID,
			Amount:     in.Amount,
			Method:     method,
			Notes:      in.Notes,
			PaidAt:     now,
			RecordedBy: in.PayerID,
		})
		if err != nil {
			return err
		}

		paid := fine.AmountPaid + in.Amount
		status := model.SettlementStatus(paid, fine.AmountTotal)
		applied, err := store.ApplyFinePayment(ctx, t, fine.ID, fine.AmountPaid, paid, status, now)
		if err != nil {
			return err
		}
		if !applied {
			return ErrPaymentConflict
		}

		updated, err := store.GetFine(ctx, t, fine.ID)
		if err != nil {
			return err
		}
		result = &PaymentResult{Payment: payment, Fine: updated, Remaining: updated.Remaining()}

		message := "Fine fully paid."
		if status != model.FinePaid {
			message = fmt.Sprintf("Partial payment received. Remaining: %d.", result.Remaining)
		}
		t.publish(Event{
			UserID:  fine.UserID,
			Type:    model.NotifyPaymentReceived,
			Title:   "Payment Received",
			Message: fmt.Sprintf("Payment of %d received for fine on %q. %s", in.Amount, payment.BookTitle, message),
			Payload: map[string]any{"payment_id": payment.ID, "fine_id": fine.ID},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
