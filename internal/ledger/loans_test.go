package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

func TestBorrow(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "reader@library.test")
	copyID := f.copy(t, "C-1")

	loan := f.borrow(t, user, copyID)

	assert.Equal(t, model.LoanActive, loan.Status)
	assert.True(t, loan.LoanDate.Equal(day0))
	assert.True(t, loan.DueDate.Equal(day0.Add(14*24*time.Hour)))
	assert.Nil(t, loan.ReturnDate)
	assert.Equal(t, model.CopyBorrowed, f.copyStatus(t, copyID))
	assert.Equal(t, []model.NotificationType{model.NotifyLoanCreated}, f.events.types())
}

func TestBorrowPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("missing copy", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader@library.test")
		_, err := f.ledger.Borrow(ctx, BorrowInput{UserID: user, CopyID: 999})
		require.ErrorIs(t, err, ErrCopyNotFound)
		assert.Equal(t, NotFound, KindOf(err))
	})

	t.Run("missing copy is reported before missing user", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.Borrow(ctx, BorrowInput{UserID: 999, CopyID: 999})
		require.ErrorIs(t, err, ErrCopyNotFound)
	})

	t.Run("missing user", func(t *testing.T) {
		f := newFixture(t)
		copyID := f.copy(t, "C-1")
		_, err := f.ledger.Borrow(ctx, BorrowInput{UserID: 999, CopyID: copyID})
		require.ErrorIs(t, err, ErrUserNotFound)
		assert.Equal(t, model.CopyAvailable, f.copyStatus(t, copyID))
	})

	t.Run("copy already borrowed", func(t *testing.T) {
		f := newFixture(t)
		a := f.user(t, "a@library.test")
		b := f.user(t, "b@library.test")
		copyID := f.copy(t, "C-1")
		f.borrow(t, a, copyID)

		_, err := f.ledger.Borrow(ctx, BorrowInput{UserID: b, CopyID: copyID})
		require.ErrorIs(t, err, ErrCopyUnavailable)
	})

	t.Run("lost copy", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader@library.test")
		copyID := f.copy(t, "C-1")
		require.NoError(t, store.MarkCopyLost(ctx, f.db, copyID))

		_, err := f.ledger.Borrow(ctx, BorrowInput{UserID: user, CopyID: copyID})
		require.ErrorIs(t, err, ErrCopyUnavailable)
	})

	t.Run("outstanding fines", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader@library.test")
		loan := f.borrow(t, user, f.copy(t, "C-1"))
		_, err := f.ledger.CreateFine(ctx, CreateFineInput{LoanID: loan.ID, Amount: 500, Reason: model.ReasonDamage})
		require.NoError(t, err)

		_, err = f.ledger.Borrow(ctx, BorrowInput{UserID: user, CopyID: f.copy(t, "C-2")})
		require.ErrorIs(t, err, ErrOutstandingFines)
	})

	t.Run("waived fines do not block", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader@library.test")
		loan := f.borrow(t, user, f.copy(t, "C-1"))
		fine, err := f.ledger.CreateFine(ctx, CreateFineInput{LoanID: loan.ID, Amount: 500, Reason: model.ReasonDamage})
		require.NoError(t, err)
		_, err = f.ledger.WaiveFine(ctx, fine.ID, "")
		require.NoError(t, err)

		_, err = f.ledger.Borrow(ctx, BorrowInput{UserID: user, CopyID: f.copy(t, "C-2")})
		require.NoError(t, err)
	})

	t.Run("borrow limit", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader@library.test")
		f.borrow(t, user, f.copy(t, "C-1"))
		f.borrow(t, user, f.copy(t, "C-2"))
		f.borrow(t, user, f.copy(t, "C-3"))

		fourth := f.copy(t, "C-4")
		_, err := f.ledger.Borrow(ctx, BorrowInput{UserID: user, CopyID: fourth})
		require.ErrorIs(t, err, ErrBorrowLimitExceeded)
		assert.Equal(t, model.CopyAvailable, f.copyStatus(t, fourth))
	})

	t.Run("unavailable is checked before fines", func(t *testing.T) {
		f := newFixture(t)
		a := f.user(t, "a@library.test")
		b := f.user(t, "b@library.test")
		held := f.copy(t, "C-1")
		f.borrow(t, a, held)
		loan := f.borrow(t, b, f.copy(t, "C-2"))
		_, err := f.ledger.CreateFine(ctx, CreateFineInput{LoanID: loan.ID, Amount: 500, Reason: model.ReasonOther})
		require.NoError(t, err)

		_, err = f.ledger.Borrow(ctx, BorrowInput{UserID: b, CopyID: held})
		require.ErrorIs(t, err, ErrCopyUnavailable)
	})
}

func TestConcurrentBorrowSameCopy(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a@library.test")
	b := f.user(t, "b@library.test")
	copyID := f.copy(t, "C-1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []int64{a, b} {
		wg.Add(1)
		go func(i int, user int64) {
			defer wg.Done()
			_, errs[i] = f.ledger.Borrow(context.Background(), BorrowInput{UserID: user, CopyID: copyID})
		}(i, user)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrCopyUnavailable)
	}
	require.Equal(t, 1, succeeded)

	loans, _, err := store.ListLoans(context.Background(), f.db, store.LoanFilter{}, store.Page{})
	require.NoError(t, err)
	require.Len(t, loans, 1)
}

func TestReturnOnTime(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "reader@library.test")
	copyID := f.copy(t, "C-1")
	loan := f.borrow(t, user, copyID)
	f.events.reset()

	f.clock.Advance(14 * 24 * time.Hour)
	returned, err := f.ledger.Return(context.Background(), ReturnInput{LoanID: loan.ID, ActorID: user})
	require.NoError(t, err)

	assert.Equal(t, model.LoanReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.True(t, returned.ReturnDate.Equal(returned.DueDate))
	assert.Nil(t, returned.Fine)
	assert.Equal(t, model.CopyAvailable, f.copyStatus(t, copyID))
	assert.Equal(t, []model.NotificationType{model.NotifyLoanReturned}, f.events.types())
}

func TestReturnLateThenPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "reader@library.test")
	loan := f.borrow(t, user, f.copy(t, "C-1"))
	f.events.reset()

	f.clock.Advance(20 * 24 * time.Hour)
	returned, err := f.ledger.Return(ctx, ReturnInput{LoanID: loan.ID, ActorID: user})
	require.NoError(t, err)

	require.NotNil(t, returned.Fine)
	assert.Equal(t, int64(6000), returned.Fine.AmountTotal)
	assert.Equal(t, model.FineUnpaid, returned.Fine.Status)
	assert.Equal(t, model.ReasonLate, returned.Fine.Reason)
	assert.ElementsMatch(t,
		[]model.NotificationType{model.NotifyFineIssued, model.NotifyLoanReturned}, f.events.types())

	result, err := f.ledger.PayFine(ctx, PayInput{FineID: returned.Fine.ID, PayerID: user, Amount: 6000})
	require.NoError(t, err)
	assert.Equal(t, model.FinePaid, result.Fine.Status)
	assert.Equal(t, int64(0), result.Remaining)
	assert.Equal(t, model.MethodCash, result.Payment.Method)
}

func TestReturnPartialDayLate(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "reader@library.test")
	loan := f.borrow(t, user, f.copy(t, "C-1"))

	f.clock.Advance(14*24*time.Hour + time.Minute)
	returned, err := f.ledger.Return(context.Background(), ReturnInput{LoanID: loan.ID, ActorID: user})
	require.NoError(t, err)
	require.NotNil(t, returned.Fine)
	assert.Equal(t, int64(1000), returned.Fine.AmountTotal)
}

func TestReturnPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner@library.test")
	other := f.user(t, "other@library.test")
	loan := f.borrow(t, owner, f.copy(t, "C-1"))

	_, err := f.ledger.Return(ctx, ReturnInput{LoanID: 999, ActorID: owner})
	require.ErrorIs(t, err, ErrLoanNotFound)

	_, err = f.ledger.Return(ctx, ReturnInput{LoanID: loan.ID, ActorID: other})
	require.ErrorIs(t, err, ErrNotLoanOwner)
	assert.Equal(t, Unauthorized, KindOf(err))

	_, err = f.ledger.Return(ctx, ReturnInput{LoanID: loan.ID, ActorID: other, IsAdmin: true})
	require.NoError(t, err)

	_, err = f.ledger.Return(ctx, ReturnInput{LoanID: loan.ID, ActorID: owner})
	require.ErrorIs(t, err, ErrAlreadyReturned)
}

func TestReturnKeepsExistingFine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t, "reader@library.test")
	loan := f.borrow(t, user, f.copy(t, "C-1"))

	f.clock.Advance(16 * 24 * time.Hour)
	_, err := f.ledger.SweepOverdue(ctx)
	require.NoError(t, err)
	calculated, created, err := f.ledger.CalculateFine(ctx, loan.ID)
	require.NoError(t, err)
	require.True(t, created)

	f.clock.Advance(3 * 24 * time.Hour)
	returned, err := f.ledger.Return(ctx, ReturnInput{LoanID: loan.ID, ActorID: user})
	require.NoError(t, err)
	require.NotNil(t, returned.Fine)
	assert.Equal(t, calculated.ID, returned.Fine.ID)
	assert.Equal(t, int64(2000), returned.Fine.AmountTotal)
}

func TestRenew(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "reader@library.test")
	loan := f.borrow(t, user, f.copy(t, "C-1"))
	f.events.reset()

	renewed, err := f.ledger.Renew(context.Background(), RenewInput{LoanID: loan.ID, ActorID: user})
	require.NoError(t, err)
	assert.True(t, renewed.DueDate.Equal(loan.DueDate.Add(7*24*time.Hour)))
	assert.Equal(t, 1, renewed.Renewals)
	assert.Empty(t, f.events.types())
}

func TestRenewPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("not owner", func(t *testing.T) {
		f := newFixture(t)
		owner := f.user(t, "owner@library.test")
		other := f.user(t, "other@library.test")
		loan := f.borrow(t, owner, f.copy(t, "C-1"))

		_, err := f.ledger.Renew(ctx, RenewInput{LoanID: loan.ID, ActorID: other})
		require.ErrorIs(t, err, ErrNotLoanOwner)
	})

	t.Run("overdue status", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader@library.test")
		loan := f.borrow(t, user, f.copy(t, "C-1"))
		f.clock.Advance(15 * 24 * time.Hour)
		_, err := f.ledger.SweepOverdue(ctx)
		require.NoError(t, err)

		_, err = f.ledger.Renew(ctx, RenewInput{LoanID: loan.ID, ActorID: user})
		require.ErrorIs(t, err, ErrCannotRenewOverdue)
	})

	t.Run("active but past due", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader@library.test")
		loan := f.borrow(t, user, f.copy(t, "C-1"))
		f.clock.Advance(14*24*time.Hour + time.Second)

		_, err := f.ledger.Renew(ctx, RenewInput{LoanID: loan.ID, ActorID: user})
		require.ErrorIs(t, err, ErrCannotRenewOverdue)
	})

	t.Run("unpaid fine", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader@library.test")
		loan := f.borrow(t, user, f.copy(t, "C-1"))
		_, err := f.ledger.CreateFine(ctx, CreateFineInput{LoanID: loan.ID, Amount: 300, Reason: model.ReasonDamage})
		require.NoError(t, err)

		_, err = f.ledger.Renew(ctx, RenewInput{LoanID: loan.ID, ActorID: user})
		require.ErrorIs(t, err, ErrUnpaidFineBlocksRenewal)
	})

	t.Run("paid fine", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader@library.test")
		loan := f.borrow(t, user, f.copy(t, "C-1"))
		fine, err := f.ledger.CreateFine(ctx, CreateFineInput{LoanID: loan.ID, Amount: 300, Reason: model.ReasonDamage})
		require.NoError(t, err)
		_, err = f.ledger.PayFine(ctx, PayInput{FineID: fine.ID, PayerID: user, Amount: 300})
		require.NoError(t, err)

		_, err = f.ledger.Renew(ctx, RenewInput{LoanID: loan.ID, ActorID: user})
		require.NoError(t, err)
	})

	t.Run("returned", func(t *testing.T) {
		f := newFixture(t)
		user := f.user(t, "reader@library.test")
		loan := f.borrow(t, user, f.copy(t, "C-1"))
		_, err := f.ledger.Return(ctx, ReturnInput{LoanID: loan.ID, ActorID: user})
		require.NoError(t, err)

		_, err = f.ledger.Renew(ctx, RenewInput{LoanID: loan.ID, ActorID: user})
		require.ErrorIs(t, err, ErrAlreadyReturned)
	})
}

func TestSweepOverdue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t, "reader@library.test")
	late := f.borrow(t, user, f.copy(t, "C-1"))
	f.clock.Advance(5 * 24 * time.Hour)
	f.borrow(t, user, f.copy(t, "C-2"))
	f.events.reset()

	f.clock.Advance(10 * 24 * time.Hour)
	n, err := f.ledger.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []model.NotificationType{model.NotifyLoanOverdue}, f.events.types())

	got, err := store.GetLoan(ctx, f.db, late.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanOverdue, got.Status)

	fine, err := store.GetFineByLoan(ctx, f.db, late.ID)
	require.NoError(t, err)
	assert.Nil(t, fine)

	n, err = f.ledger.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRemindDueSoon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t, "reader@library.test")
	loan := f.borrow(t, user, f.copy(t, "C-1"))
	f.events.reset()

	n, err := f.ledger.RemindDueSoon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(13*24*time.Hour + time.Hour)
	n, err = f.ledger.RemindDueSoon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.ledger.RemindDueSoon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []model.NotificationType{model.NotifyLoanDueSoon}, f.events.types())

	_, err = f.ledger.Renew(ctx, RenewInput{LoanID: loan.ID, ActorID: user})
	require.NoError(t, err)
	f.clock.Advance(7 * 24 * time.Hour)
	n, err = f.ledger.RemindDueSoon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkLost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t, "reader@library.test")
	copyID := f.copy(t, "C-1")
	loan := f.borrow(t, user, copyID)

	lost, err := f.ledger.MarkLost(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanLost, lost.Status)
	require.NotNil(t, lost.Fine)
	assert.Equal(t, int64(50000), lost.Fine.AmountTotal)
	assert.Equal(t, model.ReasonLost, lost.Fine.Reason)

	c, err := store.GetCopy(ctx, f.db, copyID)
	require.NoError(t, err)
	assert.Equal(t, model.CopyLost, c.Status)
	assert.Equal(t, model.ConditionLost, c.Condition)

	_, err = f.ledger.Return(ctx, ReturnInput{LoanID: loan.ID, ActorID: user})
	require.ErrorIs(t, err, ErrLoanLost)
	_, err = f.ledger.Renew(ctx, RenewInput{LoanID: loan.ID, ActorID: user})
	require.ErrorIs(t, err, ErrLoanLost)
	_, err = f.ledger.MarkLost(ctx, loan.ID)
	require.ErrorIs(t, err, ErrLoanLost)
}

func TestMarkLostReturnedLoan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t, "reader@library.test")
	loan := f.borrow(t, user, f.copy(t, "C-1"))
	_, err := f.ledger.Return(ctx, ReturnInput{LoanID: loan.ID, ActorID: user})
	require.NoError(t, err)
	f.events.reset()

	_, err = f.ledger.MarkLost(ctx, loan.ID)
	require.ErrorIs(t, err, ErrAlreadyReturned)
	assert.Empty(t, f.events.types())
}
