package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleFixture struct {
	m        *Manager
	clk      *testClock
	owner    *User
	borrower *User
	book     *Book
}

func newLifecycle(t *testing.T, opts ...Option) *lifecycleFixture {
	t.Helper()
	m, clk := newManager(t, opts...)
	owner := registerUser(t, m, "owner", "S1")
	borrower := registerUser(t, m, "borrower", "S2")
	return &lifecycleFixture{
		m:        m,
		clk:      clk,
		owner:    owner,
		borrower: borrower,
		book:     listBook(t, m, owner.ID, "Data Structures"),
	}
}

func (f *lifecycleFixture) bookStatus(t *testing.T) BookStatus {
	t.Helper()
	b, err := f.m.Books.Get(context.Background(), f.book.ID)
	require.NoError(t, err)
	return b.Status
}

func (f *lifecycleFixture) deliveredBorrow(t *testing.T, days int) *Transaction {
	t.Helper()
	ctx := context.Background()
	tx, err := f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBorrow, "")
	require.NoError(t, err)
	_, err = f.m.Transactions.Approve(ctx, tx.ID)
	require.NoError(t, err)
	tx, err = f.m.Transactions.ConfirmDelivery(ctx, tx.ID, days)
	require.NoError(t, err)
	return tx
}

func Test_Borrow_FullLifecycle(t *testing.T) {
	rec := &recordingNotifier{}
	f := newLifecycle(t, WithNotifier(rec))
	ctx := context.Background()
	start := f.clk.Now()

	tx, err := f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBorrow, "need it for the exam")
	require.NoError(t, err)
	assert.Equal(t, TxPending, tx.Status)
	assert.Equal(t, BookReserved, f.bookStatus(t))
	assert.Zero(t, tx.Amount)

	tx, err = f.m.Transactions.Approve(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, TxApproved, tx.Status)
	require.NotNil(t, tx.ApprovedAt)
	assert.Equal(t, BookReserved, f.bookStatus(t))

	tx, err = f.m.Transactions.ConfirmDelivery(ctx, tx.ID, 14)
	require.NoError(t, err)
	assert.Equal(t, TxInProgress, tx.Status)
	assert.Equal(t, BookBorrowed, f.bookStatus(t))
	require.NotNil(t, tx.DueDate)
	assert.True(t, tx.DueDate.Equal(start.Add(14*24*time.Hour)))

	f.clk.Advance(2 * 24 * time.Hour)
	tx, err = f.m.Transactions.ConfirmReturn(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, TxCompleted, tx.Status)
	require.NotNil(t, tx.ReturnedAt)
	assert.Equal(t, BookAvailable, f.bookStatus(t))

	tx, err = f.m.Transactions.Rate(ctx, tx.ID, f.owner.ID, 5, "careful reader")
	require.NoError(t, err)
	tx, err = f.m.Transactions.Rate(ctx, tx.ID, f.borrower.ID, 5, "great book")
	require.NoError(t, err)
	require.NotNil(t, tx.OwnerRating)
	require.NotNil(t, tx.BorrowerRating)
	assert.Equal(t, 5, *tx.OwnerRating)
	assert.Equal(t, 5, *tx.BorrowerRating)

	for _, u := range []*User{f.owner, f.borrower} {
		score, err := f.m.Trust.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 5.0, score)
	}

	assert.Equal(t, []NotificationKind{NotifyNewRequest, NotifyReturned, NotifyNewReview}, rec.kinds(f.owner.ID))
	assert.Equal(t, []NotificationKind{NotifyApproved, NotifyDelivered, NotifyNewReview}, rec.kinds(f.borrower.ID))
}

func Test_Buy_CompletesOnDelivery(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	price := 200000.0
	_, err := f.m.Books.AddAvailableType(ctx, f.book.ID, ListSell, &price, nil)
	require.NoError(t, err)

	tx, err := f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBuy, "")
	require.NoError(t, err)
	assert.Equal(t, 200000.0, tx.Amount)

	_, err = f.m.Transactions.Approve(ctx, tx.ID)
	require.NoError(t, err)
	tx, err = f.m.Transactions.ConfirmDelivery(ctx, tx.ID, 0)
	require.NoError(t, err)

	assert.Equal(t, TxCompleted, tx.Status)
	assert.Nil(t, tx.DueDate)
	assert.Equal(t, BookSold, f.bookStatus(t))

	_, err = f.m.Transactions.ConfirmReturn(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBorrow, "")
	assert.ErrorIs(t, err, ErrBookUnavailable)
}

func Test_Buy_AmountFixedAtRequestTime(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	price := 50000.0
	_, err := f.m.Books.AddAvailableType(ctx, f.book.ID, ListSell, &price, nil)
	require.NoError(t, err)

	tx, err := f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBuy, "")
	require.NoError(t, err)

	higher := 90000.0
	_, err = f.m.Books.AddAvailableType(ctx, f.book.ID, ListSell, &higher, nil)
	require.NoError(t, err)

	got, err := f.m.Transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, got.Amount)
}

func Test_Exchange_CompletesLikeBuy(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()

	tx, err := f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxExchange, "swap?")
	require.NoError(t, err)
	_, err = f.m.Transactions.Approve(ctx, tx.ID)
	require.NoError(t, err)
	tx, err = f.m.Transactions.ConfirmDelivery(ctx, tx.ID, 7)
	require.NoError(t, err)

	assert.Equal(t, TxCompleted, tx.Status)
	assert.Nil(t, tx.DueDate)
	assert.Zero(t, tx.Amount)
	assert.Equal(t, BookSold, f.bookStatus(t))
}

func Test_Reject_ReleasesBookAndKeepsReason(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()

	tx, err := f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBorrow, "")
	require.NoError(t, err)
	_, err = f.m.Transactions.Reject(ctx, tx.ID, "already promised to a friend")
	require.NoError(t, err)

	got, err := f.m.Transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, TxRejected, got.Status)
	assert.Equal(t, "already promised to a friend", got.Reason)
	assert.Equal(t, BookAvailable, f.bookStatus(t))

	_, err = f.m.Transactions.Approve(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func Test_Cancel_InProgressBorrowFreesBook(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	tx := f.deliveredBorrow(t, 14)

	tx, err := f.m.Transactions.Cancel(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, TxCancelled, tx.Status)
	assert.Equal(t, BookAvailable, f.bookStatus(t))

	_, err = f.m.Transactions.Cancel(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func Test_Cancel_PendingAndApproved(t *testing.T) {
	for _, approve := range []bool{false, true} {
		f := newLifecycle(t)
		ctx := context.Background()
		tx, err := f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBorrow, "")
		require.NoError(t, err)
		if approve {
			_, err = f.m.Transactions.Approve(ctx, tx.ID)
			require.NoError(t, err)
		}
		_, err = f.m.Transactions.Cancel(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, BookAvailable, f.bookStatus(t))
	}
}

func Test_Cancel_CompletedSaleIsRejected(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	tx, err := f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBuy, "")
	require.NoError(t, err)
	_, err = f.m.Transactions.Approve(ctx, tx.ID)
	require.NoError(t, err)
	_, err = f.m.Transactions.ConfirmDelivery(ctx, tx.ID, 0)
	require.NoError(t, err)

	_, err = f.m.Transactions.Cancel(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, BookSold, f.bookStatus(t))
}

func Test_CreateRequest_Failures(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()

	_, err := f.m.Transactions.CreateRequest(ctx, "missing", f.borrower.ID, TxBorrow, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.m.Transactions.CreateRequest(ctx, f.book.ID, f.owner.ID, TxBorrow, "")
	assert.ErrorIs(t, err, ErrSelfTransaction)
	assert.Equal(t, BookAvailable, f.bookStatus(t))

	_, err = f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, "LEASE", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBorrow, "")
	require.NoError(t, err)
	third := registerUser(t, f.m, "third", "S3")
	_, err = f.m.Transactions.CreateRequest(ctx, f.book.ID, third.ID, TxBorrow, "")
	assert.ErrorIs(t, err, ErrBookUnavailable)
}

func Test_Transitions_RequireSourceState(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	tx, err := f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBorrow, "")
	require.NoError(t, err)

	_, err = f.m.Transactions.ConfirmDelivery(ctx, tx.ID, 7)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.m.Transactions.ConfirmReturn(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.m.Transactions.ExtendBorrow(ctx, tx.ID, 3)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.m.Transactions.Approve(ctx, tx.ID)
	require.NoError(t, err)
	_, err = f.m.Transactions.Reject(ctx, tx.ID, "too late")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.m.Transactions.Approve(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_DueDate_RoundTripAndExtend(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	tx := f.deliveredBorrow(t, 10)

	got, err := f.m.Transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(got.DeliveredAt.AddDate(0, 0, 10)))

	ext, err := f.m.Transactions.ExtendBorrow(ctx, tx.ID, 5)
	require.NoError(t, err)
	assert.True(t, ext.DueDate.Equal(got.DueDate.AddDate(0, 0, 5)))
	assert.Equal(t, TxInProgress, ext.Status)

	_, err = f.m.Transactions.ExtendBorrow(ctx, tx.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func Test_ConfirmDelivery_BorrowDaysFallback(t *testing.T) {
	t.Run("book default", func(t *testing.T) {
		f := newLifecycle(t)
		days := 21
		_, err := f.m.Books.AddAvailableType(context.Background(), f.book.ID, ListBorrow, nil, &days)
		require.NoError(t, err)
		tx := f.deliveredBorrow(t, 0)
		assert.True(t, tx.DueDate.Equal(tx.DeliveredAt.AddDate(0, 0, 21)))
	})
	t.Run("global default", func(t *testing.T) {
		f := newLifecycle(t)
		tx := f.deliveredBorrow(t, -1)
		assert.True(t, tx.DueDate.Equal(tx.DeliveredAt.AddDate(0, 0, DefaultBorrowDays)))
	})
}

func Test_ExtendBorrow_WrongType(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	tx, err := f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBuy, "")
	require.NoError(t, err)

	_, err = f.m.Transactions.ExtendBorrow(ctx, tx.ID, 3)
	assert.ErrorIs(t, err, ErrWrongType)
}

func Test_Rate_Preconditions(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	tx := f.deliveredBorrow(t, 7)

	_, err := f.m.Transactions.Rate(ctx, tx.ID, f.owner.ID, 5, "")
	assert.ErrorIs(t, err, ErrNotCompleted)
	got, err := f.m.Transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Nil(t, got.OwnerRating)
	assert.Nil(t, got.BorrowerRating)

	_, err = f.m.Transactions.ConfirmReturn(ctx, tx.ID)
	require.NoError(t, err)

	for _, bad := range []int{0, 6, -1} {
		_, err = f.m.Transactions.Rate(ctx, tx.ID, f.owner.ID, bad, "")
		assert.ErrorIs(t, err, ErrInvalidRating)
	}

	stranger := registerUser(t, f.m, "stranger", "S9")
	_, err = f.m.Transactions.Rate(ctx, tx.ID, stranger.ID, 4, "")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func Test_Rate_AttributesToCounterpartyAndOverwrites(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	tx := f.deliveredBorrow(t, 7)
	_, err := f.m.Transactions.ConfirmReturn(ctx, tx.ID)
	require.NoError(t, err)

	tx, err = f.m.Transactions.Rate(ctx, tx.ID, f.owner.ID, 2, "late")
	require.NoError(t, err)
	require.NotNil(t, tx.BorrowerRating)
	assert.Equal(t, 2, *tx.BorrowerRating)
	assert.Equal(t, "late", *tx.BorrowerReview)
	assert.Nil(t, tx.OwnerRating)

	score, err := f.m.Trust.Get(ctx, f.borrower.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, score, 1e-9)
	ownerScore, err := f.m.Trust.Get(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, ownerScore)

	tx, err = f.m.Transactions.Rate(ctx, tx.ID, f.owner.ID, 4, "fine after all")
	require.NoError(t, err)
	assert.Equal(t, 4, *tx.BorrowerRating)
	assert.Equal(t, "fine after all", *tx.BorrowerReview)

	for i := 0; i < 5; i++ {
		_, err = f.m.Transactions.Rate(ctx, tx.ID, f.owner.ID, 1, "")
		require.NoError(t, err)
	}
	score, err = f.m.Trust.Get(ctx, f.borrower.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, score, 1e-9, "re-rating must not feed the trust score again")

	_, err = f.m.Transactions.Rate(ctx, tx.ID, f.borrower.ID, 1, "")
	require.NoError(t, err)
	ownerScore, err = f.m.Trust.Get(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, ownerScore, 1e-9)
}

func Test_Rate_AfterBookDeleted(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	tx := f.deliveredBorrow(t, 7)
	_, err := f.m.Transactions.ConfirmReturn(ctx, tx.ID)
	require.NoError(t, err)
	require.NoError(t, f.m.Books.Delete(ctx, f.book.ID, f.owner.ID))

	_, err = f.m.Transactions.Rate(ctx, tx.ID, f.borrower.ID, 5, "")
	assert.NoError(t, err)
}

func Test_Queries(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	second := listBook(t, f.m, f.owner.ID, "Algorithms")

	borrow := f.deliveredBorrow(t, 3)
	f.clk.Advance(time.Minute)
	pending, err := f.m.Transactions.CreateRequest(ctx, second.ID, f.borrower.ID, TxBorrow, "")
	require.NoError(t, err)

	byUser, err := f.m.Transactions.ListByUser(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, pending.ID, byUser[0].ID, "newest first")

	p, err := f.m.Transactions.PendingForOwner(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, pending.ID, p[0].ID)

	active, err := f.m.Transactions.ActiveBorrows(ctx, f.borrower.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, borrow.ID, active[0].ID)

	lent, err := f.m.Transactions.LentOut(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, lent, 1)

	byBorrower, err := f.m.Transactions.ListByBorrower(ctx, f.borrower.ID)
	require.NoError(t, err)
	assert.Len(t, byBorrower, 2)

	overdue, err := f.m.Transactions.Overdue(ctx, f.clk.Now())
	require.NoError(t, err)
	assert.Empty(t, overdue)

	later := f.clk.Now().Add(4 * 24 * time.Hour)
	overdue, err = f.m.Transactions.Overdue(ctx, later)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.True(t, overdue[0].Overdue(later))
	assert.Equal(t, 0, overdue[0].DaysOverdue(f.clk.Now()))
}

func Test_Authorize(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	tx, err := f.m.Transactions.CreateRequest(ctx, f.book.ID, f.borrower.ID, TxBorrow, "")
	require.NoError(t, err)
	stranger := registerUser(t, f.m, "stranger", "S9")

	owner := Caller{UserID: f.owner.ID, Role: RoleStudent}
	borrower := Caller{UserID: f.borrower.ID, Role: RoleStudent}
	other := Caller{UserID: stranger.ID, Role: RoleStudent}
	admin := Caller{UserID: "admin", Role: RoleAdmin}

	tests := []struct {
		caller Caller
		action Action
		want   error
	}{
		{owner, ActApprove, nil},
		{borrower, ActApprove, ErrForbidden},
		{other, ActApprove, ErrNotParticipant},
		{borrower, ActReturn, nil},
		{owner, ActReturn, nil},
		{borrower, ActCancel, nil},
		{other, ActCancel, ErrNotParticipant},
		{admin, ActDeliver, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.action)+"/"+tt.caller.UserID, func(t *testing.T) {
			err := f.m.Transactions.Authorize(ctx, tt.caller, tx.ID, tt.action)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
