package market

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminCaller(t *testing.T, m *Manager) Caller {
	t.Helper()
	_, err := m.Users.EnsureAdmin(context.Background(), "admin@dainam.edu.vn", "adminpass")
	require.NoError(t, err)
	u, err := m.Users.GetByEmail(context.Background(), "admin@dainam.edu.vn")
	require.NoError(t, err)
	return Caller{UserID: u.ID, Role: u.Role}
}

func TestAdminRequiresAdminRole(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	student := registerUser(t, m, "an", "S1")
	caller := Caller{UserID: student.ID, Role: RoleStudent}

	_, err := m.Admin.Users(ctx, caller, "")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, m.Admin.BlockUser(ctx, caller, student.ID, ""), ErrForbidden)
	_, err = m.Admin.Stats(ctx, caller)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = m.Admin.CheckOverdue(ctx, caller)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = m.Admin.Broadcast(ctx, caller, "t", "b")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestBlockAndUnblock(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	admin := adminCaller(t, m)
	u := registerUser(t, m, "an", "S1")

	assert.ErrorIs(t, m.Admin.BlockUser(ctx, admin, admin.UserID, "no"), ErrForbidden)

	require.NoError(t, m.Admin.BlockUser(ctx, admin, u.ID, "spam"))
	got, err := m.Users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	require.NoError(t, m.Admin.UnblockUser(ctx, admin, u.ID))
	_, err = m.Users.Login(ctx, u.Email, "secret123")
	assert.NoError(t, err)

	notes, err := m.Notifications.List(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestAdjustTrustAndUsers(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	admin := adminCaller(t, m)
	u := registerUser(t, m, "an", "S1")

	score, err := m.Admin.AdjustTrust(ctx, admin, u.ID, 2, "late twice")
	require.NoError(t, err)
	assert.Equal(t, 3.5, score)

	all, err := m.Admin.Users(ctx, admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	some, err := m.Admin.Users(ctx, admin, "S1")
	require.NoError(t, err)
	assert.Len(t, some, 1)
}

func TestAdminBookModeration(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	admin := adminCaller(t, f.m)

	require.NoError(t, f.m.Admin.HideBook(ctx, admin, f.book.ID, "spam"))
	found, err := f.m.Books.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, found)

	require.NoError(t, f.m.Admin.DeleteBook(ctx, admin, f.book.ID, "spam"))
	_, err = f.m.Books.Get(ctx, f.book.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminCancelTransaction(t *testing.T) {
	rec := &recordingNotifier{}
	f := newLifecycle(t, WithNotifier(rec))
	ctx := context.Background()
	admin := adminCaller(t, f.m)
	tx := f.deliveredBorrow(t, 7)

	got, err := f.m.Admin.CancelTransaction(ctx, admin, tx.ID, "dispute")
	require.NoError(t, err)
	assert.Equal(t, TxCancelled, got.Status)
	assert.Equal(t, "dispute", got.Reason)
	assert.Equal(t, BookAvailable, f.bookStatus(t))
	assert.Contains(t, rec.kinds(f.owner.ID), NotifyAnnouncement)
	assert.Contains(t, rec.kinds(f.borrower.ID), NotifyAnnouncement)

	_, err = f.m.Admin.CancelTransaction(ctx, admin, tx.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCheckOverdue(t *testing.T) {
	rec := &recordingNotifier{}
	f := newLifecycle(t, WithNotifier(rec))
	ctx := context.Background()
	admin := adminCaller(t, f.m)
	f.deliveredBorrow(t, 7)

	overdue, err := f.m.Admin.CheckOverdue(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	f.clk.Advance(9 * 24 * time.Hour)
	overdue, err = f.m.Admin.CheckOverdue(ctx, admin)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Contains(t, rec.kinds(f.borrower.ID), NotifyReturnReminder)
	score, err := f.m.Trust.Get(ctx, f.borrower.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, score, "two days late is within grace")

	f.clk.Advance(2 * 24 * time.Hour)
	_, err = f.m.Admin.CheckOverdue(ctx, admin)
	require.NoError(t, err)
	score, err = f.m.Trust.Get(ctx, f.borrower.ID)
	require.NoError(t, err)
	assert.InDelta(t, SmoothTrust(5, OverduePenalty), score, 1e-9)
}

func TestCheckOverdueOncePerDay(t *testing.T) {
	rec := &recordingNotifier{}
	f := newLifecycle(t, WithNotifier(rec))
	ctx := context.Background()
	admin := adminCaller(t, f.m)
	f.deliveredBorrow(t, 7)
	f.clk.Advance(11 * 24 * time.Hour)

	reminders := func() int {
		n := 0
		for _, k := range rec.kinds(f.borrower.ID) {
			if k == NotifyReturnReminder {
				n++
			}
		}
		return n
	}

	for i := 0; i < 6; i++ {
		overdue, err := f.m.Admin.CheckOverdue(ctx, admin)
		require.NoError(t, err)
		assert.Len(t, overdue, 1)
		f.clk.Advance(time.Hour)
	}
	once := SmoothTrust(5, OverduePenalty)
	score, err := f.m.Trust.Get(ctx, f.borrower.ID)
	require.NoError(t, err)
	assert.InDelta(t, once, score, 1e-9)
	assert.Equal(t, 1, reminders())

	f.clk.Advance(24 * time.Hour)
	_, err = f.m.Admin.CheckOverdue(ctx, admin)
	require.NoError(t, err)
	score, err = f.m.Trust.Get(ctx, f.borrower.ID)
	require.NoError(t, err)
	assert.InDelta(t, SmoothTrust(once, OverduePenalty), score, 1e-9)
	assert.Equal(t, 2, reminders())
}

func TestProcessReport(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	admin := adminCaller(t, f.m)

	file := func() *Report {
		rep, err := f.m.Reports.Create(ctx, NewReport{ReporterID: f.owner.ID, ReportedUserID: f.borrower.ID, Type: ReportDamagedBook})
		require.NoError(t, err)
		return rep
	}

	rep := file()
	got, err := f.m.Admin.ProcessReport(ctx, admin, rep.ID, ReportInvestigating, "looking")
	require.NoError(t, err)
	assert.Nil(t, got.ResolvedAt)

	got, err = f.m.Admin.ProcessReport(ctx, admin, rep.ID, ReportResolved, "confirmed")
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	score, err := f.m.Trust.Get(ctx, f.borrower.ID)
	require.NoError(t, err)
	assert.Equal(t, SmoothTrust(5, 5-ReportPenalty), score)

	_, err = f.m.Admin.ProcessReport(ctx, admin, rep.ID, ReportRejected, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	rejected := file()
	_, err = f.m.Admin.ProcessReport(ctx, admin, rejected.ID, ReportRejected, "no proof")
	require.NoError(t, err)
	after, err := f.m.Trust.Get(ctx, f.borrower.ID)
	require.NoError(t, err)
	assert.Equal(t, score, after)

	_, err = f.m.Admin.ProcessReport(ctx, admin, file().ID, ReportPending, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStatsAndLeaderboards(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	admin := adminCaller(t, f.m)
	second, err := f.m.Books.CreateWithDetails(ctx, f.owner.ID, BookDetails{Title: "Second", Author: "A", Faculty: "IT"})
	require.NoError(t, err)
	_, err = f.m.Books.IncrementViewCount(ctx, second.ID)
	require.NoError(t, err)
	f.deliveredBorrow(t, 7)
	_, err = f.m.Trust.Update(ctx, f.borrower.ID, 1)
	require.NoError(t, err)

	st, err := f.m.Admin.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, SystemStats{
		TotalUsers: 3, ActiveUsers: 3,
		TotalBooks: 2, AvailableBooks: 1, BorrowedBooks: 1,
		TotalTransactions: 1,
	}, *st)

	fac, err := f.m.Admin.FacultyStats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, []FacultyCount{{Faculty: "IT", Books: 1}}, fac)

	top, err := f.m.Admin.TopTrustedUsers(ctx, admin, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.NotEqual(t, f.borrower.ID, top[0].ID)
	assert.NotEqual(t, f.borrower.ID, top[1].ID)

	books, err := f.m.Admin.TopPopularBooks(ctx, admin, 0)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, second.ID, books[0].ID)
}

func TestAdminBroadcast(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	admin := adminCaller(t, m)
	u := registerUser(t, m, "an", "S1")

	n, err := m.Admin.Broadcast(ctx, admin, "Maintenance", "Tonight at 22:00")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	notes, err := m.Notifications.List(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyAnnouncement, notes[0].Kind)
	assert.Equal(t, "Maintenance", notes[0].Title)
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := newLifecycle(t)
	ctx := context.Background()
	tx := f.deliveredBorrow(t, 7)
	_, err := f.m.Transactions.ConfirmReturn(ctx, tx.ID)
	require.NoError(t, err)
	_, err = f.m.Transactions.Rate(ctx, tx.ID, f.borrower.ID, 4, "nice")
	require.NoError(t, err)
	_, err = f.m.Reports.Create(ctx, NewReport{ReporterID: f.owner.ID, ReportedUserID: f.borrower.ID, Type: ReportOther})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.m.ExportSnapshot(ctx, &buf))
	assert.Contains(t, buf.String(), `"password_hash"`)

	fresh, _ := newManager(t)
	snap, err := fresh.ImportSnapshot(ctx, &buf)
	require.NoError(t, err)
	assert.Len(t, snap.Users, 2)

	_, err = fresh.Users.Login(ctx, f.borrower.Email, "secret123")
	require.NoError(t, err)

	got, err := fresh.Transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, TxCompleted, got.Status)
	require.NotNil(t, got.OwnerRating)
	assert.Equal(t, 4, *got.OwnerRating)
	assert.True(t, got.DueDate.Equal(*tx.DueDate))

	book, err := fresh.Books.Get(ctx, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, f.book.Seq, book.Seq)

	orig, err := f.m.LoadAll(ctx)
	require.NoError(t, err)
	loaded, err := fresh.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Notifications, len(orig.Notifications))
	assert.Len(t, loaded.Reports, 1)

	_, err = fresh.ImportSnapshot(ctx, bytes.NewBufferString("{not json"))
	assert.Error(t, err)
}
