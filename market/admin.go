package market

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// Moderation constants.
const (
	ReportPenalty       = 0.5
	OverduePenalty      = -0.1
	OverdueGraceDays    = 3
	DefaultLeaderboardN = 10
)

// Admin groups moderation operations. Every method takes the caller
// explicitly and refuses anyone who is not an administrator.
type Admin struct {
	m *Manager
}

func requireAdmin(caller Caller) error {
	if !caller.IsAdmin() {
		return fmt.Errorf("user %q is not an admin: %w", caller.UserID, ErrForbidden)
	}
	return nil
}

func announce(s *scope, userID, title, body string) {
	s.notify(Notice{UserID: userID, Kind: NotifyAnnouncement, Title: title, Body: body})
}

// ------------------ users ------------------

func (a *Admin) Users(ctx context.Context, caller Caller, keyword string) ([]User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if keyword == "" {
		return a.m.Users.List(ctx)
	}
	return a.m.Users.Search(ctx, keyword)
}

// BlockUser locks a student account. Administrators cannot be blocked.
func (a *Admin) BlockUser(ctx context.Context, caller Caller, userID, reason string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	return a.m.write(ctx, func(s *scope) error {
		u, err := a.m.db.getUser(ctx, s.tx, userID)
		if err != nil {
			return err
		}
		if u.Role == RoleAdmin {
			return fmt.Errorf("cannot block an admin: %w", ErrForbidden)
		}
		u.Active = false
		announce(s, u.ID, "Account locked", "Your account has been locked. Reason: "+reason)
		return a.m.db.saveUser(ctx, s.tx, u)
	})
}

func (a *Admin) UnblockUser(ctx context.Context, caller Caller, userID string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	return a.m.write(ctx, func(s *scope) error {
		u, err := a.m.db.getUser(ctx, s.tx, userID)
		if err != nil {
			return err
		}
		u.Active = true
		announce(s, u.ID, "Account unlocked", "Your account has been unlocked.")
		return a.m.db.saveUser(ctx, s.tx, u)
	})
}

// AdjustTrust feeds an observation into the user's trust score through the
// usual smoothing rule and tells the user why.
func (a *Admin) AdjustTrust(ctx context.Context, caller Caller, userID string, observation float64, reason string) (float64, error) {
	if err := requireAdmin(caller); err != nil {
		return 0, err
	}
	var score float64
	err := a.m.write(ctx, func(s *scope) error {
		var err error
		if score, err = a.m.Trust.update(ctx, s, userID, observation); err != nil {
			return err
		}
		announce(s, userID, "Trust score changed", "Your trust score was updated. Reason: "+reason)
		return nil
	})
	return score, err
}

// ------------------ books ------------------

// HideBook takes a listing out of search.
func (a *Admin) HideBook(ctx context.Context, caller Caller, bookID, reason string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	return a.m.write(ctx, func(s *scope) error {
		b, err := a.m.db.getBook(ctx, s.tx, bookID)
		if err != nil {
			return err
		}
		b.Visible = false
		announce(s, b.OwnerID, "Book hidden", fmt.Sprintf("%q was hidden. Reason: %s", b.Title, reason))
		return a.m.db.saveBook(ctx, s.tx, b)
	})
}

// DeleteBook removes a listing on the owner's behalf. Borrowed books stay.
func (a *Admin) DeleteBook(ctx context.Context, caller Caller, bookID, reason string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	return a.m.write(ctx, func(s *scope) error {
		b, err := a.m.db.getBook(ctx, s.tx, bookID)
		if err != nil {
			return err
		}
		if err := a.m.Books.delete(ctx, s, b); err != nil {
			return err
		}
		announce(s, b.OwnerID, "Book removed", fmt.Sprintf("%q was removed. Reason: %s", b.Title, reason))
		return nil
	})
}

// ------------------ transactions ------------------

// CancelTransaction aborts a transaction and tells both parties why.
func (a *Admin) CancelTransaction(ctx context.Context, caller Caller, txID, reason string) (*Transaction, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return a.m.Transactions.transition(ctx, txID, func(s *scope, t *Transaction, b *Book) error {
		if err := cancelTx(t, b, reason); err != nil {
			return err
		}
		body := "The transaction was cancelled by an administrator. Reason: " + reason
		announce(s, t.OwnerID, "Transaction cancelled", body)
		announce(s, t.BorrowerID, "Transaction cancelled", body)
		return nil
	})
}

// CheckOverdue reminds every borrower past their due date and penalises
// those more than OverdueGraceDays late, at most once per transaction per
// calendar day. It returns all overdue transactions.
func (a *Admin) CheckOverdue(ctx context.Context, caller Caller) ([]Transaction, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	var overdue []Transaction
	err := a.m.write(ctx, func(s *scope) error {
		now := a.m.Now()
		txs, err := a.m.db.listTxs(ctx, s.tx)
		if err != nil {
			return err
		}
		for _, t := range txs {
			if !t.Overdue(now) {
				continue
			}
			overdue = append(overdue, t)
			if remindedOn(&t, now) {
				continue
			}
			t.RemindedAt = &now
			if err := a.m.db.saveTx(ctx, s.tx, &t); err != nil {
				return err
			}
			title := "removed book"
			if b, err := a.m.db.getBook(ctx, s.tx, t.BookID); err == nil {
				title = b.Title
			}
			days := t.DaysOverdue(now)
			s.notify(Notice{
				UserID:    t.BorrowerID,
				Kind:      NotifyReturnReminder,
				Title:     "Return reminder",
				Body:      fmt.Sprintf("%q is %d day(s) overdue.", title, days),
				RelatedID: t.ID,
			})
			if days > OverdueGraceDays {
				if _, err := a.m.Trust.update(ctx, s, t.BorrowerID, OverduePenalty); err != nil {
					return err
				}
				announce(s, t.BorrowerID, "Trust score changed",
					fmt.Sprintf("Your trust score was updated. Reason: book %d days overdue", days))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return overdue, nil
}

// remindedOn reports whether t already got its overdue reminder on now's day.
func remindedOn(t *Transaction, now time.Time) bool {
	if t.RemindedAt == nil {
		return false
	}
	y1, m1, d1 := t.RemindedAt.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// ------------------ reports ------------------

// ProcessReport moves a report forward. Resolving it confirms the violation:
// the reported user is warned and loses ReportPenalty from the trust score
// before smoothing.
func (a *Admin) ProcessReport(ctx context.Context, caller Caller, reportID string, status ReportStatus, note string) (*Report, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	switch status {
	case ReportInvestigating, ReportResolved, ReportRejected:
	default:
		return nil, fmt.Errorf("report status %q: %w", status, ErrInvalidInput)
	}
	var rep *Report
	err := a.m.write(ctx, func(s *scope) error {
		r, err := a.m.db.getReport(ctx, s.tx, reportID)
		if err != nil {
			return err
		}
		if r.Status == ReportResolved || r.Status == ReportRejected {
			return fmt.Errorf("report %s is already %s: %w", r.ID, r.Status, ErrInvalidState)
		}
		r.Status, r.AdminNote = status, note
		if status != ReportInvestigating {
			now := a.m.Now()
			r.ResolvedAt = &now
		}
		if err := a.m.db.saveReport(ctx, s.tx, r); err != nil {
			return err
		}

		msg := "Your report has been processed."
		switch status {
		case ReportResolved:
			msg += " The violation was confirmed."
		case ReportRejected:
			msg += " There were not enough grounds."
		}
		announce(s, r.ReporterID, "Report processed", msg)

		if status == ReportResolved {
			announce(s, r.ReportedUserID, "Violation warning", "You were reported for: "+string(r.Type))
			u, err := a.m.db.getUser(ctx, s.tx, r.ReportedUserID)
			if err != nil {
				return err
			}
			if _, err := a.m.Trust.update(ctx, s, u.ID, math.Max(0, u.TrustScore-ReportPenalty)); err != nil {
				return err
			}
		}
		rep = r
		return nil
	})
	return rep, err
}

// ------------------ statistics ------------------

// SystemStats is an overview of the marketplace.
type SystemStats struct {
	TotalUsers            int `json:"total_users"`
	ActiveUsers           int `json:"active_users"`
	BlockedUsers          int `json:"blocked_users"`
	TotalBooks            int `json:"total_books"`
	AvailableBooks        int `json:"available_books"`
	BorrowedBooks         int `json:"borrowed_books"`
	TotalTransactions     int `json:"total_transactions"`
	PendingTransactions   int `json:"pending_transactions"`
	CompletedTransactions int `json:"completed_transactions"`
	TotalReports          int `json:"total_reports"`
	PendingReports        int `json:"pending_reports"`
}

func (a *Admin) Stats(ctx context.Context, caller Caller) (*SystemStats, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	q := a.m.reader()
	users, err := a.m.db.listUsers(ctx, q)
	if err != nil {
		return nil, err
	}
	books, err := a.m.db.listBooks(ctx, q, nil)
	if err != nil {
		return nil, err
	}
	txs, err := a.m.db.listTxs(ctx, q)
	if err != nil {
		return nil, err
	}
	reports, err := a.m.db.listReports(ctx, q)
	if err != nil {
		return nil, err
	}

	st := &SystemStats{
		TotalUsers:        len(users),
		TotalBooks:        len(books),
		TotalTransactions: len(txs),
		TotalReports:      len(reports),
	}
	for _, u := range users {
		if u.Active {
			st.ActiveUsers++
		} else {
			st.BlockedUsers++
		}
	}
	for _, b := range books {
		switch b.Status {
		case BookAvailable:
			st.AvailableBooks++
		case BookBorrowed:
			st.BorrowedBooks++
		}
	}
	for _, t := range txs {
		switch t.Status {
		case TxPending:
			st.PendingTransactions++
		case TxCompleted:
			st.CompletedTransactions++
		}
	}
	for _, r := range reports {
		if r.Status == ReportPending {
			st.PendingReports++
		}
	}
	return st, nil
}

func (a *Admin) FacultyStats(ctx context.Context, caller Caller) ([]FacultyCount, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return a.m.Books.StatsByFaculty(ctx)
}

// TopTrustedUsers returns up to limit users by descending trust score.
func (a *Admin) TopTrustedUsers(ctx context.Context, caller Caller, limit int) ([]User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	users, err := a.m.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].TrustScore > users[j].TrustScore })
	return head(users, limit), nil
}

// TopPopularBooks returns up to limit books by descending view count.
func (a *Admin) TopPopularBooks(ctx context.Context, caller Caller, limit int) ([]Book, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	books, err := a.m.Books.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(books, func(i, j int) bool { return books[i].ViewCount > books[j].ViewCount })
	return head(books, limit), nil
}

func head[T any](s []T, n int) []T {
	if n <= 0 {
		n = DefaultLeaderboardN
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Broadcast sends a system announcement to every user.
func (a *Admin) Broadcast(ctx context.Context, caller Caller, title, body string) (int, error) {
	if err := requireAdmin(caller); err != nil {
		return 0, err
	}
	users, err := a.m.Users.List(ctx)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	if err := a.m.Notifications.Broadcast(ctx, ids, title, body); err != nil {
		return 0, err
	}
	return len(ids), nil
}
