package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"bookshare/market"
)

// session is the signed-in user of an interactive shell.
type session struct {
	user   *market.User
	caller market.Caller
}

func (a *app) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive marketplace shell for the --as user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, who, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			return a.runShell(cmd.Context(), &session{user: u, caller: who})
		},
	}
}

func (a *app) runShell(ctx context.Context, s *session) error {
	a.printf("Welcome to bookshare, %s!\n", s.user.FullName)
	a.println("Available commands:")
	a.println("  Books: add book, list books, my books, search book, show book, offer book, delete book")
	a.println("  Requests: request, pending, approve, reject, deliver, return, extend, cancel, rate, my requests, borrowing, lending")
	a.println("  Account: notifications, read all, favorites, report")
	if s.caller.IsAdmin() {
		a.println("  Admin: stats, check overdue, reports, process report, block, unblock")
	}
	a.println("  System: exit")

	for {
		line, ok := a.prompt("\n> ")
		if !ok {
			return nil
		}

		var err error
		switch line {
		case "":
			continue
		case "add book":
			err = a.handleAddBook(ctx, s)
		case "list books":
			err = a.handleListBooks(ctx, "")
		case "my books":
			err = a.handleListBooks(ctx, s.user.ID)
		case "search book":
			err = a.handleSearchBooks(ctx)
		case "show book":
			err = a.handleShowBook(ctx)
		case "offer book":
			err = a.handleOfferBook(ctx, s)
		case "delete book":
			err = a.withID("Book ID", func(id string) error {
				return a.mgr.Books.Delete(ctx, id, s.user.ID)
			})
		case "request":
			err = a.handleRequest(ctx, s)
		case "pending":
			err = a.handleListTxs(ctx, s, true)
		case "my requests":
			err = a.handleListTxs(ctx, s, false)
		case "borrowing":
			err = a.handleOnLoan(ctx, s, true)
		case "lending":
			err = a.handleOnLoan(ctx, s, false)
		case "approve":
			err = a.handleStep(ctx, s, market.ActApprove, a.mgr.Transactions.Approve)
		case "reject":
			err = a.handleStep(ctx, s, market.ActReject, func(ctx context.Context, id string) (*market.Transaction, error) {
				reason, _ := a.prompt("Reason: ")
				return a.mgr.Transactions.Reject(ctx, id, reason)
			})
		case "deliver":
			err = a.handleStep(ctx, s, market.ActDeliver, func(ctx context.Context, id string) (*market.Transaction, error) {
				days, err := a.promptInt("Borrow days (Enter for the book's default): ")
				if err != nil {
					return nil, err
				}
				return a.mgr.Transactions.ConfirmDelivery(ctx, id, days)
			})
		case "return":
			err = a.handleStep(ctx, s, market.ActReturn, a.mgr.Transactions.ConfirmReturn)
		case "extend":
			err = a.handleStep(ctx, s, market.ActExtend, func(ctx context.Context, id string) (*market.Transaction, error) {
				days, err := a.promptInt("Extra days: ")
				if err != nil {
					return nil, err
				}
				return a.mgr.Transactions.ExtendBorrow(ctx, id, days)
			})
		case "cancel":
			err = a.handleStep(ctx, s, market.ActCancel, a.mgr.Transactions.Cancel)
		case "rate":
			err = a.handleRate(ctx, s)
		case "notifications":
			var notes []market.Notification
			if notes, err = a.mgr.Notifications.List(ctx, s.user.ID); err == nil {
				a.printNotifications(notes)
			}
		case "read all":
			var n int
			if n, err = a.mgr.Notifications.MarkAllRead(ctx, s.user.ID); err == nil {
				a.printf("Marked %d notification(s) as read.\n", n)
			}
		case "favorites":
			var books []market.Book
			if books, err = a.mgr.Users.Favorites(ctx, s.user.ID); err == nil {
				a.printBooks(books)
			}
		case "report":
			err = a.handleReport(ctx, s)
		case "stats", "check overdue", "reports", "process report", "block", "unblock":
			err = a.handleAdmin(ctx, s, line)
		case "exit", "quit":
			a.println("Goodbye!")
			return nil
		default:
			a.println("Unknown command. Type one of the available commands listed above.")
		}
		if err != nil {
			a.printf("Error: %v\n", err)
		}
	}
}

// prompt prints label and reads one trimmed line. It reports false at end
// of input.
func (a *app) prompt(label string) (string, bool) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", false
	}
	return strings.TrimSpace(line), true
}

// promptInt reads an optional integer; an empty line is zero.
func (a *app) promptInt(label string) (int, error) {
	raw, _ := a.prompt(label)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", market.ErrInvalidInput, raw)
	}
	return n, nil
}

func (a *app) withID(label string, fn func(id string) error) error {
	id, ok := a.prompt(label + ": ")
	if !ok || id == "" {
		return nil
	}
	if err := fn(id); err != nil {
		return err
	}
	a.println("Done.")
	return nil
}

func (a *app) handleAddBook(ctx context.Context, s *session) error {
	var d market.BookDetails
	d.Title, _ = a.prompt("Title: ")
	d.Author, _ = a.prompt("Author: ")
	d.Subject, _ = a.prompt("Subject (optional): ")
	d.Faculty, _ = a.prompt("Faculty (optional): ")

	b, err := a.mgr.Books.CreateWithDetails(ctx, s.user.ID, d)
	if err != nil {
		return err
	}
	a.printf("Added book %s. Use 'offer book' to make it available.\n", b.ID)
	return nil
}

func (a *app) handleListBooks(ctx context.Context, ownerID string) error {
	var (
		books []market.Book
		err   error
	)
	if ownerID == "" {
		books, err = a.mgr.Books.All(ctx)
	} else {
		books, err = a.mgr.Books.ListByOwner(ctx, ownerID)
	}
	if err != nil {
		return err
	}
	a.printBooks(books)
	return nil
}

func (a *app) handleSearchBooks(ctx context.Context) error {
	var f market.SearchFilter
	f.Keyword, _ = a.prompt("Keyword (title, author or description): ")
	typ, _ := a.prompt("Type BORROW/SELL/EXCHANGE (optional): ")
	f.Type = market.ListingType(strings.ToUpper(typ))
	f.Sort, _ = a.prompt("Sort price_asc/price_desc/newest/popular (optional): ")

	books, err := a.mgr.Books.Search(ctx, f)
	if err != nil {
		return err
	}
	if len(books) == 0 {
		a.printf("No books found matching '%s'.\n", f.Keyword)
		return nil
	}
	a.printf("Found %d book(s):\n", len(books))
	a.printBooks(books)
	return nil
}

func (a *app) handleShowBook(ctx context.Context) error {
	id, _ := a.prompt("Book ID: ")
	b, err := a.mgr.Books.IncrementViewCount(ctx, id)
	if err != nil {
		return err
	}
	a.printBookDetail(b)
	return nil
}

func (a *app) handleOfferBook(ctx context.Context, s *session) error {
	id, _ := a.prompt("Book ID: ")
	b, err := a.mgr.Books.Get(ctx, id)
	if err != nil {
		return err
	}
	if b.OwnerID != s.user.ID {
		return market.ErrNotOwner
	}
	typ, _ := a.prompt("Offer as BORROW, SELL or EXCHANGE: ")

	var price *float64
	var days *int
	switch lt := market.ListingType(strings.ToUpper(typ)); lt {
	case market.ListSell:
		raw, _ := a.prompt("Price: ")
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a price", market.ErrInvalidInput, raw)
		}
		price = &p
	case market.ListBorrow:
		n, err := a.promptInt("Borrow days (Enter to keep the default): ")
		if err != nil {
			return err
		}
		if n != 0 {
			days = &n
		}
	}
	b, err = a.mgr.Books.AddAvailableType(ctx, b.ID, market.ListingType(strings.ToUpper(typ)), price, days)
	if err != nil {
		return err
	}
	a.printBookDetail(b)
	return nil
}

func (a *app) handleRequest(ctx context.Context, s *session) error {
	bookID, _ := a.prompt("Book ID: ")
	typ, _ := a.prompt("Request type BORROW, BUY or EXCHANGE: ")
	msg, _ := a.prompt("Message to the owner (optional): ")

	t, err := a.mgr.Transactions.CreateRequest(ctx, bookID, s.user.ID, market.TxType(strings.ToUpper(typ)), msg)
	if err != nil {
		return err
	}
	a.printf("Request %s sent; waiting for the owner.\n", t.ID)
	return nil
}

func (a *app) handleListTxs(ctx context.Context, s *session, pendingOnly bool) error {
	var (
		txs []market.Transaction
		err error
	)
	if pendingOnly {
		txs, err = a.mgr.Transactions.PendingForOwner(ctx, s.user.ID)
	} else {
		txs, err = a.mgr.Transactions.ListByUser(ctx, s.user.ID)
	}
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		a.println("No transactions.")
		return nil
	}
	a.printTxs(txs)
	return nil
}

// handleOnLoan lists in-progress borrows where the user is the borrower, or
// the owner when borrowing is false.
func (a *app) handleOnLoan(ctx context.Context, s *session, borrowing bool) error {
	var (
		txs []market.Transaction
		err error
	)
	if borrowing {
		txs, err = a.mgr.Transactions.ActiveBorrows(ctx, s.user.ID)
	} else {
		txs, err = a.mgr.Transactions.LentOut(ctx, s.user.ID)
	}
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		a.println("Nothing on loan.")
		return nil
	}
	a.printTxs(txs)
	return nil
}

func (a *app) handleStep(ctx context.Context, s *session, act market.Action, run func(ctx context.Context, id string) (*market.Transaction, error)) error {
	id, _ := a.prompt("Transaction ID: ")
	if err := a.mgr.Transactions.Authorize(ctx, s.caller, id, act); err != nil {
		return err
	}
	t, err := run(ctx, id)
	if err != nil {
		return err
	}
	a.printTxs([]market.Transaction{*t})
	return nil
}

func (a *app) handleRate(ctx context.Context, s *session) error {
	id, _ := a.prompt("Transaction ID: ")
	stars, err := a.promptInt("Rating 1-5: ")
	if err != nil {
		return err
	}
	review, _ := a.prompt("Review (optional): ")
	if _, err := a.mgr.Transactions.Rate(ctx, id, s.user.ID, stars, review); err != nil {
		return err
	}
	a.println("Thanks for the review.")
	return nil
}

func (a *app) handleReport(ctx context.Context, s *session) error {
	in := market.NewReport{ReporterID: s.user.ID}
	in.ReportedUserID, _ = a.prompt("Reported user ID: ")
	typ, _ := a.prompt("Type LATE_RETURN/NOT_RETURN/DAMAGED_BOOK/FAKE_INFO/INAPPROPRIATE/OTHER: ")
	in.Type = market.ReportType(strings.ToUpper(typ))
	in.Description, _ = a.prompt("Description: ")
	in.TransactionID, _ = a.prompt("Transaction ID (optional): ")

	rep, err := a.mgr.Reports.Create(ctx, in)
	if err != nil {
		return err
	}
	a.printf("Report %s filed.\n", rep.ID)
	return nil
}

func (a *app) handleAdmin(ctx context.Context, s *session, line string) error {
	if !s.caller.IsAdmin() {
		return market.ErrForbidden
	}
	switch line {
	case "stats":
		st, err := a.mgr.Admin.Stats(ctx, s.caller)
		if err != nil {
			return err
		}
		a.printf("Users %d, books %d, transactions %d (%d pending), reports %d (%d pending)\n",
			st.TotalUsers, st.TotalBooks, st.TotalTransactions, st.PendingTransactions, st.TotalReports, st.PendingReports)
	case "check overdue":
		txs, err := a.mgr.Admin.CheckOverdue(ctx, s.caller)
		if err != nil {
			return err
		}
		a.printf("%d overdue transaction(s).\n", len(txs))
		a.printTxs(txs)
	case "reports":
		reports, err := a.mgr.Reports.ListPending(ctx)
		if err != nil {
			return err
		}
		a.printReports(reports)
	case "process report":
		id, _ := a.prompt("Report ID: ")
		status, _ := a.prompt("New status INVESTIGATING/RESOLVED/REJECTED: ")
		note, _ := a.prompt("Note: ")
		rep, err := a.mgr.Admin.ProcessReport(ctx, s.caller, id, market.ReportStatus(strings.ToUpper(status)), note)
		if err != nil {
			return err
		}
		a.printReports([]market.Report{*rep})
	case "block":
		id, _ := a.prompt("User ID: ")
		reason, _ := a.prompt("Reason: ")
		if err := a.mgr.Admin.BlockUser(ctx, s.caller, id, reason); err != nil {
			return err
		}
		a.println("User blocked.")
	case "unblock":
		id, _ := a.prompt("User ID: ")
		if err := a.mgr.Admin.UnblockUser(ctx, s.caller, id); err != nil {
			return err
		}
		a.println("User unblocked.")
	}
	return nil
}
