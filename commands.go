package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bookshare/market"
)

// ------------------ users ------------------

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Accounts and favourites"}

	var reg market.Registration
	register := &cobra.Command{
		Use:   "register",
		Short: "Create a student account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := a.readPassword(fmt.Sprintf("Choose a password for %s: ", reg.Email))
			if err != nil {
				return err
			}
			reg.Password = pw
			u, err := a.mgr.Users.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			a.printf("Registered %s with ID %s\n", u.Email, u.ID)
			return nil
		},
	}
	register.Flags().StringVar(&reg.Email, "email", "", "institutional email")
	register.Flags().StringVar(&reg.FullName, "name", "", "full name")
	register.Flags().StringVar(&reg.StudentID, "student-id", "", "student id")
	_ = register.MarkFlagRequired("email")
	_ = register.MarkFlagRequired("name")
	_ = register.MarkFlagRequired("student-id")

	whoami := &cobra.Command{
		Use:   "login",
		Short: "Check credentials and show the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			a.printUser(u)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list [keyword]",
		Short: "List accounts (admin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, who, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			users, err := a.mgr.Admin.Users(cmd.Context(), who, strings.Join(args, " "))
			if err != nil {
				return err
			}
			a.printUsers(users)
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Set a temporary password and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			temp, err := a.mgr.Users.ResetPassword(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("Temporary password for %s: %s\n", args[0], temp)
			return nil
		},
	}

	var p market.Profile
	profile := &cobra.Command{
		Use:   "profile",
		Short: "Update name, phone and faculty",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			if p.FullName == "" {
				p.FullName = u.FullName
			}
			u, err = a.mgr.Users.UpdateProfile(cmd.Context(), u.ID, p)
			if err != nil {
				return err
			}
			a.printUser(u)
			return nil
		},
	}
	profile.Flags().StringVar(&p.FullName, "name", "", "full name")
	profile.Flags().StringVar(&p.Phone, "phone", "", "phone number")
	profile.Flags().StringVar(&p.Faculty, "faculty", "", "faculty")

	fav := &cobra.Command{
		Use:   "favorite [add|remove <bookID>]",
		Short: "List or edit favourite books",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, _, err := a.login(ctx)
			if err != nil {
				return err
			}
			switch {
			case len(args) == 2 && args[0] == "add":
				err = a.mgr.Users.AddFavorite(ctx, u.ID, args[1])
			case len(args) == 2 && args[0] == "remove":
				err = a.mgr.Users.RemoveFavorite(ctx, u.ID, args[1])
			case len(args) != 0:
				return fmt.Errorf("usage: user favorite [add|remove <bookID>]")
			}
			if err != nil {
				return err
			}
			books, err := a.mgr.Users.Favorites(ctx, u.ID)
			if err != nil {
				return err
			}
			a.printBooks(books)
			return nil
		},
	}

	cmd.AddCommand(register, whoami, list, reset, profile, fav)
	return cmd
}

// ------------------ books ------------------

func (a *app) bookCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "book", Short: "Listings"}

	var d market.BookDetails
	add := &cobra.Command{
		Use:   "add",
		Short: "List a new book",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			b, err := a.mgr.Books.CreateWithDetails(cmd.Context(), u.ID, d)
			if err != nil {
				return err
			}
			a.printf("Added book %s. Use 'book offer' to make it available.\n", b.ID)
			return nil
		},
	}
	add.Flags().StringVar(&d.Title, "title", "", "title")
	add.Flags().StringVar(&d.Author, "author", "", "author")
	add.Flags().StringVar(&d.Subject, "subject", "", "subject")
	add.Flags().StringVar(&d.Faculty, "faculty", "", "faculty")
	add.Flags().StringVar(&d.Description, "description", "", "description")

	var mine bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List every book, or your own with --mine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				books []market.Book
				err   error
			)
			if mine {
				u, _, lerr := a.login(cmd.Context())
				if lerr != nil {
					return lerr
				}
				books, err = a.mgr.Books.ListByOwner(cmd.Context(), u.ID)
			} else {
				books, err = a.mgr.Books.All(cmd.Context())
			}
			if err != nil {
				return err
			}
			a.printBooks(books)
			return nil
		},
	}
	list.Flags().BoolVar(&mine, "mine", false, "only books owned by --as")

	var f market.SearchFilter
	var cond, typ string
	search := &cobra.Command{
		Use:   "search [keyword]",
		Short: "Search visible books",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Keyword = strings.Join(args, " ")
			f.Condition = market.Condition(strings.ToUpper(cond))
			f.Type = market.ListingType(strings.ToUpper(typ))
			books, err := a.mgr.Books.Search(cmd.Context(), f)
			if err != nil {
				return err
			}
			if len(books) == 0 {
				a.printf("No books found matching '%s'.\n", f.Keyword)
				return nil
			}
			a.printBooks(books)
			return nil
		},
	}
	search.Flags().StringVar(&f.Subject, "subject", "", "subject")
	search.Flags().StringVar(&f.Faculty, "faculty", "", "faculty")
	search.Flags().StringVar(&cond, "condition", "", "NEW, LIKE_NEW, GOOD, FAIR or OLD")
	search.Flags().StringVar(&typ, "type", "", "BORROW, SELL or EXCHANGE")
	search.Flags().StringVar(&f.Sort, "sort", "", "price_asc, price_desc, newest or popular")

	show := &cobra.Command{
		Use:   "show <bookID>",
		Short: "Show one book and count the view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.mgr.Books.IncrementViewCount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printBookDetail(b)
			return nil
		},
	}

	var price float64
	var days int
	offer := &cobra.Command{
		Use:   "offer <bookID> <BORROW|SELL|EXCHANGE>",
		Short: "Offer a book for borrowing, sale or exchange",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, _, err := a.login(ctx)
			if err != nil {
				return err
			}
			b, err := a.mgr.Books.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if b.OwnerID != u.ID {
				return market.ErrNotOwner
			}
			var pp *float64
			var dp *int
			if cmd.Flags().Changed("price") {
				pp = &price
			}
			if cmd.Flags().Changed("days") {
				dp = &days
			}
			b, err = a.mgr.Books.AddAvailableType(ctx, b.ID, market.ListingType(strings.ToUpper(args[1])), pp, dp)
			if err != nil {
				return err
			}
			a.printBookDetail(b)
			return nil
		},
	}
	offer.Flags().Float64Var(&price, "price", 0, "sale price")
	offer.Flags().IntVar(&days, "days", 0, "default borrow period in days")

	del := &cobra.Command{
		Use:   "delete <bookID>",
		Short: "Delete one of your books",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.mgr.Books.Delete(cmd.Context(), args[0], u.ID); err != nil {
				return err
			}
			a.println("Book deleted.")
			return nil
		},
	}

	hide := &cobra.Command{
		Use:   "hide <bookID>",
		Short: "Toggle whether one of your books shows up in search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			b, err := a.mgr.Books.ToggleVisibility(cmd.Context(), args[0], u.ID)
			if err != nil {
				return err
			}
			a.printf("Visible: %t\n", b.Visible)
			return nil
		},
	}

	cmd.AddCommand(add, list, search, show, offer, del, hide)
	return cmd
}

// ------------------ transactions ------------------

func (a *app) txCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tx", Short: "Requests and their lifecycle"}

	var message string
	request := &cobra.Command{
		Use:   "request <bookID> <BORROW|BUY|EXCHANGE>",
		Short: "Ask the owner for a book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			t, err := a.mgr.Transactions.CreateRequest(cmd.Context(), args[0], u.ID, market.TxType(strings.ToUpper(args[1])), message)
			if err != nil {
				return err
			}
			a.printf("Request %s sent; waiting for the owner.\n", t.ID)
			return nil
		},
	}
	request.Flags().StringVar(&message, "message", "", "note to the owner")

	var reason string
	reject := a.txStep("reject", "Turn down a pending request", market.ActReject,
		func(cmd *cobra.Command, id string) (*market.Transaction, error) {
			return a.mgr.Transactions.Reject(cmd.Context(), id, reason)
		})
	reject.Flags().StringVar(&reason, "reason", "", "why the request is rejected")

	var days int
	deliver := a.txStep("deliver", "Confirm the book was handed over", market.ActDeliver,
		func(cmd *cobra.Command, id string) (*market.Transaction, error) {
			return a.mgr.Transactions.ConfirmDelivery(cmd.Context(), id, days)
		})
	deliver.Flags().IntVar(&days, "days", 0, "borrow period; defaults to the book's")

	var extra int
	extend := a.txStep("extend", "Push a borrow's due date back", market.ActExtend,
		func(cmd *cobra.Command, id string) (*market.Transaction, error) {
			return a.mgr.Transactions.ExtendBorrow(cmd.Context(), id, extra)
		})
	extend.Flags().IntVar(&extra, "days", 7, "extra days")

	approve := a.txStep("approve", "Approve a pending request", market.ActApprove,
		func(cmd *cobra.Command, id string) (*market.Transaction, error) {
			return a.mgr.Transactions.Approve(cmd.Context(), id)
		})
	ret := a.txStep("return", "Confirm a borrowed book came back", market.ActReturn,
		func(cmd *cobra.Command, id string) (*market.Transaction, error) {
			return a.mgr.Transactions.ConfirmReturn(cmd.Context(), id)
		})
	cancel := a.txStep("cancel", "Cancel an open transaction", market.ActCancel,
		func(cmd *cobra.Command, id string) (*market.Transaction, error) {
			return a.mgr.Transactions.Cancel(cmd.Context(), id)
		})

	var rating int
	var review string
	rate := &cobra.Command{
		Use:   "rate <txID>",
		Short: "Rate the other party of a completed transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := a.mgr.Transactions.Rate(cmd.Context(), args[0], u.ID, rating, review); err != nil {
				return err
			}
			a.println("Thanks for the review.")
			return nil
		},
	}
	rate.Flags().IntVar(&rating, "stars", 5, "rating from 1 to 5")
	rate.Flags().StringVar(&review, "review", "", "review text")

	var borrowing, lending bool
	list := &cobra.Command{
		Use:   "list",
		Short: "Your transactions; --borrowing or --lending for books out on loan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			var txs []market.Transaction
			switch {
			case borrowing:
				txs, err = a.mgr.Transactions.ActiveBorrows(cmd.Context(), u.ID)
			case lending:
				txs, err = a.mgr.Transactions.LentOut(cmd.Context(), u.ID)
			default:
				txs, err = a.mgr.Transactions.ListByUser(cmd.Context(), u.ID)
			}
			if err != nil {
				return err
			}
			a.printTxs(txs)
			return nil
		},
	}
	list.Flags().BoolVar(&borrowing, "borrowing", false, "only books you currently have on loan")
	list.Flags().BoolVar(&lending, "lending", false, "only your books currently lent out")
	list.MarkFlagsMutuallyExclusive("borrowing", "lending")

	pending := &cobra.Command{
		Use:   "pending",
		Short: "Requests waiting for your decision",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			txs, err := a.mgr.Transactions.PendingForOwner(cmd.Context(), u.ID)
			if err != nil {
				return err
			}
			a.printTxs(txs)
			return nil
		},
	}

	overdue := &cobra.Command{
		Use:   "overdue",
		Short: "Borrows past their due date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			txs, err := a.mgr.Transactions.Overdue(cmd.Context(), a.mgr.Now())
			if err != nil {
				return err
			}
			a.printTxs(txs)
			return nil
		},
	}

	cmd.AddCommand(request, approve, reject, deliver, ret, extend, cancel, rate, list, pending, overdue)
	return cmd
}

// txStep builds a lifecycle subcommand that authenticates --as, checks the
// caller may perform act, runs it and prints the result.
func (a *app) txStep(name, short string, act market.Action, run func(cmd *cobra.Command, id string) (*market.Transaction, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <txID>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, who, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.mgr.Transactions.Authorize(cmd.Context(), who, args[0], act); err != nil {
				return err
			}
			t, err := run(cmd, args[0])
			if err != nil {
				return err
			}
			a.printTxs([]market.Transaction{*t})
			return nil
		},
	}
}

// ------------------ notifications & reports ------------------

func (a *app) notifCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notif", Short: "Your notifications"}

	var unread bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			var notes []market.Notification
			if unread {
				notes, err = a.mgr.Notifications.Unread(cmd.Context(), u.ID)
			} else {
				notes, err = a.mgr.Notifications.List(cmd.Context(), u.ID)
			}
			if err != nil {
				return err
			}
			a.printNotifications(notes)
			return nil
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "only unread")

	read := &cobra.Command{
		Use:   "read [notificationID]",
		Short: "Mark one notification, or all of them, as read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return a.mgr.Notifications.MarkRead(cmd.Context(), u.ID, args[0])
			}
			n, err := a.mgr.Notifications.MarkAllRead(cmd.Context(), u.ID)
			if err != nil {
				return err
			}
			a.printf("Marked %d notification(s) as read.\n", n)
			return nil
		},
	}

	cmd.AddCommand(list, read)
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Violation reports"}

	var in market.NewReport
	var typ string
	create := &cobra.Command{
		Use:   "create <reportedUserID>",
		Short: "Report another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			in.ReporterID, in.ReportedUserID = u.ID, args[0]
			in.Type = market.ReportType(strings.ToUpper(typ))
			rep, err := a.mgr.Reports.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			a.printf("Report %s filed.\n", rep.ID)
			return nil
		},
	}
	create.Flags().StringVar(&typ, "type", string(market.ReportOther), "LATE_RETURN, NOT_RETURN, DAMAGED_BOOK, FAKE_INFO, INAPPROPRIATE or OTHER")
	create.Flags().StringVar(&in.Description, "description", "", "what happened")
	create.Flags().StringVar(&in.TransactionID, "tx", "", "related transaction id")

	var pendingOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List reports (admin)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, who, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			if !who.IsAdmin() {
				return market.ErrForbidden
			}
			var reports []market.Report
			if pendingOnly {
				reports, err = a.mgr.Reports.ListPending(cmd.Context())
			} else {
				reports, err = a.mgr.Reports.All(cmd.Context())
			}
			if err != nil {
				return err
			}
			a.printReports(reports)
			return nil
		},
	}
	list.Flags().BoolVar(&pendingOnly, "pending", false, "only pending reports")

	cmd.AddCommand(create, list)
	return cmd
}

// ------------------ admin ------------------

func (a *app) adminCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Moderation (requires an admin --as)"}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "System overview",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, who, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			st, err := a.mgr.Admin.Stats(cmd.Context(), who)
			if err != nil {
				return err
			}
			a.printf("Users: %d (%d active, %d blocked)\n", st.TotalUsers, st.ActiveUsers, st.BlockedUsers)
			a.printf("Books: %d (%d available, %d borrowed)\n", st.TotalBooks, st.AvailableBooks, st.BorrowedBooks)
			a.printf("Transactions: %d (%d pending, %d completed)\n", st.TotalTransactions, st.PendingTransactions, st.CompletedTransactions)
			a.printf("Reports: %d (%d pending)\n", st.TotalReports, st.PendingReports)

			top, err := a.mgr.Admin.TopTrustedUsers(cmd.Context(), who, 5)
			if err != nil {
				return err
			}
			a.println("\nMost trusted:")
			a.printUsers(top)
			return nil
		},
	}

	checkOverdue := &cobra.Command{
		Use:   "check-overdue",
		Short: "Remind and penalise overdue borrowers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, who, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			txs, err := a.mgr.Admin.CheckOverdue(cmd.Context(), who)
			if err != nil {
				return err
			}
			a.printf("%d overdue transaction(s).\n", len(txs))
			a.printTxs(txs)
			return nil
		},
	}

	var note string
	process := &cobra.Command{
		Use:   "process-report <reportID> <INVESTIGATING|RESOLVED|REJECTED>",
		Short: "Move a report forward",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, who, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			rep, err := a.mgr.Admin.ProcessReport(cmd.Context(), who, args[0], market.ReportStatus(strings.ToUpper(args[1])), note)
			if err != nil {
				return err
			}
			a.printReports([]market.Report{*rep})
			return nil
		},
	}
	process.Flags().StringVar(&note, "note", "", "admin note")

	var reason string
	block := &cobra.Command{
		Use:   "block <userID>",
		Short: "Lock an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, who, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			return a.mgr.Admin.BlockUser(cmd.Context(), who, args[0], reason)
		},
	}
	block.Flags().StringVar(&reason, "reason", "", "shown to the user")

	unblock := &cobra.Command{
		Use:   "unblock <userID>",
		Short: "Unlock an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, who, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			return a.mgr.Admin.UnblockUser(cmd.Context(), who, args[0])
		},
	}

	var title, body string
	broadcast := &cobra.Command{
		Use:   "broadcast",
		Short: "Send an announcement to every user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, who, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.mgr.Admin.Broadcast(cmd.Context(), who, title, body)
			if err != nil {
				return err
			}
			a.printf("Sent to %d user(s).\n", n)
			return nil
		},
	}
	broadcast.Flags().StringVar(&title, "title", "", "announcement title")
	broadcast.Flags().StringVar(&body, "body", "", "announcement text")

	bootstrap := &cobra.Command{
		Use:   "bootstrap <email>",
		Short: "Create the administrator account if none exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.readPassword(fmt.Sprintf("Password for %s: ", args[0]))
			if err != nil {
				return err
			}
			created, err := a.mgr.Users.EnsureAdmin(cmd.Context(), args[0], pw)
			if err != nil {
				return err
			}
			if !created {
				a.println("An administrator already exists.")
				return nil
			}
			a.printf("Administrator %s created.\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(stats, checkOverdue, process, block, unblock, broadcast, bootstrap)
	return cmd
}

// ------------------ export / import ------------------

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the whole dataset as JSON (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return a.mgr.ExportSnapshot(cmd.Context(), a.out)
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			if err := a.mgr.ExportSnapshot(cmd.Context(), f); err != nil {
				return err
			}
			return f.Close()
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Upsert a dataset written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			snap, err := a.mgr.ImportSnapshot(cmd.Context(), f)
			if err != nil {
				return err
			}
			a.printf("Imported %d users, %d books, %d transactions, %d notifications, %d reports.\n",
				len(snap.Users), len(snap.Books), len(snap.Transactions), len(snap.Notifications), len(snap.Reports))
			return nil
		},
	}
}

// ------------------ output ------------------

func (a *app) printUser(u *market.User) {
	a.printf("ID:         %s\n", u.ID)
	a.printf("Name:       %s\n", u.FullName)
	a.printf("Email:      %s\n", u.Email)
	a.printf("Student ID: %s\n", u.StudentID)
	a.printf("Faculty:    %s\n", u.Faculty)
	a.printf("Role:       %s\n", u.Role)
	a.printf("Trust:      %.2f\n", u.TrustScore)
}

func (a *app) printUsers(users []market.User) {
	if len(users) == 0 {
		a.println("No users.")
		return
	}
	a.printf("%-36s %-25s %-30s %-8s %-6s %s\n", "ID", "Name", "Email", "Role", "Trust", "Active")
	a.println(strings.Repeat("-", 115))
	for _, u := range users {
		a.printf("%-36s %-25s %-30s %-8s %-6.2f %t\n", u.ID, truncateString(u.FullName, 25), truncateString(u.Email, 30), u.Role, u.TrustScore, u.Active)
	}
}

func (a *app) printBooks(books []market.Book) {
	if len(books) == 0 {
		a.println("No books.")
		return
	}
	a.printf("%-36s %-30s %-22s %-10s %s\n", "ID", "Title", "Author", "Status", "Visible")
	a.println(strings.Repeat("-", 110))
	for i := range books {
		a.println(market.PrettyBook(&books[i]))
	}
}

func (a *app) printBookDetail(b *market.Book) {
	a.printf("ID:        %s\n", b.ID)
	a.printf("Title:     %s\n", b.Title)
	a.printf("Author:    %s\n", b.Author)
	a.printf("Subject:   %s\n", b.Subject)
	a.printf("Faculty:   %s\n", b.Faculty)
	a.printf("Condition: %s\n", b.Condition)
	a.printf("Status:    %s\n", b.Status)
	a.printf("Offered:   %v\n", b.AvailableTypes)
	if b.AvailableTypes.Has(market.ListSell) {
		a.printf("Price:     %.0f\n", b.Price)
	}
	if b.BorrowDays > 0 {
		a.printf("Borrow:    %d days\n", b.BorrowDays)
	}
	a.printf("Views:     %d\n", b.ViewCount)
}

func (a *app) printTxs(txs []market.Transaction) {
	if len(txs) == 0 {
		return
	}
	a.printf("%-36s %-36s %-9s %-12s %-10s\n", "ID", "Book", "Type", "Status", "Due")
	a.println(strings.Repeat("-", 108))
	for _, t := range txs {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.Format(time.DateOnly)
		}
		a.printf("%-36s %-36s %-9s %-12s %-10s\n", t.ID, t.BookID, t.Type, t.Status, due)
	}
}

func (a *app) printNotifications(notes []market.Notification) {
	if len(notes) == 0 {
		a.println("No notifications.")
		return
	}
	for _, n := range notes {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		a.printf("%s %s  %-20s %s: %s\n", mark, n.CreatedAt.Format(time.DateTime), n.Kind, n.Title, n.Body)
	}
}

func (a *app) printReports(reports []market.Report) {
	if len(reports) == 0 {
		a.println("No reports.")
		return
	}
	a.printf("%-36s %-36s %-14s %-13s %s\n", "ID", "Reported user", "Type", "Status", "Description")
	a.println(strings.Repeat("-", 120))
	for _, r := range reports {
		a.printf("%-36s %-36s %-14s %-13s %s\n", r.ID, r.ReportedUserID, r.Type, r.Status, truncateString(r.Description, 40))
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
