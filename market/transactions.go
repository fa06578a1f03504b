package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
)

// DefaultBorrowDays is used when neither the delivery nor the book names a
// borrow period.
const DefaultBorrowDays = 14

// TransactionEngine drives the request lifecycle and keeps the book's
// status in lock-step with it.
type TransactionEngine struct {
	m *Manager
}

// Action is a lifecycle step a caller asks to perform.
type Action string

const (
	ActApprove Action = "approve"
	ActReject  Action = "reject"
	ActDeliver Action = "deliver"
	ActReturn  Action = "return"
	ActExtend  Action = "extend"
	ActCancel  Action = "cancel"
)

// Authorize checks that caller may perform a on the transaction. The owner
// drives approval, delivery and extension; either party may confirm the
// return or cancel. Admins may do anything.
func (e *TransactionEngine) Authorize(ctx context.Context, caller Caller, txID string, a Action) error {
	t, err := e.Get(ctx, txID)
	if err != nil {
		return err
	}
	if caller.IsAdmin() {
		return nil
	}
	switch a {
	case ActApprove, ActReject, ActDeliver, ActExtend:
		if caller.UserID == t.OwnerID {
			return nil
		}
		if caller.UserID == t.BorrowerID {
			return fmt.Errorf("only the owner may %s: %w", a, ErrForbidden)
		}
	case ActReturn, ActCancel:
		if t.IsParticipant(caller.UserID) {
			return nil
		}
	default:
		return fmt.Errorf("action %q: %w", a, ErrInvalidInput)
	}
	return fmt.Errorf("transaction %s: %w", txID, ErrNotParticipant)
}

// ------------------ lifecycle ------------------

// CreateRequest opens a request on an AVAILABLE book and reserves it.
func (e *TransactionEngine) CreateRequest(ctx context.Context, bookID, borrowerID string, typ TxType, message string) (*Transaction, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("transaction type %q: %w", typ, ErrInvalidInput)
	}
	var t *Transaction
	err := e.m.write(ctx, func(s *scope) error {
		b, err := e.m.db.getBook(ctx, s.tx, bookID)
		if err != nil {
			return err
		}
		if b.Status != BookAvailable {
			return fmt.Errorf("book %s is %s: %w", b.ID, b.Status, ErrBookUnavailable)
		}
		if b.OwnerID == borrowerID {
			return fmt.Errorf("book %s: %w", b.ID, ErrSelfTransaction)
		}

		t = &Transaction{
			ID:          e.m.newID(),
			BookID:      b.ID,
			OwnerID:     b.OwnerID,
			BorrowerID:  borrowerID,
			Type:        typ,
			Status:      TxPending,
			Message:     strings.TrimSpace(message),
			RequestedAt: e.m.Now(),
		}
		if typ == TxBuy {
			t.Amount = b.Price
		}
		b.Status = BookReserved
		if err := e.m.db.saveTx(ctx, s.tx, t); err != nil {
			return err
		}
		if err := e.m.db.saveBook(ctx, s.tx, b); err != nil {
			return err
		}
		s.notify(Notice{
			UserID:    b.OwnerID,
			Kind:      NotifyNewRequest,
			Title:     "New request",
			Body:      fmt.Sprintf("Someone wants to %s %q.", strings.ToLower(string(typ)), b.Title),
			RelatedID: t.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// transition loads the transaction and its book inside one write and hands
// both to fn; whatever fn leaves in them is saved.
func (e *TransactionEngine) transition(ctx context.Context, txID string, fn func(s *scope, t *Transaction, b *Book) error) (*Transaction, error) {
	var out *Transaction
	err := e.m.write(ctx, func(s *scope) error {
		t, err := e.m.db.getTx(ctx, s.tx, txID)
		if err != nil {
			return err
		}
		// Finished transactions outlive their book; rating must still work.
		removed := false
		b, err := e.m.db.getBook(ctx, s.tx, t.BookID)
		if errors.Is(err, ErrNotFound) {
			removed = true
			b = &Book{ID: t.BookID, Title: "removed book", Status: BookSold}
		} else if err != nil {
			return err
		}
		before := b.Status
		if err := fn(s, t, b); err != nil {
			return err
		}
		if err := e.m.db.saveTx(ctx, s.tx, t); err != nil {
			return err
		}
		if !removed && b.Status != before {
			if err := e.m.db.saveBook(ctx, s.tx, b); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	return out, err
}

func requireStatus(t *Transaction, want TxStatus) error {
	if t.Status != want {
		return fmt.Errorf("transaction %s is %s, want %s: %w", t.ID, t.Status, want, ErrInvalidState)
	}
	return nil
}

// Approve moves a PENDING request to APPROVED. The book stays RESERVED.
func (e *TransactionEngine) Approve(ctx context.Context, txID string) (*Transaction, error) {
	return e.transition(ctx, txID, func(s *scope, t *Transaction, b *Book) error {
		if err := requireStatus(t, TxPending); err != nil {
			return err
		}
		now := e.m.Now()
		t.Status = TxApproved
		t.ApprovedAt = &now
		s.notify(Notice{
			UserID:    t.BorrowerID,
			Kind:      NotifyApproved,
			Title:     "Request approved",
			Body:      fmt.Sprintf("Your request for %q was approved.", b.Title),
			RelatedID: t.ID,
		})
		return nil
	})
}

// Reject turns down a PENDING request and releases the book.
func (e *TransactionEngine) Reject(ctx context.Context, txID, reason string) (*Transaction, error) {
	return e.transition(ctx, txID, func(s *scope, t *Transaction, b *Book) error {
		if err := requireStatus(t, TxPending); err != nil {
			return err
		}
		t.Status = TxRejected
		t.Reason = strings.TrimSpace(reason)
		b.Status = BookAvailable
		s.notify(Notice{
			UserID:    t.BorrowerID,
			Kind:      NotifyRejected,
			Title:     "Request rejected",
			Body:      fmt.Sprintf("Your request for %q was rejected: %s", b.Title, t.Reason),
			RelatedID: t.ID,
		})
		return nil
	})
}

// ConfirmDelivery hands an APPROVED book over. A borrow becomes IN_PROGRESS
// with a due date; a sale or exchange completes on the spot and the book is
// SOLD. borrowDays <= 0 falls back to the book's period, then to
// DefaultBorrowDays.
func (e *TransactionEngine) ConfirmDelivery(ctx context.Context, txID string, borrowDays int) (*Transaction, error) {
	return e.transition(ctx, txID, func(s *scope, t *Transaction, b *Book) error {
		if err := requireStatus(t, TxApproved); err != nil {
			return err
		}
		now := e.m.Now()
		t.Status = TxInProgress
		t.DeliveredAt = &now

		switch t.Type {
		case TxBorrow:
			if borrowDays <= 0 {
				borrowDays = b.BorrowDays
			}
			if borrowDays <= 0 {
				borrowDays = DefaultBorrowDays
			}
			due := now.AddDate(0, 0, borrowDays)
			t.DueDate = &due
			b.Status = BookBorrowed
		default:
			t.Status = TxCompleted
			b.Status = BookSold
		}
		s.notify(Notice{
			UserID:    t.BorrowerID,
			Kind:      NotifyDelivered,
			Title:     "Book delivered",
			Body:      deliveryBody(t, b),
			RelatedID: t.ID,
		})
		return nil
	})
}

func deliveryBody(t *Transaction, b *Book) string {
	if t.DueDate != nil {
		return fmt.Sprintf("%q is with you. Please return it by %s.", b.Title, t.DueDate.Format(time.DateOnly))
	}
	return fmt.Sprintf("%q is yours.", b.Title)
}

// ConfirmReturn closes an IN_PROGRESS borrow and makes the book available.
func (e *TransactionEngine) ConfirmReturn(ctx context.Context, txID string) (*Transaction, error) {
	return e.transition(ctx, txID, func(s *scope, t *Transaction, b *Book) error {
		if t.Type != TxBorrow {
			return fmt.Errorf("transaction %s is %s: %w", t.ID, t.Type, ErrWrongType)
		}
		if err := requireStatus(t, TxInProgress); err != nil {
			return err
		}
		now := e.m.Now()
		t.Status = TxCompleted
		t.ReturnedAt = &now
		b.Status = BookAvailable
		s.notify(Notice{
			UserID:    t.OwnerID,
			Kind:      NotifyReturned,
			Title:     "Book returned",
			Body:      fmt.Sprintf("%q has been returned.", b.Title),
			RelatedID: t.ID,
		})
		return nil
	})
}

// ExtendBorrow pushes the due date of an IN_PROGRESS borrow back.
func (e *TransactionEngine) ExtendBorrow(ctx context.Context, txID string, extraDays int) (*Transaction, error) {
	if extraDays <= 0 {
		return nil, fmt.Errorf("extra days must be positive: %w", ErrInvalidInput)
	}
	return e.transition(ctx, txID, func(s *scope, t *Transaction, b *Book) error {
		if t.Type != TxBorrow {
			return fmt.Errorf("transaction %s is %s: %w", t.ID, t.Type, ErrWrongType)
		}
		if err := requireStatus(t, TxInProgress); err != nil {
			return err
		}
		due := t.DueDate.AddDate(0, 0, extraDays)
		t.DueDate = &due
		return nil
	})
}

// Cancel aborts a non-terminal transaction. The book becomes AVAILABLE again
// unless it was sold.
func (e *TransactionEngine) Cancel(ctx context.Context, txID string) (*Transaction, error) {
	return e.transition(ctx, txID, func(s *scope, t *Transaction, b *Book) error {
		return cancelTx(t, b, "")
	})
}

func cancelTx(t *Transaction, b *Book, reason string) error {
	if t.Status.Terminal() {
		return fmt.Errorf("transaction %s is already %s: %w", t.ID, t.Status, ErrInvalidState)
	}
	t.Status = TxCancelled
	if reason != "" {
		t.Reason = reason
	}
	if b.Status != BookSold {
		b.Status = BookAvailable
	}
	return nil
}

// Rate records userID's rating of the other party on a COMPLETED
// transaction and folds it into that party's trust score. Rating again
// overwrites the stored rating and review; only the first rating counts
// toward trust.
func (e *TransactionEngine) Rate(ctx context.Context, txID, userID string, rating int, review string) (*Transaction, error) {
	return e.transition(ctx, txID, func(s *scope, t *Transaction, b *Book) error {
		if t.Status != TxCompleted {
			return fmt.Errorf("transaction %s is %s: %w", t.ID, t.Status, ErrNotCompleted)
		}
		if rating < 1 || rating > 5 {
			return fmt.Errorf("rating %d: %w", rating, ErrInvalidRating)
		}
		review = strings.TrimSpace(review)
		var first bool
		switch userID {
		case t.OwnerID:
			first = t.BorrowerRating == nil
			t.BorrowerRating, t.BorrowerReview = &rating, &review
		case t.BorrowerID:
			first = t.OwnerRating == nil
			t.OwnerRating, t.OwnerReview = &rating, &review
		default:
			return fmt.Errorf("transaction %s: %w", t.ID, ErrNotParticipant)
		}

		rated := t.Counterparty(userID)
		if first {
			if _, err := e.m.Trust.update(ctx, s, rated, float64(rating)); err != nil {
				return err
			}
		}
		s.notify(Notice{
			UserID:    rated,
			Kind:      NotifyNewReview,
			Title:     "New review",
			Body:      fmt.Sprintf("You received %d/5 for %q.", rating, b.Title),
			RelatedID: t.ID,
		})
		return nil
	})
}

// ------------------ queries ------------------

func (e *TransactionEngine) Get(ctx context.Context, txID string) (*Transaction, error) {
	return e.m.db.getTx(ctx, e.m.reader(), txID)
}

// All returns every transaction, newest request first.
func (e *TransactionEngine) All(ctx context.Context) ([]Transaction, error) {
	return e.m.db.listTxs(ctx, e.m.reader())
}

// ListByUser returns transactions where the user is either party.
func (e *TransactionEngine) ListByUser(ctx context.Context, userID string) ([]Transaction, error) {
	return e.m.db.listTxs(ctx, e.m.reader(), goqu.Or(
		goqu.C("owner_id").Eq(userID),
		goqu.C("borrower_id").Eq(userID),
	))
}

func (e *TransactionEngine) ListByOwner(ctx context.Context, ownerID string) ([]Transaction, error) {
	return e.m.db.listTxs(ctx, e.m.reader(), goqu.Ex{"owner_id": ownerID})
}

func (e *TransactionEngine) ListByBorrower(ctx context.Context, borrowerID string) ([]Transaction, error) {
	return e.m.db.listTxs(ctx, e.m.reader(), goqu.Ex{"borrower_id": borrowerID})
}

// PendingForOwner lists requests waiting on the owner's decision.
func (e *TransactionEngine) PendingForOwner(ctx context.Context, ownerID string) ([]Transaction, error) {
	return e.m.db.listTxs(ctx, e.m.reader(), goqu.Ex{"owner_id": ownerID, "status": string(TxPending)})
}

// ActiveBorrows lists books the user currently has on loan.
func (e *TransactionEngine) ActiveBorrows(ctx context.Context, borrowerID string) ([]Transaction, error) {
	return e.m.db.listTxs(ctx, e.m.reader(), goqu.Ex{
		"borrower_id": borrowerID,
		"type":        string(TxBorrow),
		"status":      string(TxInProgress),
	})
}

// LentOut lists the owner's books currently on loan.
func (e *TransactionEngine) LentOut(ctx context.Context, ownerID string) ([]Transaction, error) {
	return e.m.db.listTxs(ctx, e.m.reader(), goqu.Ex{
		"owner_id": ownerID,
		"type":     string(TxBorrow),
		"status":   string(TxInProgress),
	})
}

// Overdue lists borrows whose due date has passed at now.
func (e *TransactionEngine) Overdue(ctx context.Context, now time.Time) ([]Transaction, error) {
	txs, err := e.m.db.listTxs(ctx, e.m.reader(), goqu.Ex{
		"type":   string(TxBorrow),
		"status": string(TxInProgress),
	})
	if err != nil {
		return nil, err
	}
	out := txs[:0]
	for _, t := range txs {
		if t.Overdue(now) {
			out = append(out, t)
		}
	}
	return out, nil
}
