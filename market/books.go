package market

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/doug-martin/goqu/v9"
)

// BookRegistry owns book records and their availability state.
type BookRegistry struct {
	m *Manager
}

// BookDetails are the descriptive, lifecycle-free attributes of a book.
type BookDetails struct {
	Title       string
	Author      string
	Subject     string
	Faculty     string
	Description string
}

// Create lists a new book: AVAILABLE, no offered types, visible.
func (r *BookRegistry) Create(ctx context.Context, ownerID, title, author string) (*Book, error) {
	return r.CreateWithDetails(ctx, ownerID, BookDetails{Title: title, Author: author})
}

// CreateWithDetails lists a new book with its descriptive attributes filled in.
func (r *BookRegistry) CreateWithDetails(ctx context.Context, ownerID string, d BookDetails) (*Book, error) {
	d.Title, d.Author = strings.TrimSpace(d.Title), strings.TrimSpace(d.Author)
	if ownerID == "" || d.Title == "" || d.Author == "" {
		return nil, fmt.Errorf("owner, title and author are required: %w", ErrInvalidInput)
	}

	var b *Book
	err := r.m.write(ctx, func(s *scope) error {
		seq, err := r.m.db.nextBookSeq(ctx, s.tx)
		if err != nil {
			return err
		}
		b = &Book{
			ID:             r.m.newID(),
			Seq:            seq,
			OwnerID:        ownerID,
			Title:          d.Title,
			Author:         d.Author,
			Subject:        d.Subject,
			Faculty:        d.Faculty,
			Description:    d.Description,
			Condition:      ConditionGood,
			AvailableTypes: ListingTypes{},
			Status:         BookAvailable,
			PostedAt:       r.m.Now(),
			Visible:        true,
		}
		return r.m.db.saveBook(ctx, s.tx, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Get looks a book up by id.
func (r *BookRegistry) Get(ctx context.Context, bookID string) (*Book, error) {
	return r.m.db.getBook(ctx, r.m.reader(), bookID)
}

// All returns every book, hidden ones included, in listing order.
func (r *BookRegistry) All(ctx context.Context) ([]Book, error) {
	return r.m.db.listBooks(ctx, r.m.reader(), nil)
}

func (r *BookRegistry) ListByOwner(ctx context.Context, ownerID string) ([]Book, error) {
	return r.m.db.listBooks(ctx, r.m.reader(), goqu.Ex{"owner_id": ownerID})
}

// modify loads a book inside a write, applies fn and saves the result.
func (r *BookRegistry) modify(ctx context.Context, bookID string, fn func(b *Book) error) (*Book, error) {
	var out *Book
	err := r.m.write(ctx, func(s *scope) error {
		b, err := r.m.db.getBook(ctx, s.tx, bookID)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		out = b
		return r.m.db.saveBook(ctx, s.tx, b)
	})
	return out, err
}

func ownedBy(b *Book, requesterID string) error {
	if b.OwnerID != requesterID {
		return fmt.Errorf("book %s: %w", b.ID, ErrNotOwner)
	}
	return nil
}

// Update rewrites the descriptive attributes. Only the owner may do so.
func (r *BookRegistry) Update(ctx context.Context, bookID, requesterID string, d BookDetails) (*Book, error) {
	d.Title, d.Author = strings.TrimSpace(d.Title), strings.TrimSpace(d.Author)
	if d.Title == "" || d.Author == "" {
		return nil, fmt.Errorf("title and author are required: %w", ErrInvalidInput)
	}
	return r.modify(ctx, bookID, func(b *Book) error {
		if err := ownedBy(b, requesterID); err != nil {
			return err
		}
		b.Title, b.Author = d.Title, d.Author
		b.Subject, b.Faculty, b.Description = d.Subject, d.Faculty, d.Description
		return nil
	})
}

func (r *BookRegistry) SetImage(ctx context.Context, bookID, requesterID, imageURL string) (*Book, error) {
	return r.modify(ctx, bookID, func(b *Book) error {
		if err := ownedBy(b, requesterID); err != nil {
			return err
		}
		b.ImageURL = imageURL
		return nil
	})
}

func (r *BookRegistry) SetCondition(ctx context.Context, bookID, requesterID string, c Condition) (*Book, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("condition %q: %w", c, ErrInvalidInput)
	}
	return r.modify(ctx, bookID, func(b *Book) error {
		if err := ownedBy(b, requesterID); err != nil {
			return err
		}
		b.Condition = c
		return nil
	})
}

// ToggleVisibility flips whether the book shows up in search.
func (r *BookRegistry) ToggleVisibility(ctx context.Context, bookID, requesterID string) (*Book, error) {
	return r.modify(ctx, bookID, func(b *Book) error {
		if err := ownedBy(b, requesterID); err != nil {
			return err
		}
		b.Visible = !b.Visible
		return nil
	})
}

// IncrementViewCount records one more view of the listing.
func (r *BookRegistry) IncrementViewCount(ctx context.Context, bookID string) (*Book, error) {
	return r.modify(ctx, bookID, func(b *Book) error {
		b.ViewCount++
		return nil
	})
}

// SetStatus overwrites the status. No transition rule is enforced here;
// the transaction engine is the caller that keeps status consistent.
func (r *BookRegistry) SetStatus(ctx context.Context, bookID string, status BookStatus) (*Book, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("status %q: %w", status, ErrInvalidInput)
	}
	return r.modify(ctx, bookID, func(b *Book) error {
		b.Status = status
		return nil
	})
}

// AddAvailableType offers the book under t. Adding a type twice is a no-op
// apart from refreshing its side data (price for SELL, days for BORROW).
func (r *BookRegistry) AddAvailableType(ctx context.Context, bookID string, t ListingType, price *float64, borrowDays *int) (*Book, error) {
	if _, ok := TxTypeFor(t); !ok {
		return nil, fmt.Errorf("listing type %q: %w", t, ErrInvalidInput)
	}
	if t == ListSell && price != nil && *price < 0 {
		return nil, fmt.Errorf("negative price: %w", ErrInvalidInput)
	}
	if t == ListBorrow && borrowDays != nil && *borrowDays <= 0 {
		return nil, fmt.Errorf("borrow days must be positive: %w", ErrInvalidInput)
	}
	return r.modify(ctx, bookID, func(b *Book) error {
		if !b.AvailableTypes.Has(t) {
			b.AvailableTypes = append(b.AvailableTypes, t)
		}
		if t == ListSell && price != nil {
			b.Price = *price
		}
		if t == ListBorrow && borrowDays != nil {
			b.BorrowDays = *borrowDays
		}
		return nil
	})
}

// Delete removes a book permanently. Only the owner may delete, and never
// while the book is out on loan. An open request on the book is cancelled.
func (r *BookRegistry) Delete(ctx context.Context, bookID, requesterID string) error {
	return r.m.write(ctx, func(s *scope) error {
		b, err := r.m.db.getBook(ctx, s.tx, bookID)
		if err != nil {
			return err
		}
		if err := ownedBy(b, requesterID); err != nil {
			return err
		}
		return r.delete(ctx, s, b)
	})
}

func (r *BookRegistry) delete(ctx context.Context, s *scope, b *Book) error {
	if b.Status == BookBorrowed {
		return fmt.Errorf("book %s is borrowed: %w", b.ID, ErrInvalidState)
	}
	open, err := r.m.db.activeTxForBook(ctx, s.tx, b.ID)
	if err != nil {
		return err
	}
	if open != nil {
		open.Status = TxCancelled
		open.Reason = "book removed"
		if err := r.m.db.saveTx(ctx, s.tx, open); err != nil {
			return err
		}
		s.notify(Notice{
			UserID:    open.BorrowerID,
			Kind:      NotifyRequestCanceled,
			Title:     "Request cancelled",
			Body:      fmt.Sprintf("%q is no longer listed.", b.Title),
			RelatedID: open.ID,
		})
	}
	return r.m.db.deleteBook(ctx, s.tx, b.ID)
}

// FacultyCount is one row of StatsByFaculty.
type FacultyCount struct {
	Faculty string `json:"faculty"`
	Books   int    `json:"books"`
}

// StatsByFaculty counts books per faculty, busiest first.
func (r *BookRegistry) StatsByFaculty(ctx context.Context) ([]FacultyCount, error) {
	books, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, b := range books {
		if b.Faculty != "" {
			counts[b.Faculty]++
		}
	}
	out := make([]FacultyCount, 0, len(counts))
	for f, n := range counts {
		out = append(out, FacultyCount{Faculty: f, Books: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Books != out[j].Books {
			return out[i].Books > out[j].Books
		}
		return out[i].Faculty < out[j].Faculty
	})
	return out, nil
}

// PrettyBook formats a book for lists.
func PrettyBook(b *Book) string {
	return fmt.Sprintf("%-36s %-30s %-22s %-10s %-5t", b.ID, truncate(b.Title, 30), truncate(b.Author, 22), b.Status, b.Visible)
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
