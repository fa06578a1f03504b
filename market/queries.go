package market

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

// ------------------ records ------------------

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func bookRecord(b *Book) goqu.Record {
	types, _ := b.AvailableTypes.Value()
	return goqu.Record{
		"id":              b.ID,
		"seq":             b.Seq,
		"owner_id":        b.OwnerID,
		"title":           b.Title,
		"author":          b.Author,
		"subject":         b.Subject,
		"faculty":         b.Faculty,
		"description":     b.Description,
		"image_url":       b.ImageURL,
		"book_condition":  string(b.Condition),
		"available_types": types,
		"price":           b.Price,
		"borrow_days":     b.BorrowDays,
		"status":          string(b.Status),
		"posted_at":       b.PostedAt.UTC(),
		"view_count":      b.ViewCount,
		"visible":         b.Visible,
	}
}

func txRecord(t *Transaction) goqu.Record {
	return goqu.Record{
		"id":              t.ID,
		"book_id":         t.BookID,
		"owner_id":        t.OwnerID,
		"borrower_id":     t.BorrowerID,
		"type":            string(t.Type),
		"status":          string(t.Status),
		"message":         t.Message,
		"reason":          t.Reason,
		"amount":          t.Amount,
		"requested_at":    t.RequestedAt.UTC(),
		"approved_at":     nullTime(t.ApprovedAt),
		"delivered_at":    nullTime(t.DeliveredAt),
		"returned_at":     nullTime(t.ReturnedAt),
		"due_date":        nullTime(t.DueDate),
		"owner_rating":    nullInt(t.OwnerRating),
		"owner_review":    nullString(t.OwnerReview),
		"borrower_rating": nullInt(t.BorrowerRating),
		"borrower_review": nullString(t.BorrowerReview),
		"reminded_at":     nullTime(t.RemindedAt),
	}
}

func userRecord(u *User) goqu.Record {
	favs, _ := u.Favorites.Value()
	return goqu.Record{
		"id":            u.ID,
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"full_name":     u.FullName,
		"student_id":    u.StudentID,
		"phone":         u.Phone,
		"faculty":       u.Faculty,
		"role":          string(u.Role),
		"trust_score":   u.TrustScore,
		"active":        u.Active,
		"favorites":     favs,
		"created_at":    u.CreatedAt.UTC(),
	}
}

func notificationRecord(n *Notification) goqu.Record {
	return goqu.Record{
		"id":         n.ID,
		"user_id":    n.UserID,
		"kind":       string(n.Kind),
		"title":      n.Title,
		"body":       n.Body,
		"related_id": n.RelatedID,
		"is_read":    n.Read,
		"created_at": n.CreatedAt.UTC(),
	}
}

func reportRecord(r *Report) goqu.Record {
	return goqu.Record{
		"id":               r.ID,
		"reporter_id":      r.ReporterID,
		"reported_user_id": r.ReportedUserID,
		"transaction_id":   r.TransactionID,
		"type":             string(r.Type),
		"description":      r.Description,
		"status":           string(r.Status),
		"admin_note":       r.AdminNote,
		"created_at":       r.CreatedAt.UTC(),
		"resolved_at":      nullTime(r.ResolvedAt),
	}
}

// ------------------ books ------------------

func (d *Database) getBook(ctx context.Context, q sqlx.QueryerContext, id string) (*Book, error) {
	b, err := getOne[Book](ctx, q, d.dialect.From("books").Where(goqu.Ex{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("book %s: %w", id, err)
	}
	return b, nil
}

func (d *Database) listBooks(ctx context.Context, q sqlx.QueryerContext, where goqu.Ex) ([]Book, error) {
	ds := d.dialect.From("books").Order(goqu.C("seq").Asc())
	if len(where) > 0 {
		ds = ds.Where(where)
	}
	return selectAll[Book](ctx, q, ds)
}

func (d *Database) saveBook(ctx context.Context, q sqlx.ExecerContext, b *Book) error {
	return d.upsert(ctx, q, "books", bookRecord(b))
}

func (d *Database) deleteBook(ctx context.Context, q sqlx.ExecerContext, id string) error {
	if err := d.deleteByID(ctx, q, "books", id); err != nil {
		return fmt.Errorf("book %s: %w", id, err)
	}
	return nil
}

func (d *Database) nextBookSeq(ctx context.Context, q sqlx.QueryerContext) (int64, error) {
	query, args, err := d.dialect.From("books").
		Select(goqu.COALESCE(goqu.MAX("seq"), 0)).Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}
	var max int64
	if err := sqlx.GetContext(ctx, q, &max, query, args...); err != nil {
		return 0, fmt.Errorf("next book seq: %w", err)
	}
	return max + 1, nil
}

// ------------------ transactions ------------------

func (d *Database) getTx(ctx context.Context, q sqlx.QueryerContext, id string) (*Transaction, error) {
	t, err := getOne[Transaction](ctx, q, d.dialect.From("transactions").Where(goqu.Ex{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}
	return t, nil
}

func (d *Database) listTxs(ctx context.Context, q sqlx.QueryerContext, where ...goqu.Expression) ([]Transaction, error) {
	ds := d.dialect.From("transactions").Order(goqu.C("requested_at").Desc(), goqu.C("id").Asc())
	if len(where) > 0 {
		ds = ds.Where(where...)
	}
	return selectAll[Transaction](ctx, q, ds)
}

func (d *Database) saveTx(ctx context.Context, q sqlx.ExecerContext, t *Transaction) error {
	return d.upsert(ctx, q, "transactions", txRecord(t))
}

// activeTxForBook returns the open transaction on a book, if any.
func (d *Database) activeTxForBook(ctx context.Context, q sqlx.QueryerContext, bookID string) (*Transaction, error) {
	txs, err := d.listTxs(ctx, q, goqu.Ex{"book_id": bookID, "status": activeStatuses})
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

// ------------------ users ------------------

func (d *Database) getUser(ctx context.Context, q sqlx.QueryerContext, id string) (*User, error) {
	u, err := getOne[User](ctx, q, d.dialect.From("users").Where(goqu.Ex{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return u, nil
}

func (d *Database) findUser(ctx context.Context, q sqlx.QueryerContext, where goqu.Ex) (*User, error) {
	return getOne[User](ctx, q, d.dialect.From("users").Where(where))
}

func (d *Database) listUsers(ctx context.Context, q sqlx.QueryerContext, where ...goqu.Expression) ([]User, error) {
	ds := d.dialect.From("users").Order(goqu.C("created_at").Asc(), goqu.C("id").Asc())
	if len(where) > 0 {
		ds = ds.Where(where...)
	}
	return selectAll[User](ctx, q, ds)
}

func (d *Database) saveUser(ctx context.Context, q sqlx.ExecerContext, u *User) error {
	return d.upsert(ctx, q, "users", userRecord(u))
}

// ------------------ notifications ------------------

func (d *Database) getNotification(ctx context.Context, q sqlx.QueryerContext, id string) (*Notification, error) {
	n, err := getOne[Notification](ctx, q, d.dialect.From("notifications").Where(goqu.Ex{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("notification %s: %w", id, err)
	}
	return n, nil
}

func (d *Database) listNotifications(ctx context.Context, q sqlx.QueryerContext, where goqu.Ex) ([]Notification, error) {
	ds := d.dialect.From("notifications").Order(goqu.C("created_at").Desc(), goqu.C("id").Asc())
	if len(where) > 0 {
		ds = ds.Where(where)
	}
	return selectAll[Notification](ctx, q, ds)
}

func (d *Database) saveNotification(ctx context.Context, q sqlx.ExecerContext, n *Notification) error {
	return d.upsert(ctx, q, "notifications", notificationRecord(n))
}

// ------------------ reports ------------------

func (d *Database) getReport(ctx context.Context, q sqlx.QueryerContext, id string) (*Report, error) {
	r, err := getOne[Report](ctx, q, d.dialect.From("reports").Where(goqu.Ex{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", id, err)
	}
	return r, nil
}

func (d *Database) listReports(ctx context.Context, q sqlx.QueryerContext, where ...goqu.Expression) ([]Report, error) {
	ds := d.dialect.From("reports").Order(goqu.C("created_at").Desc(), goqu.C("id").Asc())
	if len(where) > 0 {
		ds = ds.Where(where...)
	}
	return selectAll[Report](ctx, q, ds)
}

func (d *Database) saveReport(ctx context.Context, q sqlx.ExecerContext, r *Report) error {
	return d.upsert(ctx, q, "reports", reportRecord(r))
}
