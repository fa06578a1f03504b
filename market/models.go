package market

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// BookStatus is the availability of a listed book.
type BookStatus string

const (
	BookAvailable BookStatus = "AVAILABLE"
	BookReserved  BookStatus = "RESERVED"
	BookBorrowed  BookStatus = "BORROWED"
	BookSold      BookStatus = "SOLD"
)

func (s BookStatus) Valid() bool {
	switch s {
	case BookAvailable, BookReserved, BookBorrowed, BookSold:
		return true
	}
	return false
}

// ListingType is a way an owner is willing to hand a book over.
type ListingType string

const (
	ListBorrow   ListingType = "BORROW"
	ListSell     ListingType = "SELL"
	ListExchange ListingType = "EXCHANGE"
)

// Condition describes the physical state of a book.
type Condition string

const (
	ConditionNew     Condition = "NEW"
	ConditionLikeNew Condition = "LIKE_NEW"
	ConditionGood    Condition = "GOOD"
	ConditionFair    Condition = "FAIR"
	ConditionOld     Condition = "OLD"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionOld:
		return true
	}
	return false
}

// ListingTypes is stored as a JSON array column.
type ListingTypes []ListingType

func (l ListingTypes) Has(t ListingType) bool {
	for _, v := range l {
		if v == t {
			return true
		}
	}
	return false
}

func (l ListingTypes) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *ListingTypes) Scan(src any) error {
	return scanJSON(src, l)
}

// IDList is a JSON array of ids, used for favourites.
type IDList []string

func (l IDList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *IDList) Scan(src any) error {
	return scanJSON(src, l)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		return json.UnmarshalFromString(v, dst)
	case []byte:
		return json.Unmarshal(v, dst)
	}
	return fmt.Errorf("scan json: unsupported type %T", src)
}

// Book is a physical book listed by its owner.
type Book struct {
	ID             string       `db:"id" json:"id"`
	Seq            int64        `db:"seq" json:"seq"`
	OwnerID        string       `db:"owner_id" json:"owner_id"`
	Title          string       `db:"title" json:"title"`
	Author         string       `db:"author" json:"author"`
	Subject        string       `db:"subject" json:"subject"`
	Faculty        string       `db:"faculty" json:"faculty"`
	Description    string       `db:"description" json:"description"`
	ImageURL       string       `db:"image_url" json:"image_url"`
	Condition      Condition    `db:"book_condition" json:"condition"`
	AvailableTypes ListingTypes `db:"available_types" json:"available_types"`
	Price          float64      `db:"price" json:"price"`
	BorrowDays     int          `db:"borrow_days" json:"borrow_days"`
	Status         BookStatus   `db:"status" json:"status"`
	PostedAt       time.Time    `db:"posted_at" json:"posted_at"`
	ViewCount      int          `db:"view_count" json:"view_count"`
	Visible        bool         `db:"visible" json:"visible"`
}

// TxType is the kind of hand-over a transaction performs.
type TxType string

const (
	TxBorrow   TxType = "BORROW"
	TxBuy      TxType = "BUY"
	TxExchange TxType = "EXCHANGE"
)

// TxTypeFor maps a listing type onto the transaction that fulfils it.
func TxTypeFor(l ListingType) (TxType, bool) {
	switch l {
	case ListBorrow:
		return TxBorrow, true
	case ListSell:
		return TxBuy, true
	case ListExchange:
		return TxExchange, true
	}
	return "", false
}

func (t TxType) Valid() bool {
	switch t {
	case TxBorrow, TxBuy, TxExchange:
		return true
	}
	return false
}

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	TxPending    TxStatus = "PENDING"
	TxApproved   TxStatus = "APPROVED"
	TxInProgress TxStatus = "IN_PROGRESS"
	TxCompleted  TxStatus = "COMPLETED"
	TxRejected   TxStatus = "REJECTED"
	TxCancelled  TxStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s TxStatus) Terminal() bool {
	return s == TxCompleted || s == TxRejected || s == TxCancelled
}

var activeStatuses = []string{string(TxPending), string(TxApproved), string(TxInProgress)}

// Transaction records one request for a book and its progress.
//
// OwnerRating/OwnerReview hold the rating the owner received (given by the
// borrower); BorrowerRating/BorrowerReview hold the one the borrower received.
type Transaction struct {
	ID             string     `db:"id" json:"id"`
	BookID         string     `db:"book_id" json:"book_id"`
	OwnerID        string     `db:"owner_id" json:"owner_id"`
	BorrowerID     string     `db:"borrower_id" json:"borrower_id"`
	Type           TxType     `db:"type" json:"type"`
	Status         TxStatus   `db:"status" json:"status"`
	Message        string     `db:"message" json:"message"`
	Reason         string     `db:"reason" json:"reason,omitempty"`
	Amount         float64    `db:"amount" json:"amount"`
	RequestedAt    time.Time  `db:"requested_at" json:"requested_at"`
	ApprovedAt     *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReturnedAt     *time.Time `db:"returned_at" json:"returned_at,omitempty"`
	DueDate        *time.Time `db:"due_date" json:"due_date,omitempty"`
	OwnerRating    *int       `db:"owner_rating" json:"owner_rating,omitempty"`
	OwnerReview    *string    `db:"owner_review" json:"owner_review,omitempty"`
	BorrowerRating *int       `db:"borrower_rating" json:"borrower_rating,omitempty"`
	BorrowerReview *string    `db:"borrower_review" json:"borrower_review,omitempty"`
	// RemindedAt is when the last overdue reminder went out.
	RemindedAt     *time.Time `db:"reminded_at" json:"reminded_at,omitempty"`
}

// Overdue is derived: an in-progress borrow whose due date has passed.
func (t *Transaction) Overdue(now time.Time) bool {
	return t.Type == TxBorrow && t.Status == TxInProgress && t.DueDate != nil && now.After(*t.DueDate)
}

// DaysOverdue counts whole days past the due date, zero when not overdue.
func (t *Transaction) DaysOverdue(now time.Time) int {
	if !t.Overdue(now) {
		return 0
	}
	return int(now.Sub(*t.DueDate) / (24 * time.Hour))
}

// IsParticipant reports whether userID is the owner or the borrower.
func (t *Transaction) IsParticipant(userID string) bool {
	return userID == t.OwnerID || userID == t.BorrowerID
}

// Counterparty returns the other participant.
func (t *Transaction) Counterparty(userID string) string {
	if userID == t.OwnerID {
		return t.BorrowerID
	}
	return t.OwnerID
}

// Role is the account role.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

// User is a registered student or administrator.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Phone        string    `db:"phone" json:"phone"`
	Faculty      string    `db:"faculty" json:"faculty"`
	Role         Role      `db:"role" json:"role"`
	TrustScore   float64   `db:"trust_score" json:"trust_score"`
	Active       bool      `db:"active" json:"active"`
	Favorites    IDList    `db:"favorites" json:"favorites"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Caller identifies who performs a privileged operation.
type Caller struct {
	UserID string
	Role   Role
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// NotificationKind classifies an in-app notification.
type NotificationKind string

const (
	NotifyNewRequest      NotificationKind = "NEW_REQUEST"
	NotifyApproved        NotificationKind = "REQUEST_APPROVED"
	NotifyRejected        NotificationKind = "REQUEST_REJECTED"
	NotifyDelivered       NotificationKind = "BOOK_DELIVERED"
	NotifyReturned        NotificationKind = "BOOK_RETURNED"
	NotifyReturnReminder  NotificationKind = "RETURN_REMINDER"
	NotifyNewReview       NotificationKind = "NEW_REVIEW"
	NotifyAnnouncement    NotificationKind = "SYSTEM_ANNOUNCEMENT"
	NotifyNewMessage      NotificationKind = "NEW_MESSAGE"
	NotifyRequestCanceled NotificationKind = "REQUEST_CANCELLED"
)

// Notification is a stored message for one user.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Title     string           `db:"title" json:"title"`
	Body      string           `db:"body" json:"body"`
	RelatedID string           `db:"related_id" json:"related_id,omitempty"`
	Read      bool             `db:"is_read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// ReportType classifies a complaint against a user.
type ReportType string

const (
	ReportLateReturn    ReportType = "LATE_RETURN"
	ReportNotReturn     ReportType = "NOT_RETURN"
	ReportDamagedBook   ReportType = "DAMAGED_BOOK"
	ReportFakeInfo      ReportType = "FAKE_INFO"
	ReportInappropriate ReportType = "INAPPROPRIATE"
	ReportOther         ReportType = "OTHER"
)

func (t ReportType) Valid() bool {
	switch t {
	case ReportLateReturn, ReportNotReturn, ReportDamagedBook, ReportFakeInfo, ReportInappropriate, ReportOther:
		return true
	}
	return false
}

// ReportStatus tracks moderation of a report.
type ReportStatus string

const (
	ReportPending       ReportStatus = "PENDING"
	ReportInvestigating ReportStatus = "INVESTIGATING"
	ReportResolved      ReportStatus = "RESOLVED"
	ReportRejected      ReportStatus = "REJECTED"
)

// Report is a complaint filed by one user about another.
type Report struct {
	ID             string       `db:"id" json:"id"`
	ReporterID     string       `db:"reporter_id" json:"reporter_id"`
	ReportedUserID string       `db:"reported_user_id" json:"reported_user_id"`
	TransactionID  string       `db:"transaction_id" json:"transaction_id,omitempty"`
	Type           ReportType   `db:"type" json:"type"`
	Description    string       `db:"description" json:"description"`
	Status         ReportStatus `db:"status" json:"status"`
	AdminNote      string       `db:"admin_note" json:"admin_note,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	ResolvedAt     *time.Time   `db:"resolved_at" json:"resolved_at,omitempty"`
}
