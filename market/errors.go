package market

import "errors"

// Domain errors. Callers wrap them with context and test with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrBookUnavailable = errors.New("book unavailable")
	ErrSelfTransaction = errors.New("cannot transact on own book")
	ErrWrongType       = errors.New("wrong transaction type")
	ErrNotParticipant  = errors.New("not a participant")
	ErrNotCompleted    = errors.New("transaction not completed")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrNotOwner        = errors.New("not the owner")

	ErrInvalidInput   = errors.New("invalid input")
	ErrEmailTaken     = errors.New("email already registered")
	ErrStudentIDTaken = errors.New("student id already registered")
	ErrBadCredentials = errors.New("invalid email or password")
	ErrAccountLocked  = errors.New("account locked")
	ErrForbidden      = errors.New("forbidden")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, "NOT_FOUND"},
	{ErrInvalidState, "INVALID_STATE"},
	{ErrBookUnavailable, "BOOK_UNAVAILABLE"},
	{ErrSelfTransaction, "SELF_TRANSACTION"},
	{ErrWrongType, "WRONG_TYPE"},
	{ErrNotParticipant, "NOT_PARTICIPANT"},
	{ErrNotCompleted, "NOT_COMPLETED"},
	{ErrInvalidRating, "INVALID_RATING"},
	{ErrNotOwner, "NOT_OWNER"},
	{ErrInvalidInput, "INVALID_INPUT"},
	{ErrEmailTaken, "EMAIL_TAKEN"},
	{ErrStudentIDTaken, "STUDENT_ID_TAKEN"},
	{ErrBadCredentials, "BAD_CREDENTIALS"},
	{ErrAccountLocked, "ACCOUNT_LOCKED"},
	{ErrForbidden, "FORBIDDEN"},
}

// Kind returns a stable code for a domain error, "INTERNAL" otherwise.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "INTERNAL"
}
