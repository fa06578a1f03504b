package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"bookshare/market"
)

const testSecret = "test-secret"

type harness struct {
	t *testing.T
	e *echo.Echo
	m *market.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := market.Open(market.DriverSQLite, filepath.Join(t.TempDir(), "api.db"),
		market.WithPasswordCost(bcrypt.MinCost),
		market.WithLogger(log),
	)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return &harness{t: t, e: New(m, Config{JWTSecret: testSecret, TokenTTL: time.Hour, Logger: log}), m: m}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data    jsoniter.RawMessage `json:"data"`
	Token   string              `json:"token"`
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Unread  int                 `json:"unread"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

// signup registers and logs in, returning the user and a bearer token.
func (h *harness) signup(name, studentID string) (market.User, string) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/v1/users/register", "", echo.Map{
		"email": name + "@dainam.edu.vn", "password": "secret123", "full_name": name, "student_id": studentID,
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/users/login", "", echo.Map{"email": name + "@dainam.edu.vn", "password": "secret123"})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	var u market.User
	env := decode(h.t, rec, &u)
	require.NotEmpty(h.t, env.Token)
	return u, env.Token
}

func (h *harness) adminToken() string {
	h.t.Helper()
	_, err := h.m.Users.EnsureAdmin(context.Background(), "admin@dainam.edu.vn", "adminpass")
	require.NoError(h.t, err)
	rec := h.do(http.MethodPost, "/v1/users/login", "", echo.Map{"email": "admin@dainam.edu.vn", "password": "adminpass"})
	require.Equal(h.t, http.StatusOK, rec.Code)
	return decode(h.t, rec, nil).Token
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/users/register", "", echo.Map{"email": "not-an-email", "password": "secret123", "full_name": "x", "student_id": "S1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, rec, nil).Error)

	rec = h.do(http.MethodPost, "/v1/users/register", "", echo.Map{"email": "x@gmail.com", "password": "secret123", "full_name": "x", "student_id": "S1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.signup("an", "S1")
	rec = h.do(http.MethodPost, "/v1/users/register", "", echo.Map{"email": "an@dainam.edu.vn", "password": "secret123", "full_name": "x", "student_id": "S2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EMAIL_TAKEN", decode(t, rec, nil).Error)

	rec = h.do(http.MethodPost, "/v1/users/login", "", echo.Map{"email": "an@dainam.edu.vn", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/v1/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := &tokenIssuer{secret: []byte("other"), ttl: time.Hour, now: time.Now}
	forged, err := other.issue(&market.User{ID: "x", Role: market.RoleAdmin})
	require.NoError(t, err)
	rec = h.do(http.MethodGet, "/v1/me", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	u, token := h.signup("an", "S1")
	rec = h.do(http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me market.User
	decode(t, rec, &me)
	assert.Equal(t, u.ID, me.ID)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestExpiredToken(t *testing.T) {
	h := newHarness(t)
	u, _ := h.signup("an", "S1")
	past := &tokenIssuer{secret: []byte(testSecret), ttl: time.Hour, now: func() time.Time { return time.Now().Add(-2 * time.Hour) }}
	stale, err := past.issue(&u)
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/v1/me", stale, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBorrowFlowOverHTTP(t *testing.T) {
	h := newHarness(t)
	_, ownerTok := h.signup("owner", "S1")
	borrower, borrowerTok := h.signup("borrower", "S2")

	rec := h.do(http.MethodPost, "/v1/books", ownerTok, echo.Map{"title": "Operating Systems", "author": "Tanenbaum", "faculty": "IT"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var book market.Book
	decode(t, rec, &book)

	rec = h.do(http.MethodPost, "/v1/books/"+book.ID+"/offer", borrowerTok, echo.Map{"type": "BORROW", "borrow_days": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(http.MethodPost, "/v1/books/"+book.ID+"/offer", ownerTok, echo.Map{"type": "BORROW", "borrow_days": 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/v1/books?type=BORROW&q=operating", borrowerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found []market.Book
	decode(t, rec, &found)
	require.Len(t, found, 1)

	rec = h.do(http.MethodPost, "/v1/transactions", borrowerTok, echo.Map{"book_id": book.ID, "type": "BORROW", "message": "please"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tx market.Transaction
	decode(t, rec, &tx)
	assert.Equal(t, borrower.ID, tx.BorrowerID)

	rec = h.do(http.MethodPost, "/v1/transactions", borrowerTok, echo.Map{"book_id": book.ID, "type": "BORROW"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "BOOK_UNAVAILABLE", decode(t, rec, nil).Error)

	rec = h.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/approve", borrowerTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decode(t, rec, nil).Error)

	rec = h.do(http.MethodGet, "/v1/transactions/pending", ownerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []market.Transaction
	decode(t, rec, &pending)
	assert.Len(t, pending, 1)

	for _, step := range []string{"approve", "deliver"} {
		rec = h.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/"+step, ownerTok, nil)
		require.Equal(t, http.StatusOK, rec.Code, step+": "+rec.Body.String())
	}
	decode(t, rec, &tx)
	assert.Equal(t, market.TxInProgress, tx.Status)
	require.NotNil(t, tx.DueDate)
	assert.True(t, tx.DueDate.Equal(tx.DeliveredAt.AddDate(0, 0, 10)))

	rec = h.do(http.MethodGet, "/v1/transactions?view=borrowing", borrowerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var borrowing []market.Transaction
	decode(t, rec, &borrowing)
	require.Len(t, borrowing, 1)
	assert.Equal(t, tx.ID, borrowing[0].ID)

	rec = h.do(http.MethodGet, "/v1/transactions?view=lending", borrowerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lending []market.Transaction
	decode(t, rec, &lending)
	assert.Empty(t, lending)

	rec = h.do(http.MethodGet, "/v1/transactions?view=lending", ownerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &lending)
	assert.Len(t, lending, 1)

	rec = h.do(http.MethodGet, "/v1/transactions?view=everything", ownerTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/extend", ownerTok, echo.Map{"extra_days": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/return", borrowerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/rate", borrowerTok, echo.Map{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/rate", borrowerTok, echo.Map{"rating": 5, "review": "thanks"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &tx)
	require.NotNil(t, tx.OwnerRating)
	assert.Equal(t, 5, *tx.OwnerRating)

	rec = h.do(http.MethodGet, "/v1/notifications?unread=true", ownerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notes []market.Notification
	env := decode(t, rec, &notes)
	assert.Equal(t, 3, env.Unread)
	assert.Len(t, notes, 3)

	rec = h.do(http.MethodPost, "/v1/notifications/"+notes[0].ID+"/read", borrowerTok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(http.MethodPost, "/v1/notifications/read-all", ownerTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTransactionVisibleToParticipantsOnly(t *testing.T) {
	h := newHarness(t)
	owner, ownerTok := h.signup("owner", "S1")
	_, borrowerTok := h.signup("borrower", "S2")
	_, strangerTok := h.signup("stranger", "S3")

	b, err := h.m.Books.Create(context.Background(), owner.ID, "Networks", "Kurose")
	require.NoError(t, err)
	rec := h.do(http.MethodPost, "/v1/transactions", borrowerTok, echo.Map{"book_id": b.ID, "type": "BORROW"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var tx market.Transaction
	decode(t, rec, &tx)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/transactions/"+tx.ID, ownerTok, nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/v1/transactions/"+tx.ID, strangerTok, nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/cancel", strangerTok, nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/transactions/"+tx.ID+"/cancel", borrowerTok, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/transactions/missing/cancel", borrowerTok, nil).Code)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t)
	u, token := h.signup("an", "S1")
	admin := h.adminToken()

	rec := h.do(http.MethodGet, "/v1/admin/stats", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodGet, "/v1/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st market.SystemStats
	decode(t, rec, &st)
	assert.Equal(t, 2, st.TotalUsers)

	rec = h.do(http.MethodPost, "/v1/admin/users/"+u.ID+"/block", admin, echo.Map{"reason": "spam"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/v1/me", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCOUNT_LOCKED", decode(t, rec, nil).Error)

	rec = h.do(http.MethodPost, "/v1/admin/users/"+u.ID+"/unblock", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/me", token, nil).Code)

	rec = h.do(http.MethodPost, "/v1/admin/users/"+u.ID+"/trust", admin, echo.Map{"observation": 1, "reason": "late"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"trust_score":3`)

	rec = h.do(http.MethodPost, "/v1/admin/broadcast", admin, echo.Map{"title": "Hi", "body": "All"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"recipients":2`)

	rec = h.do(http.MethodPost, "/v1/admin/overdue/check", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestReportOverHTTP(t *testing.T) {
	h := newHarness(t)
	_, token := h.signup("an", "S1")
	bad, _ := h.signup("binh", "S2")
	admin := h.adminToken()

	rec := h.do(http.MethodPost, "/v1/reports", token, echo.Map{"reported_user_id": bad.ID, "type": "FAKE_INFO", "description": "fake listing"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rep market.Report
	decode(t, rec, &rep)

	rec = h.do(http.MethodGet, "/v1/admin/reports?pending=true", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reports []market.Report
	decode(t, rec, &reports)
	assert.Len(t, reports, 1)

	rec = h.do(http.MethodPost, "/v1/admin/reports/"+rep.ID+"/process", admin, echo.Map{"status": "RESOLVED", "note": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodPost, "/v1/admin/reports/"+rep.ID+"/process", admin, echo.Map{"status": "REJECTED"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusByKindCoversEveryDomainError(t *testing.T) {
	for _, err := range []error{
		market.ErrNotFound, market.ErrInvalidState, market.ErrBookUnavailable, market.ErrSelfTransaction,
		market.ErrWrongType, market.ErrNotParticipant, market.ErrNotCompleted, market.ErrInvalidRating,
		market.ErrNotOwner, market.ErrInvalidInput, market.ErrEmailTaken, market.ErrStudentIDTaken,
		market.ErrBadCredentials, market.ErrAccountLocked, market.ErrForbidden,
	} {
		_, ok := statusByKind[market.Kind(err)]
		assert.True(t, ok, "no status for %v", err)
	}
}
