package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"bookshare/market"
)

var statusByKind = map[string]int{
	"NOT_FOUND":        http.StatusNotFound,
	"INVALID_STATE":    http.StatusConflict,
	"BOOK_UNAVAILABLE": http.StatusConflict,
	"NOT_COMPLETED":    http.StatusConflict,
	"EMAIL_TAKEN":      http.StatusConflict,
	"STUDENT_ID_TAKEN": http.StatusConflict,
	"SELF_TRANSACTION": http.StatusBadRequest,
	"WRONG_TYPE":       http.StatusBadRequest,
	"INVALID_RATING":   http.StatusBadRequest,
	"INVALID_INPUT":    http.StatusBadRequest,
	"NOT_PARTICIPANT":  http.StatusForbidden,
	"NOT_OWNER":        http.StatusForbidden,
	"FORBIDDEN":        http.StatusForbidden,
	"ACCOUNT_LOCKED":   http.StatusForbidden,
	"BAD_CREDENTIALS":  http.StatusUnauthorized,
}

// fail writes err as {"error": kind, "message": text}. Unknown errors are
// logged and reported as a bare internal error.
func (s *Server) fail(c echo.Context, op string, err error) error {
	kind := market.Kind(err)
	status, ok := statusByKind[kind]
	if !ok {
		s.log.Error(op, "err", err, "req_id", c.Response().Header().Get(echo.HeaderXRequestID))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL", "message": "internal error"})
	}
	s.log.Debug(op, "err", err)
	return c.JSON(status, echo.Map{"error": kind, "message": err.Error()})
}

// bind decodes and validates a request body. Failures carry ErrInvalidInput.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("malformed request body: %w", market.ErrInvalidInput)
	}
	if err := c.Validate(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("field %s fails %q: %w", verrs[0].Field(), verrs[0].Tag(), market.ErrInvalidInput)
		}
		return fmt.Errorf("%v: %w", err, market.ErrInvalidInput)
	}
	return nil
}
