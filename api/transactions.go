package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"bookshare/market"
)

// GET /v1/transactions?view=borrowing|lending
func (s *Server) myTransactions(c echo.Context) error {
	ctx := c.Request().Context()
	uid := caller(c).UserID

	var (
		txs []market.Transaction
		err error
	)
	switch c.QueryParam("view") {
	case "":
		txs, err = s.m.Transactions.ListByUser(ctx, uid)
	case "borrowing":
		txs, err = s.m.Transactions.ActiveBorrows(ctx, uid)
	case "lending":
		txs, err = s.m.Transactions.LentOut(ctx, uid)
	default:
		err = fmt.Errorf("view %q: %w", c.QueryParam("view"), market.ErrInvalidInput)
	}
	if err != nil {
		return s.fail(c, "list transactions", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": txs})
}

func (s *Server) pendingRequests(c echo.Context) error {
	txs, err := s.m.Transactions.PendingForOwner(c.Request().Context(), caller(c).UserID)
	if err != nil {
		return s.fail(c, "pending requests", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": txs})
}

func (s *Server) requestBook(c echo.Context) error {
	var req requestReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "request book", err)
	}
	t, err := s.m.Transactions.CreateRequest(c.Request().Context(), req.BookID, caller(c).UserID, market.TxType(req.Type), req.Message)
	if err != nil {
		return s.fail(c, "request book", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"data": t})
}

func (s *Server) showTransaction(c echo.Context) error {
	t, err := s.m.Transactions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, "show transaction", err)
	}
	who := caller(c)
	if !who.IsAdmin() && !t.IsParticipant(who.UserID) {
		return s.fail(c, "show transaction", market.ErrNotParticipant)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": t})
}

// step authorizes the caller for a and then runs the transition.
func (s *Server) step(c echo.Context, a market.Action, run func(ctx context.Context, id string) (*market.Transaction, error)) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := s.m.Transactions.Authorize(ctx, caller(c), id, a); err != nil {
		return s.fail(c, string(a), err)
	}
	t, err := run(ctx, id)
	if err != nil {
		return s.fail(c, string(a), err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": t})
}

func (s *Server) approve(c echo.Context) error {
	return s.step(c, market.ActApprove, s.m.Transactions.Approve)
}

func (s *Server) reject(c echo.Context) error {
	var req reasonReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "reject", err)
	}
	return s.step(c, market.ActReject, func(ctx context.Context, id string) (*market.Transaction, error) {
		return s.m.Transactions.Reject(ctx, id, req.Reason)
	})
}

func (s *Server) deliver(c echo.Context) error {
	var req deliverReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "deliver", err)
	}
	return s.step(c, market.ActDeliver, func(ctx context.Context, id string) (*market.Transaction, error) {
		return s.m.Transactions.ConfirmDelivery(ctx, id, req.BorrowDays)
	})
}

func (s *Server) confirmReturn(c echo.Context) error {
	return s.step(c, market.ActReturn, s.m.Transactions.ConfirmReturn)
}

func (s *Server) extend(c echo.Context) error {
	var req extendReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "extend", err)
	}
	return s.step(c, market.ActExtend, func(ctx context.Context, id string) (*market.Transaction, error) {
		return s.m.Transactions.ExtendBorrow(ctx, id, req.ExtraDays)
	})
}

func (s *Server) cancel(c echo.Context) error {
	return s.step(c, market.ActCancel, s.m.Transactions.Cancel)
}

// rate needs no Authorize step: Rate itself rejects non-participants.
func (s *Server) rate(c echo.Context) error {
	var req rateReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "rate", err)
	}
	t, err := s.m.Transactions.Rate(c.Request().Context(), c.Param("id"), caller(c).UserID, req.Rating, req.Review)
	if err != nil {
		return s.fail(c, "rate", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": t})
}
