package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"bookshare/market"
)

func (s *Server) adminStats(c echo.Context) error {
	st, err := s.m.Admin.Stats(c.Request().Context(), caller(c))
	if err != nil {
		return s.fail(c, "stats", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": st})
}

func (s *Server) adminFacultyStats(c echo.Context) error {
	rows, err := s.m.Admin.FacultyStats(c.Request().Context(), caller(c))
	if err != nil {
		return s.fail(c, "faculty stats", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

func (s *Server) adminUsers(c echo.Context) error {
	users, err := s.m.Admin.Users(c.Request().Context(), caller(c), c.QueryParam("q"))
	if err != nil {
		return s.fail(c, "list users", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": users})
}

func (s *Server) adminBlock(c echo.Context) error {
	var req blockReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "block user", err)
	}
	if err := s.m.Admin.BlockUser(c.Request().Context(), caller(c), c.Param("id"), req.Reason); err != nil {
		return s.fail(c, "block user", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "blocked"})
}

func (s *Server) adminUnblock(c echo.Context) error {
	if err := s.m.Admin.UnblockUser(c.Request().Context(), caller(c), c.Param("id")); err != nil {
		return s.fail(c, "unblock user", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "unblocked"})
}

func (s *Server) adminTrust(c echo.Context) error {
	var req trustReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "adjust trust", err)
	}
	score, err := s.m.Admin.AdjustTrust(c.Request().Context(), caller(c), c.Param("id"), *req.Observation, req.Reason)
	if err != nil {
		return s.fail(c, "adjust trust", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trust_score": score})
}

func (s *Server) adminHideBook(c echo.Context) error {
	var req blockReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "hide book", err)
	}
	if err := s.m.Admin.HideBook(c.Request().Context(), caller(c), c.Param("id"), req.Reason); err != nil {
		return s.fail(c, "hide book", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "hidden"})
}

func (s *Server) adminDeleteBook(c echo.Context) error {
	if err := s.m.Admin.DeleteBook(c.Request().Context(), caller(c), c.Param("id"), c.QueryParam("reason")); err != nil {
		return s.fail(c, "delete book", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) adminCancel(c echo.Context) error {
	var req blockReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "cancel transaction", err)
	}
	t, err := s.m.Admin.CancelTransaction(c.Request().Context(), caller(c), c.Param("id"), req.Reason)
	if err != nil {
		return s.fail(c, "cancel transaction", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": t})
}

func (s *Server) adminCheckOverdue(c echo.Context) error {
	txs, err := s.m.Admin.CheckOverdue(c.Request().Context(), caller(c))
	if err != nil {
		return s.fail(c, "check overdue", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": txs, "count": len(txs)})
}

// GET /v1/admin/reports?pending=true
func (s *Server) adminReports(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		reports []market.Report
		err     error
	)
	if c.QueryParam("pending") == "true" {
		reports, err = s.m.Reports.ListPending(ctx)
	} else {
		reports, err = s.m.Reports.All(ctx)
	}
	if err != nil {
		return s.fail(c, "list reports", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": reports})
}

func (s *Server) adminProcessReport(c echo.Context) error {
	var req processReportReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "process report", err)
	}
	rep, err := s.m.Admin.ProcessReport(c.Request().Context(), caller(c), c.Param("id"), market.ReportStatus(req.Status), req.Note)
	if err != nil {
		return s.fail(c, "process report", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rep})
}

func limitParam(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil {
		return market.DefaultLeaderboardN
	}
	return n
}

func (s *Server) adminTopUsers(c echo.Context) error {
	users, err := s.m.Admin.TopTrustedUsers(c.Request().Context(), caller(c), limitParam(c))
	if err != nil {
		return s.fail(c, "top users", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": users})
}

func (s *Server) adminTopBooks(c echo.Context) error {
	books, err := s.m.Admin.TopPopularBooks(c.Request().Context(), caller(c), limitParam(c))
	if err != nil {
		return s.fail(c, "top books", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": books})
}

func (s *Server) adminBroadcast(c echo.Context) error {
	var req broadcastReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "broadcast", err)
	}
	n, err := s.m.Admin.Broadcast(c.Request().Context(), caller(c), req.Title, req.Body)
	if err != nil {
		return s.fail(c, "broadcast", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"recipients": n})
}
