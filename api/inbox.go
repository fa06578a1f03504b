package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"bookshare/market"
)

// GET /v1/notifications?unread=true
func (s *Server) notifications(c echo.Context) error {
	ctx := c.Request().Context()
	uid := caller(c).UserID

	var (
		notes []market.Notification
		err   error
	)
	if c.QueryParam("unread") == "true" {
		notes, err = s.m.Notifications.Unread(ctx, uid)
	} else {
		notes, err = s.m.Notifications.List(ctx, uid)
	}
	if err != nil {
		return s.fail(c, "notifications", err)
	}
	unread, err := s.m.Notifications.UnreadCount(ctx, uid)
	if err != nil {
		return s.fail(c, "notifications", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": notes, "unread": unread})
}

func (s *Server) markRead(c echo.Context) error {
	if err := s.m.Notifications.MarkRead(c.Request().Context(), caller(c).UserID, c.Param("id")); err != nil {
		return s.fail(c, "mark read", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) markAllRead(c echo.Context) error {
	n, err := s.m.Notifications.MarkAllRead(c.Request().Context(), caller(c).UserID)
	if err != nil {
		return s.fail(c, "mark all read", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"marked": n})
}

func (s *Server) deleteNotification(c echo.Context) error {
	if err := s.m.Notifications.Delete(c.Request().Context(), caller(c).UserID, c.Param("id")); err != nil {
		return s.fail(c, "delete notification", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) createReport(c echo.Context) error {
	var req reportReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "create report", err)
	}
	rep, err := s.m.Reports.Create(c.Request().Context(), market.NewReport{
		ReporterID:     caller(c).UserID,
		ReportedUserID: req.ReportedUserID,
		Type:           market.ReportType(req.Type),
		Description:    req.Description,
		TransactionID:  req.TransactionID,
	})
	if err != nil {
		return s.fail(c, "create report", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"data": rep})
}
