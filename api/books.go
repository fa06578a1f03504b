package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"bookshare/market"
)

// GET /v1/books?q=&subject=&faculty=&condition=&type=&sort=
func (s *Server) searchBooks(c echo.Context) error {
	books, err := s.m.Books.Search(c.Request().Context(), market.SearchFilter{
		Keyword:   c.QueryParam("q"),
		Subject:   c.QueryParam("subject"),
		Faculty:   c.QueryParam("faculty"),
		Condition: market.Condition(c.QueryParam("condition")),
		Type:      market.ListingType(c.QueryParam("type")),
		Sort:      c.QueryParam("sort"),
	})
	if err != nil {
		return s.fail(c, "search books", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": books})
}

func (s *Server) myBooks(c echo.Context) error {
	books, err := s.m.Books.ListByOwner(c.Request().Context(), caller(c).UserID)
	if err != nil {
		return s.fail(c, "my books", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": books})
}

func (s *Server) createBook(c echo.Context) error {
	var req bookReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "create book", err)
	}
	b, err := s.m.Books.CreateWithDetails(c.Request().Context(), caller(c).UserID, details(req))
	if err != nil {
		return s.fail(c, "create book", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"data": b})
}

// showBook counts a view unless the owner is looking at their own listing.
func (s *Server) showBook(c echo.Context) error {
	ctx := c.Request().Context()
	b, err := s.m.Books.Get(ctx, c.Param("id"))
	if err != nil {
		return s.fail(c, "show book", err)
	}
	if b.OwnerID != caller(c).UserID {
		if b, err = s.m.Books.IncrementViewCount(ctx, b.ID); err != nil {
			return s.fail(c, "show book", err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"data": b})
}

func (s *Server) updateBook(c echo.Context) error {
	var req bookReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "update book", err)
	}
	b, err := s.m.Books.Update(c.Request().Context(), c.Param("id"), caller(c).UserID, details(req))
	if err != nil {
		return s.fail(c, "update book", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": b})
}

func (s *Server) deleteBook(c echo.Context) error {
	if err := s.m.Books.Delete(c.Request().Context(), c.Param("id"), caller(c).UserID); err != nil {
		return s.fail(c, "delete book", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// offerBook adds a listing type. The registry itself has no owner check on
// this call, so it is done here.
func (s *Server) offerBook(c echo.Context) error {
	var req offerReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "offer book", err)
	}
	ctx := c.Request().Context()
	if err := s.ownBook(c, c.Param("id")); err != nil {
		return s.fail(c, "offer book", err)
	}
	b, err := s.m.Books.AddAvailableType(ctx, c.Param("id"), market.ListingType(req.Type), req.Price, req.BorrowDays)
	if err != nil {
		return s.fail(c, "offer book", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": b})
}

func (s *Server) setCondition(c echo.Context) error {
	var req conditionReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "set condition", err)
	}
	b, err := s.m.Books.SetCondition(c.Request().Context(), c.Param("id"), caller(c).UserID, market.Condition(req.Condition))
	if err != nil {
		return s.fail(c, "set condition", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": b})
}

func (s *Server) setImage(c echo.Context) error {
	var req imageReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "set image", err)
	}
	b, err := s.m.Books.SetImage(c.Request().Context(), c.Param("id"), caller(c).UserID, req.ImageURL)
	if err != nil {
		return s.fail(c, "set image", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": b})
}

func (s *Server) toggleVisibility(c echo.Context) error {
	b, err := s.m.Books.ToggleVisibility(c.Request().Context(), c.Param("id"), caller(c).UserID)
	if err != nil {
		return s.fail(c, "toggle visibility", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": b})
}

func (s *Server) ownBook(c echo.Context, bookID string) error {
	b, err := s.m.Books.Get(c.Request().Context(), bookID)
	if err != nil {
		return err
	}
	if b.OwnerID != caller(c).UserID {
		return market.ErrNotOwner
	}
	return nil
}

func details(req bookReq) market.BookDetails {
	return market.BookDetails{
		Title:       req.Title,
		Author:      req.Author,
		Subject:     req.Subject,
		Faculty:     req.Faculty,
		Description: req.Description,
	}
}
