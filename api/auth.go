package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"bookshare/market"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

var errUnauthenticated = errors.New("unauthenticated")

type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (t *tokenIssuer) issue(u *market.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"role": string(u.Role),
		"iat":  t.now().Unix(),
		"exp":  t.now().Add(t.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// parse validates a bearer header and returns the subject.
func (t *tokenIssuer) parse(header string) (string, error) {
	raw := strings.TrimSpace(header)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return "", errUnauthenticated
	}
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errUnauthenticated
	}
	return sub, nil
}

// authenticate resolves the bearer token to a live account. The role comes
// from the store, so a demoted or blocked user loses access immediately.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sub, err := s.tokens.parse(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			s.log.Debug("auth rejected", "err", err, "ip", c.RealIP())
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHENTICATED", "message": "unauthorized"})
		}
		u, err := s.m.Users.Get(c.Request().Context(), sub)
		if errors.Is(err, market.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHENTICATED", "message": "unauthorized"})
		}
		if err != nil {
			return s.fail(c, "load caller", err)
		}
		if !u.Active {
			return s.fail(c, "load caller", market.ErrAccountLocked)
		}
		c.Set(ctxUserID, u.ID)
		c.Set(ctxRole, u.Role)
		return next(c)
	}
}

func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !caller(c).IsAdmin() {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "FORBIDDEN", "message": "admin access only"})
		}
		return next(c)
	}
}

func caller(c echo.Context) market.Caller {
	id, _ := c.Get(ctxUserID).(string)
	role, _ := c.Get(ctxRole).(market.Role)
	return market.Caller{UserID: id, Role: role}
}

// ------------------ accounts ------------------

func (s *Server) register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "register", err)
	}
	u, err := s.m.Users.Register(c.Request().Context(), market.Registration{
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		StudentID: req.StudentID,
	})
	if err != nil {
		return s.fail(c, "register", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"data": u})
}

func (s *Server) login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "login", err)
	}
	u, err := s.m.Users.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return s.fail(c, "login", err)
	}
	token, err := s.tokens.issue(u)
	if err != nil {
		return s.fail(c, "issue token", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token, "data": u})
}

func (s *Server) me(c echo.Context) error {
	u, err := s.m.Users.Get(c.Request().Context(), caller(c).UserID)
	if err != nil {
		return s.fail(c, "me", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": u})
}

func (s *Server) updateProfile(c echo.Context) error {
	var req profileReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "update profile", err)
	}
	u, err := s.m.Users.UpdateProfile(c.Request().Context(), caller(c).UserID, market.Profile{
		FullName: req.FullName,
		Phone:    req.Phone,
		Faculty:  req.Faculty,
	})
	if err != nil {
		return s.fail(c, "update profile", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": u})
}

func (s *Server) changePassword(c echo.Context) error {
	var req passwordReq
	if err := bind(c, &req); err != nil {
		return s.fail(c, "change password", err)
	}
	if err := s.m.Users.ChangePassword(c.Request().Context(), caller(c).UserID, req.OldPassword, req.NewPassword); err != nil {
		return s.fail(c, "change password", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

func (s *Server) favorites(c echo.Context) error {
	books, err := s.m.Users.Favorites(c.Request().Context(), caller(c).UserID)
	if err != nil {
		return s.fail(c, "favorites", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": books})
}

func (s *Server) addFavorite(c echo.Context) error {
	if err := s.m.Users.AddFavorite(c.Request().Context(), caller(c).UserID, c.Param("bookId")); err != nil {
		return s.fail(c, "add favorite", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) removeFavorite(c echo.Context) error {
	if err := s.m.Users.RemoveFavorite(c.Request().Context(), caller(c).UserID, c.Param("bookId")); err != nil {
		return s.fail(c, "remove favorite", err)
	}
	return c.NoContent(http.StatusNoContent)
}
