// Package api exposes the marketplace over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"bookshare/market"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config carries what the HTTP layer needs beyond the manager.
type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
	Logger    *slog.Logger
	// AuthRateLimit caps register/login requests per second per client IP.
	// Zero disables the limiter.
	AuthRateLimit rate.Limit
}

type Server struct {
	m      *market.Manager
	tokens *tokenIssuer
	log    *slog.Logger
}

type requestValidator struct {
	v *validator.Validate
}

func (r *requestValidator) Validate(i any) error { return r.v.Struct(i) }

// jsonSerializer routes echo's JSON through jsoniter.
type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON").SetInternal(err)
	}
	return nil
}

// New builds the echo instance with every route registered.
func New(m *market.Manager, cfg Config) *echo.Echo {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	s := &Server{
		m:      m,
		tokens: &tokenIssuer{secret: []byte(cfg.JWTSecret), ttl: ttl, now: time.Now},
		log:    log,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.Validator = &requestValidator{v: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(s.requestLog())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	s.routes(e, cfg.AuthRateLimit)
	return e
}

func (s *Server) routes(e *echo.Echo, authRate rate.Limit) {
	pub := e.Group("/v1/users")
	if authRate > 0 {
		pub.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(authRate)))
	}
	pub.POST("/register", s.register)
	pub.POST("/login", s.login)

	v1 := e.Group("/v1", s.authenticate)

	v1.GET("/me", s.me)
	v1.PUT("/me", s.updateProfile)
	v1.PUT("/me/password", s.changePassword)
	v1.GET("/me/books", s.myBooks)
	v1.GET("/me/favorites", s.favorites)
	v1.POST("/me/favorites/:bookId", s.addFavorite)
	v1.DELETE("/me/favorites/:bookId", s.removeFavorite)

	v1.GET("/books", s.searchBooks)
	v1.POST("/books", s.createBook)
	v1.GET("/books/:id", s.showBook)
	v1.PUT("/books/:id", s.updateBook)
	v1.DELETE("/books/:id", s.deleteBook)
	v1.POST("/books/:id/offer", s.offerBook)
	v1.PUT("/books/:id/condition", s.setCondition)
	v1.PUT("/books/:id/image", s.setImage)
	v1.POST("/books/:id/visibility", s.toggleVisibility)

	v1.GET("/transactions", s.myTransactions)
	v1.POST("/transactions", s.requestBook)
	v1.GET("/transactions/pending", s.pendingRequests)
	v1.GET("/transactions/:id", s.showTransaction)
	v1.POST("/transactions/:id/approve", s.approve)
	v1.POST("/transactions/:id/reject", s.reject)
	v1.POST("/transactions/:id/deliver", s.deliver)
	v1.POST("/transactions/:id/return", s.confirmReturn)
	v1.POST("/transactions/:id/extend", s.extend)
	v1.POST("/transactions/:id/cancel", s.cancel)
	v1.POST("/transactions/:id/rate", s.rate)

	v1.GET("/notifications", s.notifications)
	v1.POST("/notifications/read-all", s.markAllRead)
	v1.POST("/notifications/:id/read", s.markRead)
	v1.DELETE("/notifications/:id", s.deleteNotification)

	v1.POST("/reports", s.createReport)

	admin := v1.Group("/admin", requireAdmin)
	admin.GET("/stats", s.adminStats)
	admin.GET("/stats/faculties", s.adminFacultyStats)
	admin.GET("/users", s.adminUsers)
	admin.POST("/users/:id/block", s.adminBlock)
	admin.POST("/users/:id/unblock", s.adminUnblock)
	admin.POST("/users/:id/trust", s.adminTrust)
	admin.POST("/books/:id/hide", s.adminHideBook)
	admin.DELETE("/books/:id", s.adminDeleteBook)
	admin.POST("/transactions/:id/cancel", s.adminCancel)
	admin.POST("/overdue/check", s.adminCheckOverdue)
	admin.GET("/reports", s.adminReports)
	admin.POST("/reports/:id/process", s.adminProcessReport)
	admin.GET("/top/users", s.adminTopUsers)
	admin.GET("/top/books", s.adminTopBooks)
	admin.POST("/broadcast", s.adminBroadcast)
}

func (s *Server) requestLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			s.log.Info("http",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"req_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"ip", c.RealIP(),
			)
			return nil
		}
	}
}
