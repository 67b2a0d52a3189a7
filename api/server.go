// Package api serves the library over HTTP.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"library-circulation/config"
	"library-circulation/library"
)

// Server is the HTTP front end of a LibraryManager.
type Server struct {
	cfg    config.HTTPConfig
	logger *slog.Logger
	echo   *echo.Echo
}

// NewServer builds the echo instance and registers all routes.
func NewServer(mgr *library.LibraryManager, cfg config.HTTPConfig, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.Validator = requestValidator{}
	e.HTTPErrorHandler = errorHandler{logger: logger}.handle

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(logger))

	h := &handler{mgr: mgr, logger: logger}
	registerRoutes(e, h, newAuth(cfg.AdminKeyHash))

	return &Server{cfg: cfg, logger: logger, echo: e}
}

// ServeHTTP lets the server be mounted or exercised with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:      s.echo,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting HTTP server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve http")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down HTTP server")
		return errors.WithStack(srv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func registerRoutes(e *echo.Echo, h *handler, a auth) {
	e.GET("/health", h.health)

	books := e.Group("/books")
	{
		books.GET("", h.listBooks)
		books.GET("/available", h.listAvailableBooks)
		books.GET("/isbn/:isbn", h.getBookByISBN)
		books.GET("/:id", h.getBook)
		books.POST("", h.createBook, a.Admin)
		books.PATCH("/:id", h.updateBook, a.Admin)
		books.DELETE("/:id", h.deleteBook, a.Admin)
		books.POST("/:id/checkout", h.checkoutBook, a.Member)
		books.POST("/:id/return", h.returnBook, a.Member)
	}

	checkouts := e.Group("/checkouts")
	{
		checkouts.GET("/my", h.myCheckouts, a.Member)
		checkouts.GET("/history", h.myHistory, a.Member)
		checkouts.GET("/overdue", h.overdueCheckouts, a.Admin)
		checkouts.GET("/:id", h.getCheckout, a.Member)
	}

	members := e.Group("/members")
	{
		members.GET("/me", h.myProfile, a.Member)
		members.PATCH("/me", h.updateMyProfile, a.Member)
		members.POST("", h.createMember, a.Admin)
		members.GET("", h.listMembers, a.Admin)
		members.PATCH("/:id", h.updateMember, a.Admin)
		members.DELETE("/:id", h.deleteMember, a.Admin)
	}

	e.GET("/stats", h.stats, a.Admin)
}
