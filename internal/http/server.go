// Package http serves the admin API: keyword tables, group scope, plugin
// state, channel status, Prometheus metrics and the MCP endpoint.
package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/channels"
	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/metrics"
	"github.com/mikann-OMO/bot/internal/plugins"
)

const shutdownTimeout = 5 * time.Second

// ChannelManager is the subset of channels.Manager used by the API.
type ChannelManager interface {
	GetStatus() []channels.ChannelStatus
	Enqueue(msg bus.OutboundMessage)
}

// Options wires the API to the running components. Channels and MCP may be
// nil; their routes are then not registered.
type Options struct {
	Token    string
	Version  string
	Keywords *keyword.Service
	Plugins  *plugins.State
	Channels ChannelManager
	MCP      http.Handler
}

// Server is the admin API.
type Server struct {
	echo     *echo.Echo
	opts     Options
	started  time.Time
	keywords *keyword.Service
	plugins  *plugins.State
}

// NewServer builds the echo router.
func NewServer(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("http request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s := &Server{
		echo:     e,
		opts:     opts,
		started:  time.Now(),
		keywords: opts.Keywords,
		plugins:  opts.Plugins,
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	api := e.Group("/api/v1", s.auth)
	api.GET("/keywords", s.handleListKeywords)
	api.POST("/keywords", s.handleAddKeyword)
	api.DELETE("/keywords", s.handleRemoveKeyword)
	api.GET("/keywords/counts", s.handleCounts)
	api.PUT("/groups/:id", s.handleSetGroup)
	api.GET("/plugins", s.handleListPlugins)
	api.PUT("/plugins/:name", s.handleSetPlugin)
	if opts.Channels != nil {
		api.GET("/channels", s.handleChannels)
		api.POST("/messages", s.handleSendMessage)
	}

	if opts.MCP != nil {
		e.Any("/mcp", echo.WrapHandler(opts.MCP), s.auth)
	}

	return s
}

// Handler returns the API as a plain http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	slog.Info("admin api listening", "addr", ln.Addr().String())
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown admin api: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// auth requires "Authorization: Bearer <token>" when a token is configured.
func (s *Server) auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.opts.Token == "" {
			return next(c)
		}
		got := extractBearerToken(c.Request())
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Token)) != 1 {
			return c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
		}
		return next(c)
	}
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.opts.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}
