package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mikann-OMO/bot/internal/plugins"
)

func (s *Server) handleListPlugins(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"plugins": s.plugins.List()})
}

func (s *Server) handleSetPlugin(c echo.Context) error {
	name := c.Param("name")
	var req toggleRequest
	if err := c.Bind(&req); err != nil || req.Enabled == nil {
		return c.JSON(http.StatusBadRequest, errorBody(`body must be {"enabled": true|false}`))
	}

	err := s.plugins.SetEnabled(c.Request().Context(), name, *req.Enabled)
	switch {
	case errors.Is(err, plugins.ErrUnknownPlugin):
		return c.JSON(http.StatusNotFound, errorBody("unknown plugin"))
	case err != nil:
		slog.Error("http.plugins.set", "plugin", name, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to save plugin state"))
	}
	return c.JSON(http.StatusOK, plugins.Status{Name: name, Enabled: *req.Enabled})
}
