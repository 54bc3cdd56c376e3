package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mikann-OMO/bot/internal/keyword"
)

type addKeywordRequest struct {
	Table   string `json:"table"`
	Keyword string `json:"keyword"`
	Reply   string `json:"reply"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleListKeywords(c echo.Context) error {
	st := s.keywords.State()
	return c.JSON(http.StatusOK, map[string]any{
		"exact":         nonNil(st.Exact),
		"contains":      nonNil(st.Contains),
		"enable_groups": st.EnableGroups,
		"cooldown_ms":   st.CooldownTime,
	})
}

func nonNil(entries []keyword.Entry) []keyword.Entry {
	if entries == nil {
		return []keyword.Entry{}
	}
	return entries
}

func (s *Server) handleAddKeyword(c echo.Context) error {
	var req addKeywordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid JSON"))
	}
	table, err := keyword.ParseTable(req.Table)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("table must be exact or contains"))
	}
	req.Keyword = strings.TrimSpace(req.Keyword)

	err = s.keywords.AddKeyword(c.Request().Context(), table, keyword.Entry{Pattern: req.Keyword, Reply: req.Reply})
	switch {
	case errors.Is(err, keyword.ErrEmptyKeyword):
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, keyword.ErrDuplicateKeyword):
		return c.JSON(http.StatusConflict, errorBody("keyword already exists"))
	case err != nil:
		slog.Error("http.keywords.add", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to save keyword"))
	}
	return c.JSON(http.StatusCreated, map[string]string{"table": table.String(), "keyword": req.Keyword})
}

func (s *Server) handleRemoveKeyword(c echo.Context) error {
	pattern := c.QueryParam("keyword")
	if pattern == "" {
		return c.JSON(http.StatusBadRequest, errorBody("keyword query parameter required"))
	}

	table, err := s.keywords.RemoveKeyword(c.Request().Context(), pattern)
	switch {
	case errors.Is(err, keyword.ErrKeywordNotFound):
		return c.JSON(http.StatusNotFound, errorBody("keyword not found"))
	case err != nil:
		slog.Error("http.keywords.remove", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to save keyword tables"))
	}
	return c.JSON(http.StatusOK, map[string]string{"table": table.String(), "keyword": pattern})
}

func (s *Server) handleCounts(c echo.Context) error {
	exact, contains := s.keywords.Counts()
	return c.JSON(http.StatusOK, map[string]int{"exact": exact, "contains": contains})
}

func (s *Server) handleSetGroup(c echo.Context) error {
	groupID := c.Param("id")
	var req toggleRequest
	if err := c.Bind(&req); err != nil || req.Enabled == nil {
		return c.JSON(http.StatusBadRequest, errorBody(`body must be {"enabled": true|false}`))
	}

	changed, err := s.keywords.SetGroupEnabled(c.Request().Context(), groupID, *req.Enabled)
	if err != nil {
		slog.Error("http.groups.set", "group", groupID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to save group scope"))
	}
	return c.JSON(http.StatusOK, map[string]any{"group_id": groupID, "enabled": *req.Enabled, "changed": changed})
}
