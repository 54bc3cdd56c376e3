package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mikann-OMO/bot/internal/bus"
)

type sendMessageRequest struct {
	Channel string `json:"channel"`
	ConnID  string `json:"conn_id"`
	ChatID  string `json:"chat_id"`
	Group   bool   `json:"group"`
	Text    string `json:"text"`
	Image   string `json:"image"` // remote URL
}

func (s *Server) handleChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"channels": s.opts.Channels.GetStatus()})
}

// handleSendMessage queues a text or image for delivery; the result is
// reported asynchronously through the send metrics.
func (s *Server) handleSendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid JSON"))
	}
	if req.Channel == "" || req.ChatID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("channel and chat_id are required"))
	}

	var payload bus.Payload
	switch {
	case req.Image != "":
		payload = bus.RemoteImage(req.Image)
	case req.Text != "":
		payload = bus.Text(req.Text)
	default:
		return c.JSON(http.StatusBadRequest, errorBody("text or image is required"))
	}

	scope := bus.Private()
	if req.Group {
		scope = bus.Group(req.ChatID)
	}
	s.opts.Channels.Enqueue(bus.OutboundMessage{
		Channel: req.Channel,
		ConnID:  req.ConnID,
		ChatID:  req.ChatID,
		Scope:   scope,
		Payload: payload,
	})
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}
