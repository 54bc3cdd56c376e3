// Package onebot connects the bot to QQ through a OneBot v11 implementation
// such as NapCat. Two transports are supported: forward, where the bot dials
// the implementation's WebSocket server, and reverse, where the implementation
// connects to a WebSocket endpoint served by the bot.
package onebot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/channels"
	"github.com/mikann-OMO/bot/internal/config"
	"github.com/mikann-OMO/bot/pkg/protocol"
)

const (
	ModeForward = "forward"
	ModeReverse = "reverse"

	forwardConnID = "onebot:forward"

	defaultActionTimeout = 30 * time.Second
	defaultReconnect     = 5 * time.Second
	maxReconnectBackoff  = 2 * time.Minute
	readTimeout          = 90 * time.Second
	pingInterval         = 30 * time.Second
	maxFrameSize         = 16 << 20
)

// Channel is the OneBot v11 adapter.
type Channel struct {
	*channels.BaseChannel
	config  config.OneBotConfig
	timeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
	runCtx   context.Context
	cancel   context.CancelFunc
	done     chan struct{} // closed when the forward loop exits
	server   *http.Server
}

// New creates a OneBot channel from config.
func New(cfg config.OneBotConfig, msgBus bus.MessageRouter) (*Channel, error) {
	switch cfg.Mode {
	case "", ModeForward:
		if cfg.WSURL == "" {
			return nil, fmt.Errorf("onebot: ws_url is required in forward mode")
		}
		cfg.Mode = ModeForward
	case ModeReverse:
		if cfg.Listen == "" {
			return nil, fmt.Errorf("onebot: listen is required in reverse mode")
		}
		if cfg.Path == "" {
			cfg.Path = "/onebot/v11/ws"
		}
	default:
		return nil, fmt.Errorf("onebot: unknown mode %q", cfg.Mode)
	}

	timeout := time.Duration(cfg.ActionTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("onebot", msgBus, cfg.AllowFrom),
		config:      cfg,
		timeout:     timeout,
		sessions:    make(map[string]*session),
		runCtx:      context.Background(),
	}, nil
}

// Start connects (forward) or begins listening (reverse). It does not block.
func (c *Channel) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.runCtx = runCtx
	c.cancel = cancel
	c.mu.Unlock()

	switch c.config.Mode {
	case ModeReverse:
		ln, err := net.Listen("tcp", c.config.Listen)
		if err != nil {
			cancel()
			return fmt.Errorf("onebot: listen %s: %w", c.config.Listen, err)
		}
		mux := http.NewServeMux()
		mux.HandleFunc(c.config.Path, c.handleReverse)
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		c.mu.Lock()
		c.server = srv
		c.mu.Unlock()

		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				slog.Error("onebot reverse server stopped", "error", err)
			}
		}()
		slog.Info("onebot reverse websocket listening", "addr", ln.Addr().String(), "path", c.config.Path)

	default:
		c.done = make(chan struct{})
		go c.runForward(runCtx)
		slog.Info("onebot forward websocket starting", "url", c.config.WSURL)
	}

	c.SetRunning(true)
	return nil
}

// Stop closes every connection and the reverse listener.
func (c *Channel) Stop(ctx context.Context) error {
	slog.Info("stopping onebot channel")
	c.SetRunning(false)

	c.mu.Lock()
	cancel, srv, done := c.cancel, c.server, c.done
	sessions := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, s := range sessions {
		_ = s.tr.close()
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("onebot reverse server shutdown", "error", err)
		}
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			slog.Warn("onebot forward loop did not exit within timeout")
		}
	}
	return nil
}

// Send delivers msg on the connection it names, or on any live connection.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	sess, err := c.pick(msg.ConnID)
	if err != nil {
		return err
	}
	action, params, err := buildSend(msg, c.loadLocal)
	if err != nil {
		return err
	}
	if _, err := sess.call(ctx, action, params); err != nil {
		return err
	}
	slog.Debug("onebot message sent", "action", action, "chat_id", msg.ChatID, "payload", channels.Truncate(msg.Payload.String(), 60))
	return nil
}

func (c *Channel) loadLocal(path string) (string, error) {
	data, err := channels.LoadImage(path, c.config.MaxImageDim)
	if err != nil {
		return "", err
	}
	return protocol.ImageBase64Prefix + base64.StdEncoding.EncodeToString(data), nil
}

// Sessions returns the IDs of live connections, sorted.
func (c *Channel) Sessions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Channel) pick(connID string) (*session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.sessions[connID]; ok {
		return s, nil
	}
	var ids []string
	for id := range c.sessions {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrNotConnected
	}
	sort.Strings(ids)
	return c.sessions[ids[0]], nil
}

// attach registers sess, replacing and closing any older session with the same ID.
func (c *Channel) attach(sess *session) {
	c.mu.Lock()
	old := c.sessions[sess.id]
	c.sessions[sess.id] = sess
	c.mu.Unlock()

	if old != nil {
		slog.Info("onebot connection replaced", "conn_id", sess.id)
		_ = old.tr.close()
	}
}

func (c *Channel) detach(sess *session) {
	c.mu.Lock()
	if c.sessions[sess.id] == sess {
		delete(c.sessions, sess.id)
	}
	c.mu.Unlock()

	sess.shutdown()
	_ = sess.tr.close()
	if sess.announced.Load() {
		c.Disconnected()
	}
	slog.Info("onebot connection closed", "conn_id", sess.id)
}

// greet resolves the bot account when the handshake did not carry it, then
// reports the connection as usable.
func (c *Channel) greet(ctx context.Context, sess *session) {
	if sess.SelfID() == "" {
		data, err := sess.call(ctx, protocol.ActionGetLoginInfo, nil)
		if err != nil {
			slog.Warn("onebot get_login_info failed", "conn_id", sess.id, "error", err)
		} else {
			var info struct {
				UserID   json.RawMessage `json:"user_id"`
				Nickname string          `json:"nickname"`
			}
			if err := json.Unmarshal(data, &info); err == nil {
				sess.setSelfID(parseID(info.UserID))
				slog.Info("onebot login info", "self_id", sess.SelfID(), "nickname", info.Nickname)
			}
		}
	}
	if ctx.Err() != nil {
		return
	}
	sess.announced.Store(true)
	c.Connected(ctx, sess.id, sess.SelfID())
}

// handleFrame routes one received frame. It never blocks on dispatch, so the
// read loop stays free to deliver action responses.
func (c *Channel) handleFrame(sess *session, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("onebot: invalid frame", "conn_id", sess.id, "error", err)
		return
	}

	if f.PostType == "" {
		echo := echoString(f.Echo)
		if echo == "" {
			slog.Debug("onebot frame without post_type or echo", "conn_id", sess.id)
			return
		}
		wording := f.Wording
		if wording == "" {
			wording = parseID(f.Message)
		}
		resp := actionResponse{Status: statusString(f.Status), RetCode: f.RetCode, Data: f.Data, Wording: wording}
		if !sess.resolve(echo, resp) {
			slog.Debug("onebot response without waiter", "conn_id", sess.id, "echo", echo)
		}
		return
	}

	switch f.PostType {
	case protocol.PostTypeMessage:
		msg, ok := toInbound(&f, sess.id, sess.SelfID())
		if !ok {
			slog.Debug("onebot message event skipped", "message_type", f.MessageType)
			return
		}
		sess.setSelfID(msg.SelfID)
		slog.Debug("onebot message received",
			"scope", string(msg.Scope.Kind),
			"chat_id", msg.ChatID,
			"sender_id", msg.SenderID,
			"text_preview", channels.Truncate(msg.PlainText(), 60),
		)
		c.HandleMessage(msg)

	case protocol.PostTypeMetaEvent:
		sess.setSelfID(parseID(f.SelfID))
		if f.MetaEventType == protocol.MetaEventLifecycle {
			slog.Info("onebot lifecycle event", "conn_id", sess.id, "sub_type", f.SubType)
		}

	default:
		slog.Debug("onebot event ignored", "post_type", f.PostType, "notice_type", f.NoticeType)
	}
}
