package onebot

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mikann-OMO/bot/pkg/protocol"
)

// handleReverse accepts a connection from the OneBot implementation. Each
// connection is an independent session keyed by the bot account it serves.
func (c *Channel) handleReverse(w http.ResponseWriter, r *http.Request) {
	if !c.authorized(r) {
		slog.Warn("onebot reverse connection rejected", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Warn("onebot websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	selfID := r.Header.Get(protocol.HeaderSelfID)
	id := "onebot:" + selfID
	if selfID == "" {
		id = "onebot:" + uuid.NewString()
	}

	sess := newSession(id, &coderTransport{conn: conn}, c.timeout)
	sess.setSelfID(selfID)

	c.mu.RLock()
	parent := c.runCtx
	c.mu.RUnlock()
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c.attach(sess)
	defer c.detach(sess)

	slog.Info("onebot reverse connection", "conn_id", id, "role", r.Header.Get(protocol.HeaderRole), "remote", r.RemoteAddr)
	go c.greet(ctx, sess)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				slog.Warn("onebot reverse read failed", "conn_id", id, "error", err)
			}
			return
		}
		c.handleFrame(sess, data)
	}
}

// authorized checks the access token sent as a bearer/token header or as
// the access_token query parameter.
func (c *Channel) authorized(r *http.Request) bool {
	want := c.config.AccessToken
	if want == "" {
		return true
	}
	got := r.URL.Query().Get("access_token")
	if auth := r.Header.Get("Authorization"); auth != "" {
		if _, tok, ok := strings.Cut(auth, " "); ok {
			got = tok
		}
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
