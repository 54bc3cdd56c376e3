package onebot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gorilla "github.com/gorilla/websocket"
)

// runForward keeps a client connection to the OneBot server alive,
// reconnecting with exponential backoff until ctx is done.
func (c *Channel) runForward(ctx context.Context) {
	defer close(c.done)

	base := time.Duration(c.config.ReconnectInterval) * time.Second
	if base <= 0 {
		base = defaultReconnect
	}
	backoff := base

	for {
		connected, err := c.connectForward(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = base
		}
		slog.Warn("onebot connection lost, reconnecting", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if !connected {
			backoff = min(backoff*2, maxReconnectBackoff)
		}
	}
}

// connectForward dials once and serves the connection until it drops.
// connected reports whether the dial succeeded.
func (c *Channel) connectForward(ctx context.Context) (connected bool, err error) {
	header := http.Header{}
	if c.config.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.config.AccessToken)
	}

	dialer := gorilla.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, _, err := dialer.DialContext(ctx, c.config.WSURL, header)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.config.WSURL, err)
	}
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	tr := &gorillaTransport{conn: conn}
	sess := newSession(forwardConnID, tr, c.timeout)
	c.attach(sess)
	defer c.detach(sess)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock ReadMessage when the channel stops.
	go func() {
		<-connCtx.Done()
		_ = tr.close()
	}()
	go c.pinger(connCtx, tr)
	go c.greet(connCtx, sess)

	slog.Info("onebot websocket connected", "url", c.config.WSURL)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		c.handleFrame(sess, data)
	}
}

func (c *Channel) pinger(ctx context.Context, tr *gorillaTransport) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tr.ping(); err != nil {
				slog.Debug("onebot ping failed", "error", err)
				return
			}
		}
	}
}
