package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/mikann-OMO/bot/pkg/protocol"
)

// ErrNotConnected is returned when no OneBot connection can carry an action.
var ErrNotConnected = errors.New("onebot: not connected")

// transport writes text frames on one WebSocket connection.
type transport interface {
	write(ctx context.Context, data []byte) error
	close() error
}

// gorillaTransport serializes writes on a forward (client) connection.
type gorillaTransport struct {
	conn *gorilla.Conn
	mu   sync.Mutex
}

func (t *gorillaTransport) write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	_ = t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(gorilla.TextMessage, data)
}

func (t *gorillaTransport) ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteControl(gorilla.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (t *gorillaTransport) close() error { return t.conn.Close() }

// coderTransport wraps a reverse (server side) connection.
type coderTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *coderTransport) write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *coderTransport) close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

// session is one live OneBot connection. Actions are correlated with their
// responses through the echo field.
type session struct {
	id        string
	tr        transport
	timeout   time.Duration
	announced atomic.Bool // Connected was reported for this session

	mu      sync.Mutex
	selfID  string
	pending map[string]chan actionResponse
	closed  bool
}

func newSession(id string, tr transport, timeout time.Duration) *session {
	return &session{
		id:      id,
		tr:      tr,
		timeout: timeout,
		pending: make(map[string]chan actionResponse),
	}
}

func (s *session) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

func (s *session) setSelfID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.selfID = id
	s.mu.Unlock()
}

// call sends an action and waits for its response.
func (s *session) call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	echo := uuid.NewString()
	ch := make(chan actionResponse, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	s.pending[echo] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, echo)
		s.mu.Unlock()
	}()

	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(actionRequest{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.tr.write(ctx, data); err != nil {
		return nil, fmt.Errorf("write %s: %w", action, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		if resp.Status == protocol.StatusFailed || (resp.Status == "" && resp.RetCode != 0) {
			return nil, &ActionError{Action: action, RetCode: resp.RetCode, Wording: resp.Wording}
		}
		return resp.Data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", action, ctx.Err())
	}
}

// resolve delivers an action response to its waiter and reports whether one existed.
func (s *session) resolve(echo string, resp actionResponse) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.pending[echo]
	if !ok {
		return false
	}
	select {
	case ch <- resp:
	default:
	}
	return true
}

// shutdown fails every pending call and rejects new ones.
func (s *session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for echo, ch := range s.pending {
		close(ch)
		delete(s.pending, echo)
	}
}
