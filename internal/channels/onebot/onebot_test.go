package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	gorilla "github.com/gorilla/websocket"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/channels"
	"github.com/mikann-OMO/bot/internal/config"
)

func consume(t *testing.T, b *bus.MessageBus) bus.InboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no inbound message")
	}
	return msg
}

func waitSessions(t *testing.T, c *Channel, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(c.Sessions()) != n {
		if time.Now().After(deadline) {
			t.Fatalf("Sessions() = %v, want %d", c.Sessions(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewValidatesMode(t *testing.T) {
	if _, err := New(config.OneBotConfig{}, bus.New()); err == nil {
		t.Error("forward mode without ws_url should fail")
	}
	if _, err := New(config.OneBotConfig{Mode: ModeReverse}, bus.New()); err == nil {
		t.Error("reverse mode without listen should fail")
	}
	if _, err := New(config.OneBotConfig{Mode: "http"}, bus.New()); err == nil {
		t.Error("unknown mode should fail")
	}
	c, err := New(config.OneBotConfig{Mode: ModeReverse, Listen: "127.0.0.1:0"}, bus.New())
	if err != nil {
		t.Fatal(err)
	}
	if c.config.Path != "/onebot/v11/ws" {
		t.Errorf("default path = %q", c.config.Path)
	}
}

func TestReverseConnection(t *testing.T) {
	b := bus.New()
	c, err := New(config.OneBotConfig{Mode: ModeReverse, Listen: "127.0.0.1:0", AccessToken: "secret"}, b)
	if err != nil {
		t.Fatal(err)
	}

	connected := make(chan channels.ConnectEvent, 1)
	c.SetOnConnect(func(_ context.Context, ev channels.ConnectEvent) { connected <- ev })

	srv := httptest.NewServer(http.HandlerFunc(c.handleReverse))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, resp, err := websocket.Dial(ctx, wsURL, nil); err == nil {
		t.Fatal("dial without token should be rejected")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	header.Set("X-Self-ID", "10000")
	header.Set("X-Client-Role", "Universal")
	client, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close(websocket.StatusNormalClosure, "")

	select {
	case ev := <-connected:
		if ev.ConnID != "onebot:10000" || ev.SelfID != "10000" {
			t.Errorf("connect event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connect callback not fired")
	}

	event := `{"post_type":"message","message_type":"group","self_id":10000,"user_id":42,"group_id":777,"message_id":5,"raw_message":"早安","message":[{"type":"text","data":{"text":"早安"}}]}`
	if err := client.Write(ctx, websocket.MessageText, []byte(event)); err != nil {
		t.Fatal(err)
	}
	msg := consume(t, b)
	if msg.Channel != "onebot" || msg.ConnID != "onebot:10000" || msg.ChatID != "777" || msg.PlainText() != "早安" {
		t.Errorf("inbound = %+v", msg)
	}

	// Act as the implementation: answer the send action.
	done := make(chan error, 1)
	go func() {
		done <- c.Send(ctx, bus.OutboundMessage{Channel: "onebot", ConnID: "onebot:10000", ChatID: "777", Scope: bus.Group("777"), Payload: bus.Text("早上好")})
	}()

	_, data, err := client.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var req struct {
		Action string         `json:"action"`
		Params map[string]any `json:"params"`
		Echo   string         `json:"echo"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatal(err)
	}
	if req.Action != "send_group_msg" || req.Params["group_id"] != float64(777) || req.Echo == "" {
		t.Errorf("action = %+v", req)
	}
	reply := `{"status":"ok","retcode":0,"data":{"message_id":9},"echo":"` + req.Echo + `"}`
	if err := client.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Errorf("Send() error = %v", err)
	}

	// A failed response surfaces as ActionError.
	go func() {
		done <- c.Send(ctx, bus.OutboundMessage{ChatID: "42", Scope: bus.Private(), Payload: bus.Text("x")})
	}()
	_, data, err = client.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_ = json.Unmarshal(data, &req)
	failed := `{"status":"failed","retcode":100,"wording":"no friend","data":null,"echo":"` + req.Echo + `"}`
	if err := client.Write(ctx, websocket.MessageText, []byte(failed)); err != nil {
		t.Fatal(err)
	}
	var aerr *ActionError
	if err := <-done; !errors.As(err, &aerr) || aerr.RetCode != 100 || aerr.Wording != "no friend" {
		t.Errorf("Send() error = %v, want ActionError 100", err)
	}

	client.Close(websocket.StatusNormalClosure, "")
	waitSessions(t, c, 0)

	if err := c.Send(ctx, bus.OutboundMessage{ChatID: "1", Payload: bus.Text("x")}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() after disconnect = %v, want ErrNotConnected", err)
	}
}

// fakeImplementation is a forward-mode OneBot server answering get_login_info.
func fakeImplementation(token string, events chan<- []byte, outgoing <-chan string) *httptest.Server {
	upgrader := gorilla.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		write := func(s string) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteMessage(gorilla.TextMessage, []byte(s))
		}

		go func() {
			for ev := range outgoing {
				if err := write(ev); err != nil {
					return
				}
			}
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req actionRequest
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			events <- data
			if req.Action == "get_login_info" {
				resp := `{"status":"ok","retcode":0,"data":{"user_id":10000,"nickname":"mikann"},"echo":"` + req.Echo + `"}`
				if err := write(resp); err != nil {
					return
				}
			}
		}
	}))
}

func TestForwardConnection(t *testing.T) {
	actions := make(chan []byte, 8)
	outgoing := make(chan string, 8)
	srv := fakeImplementation("tok", actions, outgoing)
	defer srv.Close()
	defer close(outgoing)

	b := bus.New()
	c, err := New(config.OneBotConfig{WSURL: "ws" + strings.TrimPrefix(srv.URL, "http"), AccessToken: "tok", ReconnectInterval: 1}, b)
	if err != nil {
		t.Fatal(err)
	}
	connected := make(chan channels.ConnectEvent, 1)
	c.SetOnConnect(func(_ context.Context, ev channels.ConnectEvent) { connected <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.Stop(context.Background())

	select {
	case ev := <-connected:
		if ev.ConnID != forwardConnID || ev.SelfID != "10000" {
			t.Errorf("connect event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("forward connection not announced")
	}
	if first := <-actions; !strings.Contains(string(first), "get_login_info") {
		t.Errorf("first action = %s, want get_login_info", first)
	}

	outgoing <- `{"post_type":"message","message_type":"private","user_id":42,"message":"[CQ:image,file=a.jpg,url=https://q/a.jpg]看看"}`
	msg := consume(t, b)
	if msg.ConnID != forwardConnID || msg.SelfID != "10000" || msg.ChatID != "42" {
		t.Errorf("inbound = %+v", msg)
	}
	if urls := msg.ImageURLs(); len(urls) != 1 || urls[0] != "https://q/a.jpg" {
		t.Errorf("ImageURLs() = %v", urls)
	}
	if !c.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
}
