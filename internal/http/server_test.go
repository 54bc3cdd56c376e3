package http

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

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/channels"
	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/plugins"
)

type fakeChannels struct {
	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func (f *fakeChannels) GetStatus() []channels.ChannelStatus {
	return []channels.ChannelStatus{{Name: "onebot", Running: true}}
}

func (f *fakeChannels) Enqueue(msg bus.OutboundMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

type failingPersister struct{}

func (failingPersister) SaveKeywords(context.Context, keyword.State) error {
	return errors.New("disk full")
}

func newTestServer(t *testing.T, token string) (*Server, *keyword.Service, *fakeChannels) {
	t.Helper()
	svc := keyword.NewService(keyword.NewStore(), keyword.NewMemoryGate(time.Minute), nil)
	ps := plugins.NewState(map[string]bool{plugins.Keyword: true, plugins.Orange: true}, nil)
	fc := &fakeChannels{}
	mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := NewServer(Options{Token: token, Version: "test", Keywords: svc, Plugins: ps, Channels: fc, MCP: mcpHandler})
	return srv, svc, fc
}

func do(t *testing.T, srv *Server, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")

	tests := []struct {
		name   string
		method string
		target string
		token  string
		want   int
	}{
		{"health is public", http.MethodGet, "/healthz", "", http.StatusOK},
		{"metrics is public", http.MethodGet, "/metrics", "", http.StatusOK},
		{"missing token", http.MethodGet, "/api/v1/keywords", "", http.StatusUnauthorized},
		{"wrong token", http.MethodGet, "/api/v1/keywords", "nope", http.StatusUnauthorized},
		{"valid token", http.MethodGet, "/api/v1/keywords", "secret", http.StatusOK},
		{"mcp requires token", http.MethodPost, "/mcp", "", http.StatusUnauthorized},
		{"mcp with token", http.MethodPost, "/mcp", "secret", http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, srv, tt.method, tt.target, "", tt.token); rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.target, rec.Code, tt.want)
			}
		})
	}
}

func TestKeywordEndpoints(t *testing.T) {
	srv, svc, _ := newTestServer(t, "")

	rec := do(t, srv, http.MethodPost, "/api/v1/keywords", `{"table":"contains","keyword":"橘子","reply":"🍊"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST keywords = %d, body %s", rec.Code, rec.Body)
	}
	if rec := do(t, srv, http.MethodPost, "/api/v1/keywords", `{"table":"exact","keyword":"橘子","reply":"x"}`, ""); rec.Code != http.StatusConflict {
		t.Errorf("duplicate POST = %d, want 409", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/v1/keywords", `{"table":"weird","keyword":"a","reply":"b"}`, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid table POST = %d, want 400", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/v1/keywords", `{"table":"exact","keyword":"a","reply":""}`, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("empty reply POST = %d, want 400", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/keywords/counts", "", "")
	var counts map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &counts); err != nil {
		t.Fatalf("counts body %s: %v", rec.Body, err)
	}
	if counts["exact"] != 0 || counts["contains"] != 1 {
		t.Errorf("counts = %v, want exact 0 contains 1", counts)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/keywords", "", "")
	var list struct {
		Exact    []keyword.Entry `json:"exact"`
		Contains []keyword.Entry `json:"contains"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("list body %s: %v", rec.Body, err)
	}
	if list.Exact == nil || len(list.Contains) != 1 || list.Contains[0].Reply != "🍊" {
		t.Errorf("list = %+v", list)
	}

	if rec := do(t, srv, http.MethodDelete, "/api/v1/keywords?keyword=%E6%A9%98%E5%AD%90", "", ""); rec.Code != http.StatusOK {
		t.Errorf("DELETE = %d, body %s", rec.Code, rec.Body)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/v1/keywords?keyword=%E6%A9%98%E5%AD%90", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/v1/keywords", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("DELETE without keyword = %d, want 400", rec.Code)
	}
	if exact, contains := svc.Counts(); exact+contains != 0 {
		t.Errorf("Counts() = %d, %d after delete", exact, contains)
	}
}

func TestAddKeywordPersistFailure(t *testing.T) {
	svc := keyword.NewService(keyword.NewStore(), keyword.NewMemoryGate(time.Minute), failingPersister{})
	srv := NewServer(Options{Keywords: svc, Plugins: plugins.NewState(nil, nil)})

	rec := do(t, srv, http.MethodPost, "/api/v1/keywords", `{"table":"exact","keyword":"a","reply":"b"}`, "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("POST with failing store = %d, want 500", rec.Code)
	}
	if exact, _ := svc.Counts(); exact != 0 {
		t.Errorf("exact count = %d after failed save, want 0", exact)
	}
}

func TestGroupEndpoint(t *testing.T) {
	srv, svc, _ := newTestServer(t, "")

	rec := do(t, srv, http.MethodPut, "/api/v1/groups/777", `{"enabled":true}`, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"changed":true`) {
		t.Errorf("PUT group = %d %s", rec.Code, rec.Body)
	}
	if !svc.Store().IsGroupEnabled("777") {
		t.Error("group 777 not enabled")
	}
	if rec := do(t, srv, http.MethodPut, "/api/v1/groups/777", `{}`, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("PUT group without enabled = %d, want 400", rec.Code)
	}
}

func TestPluginEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	if rec := do(t, srv, http.MethodPut, "/api/v1/plugins/orange", `{"enabled":false}`, ""); rec.Code != http.StatusOK {
		t.Errorf("PUT plugin = %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, srv, http.MethodPut, "/api/v1/plugins/weather", `{"enabled":true}`, ""); rec.Code != http.StatusNotFound {
		t.Errorf("PUT unknown plugin = %d, want 404", rec.Code)
	}

	rec := do(t, srv, http.MethodGet, "/api/v1/plugins", "", "")
	var body struct {
		Plugins []plugins.Status `json:"plugins"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("plugins body %s: %v", rec.Body, err)
	}
	want := []plugins.Status{{Name: "keyword", Enabled: true}, {Name: "orange", Enabled: false}}
	if len(body.Plugins) != len(want) || body.Plugins[0] != want[0] || body.Plugins[1] != want[1] {
		t.Errorf("plugins = %+v, want %+v", body.Plugins, want)
	}
}

func TestMessageEndpoints(t *testing.T) {
	srv, _, fc := newTestServer(t, "")

	rec := do(t, srv, http.MethodGet, "/api/v1/channels", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"onebot"`) {
		t.Errorf("GET channels = %d %s", rec.Code, rec.Body)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/messages", `{"channel":"onebot","chat_id":"123","group":true,"text":"hi"}`, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST messages = %d %s", rec.Code, rec.Body)
	}
	if len(fc.sent) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(fc.sent))
	}
	got := fc.sent[0]
	if got.Scope != bus.Group("123") || got.Payload != bus.Text("hi") {
		t.Errorf("enqueued %+v", got)
	}

	if rec := do(t, srv, http.MethodPost, "/api/v1/messages", `{"channel":"onebot","chat_id":"1"}`, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("POST empty message = %d, want 400", rec.Code)
	}
}
