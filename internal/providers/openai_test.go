package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestProvider(url string) *OpenAIProvider {
	return NewOpenAIProvider("test", "sk-test", url, "m1", 2*time.Second).
		WithRetry(RetryConfig{Attempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

func TestChat_RequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"},"finish_reason":"stop"}],"usage":{"total_tokens":7}}`))
	}))
	defer srv.Close()

	resp, err := newTestProvider(srv.URL).Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Parts: []Part{ImagePart("http://x/a.png"), TextPart("look")}}},
		Options:  map[string]any{OptMaxCompletionTokens: 65535, OptReasoningEffort: "medium"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hi" || resp.Usage == nil || resp.Usage.TotalTokens != 7 {
		t.Errorf("resp = %+v", resp)
	}
	if got["model"] != "m1" || got["reasoning_effort"] != "medium" || got["max_completion_tokens"] != float64(65535) {
		t.Errorf("body = %v", got)
	}
	msgs := got["messages"].([]any)
	parts := msgs[0].(map[string]any)["content"].([]any)
	if parts[0].(map[string]any)["type"] != "image_url" || parts[1].(map[string]any)["text"] != "look" {
		t.Errorf("parts = %v", parts)
	}
}

func TestChat_MalformedResponse(t *testing.T) {
	bodies := []string{
		`{"choices":[]}`,
		`{"choices":[{"message":{"content":42}}]}`,
		`{"error":"x"}`,
		`not json`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := newTestProvider(srv.URL).Chat(context.Background(), ChatRequest{})
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("Chat() err = %v, want ErrMalformedResponse", err)
			}
			if Classify(err) != ClassAPI {
				t.Errorf("Classify() = %s, want api", Classify(err))
			}
			if calls.Load() != 1 {
				t.Errorf("calls = %d, want 1 (no retry)", calls.Load())
			}
		})
	}
}

func TestChat_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	resp, err := newTestProvider(srv.URL).Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "ok" || calls.Load() != 2 {
		t.Errorf("content = %q calls = %d", resp.Content, calls.Load())
	}
}

func TestChat_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL).Chat(context.Background(), ChatRequest{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("Chat() err = %v, want HTTP 401", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestChat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test", "k", srv.URL, "m", 20*time.Millisecond).WithRetry(RetryConfig{Attempts: 1})
	_, err := p.Chat(context.Background(), ChatRequest{})
	if Classify(err) != ClassNetwork {
		t.Errorf("Classify(%v) = %s, want network", err, Classify(err))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{&HTTPError{Status: 500}, ClassAPI},
		{ErrMalformedResponse, ClassAPI},
		{context.DeadlineExceeded, ClassNetwork},
		{errors.New("something"), ClassGeneral},
		{nil, ClassGeneral},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := ParseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("ParseRetryAfter(3) = %v", got)
	}
	if got := ParseRetryAfter(""); got != 0 {
		t.Errorf("ParseRetryAfter(\"\") = %v", got)
	}
	if got := ParseRetryAfter("junk"); got != 0 {
		t.Errorf("ParseRetryAfter(junk) = %v", got)
	}
}
