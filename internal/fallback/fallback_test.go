package fallback

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/providers"
)

type stubProvider struct {
	reply string
	err   error
	got   []providers.ChatRequest
}

func (s *stubProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	s.got = append(s.got, req)
	if s.err != nil {
		return nil, s.err
	}
	return &providers.ChatResponse{Content: s.reply}, nil
}

func (s *stubProvider) DefaultModel() string { return "stub" }
func (s *stubProvider) Name() string         { return "stub" }

func TestRespond(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		images []string
		prov   *stubProvider
		want   string
		calls  int
	}{
		{"reply", "hello", nil, &stubProvider{reply: "hi!"}, "hi!", 1},
		{"image only", "", []string{"http://x/a.png"}, &stubProvider{reply: "a cat"}, "a cat", 1},
		{"empty", "  ", nil, &stubProvider{reply: "x"}, DefaultEmptyReply, 0},
		{"provider error", "hello", nil, &stubProvider{err: &providers.HTTPError{Status: 500}}, Apology, 1},
		{"malformed", "hello", nil, &stubProvider{err: providers.ErrMalformedResponse}, Apology, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.prov, Config{})
			if got := d.Respond(context.Background(), tt.text, tt.images); got != tt.want {
				t.Errorf("Respond(%q) = %q, want %q", tt.text, got, tt.want)
			}
			if len(tt.prov.got) != tt.calls {
				t.Errorf("provider calls = %d, want %d", len(tt.prov.got), tt.calls)
			}
		})
	}
}

func TestRespond_NilProvider(t *testing.T) {
	if got := New(nil, Config{}).Respond(context.Background(), "hi", nil); got != Apology {
		t.Errorf("Respond() = %q, want %q", got, Apology)
	}
}

func TestComplete_EmptyPrompt(t *testing.T) {
	_, err := New(&stubProvider{}, Config{}).Complete(context.Background(), "", nil)
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("Complete() err = %v, want ErrEmptyPrompt", err)
	}
}

func TestBuildMessages(t *testing.T) {
	prov := &stubProvider{reply: "ok"}
	d := New(prov, Config{Model: "m", MaxCompletionTokens: 65535, ReasoningEffort: "medium"})
	d.Respond(context.Background(), " what is this ", []string{"http://a", "", "http://b"})

	req := prov.got[0]
	if req.Model != "m" || req.Options[providers.OptMaxCompletionTokens] != 65535 || req.Options[providers.OptReasoningEffort] != "medium" {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Parts[0].Text != DefaultSystemPrompt {
		t.Fatalf("messages = %+v", req.Messages)
	}
	user := req.Messages[1].Parts
	want := []providers.Part{providers.ImagePart("http://a"), providers.ImagePart("http://b"), providers.TextPart("what is this")}
	if !reflect.DeepEqual(user, want) {
		t.Errorf("user parts = %+v, want %+v", user, want)
	}
}

func TestExtractImageURLs(t *testing.T) {
	msg := bus.InboundMessage{Segments: []bus.Segment{
		bus.TextSegment(`look [CQ:image,file=a.jpg,url=https://img.example/a.jpg?x=1&amp;y=2]`),
		bus.ImageSegment("https://multimedia.nt.qq.com.cn/b"),
		bus.TextSegment(`url="http://c.example/c.png"`),
		bus.AtSegment("42"),
	}}
	want := []string{
		"https://img.example/a.jpg?x=1&y=2",
		"https://multimedia.nt.qq.com.cn/b",
		"http://c.example/c.png",
	}
	if got := ExtractImageURLs(msg); !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractImageURLs() = %v, want %v", got, want)
	}
}

func TestPromptText(t *testing.T) {
	msg := bus.InboundMessage{Segments: []bus.Segment{
		bus.AtSegment("1"), bus.TextSegment(" hello "), bus.ImageSegment("u"), bus.TextSegment(" world"),
	}}
	if got := PromptText(msg); got != "helloworld" {
		t.Errorf("PromptText() = %q, want %q", got, "helloworld")
	}
}
