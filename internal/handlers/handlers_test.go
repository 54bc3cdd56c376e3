package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/fallback"
	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/plugins"
	"github.com/mikann-OMO/bot/internal/providers"
)

const (
	selfID  = "10000"
	ownerID = "1"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []bus.Payload
	private map[string][]bus.Payload
	err     error
}

func (b *fakeBot) SelfID() string { return selfID }

func (b *fakeBot) Send(_ context.Context, _ bus.InboundMessage, p bus.Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, p)
	return nil
}

func (b *fakeBot) SendPrivate(_ context.Context, userID string, p bus.Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if b.private == nil {
		b.private = map[string][]bus.Payload{}
	}
	b.private[userID] = append(b.private[userID], p)
	return nil
}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.sent))
	for i, p := range b.sent {
		out[i] = p.String()
	}
	return out
}

type stubAI struct {
	reply string
	err   error
	calls int
}

func (s *stubAI) Chat(context.Context, providers.ChatRequest) (*providers.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &providers.ChatResponse{Content: s.reply}, nil
}
func (s *stubAI) DefaultModel() string { return "stub" }
func (s *stubAI) Name() string         { return "stub" }

type fixture struct {
	svc     *keyword.Service
	matcher *keyword.Matcher
	plugins *plugins.State
	ai      *stubAI
	fb      *fallback.Dispatcher
	owners  Owners
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		svc:     keyword.NewService(keyword.NewStore(), keyword.NewMemoryGate(keyword.DefaultCooldown), nil),
		plugins: plugins.NewState(map[string]bool{plugins.Keyword: true, plugins.Orange: true}, nil),
		ai:      &stubAI{reply: "AI says hi"},
		owners:  NewOwners([]string{ownerID}),
		now:     time.Unix(1700000000, 0),
	}
	f.matcher = keyword.NewMatcher(f.svc.Store(), f.svc.Gate(), nil)
	f.matcher.SetClock(func() time.Time { return f.now })
	f.fb = fallback.New(f.ai, fallback.Config{})
	return f
}

func (f *fixture) keyword() *Keyword {
	return NewKeyword(f.svc, f.matcher, f.fb, f.owners)
}

func groupMsg(sender string, segs ...bus.Segment) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:  "onebot",
		SelfID:   selfID,
		SenderID: sender,
		ChatID:   "500",
		Scope:    bus.Group("500"),
		Segments: segs,
	}
}

func privateMsg(sender string, segs ...bus.Segment) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:  "onebot",
		SelfID:   selfID,
		SenderID: sender,
		ChatID:   sender,
		Scope:    bus.Private(),
		Segments: segs,
	}
}

func assertTexts(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("sent = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

var errSend = errors.New("send failed")
