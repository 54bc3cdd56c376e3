package handlers

import (
	"context"
	"testing"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/plugins"
	"github.com/mikann-OMO/bot/internal/providers"
)

func TestOrange(t *testing.T) {
	tests := []struct {
		name    string
		msg     bus.InboundMessage
		handled bool
		want    []string
	}{
		{"oi prefix", groupMsg("2", bus.TextSegment("OI 你好")), true, []string{Thinking, "AI says hi"}},
		{"bare oi", groupMsg("2", bus.TextSegment("oi")), true, []string{Thinking, orangeEmpty}},
		{"mention", groupMsg("2", bus.AtSegment(selfID), bus.TextSegment("hey")), true, []string{Thinking, "AI says hi"}},
		{"gpt empty", groupMsg("2", bus.TextSegment("#gpt")), true, []string{gptEmpty}},
		{"gpt image", groupMsg("2", bus.TextSegment("#gpt"), bus.ImageSegment("http://i")), true, []string{Thinking, "AI says hi"}},
		{"chat empty", groupMsg("2", bus.TextSegment("#chat")), true, []string{chatEmpty}},
		{"chat", groupMsg("2", bus.TextSegment("#chat 在吗")), true, []string{Thinking, "AI says hi"}},
		{"plain", groupMsg("2", bus.TextSegment("hello")), false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			bot := &fakeBot{}
			handled, err := NewOrange(f.fb, f.plugins).Handle(context.Background(), bot, tt.msg)
			if handled != tt.handled || err != nil {
				t.Fatalf("Handle() = %v, %v; want %v", handled, err, tt.handled)
			}
			assertTexts(t, bot.texts(), tt.want...)
		})
	}
}

func TestOrange_ClassifiedErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&providers.HTTPError{Status: 500}, "API调用失败，请稍后重试"},
		{context.DeadlineExceeded, "网络连接失败，请检查网络设置后重试"},
		{errSend, "系统错误，请联系管理员"},
	}
	for _, tt := range tests {
		f := newFixture(t)
		f.ai.err = tt.err
		bot := &fakeBot{}
		NewOrange(f.fb, f.plugins).Handle(context.Background(), bot, groupMsg("2", bus.TextSegment("oi hi")))
		assertTexts(t, bot.texts(), Thinking, tt.want)
	}
}

func TestOrange_Disabled(t *testing.T) {
	f := newFixture(t)
	_ = f.plugins.SetEnabled(context.Background(), plugins.Orange, false)
	handled, _ := NewOrange(f.fb, f.plugins).Handle(context.Background(), &fakeBot{}, groupMsg("2", bus.TextSegment("oi")))
	if handled {
		t.Error("disabled orange handled a message")
	}
}

func TestOnlineNotifier(t *testing.T) {
	n := NewOnlineNotifier("orange", NewOwners([]string{ownerID}))

	n.Notify(context.Background(), &fakeBot{err: errSend})
	if n.Sent() {
		t.Fatal("Sent() = true after failed send")
	}

	bot := &fakeBot{}
	n.Notify(context.Background(), bot)
	n.Notify(context.Background(), bot)
	got := bot.private[ownerID]
	if len(got) != 1 || got[0].Text != "orange已上线" {
		t.Errorf("private messages = %v", got)
	}

	other := NewOnlineNotifier("orange", NewOwners([]string{ownerID}))
	other.Notify(context.Background(), bot)
	if len(bot.private[ownerID]) != 2 {
		t.Error("separate notifier instances share state")
	}
}
