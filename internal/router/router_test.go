package router

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/mikann-OMO/bot/internal/bus"
)

type nopBot struct{}

func (nopBot) SelfID() string { return "1" }
func (nopBot) Send(context.Context, bus.InboundMessage, bus.Payload) error {
	return nil
}
func (nopBot) SendPrivate(context.Context, string, bus.Payload) error { return nil }

type staticGate map[string]bool

func (g staticGate) IsEnabled(name string) bool { return g[name] }

// recorder returns a handler that appends name to calls and returns result.
func recorder(calls *[]string, name string, result bool) Handler {
	return HandlerFunc(func(context.Context, Bot, bus.InboundMessage) (bool, error) {
		*calls = append(*calls, name)
		return result, nil
	})
}

func TestDispatch_ShortCircuit(t *testing.T) {
	var calls []string
	r := New(nil)
	r.RegisterHandler("B", recorder(&calls, "B", true), 50)
	r.RegisterHandler("A", recorder(&calls, "A", true), 10)

	if !r.Dispatch(context.Background(), nopBot{}, bus.InboundMessage{}) {
		t.Fatal("Dispatch() = false, want true")
	}
	if want := []string{"A"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestDispatch_Order(t *testing.T) {
	var calls []string
	r := New(nil)
	r.RegisterHandler("c", recorder(&calls, "c", false), 60)
	r.RegisterHandler("a1", recorder(&calls, "a1", false), 10)
	r.RegisterHandler("b", recorder(&calls, "b", false), 50)
	r.RegisterHandler("a2", recorder(&calls, "a2", false), 10)

	if r.Dispatch(context.Background(), nopBot{}, bus.InboundMessage{}) {
		t.Fatal("Dispatch() = true, want false")
	}
	want := []string{"a1", "a2", "b", "c"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if got := r.Handlers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Handlers() = %v, want %v", got, want)
	}
}

func TestDispatch_FaultIsolation(t *testing.T) {
	tests := []struct {
		name   string
		faulty Handler
	}{
		{"error", HandlerFunc(func(context.Context, Bot, bus.InboundMessage) (bool, error) {
			return true, errors.New("boom")
		})},
		{"panic", HandlerFunc(func(context.Context, Bot, bus.InboundMessage) (bool, error) {
			panic("boom")
		})},
		{"nil map write", HandlerFunc(func(context.Context, Bot, bus.InboundMessage) (bool, error) {
			var m map[string]int
			m["x"] = 1
			return true, nil
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			r := New(nil)
			r.RegisterHandler("faulty", tt.faulty, 10)
			r.RegisterHandler("later", recorder(&calls, "later", true), 50)

			if !r.Dispatch(context.Background(), nopBot{}, bus.InboundMessage{}) {
				t.Fatal("Dispatch() = false, want true from later handler")
			}
			if len(calls) != 1 {
				t.Errorf("later handler calls = %d, want 1", len(calls))
			}
		})
	}
}

func TestDispatch_PluginGate(t *testing.T) {
	var calls []string
	r := New(staticGate{"keyword": false})
	r.RegisterHandler("A", recorder(&calls, "A", true), 10)

	if r.Dispatch(context.Background(), nopBot{}, bus.InboundMessage{}) {
		t.Error("Dispatch() with disabled gate plugin = true, want false")
	}
	if len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}

	r = New(staticGate{"keyword": true})
	r.RegisterHandler("A", recorder(&calls, "A", true), 10)
	if !r.Dispatch(context.Background(), nopBot{}, bus.InboundMessage{}) {
		t.Error("Dispatch() with enabled gate plugin = false, want true")
	}
}

func TestDispatch_CommandsRunAheadOfGate(t *testing.T) {
	var calls []string
	gate := staticGate{"keyword": false}
	r := New(gate)
	r.RegisterHandler("keyword", recorder(&calls, "keyword", true), 50)
	r.RegisterCommand("admin", HandlerFunc(func(_ context.Context, _ Bot, msg bus.InboundMessage) (bool, error) {
		calls = append(calls, "admin")
		return msg.PlainText() == "#admin", nil
	}), 10)

	if got, want := r.Handlers(), []string{"admin", "keyword"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Handlers() = %v, want %v", got, want)
	}

	cmd := bus.InboundMessage{Segments: []bus.Segment{bus.TextSegment("#admin")}}
	if !r.Dispatch(context.Background(), nopBot{}, cmd) {
		t.Error("Dispatch(command) with disabled gate = false, want true")
	}
	other := bus.InboundMessage{Segments: []bus.Segment{bus.TextSegment("hello")}}
	if r.Dispatch(context.Background(), nopBot{}, other) {
		t.Error("Dispatch(text) with disabled gate = true, want false")
	}
	if want := []string{"admin", "admin"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}

	gate["keyword"] = true
	calls = nil
	if !r.Dispatch(context.Background(), nopBot{}, other) {
		t.Error("Dispatch(text) with enabled gate = false, want true")
	}
	if want := []string{"admin", "keyword"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestDispatch_EmptyChain(t *testing.T) {
	if New(nil).Dispatch(context.Background(), nopBot{}, bus.InboundMessage{}) {
		t.Error("Dispatch() on empty chain = true, want false")
	}
}

func TestRegisterHandler_Concurrent(t *testing.T) {
	r := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.RegisterHandler("h", HandlerFunc(func(context.Context, Bot, bus.InboundMessage) (bool, error) {
				return false, nil
			}), i%5)
		}(i)
		go func() {
			defer wg.Done()
			r.Dispatch(context.Background(), nopBot{}, bus.InboundMessage{})
		}()
	}
	wg.Wait()
	if got := len(r.Handlers()); got != 50 {
		t.Errorf("len(Handlers()) = %d, want 50", got)
	}
}
