package cmd

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mikann-OMO/bot/internal/bus"
)

func TestConnWorkers_OrderPerConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	got := map[string][]string{}
	var done sync.WaitGroup

	w := newConnWorkers(ctx, func(_ context.Context, msg bus.InboundMessage) {
		defer done.Done()
		if msg.ConnID == "a" {
			time.Sleep(time.Millisecond)
		}
		mu.Lock()
		got[msg.ConnID] = append(got[msg.ConnID], msg.MessageID)
		mu.Unlock()
	})

	const n = 100
	done.Add(2 * n)
	for i := 0; i < n; i++ {
		id := strconv.Itoa(i)
		w.submit(bus.InboundMessage{Channel: "onebot", ConnID: "a", MessageID: id})
		w.submit(bus.InboundMessage{Channel: "onebot", ConnID: "b", MessageID: id})
	}
	done.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, conn := range []string{"a", "b"} {
		if len(got[conn]) != n {
			t.Fatalf("conn %s dispatched %d messages, want %d", conn, len(got[conn]), n)
		}
		for i, id := range got[conn] {
			if id != strconv.Itoa(i) {
				t.Errorf("conn %s message %d = %s, want %d", conn, i, id, i)
				break
			}
		}
	}
}

func TestConnWorkers_ConnectionsRunConcurrently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	dispatched := make(chan string, 2)

	w := newConnWorkers(ctx, func(_ context.Context, msg bus.InboundMessage) {
		dispatched <- msg.ConnID
		if msg.ConnID == "slow" {
			<-release
		}
	})

	w.submit(bus.InboundMessage{Channel: "onebot", ConnID: "slow"})
	w.submit(bus.InboundMessage{Channel: "onebot", ConnID: "fast"})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-dispatched:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("dispatched = %v, want both connections while slow is blocked", seen)
		}
	}
	close(release)
}

func TestConnWorkers_IdleExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan struct{}, 2)
	w := newConnWorkers(ctx, func(context.Context, bus.InboundMessage) { handled <- struct{}{} })
	w.idle = 20 * time.Millisecond

	w.submit(bus.InboundMessage{Channel: "telegram", ConnID: "telegram"})
	<-handled

	deadline := time.Now().Add(2 * time.Second)
	for w.active() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("active() = %d after idle timeout, want 0", w.active())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A new message restarts the worker.
	w.submit(bus.InboundMessage{Channel: "telegram", ConnID: "telegram"})
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("message after idle exit was not dispatched")
	}
}

func TestConnWorkers_WaitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := newConnWorkers(ctx, func(context.Context, bus.InboundMessage) {})
	w.submit(bus.InboundMessage{Channel: "discord", ConnID: "discord"})
	cancel()

	waited := make(chan struct{})
	go func() {
		w.wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("wait() did not return after cancel")
	}
}
