package bus

import (
	"context"
	"testing"
	"time"
)

func TestDedupeCache_IsDuplicate(t *testing.T) {
	now := time.Unix(1000, 0)
	d := NewDedupeCache(time.Minute, 10)
	d.now = func() time.Time { return now }

	if d.IsDuplicate("a") {
		t.Fatal("first IsDuplicate(a) = true, want false")
	}
	if !d.IsDuplicate("a") {
		t.Fatal("second IsDuplicate(a) = false, want true")
	}
	if d.IsDuplicate("") {
		t.Fatal("IsDuplicate(\"\") = true, want false")
	}

	now = now.Add(2 * time.Minute)
	if d.IsDuplicate("a") {
		t.Fatal("IsDuplicate(a) after ttl = true, want false")
	}
}

func TestDedupeCache_BoundedSize(t *testing.T) {
	d := NewDedupeCache(time.Hour, 3)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		d.IsDuplicate(k)
	}
	if got := d.Len(); got > 3 {
		t.Errorf("Len() = %d, want <= 3", got)
	}
}

func TestMessageBus_InboundRoundTrip(t *testing.T) {
	b := NewWithBuffer(1)
	b.PublishInbound(InboundMessage{MessageID: "1"})
	b.PublishInbound(InboundMessage{MessageID: "2"}) // dropped: queue full

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := b.ConsumeInbound(ctx)
	if !ok || msg.MessageID != "1" {
		t.Fatalf("ConsumeInbound() = %q, %v, want %q, true", msg.MessageID, ok, "1")
	}

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	if _, ok := b.ConsumeInbound(short); ok {
		t.Error("ConsumeInbound() on empty queue returned ok, want false after ctx done")
	}
}
