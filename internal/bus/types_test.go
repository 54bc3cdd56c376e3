package bus

import (
	"reflect"
	"testing"
)

func TestInboundMessage_PlainText(t *testing.T) {
	tests := []struct {
		name string
		segs []Segment
		want string
	}{
		{"text only", []Segment{TextSegment("  ping ")}, "ping"},
		{"mention stripped", []Segment{AtSegment("42"), TextSegment(" 你好")}, "你好"},
		{"image ignored", []Segment{TextSegment("看"), ImageSegment("https://x/a.png"), TextSegment("图")}, "看图"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := InboundMessage{Segments: tt.segs}
			if got := msg.PlainText(); got != tt.want {
				t.Errorf("PlainText(%v) = %q, want %q", tt.segs, got, tt.want)
			}
		})
	}
}

func TestInboundMessage_MentionsSelf(t *testing.T) {
	tests := []struct {
		name   string
		selfID string
		segs   []Segment
		want   bool
	}{
		{"mentions bot", "42", []Segment{AtSegment("42"), TextSegment("hi")}, true},
		{"mentions other user", "42", []Segment{AtSegment("7")}, false},
		{"text containing id", "42", []Segment{TextSegment("@42")}, false},
		{"unknown self id", "", []Segment{AtSegment("")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := InboundMessage{SelfID: tt.selfID, Segments: tt.segs}
			if got := msg.MentionsSelf(); got != tt.want {
				t.Errorf("MentionsSelf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInboundMessage_ImageURLs(t *testing.T) {
	msg := InboundMessage{Segments: []Segment{
		ImageSegment("https://a/1.png"),
		TextSegment("x"),
		{Type: SegmentImage, File: "abc.image"},
		ImageSegment("https://a/2.jpg"),
	}}
	want := []string{"https://a/1.png", "https://a/2.jpg"}
	if got := msg.ImageURLs(); !reflect.DeepEqual(got, want) {
		t.Errorf("ImageURLs() = %v, want %v", got, want)
	}
}

func TestScope(t *testing.T) {
	if !Group("123").IsGroup() {
		t.Error("Group(123).IsGroup() = false, want true")
	}
	if Private().IsGroup() {
		t.Error("Private().IsGroup() = true, want false")
	}
}
