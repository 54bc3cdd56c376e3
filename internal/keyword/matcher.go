package keyword

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/unicode/norm"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/metrics"
)

var tracer = otel.Tracer("github.com/mikann-OMO/bot/internal/keyword")

// AddressMode says whether the bot was explicitly addressed.
type AddressMode int

const (
	Implicit AddressMode = iota
	DirectMention
)

func (m AddressMode) String() string {
	if m == DirectMention {
		return "direct"
	}
	return "implicit"
}

// AddressModeOf derives the address mode from the message's mention segments.
func AddressModeOf(msg bus.InboundMessage) AddressMode {
	if msg.MentionsSelf() {
		return DirectMention
	}
	return Implicit
}

// Normalize prepares message text for matching: NFC composition, then trimming.
func Normalize(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}

// Match is a fired keyword and its rendered reply.
type Match struct {
	Table   Table
	Entry   Entry
	Payload bus.Payload
}

// Matcher runs one matching pass per message over a Store snapshot.
type Matcher struct {
	store    *Store
	gate     Gate
	resolver *ReplyResolver
	now      func() time.Time
}

// NewMatcher creates a matcher. A nil resolver uses the local filesystem.
func NewMatcher(store *Store, gate Gate, resolver *ReplyResolver) *Matcher {
	if resolver == nil {
		resolver = NewReplyResolver()
	}
	return &Matcher{store: store, gate: gate, resolver: resolver, now: time.Now}
}

// SetClock replaces the time source used for cooldown decisions.
func (m *Matcher) SetClock(now func() time.Time) { m.now = now }

// Match returns the first entry that matches text and passes the cooldown
// gate. Exact entries are tried before contains entries, each in insertion
// order. A match suppressed by the cooldown does not stop the scan.
//
// When nothing fires and mode is DirectMention the caller is expected to
// hand the message to the AI fallback.
func (m *Matcher) Match(ctx context.Context, text string, mode AddressMode) (Match, bool) {
	ctx, span := tracer.Start(ctx, "keyword.match")
	defer span.End()

	text = Normalize(text)
	snap := m.store.Snapshot()
	bypass := mode == DirectMention

	for _, pass := range []struct {
		table Table
		rules []Rule
		test  func(Rule, string) bool
	}{
		{Exact, snap.Exact, Rule.matchExact},
		{Contains, snap.Contains, Rule.matchContains},
	} {
		for _, rule := range pass.rules {
			if !pass.test(rule, text) {
				continue
			}
			if !m.gate.TryFire(ctx, rule.Pattern, bypass, m.now()) {
				continue
			}
			metrics.KeywordMatches.WithLabelValues(pass.table.String()).Inc()
			span.SetAttributes(
				attribute.String("keyword.table", pass.table.String()),
				attribute.Bool("keyword.regex", rule.IsRegex()),
			)
			return Match{
				Table:   pass.table,
				Entry:   rule.Entry,
				Payload: m.resolver.Resolve(rule.Reply),
			}, true
		}
	}
	span.SetAttributes(attribute.Bool("keyword.matched", false))
	return Match{}, false
}

// TryFire exposes the matcher's gate for keys outside the tables, such as
// built-in replies that share the cooldown window.
func (m *Matcher) TryFire(ctx context.Context, key string, mode AddressMode) bool {
	return m.gate.TryFire(ctx, key, mode == DirectMention, m.now())
}
