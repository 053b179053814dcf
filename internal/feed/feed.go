// Package feed defines the change-feed contract: a server-push stream of
// row-level insert/update events, subscribable by table name and an equality
// filter. Implementations: realtime (websocket gateway) and pglisten
// (Postgres LISTEN/NOTIFY).
package feed

import (
	"encoding/json"
	"strings"
	"sync"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// Event is one row-level change notification.
type Event struct {
	Op    Op              `json:"op"`
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

// Subscriber opens live subscriptions. One shared subscriber multiplexes any
// number of subscriptions over a single transport.
type Subscriber interface {
	// Subscribe opens a subscription for a table, optionally narrowed by an
	// equality filter of the form "column=eq.value". Empty filter matches all
	// rows of the table.
	Subscribe(table, filter string) (*Subscription, error)
}

const eventBufSize = 64

// Subscription delivers events for one (table, filter) pair. Events arrive in
// transport order; consumers must not rely on that order for correctness
// (the reconciler re-sorts on every apply). Close releases the subscription;
// leaving it open past the view's lifetime leaks it.
type Subscription struct {
	Table  string
	Filter string

	events    chan Event
	closeOnce sync.Once
	onClose   func()
}

// NewSubscription builds a subscription with the standard buffer. onClose is
// invoked exactly once when the consumer closes it; it may be nil.
func NewSubscription(table, filter string, onClose func()) *Subscription {
	return &Subscription{
		Table:   table,
		Filter:  filter,
		events:  make(chan Event, eventBufSize),
		onClose: onClose,
	}
}

// Events returns the inbound event queue.
func (s *Subscription) Events() <-chan Event { return s.events }

// Deliver enqueues an event without blocking. Returns false when the consumer
// is not draining and the event was dropped; droppers log and rely on the
// consumer's full-state reconciliation to self-heal.
func (s *Subscription) Deliver(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// Close releases the subscription. Safe to call multiple times.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// Topic is the wire name for a (table, filter) pair.
func Topic(table, filter string) string {
	if filter == "" {
		return table
	}
	return table + ":" + filter
}

// MatchFilter reports whether a row matches an equality filter
// ("column=eq.value"). An empty filter matches everything; a malformed filter
// matches nothing. Values are compared as JSON scalars rendered to strings.
func MatchFilter(filter string, row json.RawMessage) bool {
	if filter == "" {
		return true
	}
	idx := strings.Index(filter, "=eq.")
	if idx <= 0 {
		return false
	}
	column := filter[:idx]
	want := filter[idx+len("=eq."):]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(row, &fields); err != nil {
		return false
	}
	raw, ok := fields[column]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == want
	}
	return strings.TrimSpace(string(raw)) == want
}
