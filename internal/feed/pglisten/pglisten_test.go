package pglisten

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MetaFacil/AppConecta/internal/feed"
)

// newLocalListener builds a Listener without the notification loop, so the
// subscription registry and dispatch can be exercised without a database.
func newLocalListener() *Listener {
	return &Listener{
		subs: make(map[string][]*feed.Subscription),
		done: make(chan struct{}),
	}
}

func event(table, row string) feed.Event {
	return feed.Event{Op: feed.OpInsert, Table: table, Row: json.RawMessage(row)}
}

func TestDispatchRoutesByTable(t *testing.T) {
	l := newLocalListener()
	defer l.Close()

	msgs, err := l.Subscribe("messages", "")
	require.NoError(t, err)
	chats, err := l.Subscribe("chats", "")
	require.NoError(t, err)

	l.dispatch(event("messages", `{"id":"m1"}`))

	select {
	case ev := <-msgs.Events():
		assert.Equal(t, "messages", ev.Table)
	default:
		t.Fatal("expected event on messages subscription")
	}
	select {
	case ev := <-chats.Events():
		t.Fatalf("chats subscription received foreign event: %+v", ev)
	default:
	}
}

func TestDispatchAppliesFilter(t *testing.T) {
	l := newLocalListener()
	defer l.Close()

	sub, err := l.Subscribe("messages", "chat_id=eq.chat-1")
	require.NoError(t, err)

	l.dispatch(event("messages", `{"id":"m1","chat_id":"chat-2"}`))
	l.dispatch(event("messages", `{"id":"m2","chat_id":"chat-1"}`))

	select {
	case ev := <-sub.Events():
		var row struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(ev.Row, &row))
		assert.Equal(t, "m2", row.ID)
	default:
		t.Fatal("expected the matching event")
	}
	select {
	case ev := <-sub.Events():
		t.Fatalf("filtered-out event delivered: %+v", ev)
	default:
	}
}

func TestDispatchFansOutToAllMatchingSubscriptions(t *testing.T) {
	l := newLocalListener()
	defer l.Close()

	a, err := l.Subscribe("messages", "")
	require.NoError(t, err)
	b, err := l.Subscribe("messages", "chat_id=eq.chat-1")
	require.NoError(t, err)

	l.dispatch(event("messages", `{"id":"m1","chat_id":"chat-1"}`))

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	l := newLocalListener()
	defer l.Close()

	sub, err := l.Subscribe("messages", "")
	require.NoError(t, err)
	sub.Close()

	l.dispatch(event("messages", `{"id":"m1"}`))
	assert.Empty(t, sub.Events())
}

func TestSubscribeAfterCloseFails(t *testing.T) {
	l := newLocalListener()
	require.NoError(t, l.Close())

	_, err := l.Subscribe("messages", "")
	assert.Error(t, err)
}
