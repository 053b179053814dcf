package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "messages", Topic("messages", ""))
	assert.Equal(t, "messages:chat_id=eq.c1", Topic("messages", "chat_id=eq.c1"))
}

func TestMatchFilter(t *testing.T) {
	row := json.RawMessage(`{"chat_id":"c1","lida":false,"n":42}`)

	assert.True(t, MatchFilter("", row), "empty filter matches everything")
	assert.True(t, MatchFilter("chat_id=eq.c1", row))
	assert.False(t, MatchFilter("chat_id=eq.c2", row))
	assert.False(t, MatchFilter("missing=eq.x", row))

	// Non-string scalars compare through their JSON rendering.
	assert.True(t, MatchFilter("lida=eq.false", row))
	assert.True(t, MatchFilter("n=eq.42", row))

	assert.False(t, MatchFilter("garbage", row), "malformed filter matches nothing")
	assert.False(t, MatchFilter("=eq.x", row))
	assert.False(t, MatchFilter("chat_id=eq.c1", json.RawMessage(`not json`)))
}

func TestSubscriptionDeliverDropsWhenFull(t *testing.T) {
	sub := NewSubscription("messages", "", nil)
	ev := Event{Op: OpInsert, Table: "messages", Row: json.RawMessage(`{}`)}

	for i := 0; i < eventBufSize; i++ {
		require.True(t, sub.Deliver(ev))
	}
	assert.False(t, sub.Deliver(ev), "full queue drops instead of blocking")
}

func TestSubscriptionCloseInvokesOnCloseOnce(t *testing.T) {
	n := 0
	sub := NewSubscription("messages", "chat_id=eq.c1", func() { n++ })
	sub.Close()
	sub.Close()
	assert.Equal(t, 1, n)
}
