// Package redis carries typing signals over Redis pub/sub for direct mode.
// One channel per conversation; signals are fire-and-forget JSON.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
	"github.com/MetaFacil/AppConecta/internal/presence"
)

const signalBufSize = 16

func typingChannel(chatID string) string { return "typing:chat:" + chatID }

// Joiner opens per-conversation typing channels on a shared Redis client.
type Joiner struct {
	rdb *redis.Client
}

func NewJoiner(rdb *redis.Client) *Joiner { return &Joiner{rdb: rdb} }

// Join subscribes to the conversation's typing channel. go-redis resubscribes
// transparently after a connection loss, which matches the contract: a
// reconnect never surfaces as a signal.
func (j *Joiner) Join(chatID string) (presence.Channel, error) {
	sub := j.rdb.Subscribe(context.Background(), typingChannel(chatID))
	// Force the subscription onto the wire before returning.
	if _, err := sub.Receive(context.Background()); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis.Join chat %s: %w", chatID, err)
	}

	ch := &channel{
		rdb:     j.rdb,
		chatID:  chatID,
		sub:     sub,
		signals: make(chan model.TypingSignal, signalBufSize),
		done:    make(chan struct{}),
	}
	go ch.recv()
	return ch, nil
}

type channel struct {
	rdb     *redis.Client
	chatID  string
	sub     *redis.PubSub
	signals chan model.TypingSignal
	done    chan struct{}
	once    sync.Once
}

func (c *channel) Publish(ctx context.Context, sig model.TypingSignal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis.Publish: %w", err)
	}
	if err := c.rdb.Publish(ctx, typingChannel(c.chatID), payload).Err(); err != nil {
		return fmt.Errorf("redis.Publish chat %s: %w", c.chatID, err)
	}
	return nil
}

func (c *channel) Signals() <-chan model.TypingSignal { return c.signals }

func (c *channel) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.sub.Close()
}

func (c *channel) recv() {
	for msg := range c.sub.Channel() {
		var sig model.TypingSignal
		if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
			logger.Errorf("redis: bad typing payload on chat %s: %v", c.chatID, err)
			continue
		}
		select {
		case c.signals <- sig:
		case <-c.done:
			return
		default:
			// Receiver-side expiry absorbs dropped signals.
		}
	}
}
