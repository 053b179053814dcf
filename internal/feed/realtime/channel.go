package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
	"github.com/MetaFacil/AppConecta/internal/presence"
)

const (
	typingEvent   = "typing"
	signalBufSize = 16
)

func chatChannel(chatID string) string { return "chat:" + chatID }

// broadcastChannel is a joined gateway broadcast channel carrying typing
// signals for one conversation.
type broadcastChannel struct {
	conn    *Conn
	chatID  string
	signals chan model.TypingSignal
	once    sync.Once
}

// Join joins the conversation's broadcast channel.
func (c *Conn) Join(chatID string) (presence.Channel, error) {
	if c.closed() {
		return nil, fmt.Errorf("realtime.Join: connection closed")
	}
	ch := &broadcastChannel{
		conn:    c,
		chatID:  chatID,
		signals: make(chan model.TypingSignal, signalBufSize),
	}

	c.mu.Lock()
	first := len(c.channels[chatID]) == 0
	c.channels[chatID] = append(c.channels[chatID], ch)
	c.mu.Unlock()

	if first {
		c.enqueue(frame{Type: "join", Channel: chatChannel(chatID)})
	}
	return ch, nil
}

func (ch *broadcastChannel) Publish(ctx context.Context, sig model.TypingSignal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("realtime.Publish: %w", err)
	}
	ch.conn.enqueue(frame{
		Type:    "broadcast",
		Channel: chatChannel(ch.chatID),
		Event:   typingEvent,
		Payload: payload,
	})
	return nil
}

func (ch *broadcastChannel) Signals() <-chan model.TypingSignal { return ch.signals }

// deliver is non-blocking; typing signals are disposable and the receiver's
// expiry window absorbs any loss.
func (ch *broadcastChannel) deliver(sig model.TypingSignal) {
	select {
	case ch.signals <- sig:
	default:
		logger.Errorf("realtime: typing queue full on chat %s, signal dropped", ch.chatID)
	}
}

func (ch *broadcastChannel) Close() error {
	ch.once.Do(func() {
		c := ch.conn
		c.mu.Lock()
		list := c.channels[ch.chatID]
		for i, other := range list {
			if other == ch {
				c.channels[ch.chatID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		last := len(c.channels[ch.chatID]) == 0
		if last {
			delete(c.channels, ch.chatID)
		}
		c.mu.Unlock()

		if last && !c.closed() {
			c.enqueue(frame{Type: "leave", Channel: chatChannel(ch.chatID)})
		}
	})
	return nil
}
