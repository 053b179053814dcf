// Package realtime is the websocket client for the hosted realtime gateway.
// It multiplexes change-feed subscriptions and per-conversation broadcast
// channels over one connection, and reconnects with backoff, replaying
// subscribe/join frames so consumers never observe the drop.
package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/MetaFacil/AppConecta/internal/feed"
	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
)

const sendBufSize = 256

// Options holds the connection timing knobs. Zero or negative values fall
// back to the defaults.
type Options struct {
	// WriteTimeout bounds every frame and control write.
	WriteTimeout time.Duration
	// PongTimeout is the read deadline; pings go out at 9/10 of it.
	PongTimeout time.Duration
	// MaxMessageSize caps an inbound frame in bytes.
	MaxMessageSize int64
}

// DefaultOptions returns the production timing defaults.
func DefaultOptions() Options {
	return Options{
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		MaxMessageSize: 65536,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = def.PongTimeout
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = def.MaxMessageSize
	}
	return o
}

func (o Options) pingPeriod() time.Duration {
	return (o.PongTimeout * 9) / 10
}

// frame is the single wire envelope in both directions.
// Client→server types: subscribe, unsubscribe, join, leave, broadcast.
// Server→client types: change, broadcast, error.
type frame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Conn is a shared gateway connection. It implements feed.Subscriber and
// presence.Joiner; one Conn serves all views of a session.
type Conn struct {
	url   string
	token string
	opts  Options

	mu       sync.Mutex
	conn     *websocket.Conn
	subs     map[string][]*feed.Subscription // keyed by topic
	channels map[string][]*broadcastChannel  // keyed by chat id

	send chan frame
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Dial connects to the gateway websocket at url (ws:// or wss://) and starts
// the pump goroutines. The token rides in the Authorization header.
func Dial(opts Options, url, token string) (*Conn, error) {
	c := &Conn{
		url:      url,
		token:    token,
		opts:     opts.normalized(),
		subs:     make(map[string][]*feed.Subscription),
		channels: make(map[string][]*broadcastChannel),
		send:     make(chan frame, sendBufSize),
		done:     make(chan struct{}),
	}
	ws, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("realtime.Dial: %w", err)
	}
	c.conn = ws
	c.wg.Add(2)
	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *Conn) dial() (*websocket.Conn, error) {
	hdr := http.Header{}
	if c.token != "" {
		hdr.Set("Authorization", "Bearer "+c.token)
	}
	ws, _, err := websocket.DefaultDialer.Dial(c.url, hdr)
	return ws, err
}

// Close shuts the connection down. Open subscriptions and channels stop
// receiving; their own Close calls remain safe no-ops afterwards.
func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
	return nil
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue hands a frame to the write pump without blocking. A full queue drops
// the frame; every replayable frame (subscribe/join) is re-sent on reconnect
// anyway, and typing signals tolerate loss.
func (c *Conn) enqueue(f frame) {
	select {
	case c.send <- f:
	case <-c.done:
	default:
		logger.Errorf("realtime: send queue full, dropping %s frame", f.Type)
	}
}

// Subscribe opens a change-feed subscription for (table, filter) and tells the
// gateway to start pushing matching rows.
func (c *Conn) Subscribe(table, filter string) (*feed.Subscription, error) {
	if c.closed() {
		return nil, fmt.Errorf("realtime.Subscribe: connection closed")
	}
	topic := feed.Topic(table, filter)
	var sub *feed.Subscription
	sub = feed.NewSubscription(table, filter, func() {
		c.dropSub(topic, sub)
	})

	c.mu.Lock()
	first := len(c.subs[topic]) == 0
	c.subs[topic] = append(c.subs[topic], sub)
	c.mu.Unlock()

	if first {
		c.enqueue(frame{Type: "subscribe", Topic: topic})
	}
	return sub, nil
}

func (c *Conn) dropSub(topic string, sub *feed.Subscription) {
	c.mu.Lock()
	list := c.subs[topic]
	for i, s := range list {
		if s == sub {
			c.subs[topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	last := len(c.subs[topic]) == 0
	if last {
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	if last && !c.closed() {
		c.enqueue(frame{Type: "unsubscribe", Topic: topic})
	}
}

// readPump owns the connection read side. On read error it reconnects with
// backoff and replays the current subscribe/join set; it exits only on Close.
func (c *Conn) readPump() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		ws := c.conn
		c.mu.Unlock()

		ws.SetReadLimit(c.opts.MaxMessageSize)
		_ = ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		})

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				if c.closed() {
					return
				}
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Errorf("realtime: read error: %v", err)
				}
				break
			}
			var f frame
			if err := json.Unmarshal(raw, &f); err != nil {
				logger.Errorf("realtime: bad frame: %v", err)
				continue
			}
			c.dispatch(f)
		}

		if !c.reconnect() {
			return
		}
	}
}

// reconnect dials with exponential backoff until it succeeds or Close is
// called, then replays subscriptions and channel joins.
func (c *Conn) reconnect() bool {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry until Close

	var ws *websocket.Conn
	op := func() error {
		if c.closed() {
			return backoff.Permanent(fmt.Errorf("closed"))
		}
		var err error
		ws, err = c.dial()
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Errorf("realtime: reconnect failed, retrying in %s: %v", next, err)
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return false
	}

	c.mu.Lock()
	c.conn = ws
	topics := make([]string, 0, len(c.subs))
	for t := range c.subs {
		topics = append(topics, t)
	}
	chats := make([]string, 0, len(c.channels))
	for id := range c.channels {
		chats = append(chats, id)
	}
	c.mu.Unlock()

	for _, t := range topics {
		c.enqueue(frame{Type: "subscribe", Topic: t})
	}
	for _, id := range chats {
		c.enqueue(frame{Type: "join", Channel: chatChannel(id)})
	}
	logger.Infof("realtime: reconnected, replayed %d topics, %d channels", len(topics), len(chats))
	return true
}

func (c *Conn) dispatch(f frame) {
	switch f.Type {
	case "change":
		var ev feed.Event
		if err := json.Unmarshal(f.Payload, &ev); err != nil {
			logger.Errorf("realtime: bad change payload on %s: %v", f.Topic, err)
			return
		}
		c.mu.Lock()
		subs := append([]*feed.Subscription(nil), c.subs[f.Topic]...)
		c.mu.Unlock()
		for _, s := range subs {
			if !s.Deliver(ev) {
				logger.Errorf("realtime: slow consumer on %s, event dropped", f.Topic)
			}
		}
	case "broadcast":
		if f.Event != typingEvent {
			return
		}
		var sig model.TypingSignal
		if err := json.Unmarshal(f.Payload, &sig); err != nil {
			logger.Errorf("realtime: bad typing payload on %s: %v", f.Channel, err)
			return
		}
		c.mu.Lock()
		chans := append([]*broadcastChannel(nil), c.channels[sig.ChatID]...)
		c.mu.Unlock()
		for _, ch := range chans {
			ch.deliver(sig)
		}
	case "error":
		logger.Errorf("realtime: gateway error on %s%s: %s", f.Topic, f.Channel, string(f.Payload))
	}
}

// writePump owns the connection write side and keeps the ping cycle going.
func (c *Conn) writePump() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.mu.Lock()
			ws := c.conn
			c.mu.Unlock()
			_ = ws.WriteControl(websocket.CloseMessage, nil, time.Now().Add(c.opts.WriteTimeout))
			return
		case f := <-c.send:
			if err := c.writeFrame(f); err != nil {
				logger.Errorf("realtime: write %s frame: %v", f.Type, err)
			}
		case <-ticker.C:
			c.mu.Lock()
			ws := c.conn
			c.mu.Unlock()
			_ = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
		}
	}
}

func (c *Conn) writeFrame(f frame) error {
	c.mu.Lock()
	ws := c.conn
	c.mu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return ws.WriteJSON(f)
}
