package devstub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MetaFacil/AppConecta/internal/feed"
	"github.com/MetaFacil/AppConecta/internal/logger"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBufSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// frame mirrors the gateway wire envelope the realtime client speaks.
type frame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan frame

	mu       sync.Mutex
	topics   map[string]bool
	channels map[string]bool
}

// hub tracks connected gateway clients and routes change and broadcast frames.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]bool
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]bool)}
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("devstub: ws upgrade: %v", err)
		return
	}
	c := &wsClient{
		conn:     conn,
		send:     make(chan frame, sendBufSize),
		topics:   make(map[string]bool),
		channels: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	done := make(chan struct{})
	go c.writePump(done)
	h.readLoop(c)
	close(done)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	conn.Close()
}

func (h *hub) readLoop(c *wsClient) {
	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.conn.SetPingHandler(func(data string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.deliver(frame{Type: "error", Payload: json.RawMessage(`"bad frame"`)})
			continue
		}
		switch f.Type {
		case "subscribe":
			c.mu.Lock()
			c.topics[f.Topic] = true
			c.mu.Unlock()
		case "unsubscribe":
			c.mu.Lock()
			delete(c.topics, f.Topic)
			c.mu.Unlock()
		case "join":
			c.mu.Lock()
			c.channels[f.Channel] = true
			c.mu.Unlock()
		case "leave":
			c.mu.Lock()
			delete(c.channels, f.Channel)
			c.mu.Unlock()
		case "broadcast":
			h.relayBroadcast(f)
		default:
			c.deliver(frame{Type: "error", Payload: json.RawMessage(`"unknown frame type"`)})
		}
	}
}

// fanOutChange pushes one row change to every subscription whose topic
// matches. Rows are the API response models, so wire field names line up.
func (h *hub) fanOutChange(op, table string, row any) {
	rowJSON, err := json.Marshal(row)
	if err != nil {
		logger.Errorf("devstub: marshal %s row: %v", table, err)
		return
	}
	payload, err := json.Marshal(feed.Event{Op: feed.Op(op), Table: table, Row: rowJSON})
	if err != nil {
		logger.Errorf("devstub: marshal event: %v", err)
		return
	}

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		topics := make([]string, 0, len(c.topics))
		for t := range c.topics {
			topics = append(topics, t)
		}
		c.mu.Unlock()

		for _, topic := range topics {
			t, filter := splitTopic(topic)
			if t != table || !feed.MatchFilter(filter, rowJSON) {
				continue
			}
			c.deliver(frame{Type: "change", Topic: topic, Payload: payload})
		}
	}
}

// relayBroadcast forwards a broadcast frame to every member of the channel,
// the sender included.
func (h *hub) relayBroadcast(f frame) {
	out := frame{Type: "broadcast", Channel: f.Channel, Event: f.Event, Payload: f.Payload}

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		member := c.channels[f.Channel]
		c.mu.Unlock()
		if member {
			c.deliver(out)
		}
	}
}

func splitTopic(topic string) (table, filter string) {
	for i := 0; i < len(topic); i++ {
		if topic[i] == ':' {
			return topic[:i], topic[i+1:]
		}
	}
	return topic, ""
}

func (c *wsClient) deliver(f frame) {
	select {
	case c.send <- f:
	default:
		logger.Errorf("devstub: slow ws client, %s frame dropped", f.Type)
	}
}

func (c *wsClient) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
