package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pifanctrl/log"
	"pifanctrl/reading"
)

// Push message types.
const (
	MsgTemperature = "temperatureUpdate"
	MsgFanRpm      = "fanRpmUpdate"
	MsgDutyCycle   = "dutyCycleUpdate"
)

const (
	sendQueue  = 32
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Update struct {
	Source    string    `json:"source"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// updateFor maps a reading to its push message. Inactive temperatures are
// not pushed.
func updateFor(r reading.Reading) (Message, bool) {
	u := Update{Source: r.Source, Value: r.Value, Timestamp: r.AsOf}
	switch r.Kind {
	case reading.KindTemperature:
		if !r.Active() {
			return Message{}, false
		}
		return Message{Type: MsgTemperature, Data: u}, true
	case reading.KindFanRpm:
		return Message{Type: MsgFanRpm, Data: u}, true
	case reading.KindDutyCycle:
		return Message{Type: MsgDutyCycle, Data: u}, true
	}
	return Message{}, false
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Snapshot is the read side of the reading store.
type Snapshot interface {
	Sources() []string
	Latest(source string) (reading.Reading, bool)
}

// Hub fans push messages out to websocket clients. A client whose queue is
// full is disconnected instead of slowing the others down.
type Hub struct {
	store    Snapshot
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(store Snapshot) *Hub {
	return &Hub{
		store:   store,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// OnReading has the store listener signature.
func (h *Hub) OnReading(_ string, r reading.Reading) {
	if msg, ok := updateFor(r); ok {
		h.Broadcast(msg)
	}
}

// Notify pushes operator events such as a simulated temperature.
func (h *Hub) Notify(event string, payload any) {
	h.Broadcast(Message{Type: event, Data: payload})
}

func (h *Hub) Broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("web: encode %s: %v", msg.Type, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.offer(c, b)
	}
}

// offer must be called with h.mu held.
func (h *Hub) offer(c *client, b []byte) {
	select {
	case c.send <- b:
	default:
		log.Warnf("web: dropping slow client %v", c.conn.RemoteAddr())
		h.drop(c)
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and sends the latest reading of every
// known source before live updates.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("web: websocket upgrade: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendQueue)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	for _, src := range h.store.Sources() {
		rd, ok := h.store.Latest(src)
		if !ok {
			continue
		}
		if msg, ok := updateFor(rd); ok {
			if b, err := json.Marshal(msg); err == nil {
				h.offer(c, b)
			}
		}
	}
	h.mu.Unlock()
	log.Debugf("web: client %v connected", conn.RemoteAddr())

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.drop(c)
		h.mu.Unlock()
		log.Debugf("web: client %v disconnected", c.conn.RemoteAddr())
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.drop(c)
	}
}
