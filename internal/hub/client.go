package hub

import (
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is the subset of a websocket connection the hub needs. Tests plug in
// fakes; production uses *websocket.Conn.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Client is one subscriber. Writes are serialized with a mutex because
// gorilla connections allow only one concurrent writer.
type Client struct {
	id   string
	conn Conn

	writeMu sync.Mutex
}

// NewClient wraps a connection with a fresh client identity.
func NewClient(conn Conn) *Client {
	return &Client{id: uuid.NewString(), conn: conn}
}

func (c *Client) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) close() {
	c.conn.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser dashboards connect from other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and keeps the client registered until its
// read side fails. The only inbound message understood is "ping", answered
// with a pong frame so dashboards can keep connections warm.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: websocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn)
	h.Register(client)
	defer h.Unregister(client)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(msg) == "ping" {
			if err := client.send(map[string]string{"type": "pong"}); err != nil {
				return
			}
		}
	}
}

var _ Conn = (*websocket.Conn)(nil)
