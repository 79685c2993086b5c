package network

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is the wire envelope: a named event with a structured payload.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Connection interface {
	Send(event string, data interface{}) error
	ReadEvent() (*Event, error)
	CloseWithCode(code int, reason string) error
	Close() error
	RemoteAddr() net.Addr
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn}
}

func (c *WSConnection) Send(event string, data interface{}) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}
	return c.conn.WriteJSON(&Event{Event: event, Data: raw})
}

func (c *WSConnection) ReadEvent() (*Event, error) {
	var evt Event
	if err := c.conn.ReadJSON(&evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// CloseWithCode writes a close frame before tearing the socket down, so
// the peer can tell a normal close from a forced eviction.
func (c *WSConnection) CloseWithCode(code int, reason string) error {
	c.sendMutex.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.sendMutex.Unlock()
	return c.conn.Close()
}

func (c *WSConnection) Close() error {
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
