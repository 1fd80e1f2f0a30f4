package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the duplex endpoint beneath a connection. The production
// implementation wraps a gorilla WebSocket; tests use in-memory fakes.
type Transport interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Ping() error
	Close() error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

type wsTransport struct {
	conn *websocket.Conn
}

// NewWebSocketTransport adapts a gorilla connection to the Transport interface.
func NewWebSocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadJSON(v interface{}) error  { return t.conn.ReadJSON(v) }
func (t *wsTransport) WriteJSON(v interface{}) error { return t.conn.WriteJSON(v) }
func (t *wsTransport) Close() error                  { return t.conn.Close() }
func (t *wsTransport) SetReadLimit(limit int64)      { t.conn.SetReadLimit(limit) }

func (t *wsTransport) Ping() error {
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

func (t *wsTransport) SetReadDeadline(d time.Time) error  { return t.conn.SetReadDeadline(d) }
func (t *wsTransport) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }
func (t *wsTransport) SetPongHandler(h func(string) error) {
	t.conn.SetPongHandler(h)
}
