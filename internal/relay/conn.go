package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// readWait bounds how long a connection may stay silent before the
// server drops it; clients keep quiet channels alive with pings.
const readWait = 5 * time.Minute

// ClientConn serializes writes to one websocket connection. Room
// broadcasts arrive from other connections' goroutines while the
// connection's own goroutine sends acks and errors, and
// gorilla/websocket supports only one writer at a time.
type ClientConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// NewClientConn wraps an upgraded connection.
func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{ws: ws}
}

// Send writes one JSON payload under the write deadline. Safe for
// concurrent use.
func (c *ClientConn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// SendError sends a typed ErrorResponse.
func (c *ClientConn) SendError(errMsg string) error {
	return c.Send(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes the next client message, refreshing the
// read deadline. Reads are not serialized; only the connection's own
// goroutine may call this.
func (c *ClientConn) ReadJSON(v interface{}) error {
	c.ws.SetReadDeadline(time.Now().Add(readWait))
	return c.ws.ReadJSON(v)
}

// Close closes the underlying connection.
func (c *ClientConn) Close() error {
	return c.ws.Close()
}
