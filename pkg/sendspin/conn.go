package sendspin

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

// wsConn wraps a websocket connection with a buffered outbound queue and a
// writer goroutine, so domain code can send without holding the connection
// hostage to a slow peer.
type wsConn struct {
	ws  *websocket.Conn
	log *slog.Logger

	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newWSConn(ws *websocket.Conn, log *slog.Logger) *wsConn {
	c := &wsConn{
		ws:   ws,
		log:  log,
		out:  make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// send queues one message for the writer goroutine. It fails instead of
// blocking when the peer has stopped draining.
func (c *wsConn) send(data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed")
	default:
		return fmt.Errorf("send queue full")
	}
}

// readLoop delivers inbound text messages to onMessage until the connection
// dies, then reports the terminal error through onClose exactly once.
func (c *wsConn) readLoop(onMessage func([]byte), onClose func(error)) {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Unexpected websocket close", "error", err)
			}
			onClose(err)
			return
		}
		onMessage(data)
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// close shuts the connection down. Safe to call from any goroutine, any
// number of times.
func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		// Unblock the read loop; the writer closes the socket on exit as
		// well, but the read loop may be parked on a dead peer.
		_ = c.ws.Close()
	})
}
