package ws_interface

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

const writeTimeout = 10 * time.Second

// conn is a websocket connection opened by a UI tab. Writes are serialized,
// reads happen on the goroutine serving the http request.
type conn struct {
	tabID   int
	ws      *websocket.Conn
	limiter *rate.Limiter

	writeLock *sync.Mutex
	closeOnce *sync.Once
	chClosed  chan struct{}
}

func newConn(tabID int, ws *websocket.Conn, limit float64, burst int) *conn {
	return &conn{
		tabID:     tabID,
		ws:        ws,
		limiter:   rate.NewLimiter(rate.Limit(limit), burst),
		writeLock: &sync.Mutex{},
		closeOnce: &sync.Once{},
		chClosed:  make(chan struct{}),
	}
}

func (c *conn) send(res message.Response) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	// nolint
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(res)
}

func (c *conn) ping() error {
	return c.ws.WriteControl(
		websocket.PingMessage, nil, time.Now().Add(writeTimeout),
	)
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.chClosed)
		c.writeLock.Lock()
		// nolint
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeLock.Unlock()
		c.ws.Close()
	})
}

func (c *conn) isClosed() bool {
	select {
	case <-c.chClosed:
		return true
	default:
		return false
	}
}
