package electrum_broadcaster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type wsClient struct {
	conn      *websocket.Conn
	nextId    uint64
	chHandler *chHandler
	timeout   time.Duration
	closeOnce *sync.Once

	sendLock *sync.Mutex

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func newWSClient(addr string, timeout time.Duration) (electrumClient, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = timeout
	conn, _, err := dialer.Dial(addr, nil)
	if err != nil {
		return nil, err
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("broadcaster: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("broadcaster: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	return &wsClient{
		conn:      conn,
		nextId:    0,
		chHandler: newChHandler(),
		timeout:   timeout,
		closeOnce: &sync.Once{},
		sendLock:  &sync.Mutex{},
		log:       logFn,
		warn:      warnFn,
	}, nil
}

func (c *wsClient) listen() {
	var incompleteResp []byte
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) &&
				!websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.warn(err, "connection dropped")
			}
			return
		}
		for _, m := range bytes.Split(msg, []byte{delim}) {
			if len(m) == 0 {
				continue
			}

			if len(incompleteResp) > 0 {
				m = append(incompleteResp, m...)
			}

			var resp response
			if err := json.Unmarshal(m, &resp); err != nil {
				incompleteResp = m
				continue
			}

			incompleteResp = make([]byte, 0)
			if len(resp.Method) > 0 {
				continue
			}

			if !c.chHandler.sendResponse(resp) {
				c.log("dropped response for unknown request %d", resp.Id)
			}
		}
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		// nolint
		c.conn.Close()
		c.chHandler.clear()
	})
}

func (c *wsClient) ping(ctx context.Context) error {
	resp, err := c.request(ctx, "server.ping")
	if err != nil {
		return err
	}
	return resp.error()
}

func (c *wsClient) broadcastTx(ctx context.Context, txHex string) (string, error) {
	resp, err := c.request(ctx, "blockchain.transaction.broadcast", txHex)
	if err != nil {
		return "", err
	}
	if err := resp.error(); err != nil {
		return "", err
	}
	txid, ok := resp.Result.(string)
	if !ok {
		return "", fmt.Errorf("unexpected broadcast result %v", resp.Result)
	}
	return txid, nil
}

func (c *wsClient) request(
	ctx context.Context, method string, params ...interface{},
) (*response, error) {
	req := c.newRequest(method, params...)

	chResp := c.chHandler.addRequest(req)
	defer c.chHandler.clearRequest(req.Id)

	c.sendLock.Lock()
	err := c.conn.WriteJSON(req)
	c.sendLock.Unlock()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case resp := <-chResp:
		return &resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request %s timed out", method)
	}
}

func (c *wsClient) newRequest(method string, params ...interface{}) request {
	params = append([]interface{}{}, params...)
	return request{atomic.AddUint64(&c.nextId, 1), method, params}
}
