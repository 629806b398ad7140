package electrum_broadcaster

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

type tcpClient struct {
	conn      net.Conn
	nextId    uint64
	chHandler *chHandler
	timeout   time.Duration
	chQuit    chan struct{}
	closeOnce *sync.Once

	sendLock *sync.Mutex

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func newTCPClient(addr string, timeout time.Duration) (electrumClient, error) {
	split := strings.SplitN(addr, "://", 2)
	proto, url := split[0], split[1]
	var conn net.Conn
	switch proto {
	case "tcp":
		c, err := net.DialTimeout(proto, url, timeout)
		if err != nil {
			return nil, err
		}
		conn = c
	case "ssl":
		c, err := tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", url, nil)
		if err != nil {
			return nil, err
		}
		conn = c
	default:
		return nil, fmt.Errorf("unknown protocol %s", proto)
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("broadcaster: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("broadcaster: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	svc := &tcpClient{
		conn:      conn,
		nextId:    0,
		chHandler: newChHandler(),
		timeout:   timeout,
		chQuit:    make(chan struct{}),
		closeOnce: &sync.Once{},
		sendLock:  &sync.Mutex{},
		log:       logFn,
		warn:      warnFn,
	}

	go svc.keepAliveConnection()

	return svc, nil
}

func (c *tcpClient) listen() {
	conn := bufio.NewReader(c.conn)
	for {
		var resp response
		bytes, err := conn.ReadBytes(delim)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.warn(err, "failed to read message from socket")
			}
			return
		}

		if err := json.Unmarshal(bytes, &resp); err != nil {
			c.warn(err, "failed to parse received message")
			continue
		}
		// Notifications are not expected since we never subscribe.
		if len(resp.Method) > 0 {
			continue
		}

		if !c.chHandler.sendResponse(resp) {
			c.log("dropped response for unknown request %d", resp.Id)
		}
	}
}

func (c *tcpClient) keepAliveConnection() {
	t := time.NewTicker(1 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if err := c.ping(context.Background()); err != nil {
				c.warn(err, "failed to keep connection alive")
			}
		case <-c.chQuit:
			return
		}
	}
}

func (c *tcpClient) close() {
	c.closeOnce.Do(func() {
		// nolint
		c.conn.Close()
		c.chHandler.clear()
		close(c.chQuit)
	})
}

func (c *tcpClient) ping(ctx context.Context) error {
	resp, err := c.request(ctx, "server.ping")
	if err != nil {
		return err
	}
	return resp.error()
}

func (c *tcpClient) broadcastTx(ctx context.Context, txHex string) (string, error) {
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

func (c *tcpClient) request(
	ctx context.Context, method string, params ...interface{},
) (*response, error) {
	req := c.newJSONRequest(method, params...)
	reqBytes, _ := json.Marshal(req)
	reqBytes = append(reqBytes, delim)

	chResp := c.chHandler.addRequest(req)
	defer c.chHandler.clearRequest(req.Id)

	c.sendLock.Lock()
	_, err := c.conn.Write(reqBytes)
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

func (c *tcpClient) newJSONRequest(method string, params ...interface{}) request {
	params = append([]interface{}{}, params...)
	return request{atomic.AddUint64(&c.nextId, 1), method, params}
}
