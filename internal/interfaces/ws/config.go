package ws_interface

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/net/netutil"
)

const (
	minPort = 1024
	maxPort = 49151

	defaultMaxConnections   = 64
	defaultMessageRateLimit = 20
	defaultPingInterval     = 10 * time.Second
)

// ServiceConfig holds the configuration of the websocket interface.
//   - Port - (required) The port the server listens to.
//   - MaxConnections - (optional) Max number of concurrent connections, defaults to 64.
//   - MessageRateLimit - (optional) Max messages per second accepted from a single connection, defaults to 20.
//   - PingInterval - (optional) How often connections are pinged, defaults to 10s. Must be shorter than the tab heartbeat timeout.
type ServiceConfig struct {
	Port             int
	MaxConnections   int
	MessageRateLimit float64
	PingInterval     time.Duration
}

func (c ServiceConfig) validate() error {
	if c.Port < minPort || c.Port > maxPort {
		return fmt.Errorf("port must be in range [%d, %d]", minPort, maxPort)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("max connections must not be negative")
	}
	if c.MessageRateLimit < 0 {
		return fmt.Errorf("message rate limit must not be negative")
	}
	if c.PingInterval < 0 {
		return fmt.Errorf("ping interval must not be negative")
	}
	return nil
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.MaxConnections == 0 {
		c.MaxConnections = defaultMaxConnections
	}
	if c.MessageRateLimit == 0 {
		c.MessageRateLimit = defaultMessageRateLimit
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaultPingInterval
	}
	return c
}

func (c ServiceConfig) address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c ServiceConfig) burst() int {
	burst := int(c.MessageRateLimit)
	if burst < 1 {
		return 1
	}
	return burst
}

func (c ServiceConfig) readTimeout() time.Duration {
	return 3 * c.PingInterval
}

func (c ServiceConfig) listener() (net.Listener, error) {
	lis, err := net.Listen("tcp", c.address())
	if err != nil {
		return nil, err
	}
	return netutil.LimitListener(lis, c.MaxConnections), nil
}
