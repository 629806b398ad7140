package electrum_broadcaster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
)

const defaultRequestTimeout = 15 * time.Second

type service struct {
	client electrumClient
}

type ServiceArgs struct {
	Addr string
	// RequestTimeout defaults to 15s if not set.
	RequestTimeout time.Duration
}

func (a ServiceArgs) validate() error {
	if a.Addr == "" {
		return fmt.Errorf("missing electrum endpoint")
	}
	if !a.withTCP() && !a.withWS() {
		return fmt.Errorf("invalid address: unknown protocol")
	}
	return nil
}

func (a ServiceArgs) withWS() bool {
	return strings.HasPrefix(a.Addr, "ws://") || strings.HasPrefix(a.Addr, "wss://")
}

func (a ServiceArgs) withTCP() bool {
	return strings.HasPrefix(a.Addr, "tcp://") || strings.HasPrefix(a.Addr, "ssl://")
}

func (a ServiceArgs) timeout() time.Duration {
	if a.RequestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return a.RequestTimeout
}

func (a ServiceArgs) client() (electrumClient, error) {
	if a.withWS() {
		return newWSClient(a.Addr, a.timeout())
	}
	return newTCPClient(a.Addr, a.timeout())
}

// NewService returns a ports.Broadcaster that publishes raw txs through the
// blockchain.transaction.broadcast method of an Electrum server, reached over
// tcp(s) or websocket depending on the scheme of the given address.
func NewService(args ServiceArgs) (ports.Broadcaster, error) {
	if err := args.validate(); err != nil {
		return nil, fmt.Errorf("invalid args: %s", err)
	}

	client, err := args.client()
	if err != nil {
		return nil, err
	}

	go client.listen()

	return &service{client}, nil
}

func (s *service) BroadcastTransaction(
	ctx context.Context, txHex string,
) (string, error) {
	return s.client.broadcastTx(ctx, txHex)
}

func (s *service) Close() {
	s.client.close()
}
