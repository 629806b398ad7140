package ports

import "context"

// Broadcaster is the abstraction for any kind of service able to publish a
// raw Bitcoin transaction to the network.
type Broadcaster interface {
	// BroadcastTransaction publishes the given hex-encoded transaction and
	// returns its hash. Retries, if any, are up to the implementation.
	BroadcastTransaction(ctx context.Context, txHex string) (string, error)
	// Close closes any connection to the remote service.
	Close()
}
