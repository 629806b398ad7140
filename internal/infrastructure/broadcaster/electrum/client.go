package electrum_broadcaster

import "context"

type electrumClient interface {
	listen()
	close()

	ping(ctx context.Context) error
	broadcastTx(ctx context.Context, txHex string) (string, error)
}
