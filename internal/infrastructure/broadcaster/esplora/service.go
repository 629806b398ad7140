package esplora_broadcaster

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
)

const defaultRequestTimeout = 15 * time.Second

type ServiceArgs struct {
	// EsploraUrl is the base url of the esplora REST API, ie.
	// https://blockstream.info/testnet/api.
	EsploraUrl     string
	RequestTimeout time.Duration
}

func (a ServiceArgs) validate() error {
	if a.EsploraUrl == "" {
		return fmt.Errorf("missing esplora url")
	}
	if !strings.HasPrefix(a.EsploraUrl, "http://") &&
		!strings.HasPrefix(a.EsploraUrl, "https://") {
		return fmt.Errorf("invalid esplora url: unknown protocol")
	}
	return nil
}

type service struct {
	baseUrl string
	client  *http.Client
}

// NewService returns a ports.Broadcaster that publishes raw txs with a
// POST /tx request to an esplora instance.
func NewService(args ServiceArgs) (ports.Broadcaster, error) {
	if err := args.validate(); err != nil {
		return nil, fmt.Errorf("invalid args: %s", err)
	}

	timeout := args.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &service{
		baseUrl: strings.TrimSuffix(args.EsploraUrl, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (s *service) BroadcastTransaction(
	ctx context.Context, txHex string,
) (string, error) {
	buf, err := hex.DecodeString(txHex)
	if err != nil {
		return "", fmt.Errorf("invalid tx: %s", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return "", fmt.Errorf("invalid tx: %s", err)
	}

	url := fmt.Sprintf("%s/tx", s.baseUrl)
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, strings.NewReader(txHex),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(
			"esplora returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)),
		)
	}

	txid := strings.TrimSpace(string(body))
	if txid == "" {
		txid = tx.TxHash().String()
	}
	return txid, nil
}

func (s *service) Close() {
	s.client.CloseIdleConnections()
}
