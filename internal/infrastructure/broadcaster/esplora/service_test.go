package esplora_broadcaster_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	esplora_broadcaster "github.com/vulpemventures/ocean-multisig/internal/infrastructure/broadcaster/esplora"
)

func newTxHex(t *testing.T, value int64) (string, string) {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{1}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(value, []byte{0x51}))

	buf := &bytes.Buffer{}
	require.NoError(t, tx.Serialize(buf))
	return hex.EncodeToString(buf.Bytes()), tx.TxHash().String()
}

func TestBroadcastTransaction(t *testing.T) {
	t.Parallel()

	acceptedTx, acceptedTxid := newTxHex(t, 1000)
	rejectedTx, _ := newTxHex(t, 2000)

	var received []string
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/api/tx" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			body, _ := io.ReadAll(r.Body)
			received = append(received, string(body))
			if string(body) == rejectedTx {
				w.WriteHeader(http.StatusBadRequest)
				// nolint
				w.Write([]byte("sendrawtransaction RPC error: bad-txns-inputs-missingorspent"))
				return
			}
			// nolint
			w.Write([]byte(acceptedTxid))
		},
	))
	defer server.Close()

	svc, err := esplora_broadcaster.NewService(esplora_broadcaster.ServiceArgs{
		EsploraUrl: server.URL + "/api/",
	})
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()

	txid, err := svc.BroadcastTransaction(ctx, acceptedTx)
	require.NoError(t, err)
	require.Equal(t, acceptedTxid, txid)

	txid, err = svc.BroadcastTransaction(ctx, rejectedTx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad-txns-inputs-missingorspent")
	require.Empty(t, txid)

	txid, err = svc.BroadcastTransaction(ctx, "not-an-hex")
	require.Error(t, err)
	require.Empty(t, txid)

	require.Equal(t, []string{acceptedTx, rejectedTx}, received)
}

func TestNewServiceInvalidArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
	}{
		{"missing_url", ""},
		{"unknown_protocol", "ftp://localhost"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, err := esplora_broadcaster.NewService(
				esplora_broadcaster.ServiceArgs{EsploraUrl: tt.url},
			)
			require.Error(t, err)
			require.Nil(t, svc)
		})
	}
}
