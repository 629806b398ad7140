package ws_interface

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	appconfig "github.com/vulpemventures/ocean-multisig/internal/app-config"
	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	esplora_broadcaster "github.com/vulpemventures/ocean-multisig/internal/infrastructure/broadcaster/esplora"
	ws_handler "github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/handler"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
	"github.com/vulpemventures/ocean-multisig/internal/testutil"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

type testResponse struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

type testClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func (c *testClient) request(msgType string, payload interface{}) testResponse {
	c.t.Helper()

	buf, err := json.Marshal(payload)
	require.NoError(c.t, err)
	req := message.Request{
		ID:      uuid.New().String(),
		Type:    msgType,
		Payload: buf,
	}
	require.NoError(c.t, c.ws.WriteJSON(req))

	// nolint
	c.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var res testResponse
		require.NoError(c.t, c.ws.ReadJSON(&res))
		if res.ID == req.ID {
			return res
		}
	}
}

func (c *testClient) mustRequest(
	msgType string, payload, out interface{},
) {
	c.t.Helper()

	res := c.request(msgType, payload)
	require.True(c.t, res.Success, res.Error)
	require.Equal(c.t, msgType, res.Type)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(res.Payload, out))
	}
}

type testEnv struct {
	svc       *service
	appConfig *appconfig.AppConfig
	server    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	esplora := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			// nolint
			io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		},
	))
	t.Cleanup(esplora.Close)

	appConfig := &appconfig.AppConfig{
		Network:         testutil.NetworkName,
		RepoManagerType: "inmemory",
		BroadcasterType: "esplora",
		BroadcasterConfig: esplora_broadcaster.ServiceArgs{
			EsploraUrl:     esplora.URL,
			RequestTimeout: 5 * time.Second,
		},
	}
	svc, err := NewService(ServiceConfig{Port: 18100}, appConfig)
	require.NoError(t, err)

	svc.router.start()
	server := httptest.NewServer(svc.handler())
	t.Cleanup(func() {
		server.Close()
		svc.router.stop()
	})

	return &testEnv{svc, appConfig, server}
}

func (e *testEnv) wsURL(tabID string) string {
	return fmt.Sprintf(
		"ws%s%s?%s=%s",
		strings.TrimPrefix(e.server.URL, "http"), wsPath, tabIDParam, tabID,
	)
}

func (e *testEnv) connect(t *testing.T, tabID int) *testClient {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial(e.wsURL(fmt.Sprint(tabID)), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		// nolint
		ws.Close()
	})
	return &testClient{t, ws}
}

func TestSigningRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	signers := testutil.NewSigners(t, 3)
	account := testutil.NewAccount(t, 0, signers, 2, multisig.P2WSH, 0)
	_, err := env.appConfig.RepoManager().AccountRepository().AddAccount(
		context.Background(), account,
	)
	require.NoError(t, err)

	client := env.connect(t, 1)
	packet := testutil.NewPsbt(t, signers, 2, multisig.P2WSH, 2)
	psbtB64 := testutil.Encode(t, packet)

	res := client.request(message.SignMultisigTransaction, message.SignRequest{
		AccountIndex: 0,
		PsbtBase64:   psbtB64,
	})
	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)

	var unlockRes message.UnlockWalletResponse
	client.mustRequest(message.UnlockWallet, message.UnlockWalletRequest{
		Mnemonic: strings.Join(signers[0].Mnemonic, " "),
	}, &unlockRes)
	require.Equal(t, signers[0].Fingerprint(), unlockRes.Fingerprint)

	var pendingTx message.PendingTx
	client.mustRequest(message.CreatePendingMultisigTx, message.CreatePendingTxRequest{
		AccountIndex: 0,
		PsbtBase64:   psbtB64,
		Metadata:     message.Metadata{Amount: 1000, Fee: 500, Note: "rent"},
	}, &pendingTx)
	require.Equal(t, 0, pendingTx.SignaturesCollected)
	require.Equal(t, 2, pendingTx.SignaturesRequired)

	var signRes message.SignResponse
	client.mustRequest(message.SignMultisigTransaction, message.SignRequest{
		AccountIndex: 0,
		PsbtBase64:   psbtB64,
	}, &signRes)
	require.Equal(t, pendingTx.Txid, signRes.Txid)
	require.Equal(t, 1, signRes.SignaturesCollected)
	require.True(t, signRes.SignatureStatus[signers[0].Fingerprint()].Signed)

	var importRes message.ImportPsbtResponse
	client.mustRequest(message.ImportPsbt, message.ImportPsbtRequest{
		PsbtBase64: testutil.Encode(t, testutil.Sign(t, packet, signers[1])),
	}, &importRes)
	require.Equal(t, pendingTx.Txid, importRes.Txid)
	require.Equal(t, 2, importRes.SignaturesCollected)
	require.Equal(t, "rent", importRes.Metadata.Note)

	var pendingTxs message.GetPendingTxsResponse
	client.mustRequest(message.GetPendingMultisigTxs, nil, &pendingTxs)
	require.Len(t, pendingTxs.PendingTxs, 1)
	require.True(t, pendingTxs.PendingTxs[0].ReadyToBroadcast)

	var broadcastRes message.BroadcastResponse
	client.mustRequest(message.BroadcastMultisigTransaction, message.BroadcastRequest{
		AccountIndex: 0,
		PsbtBase64:   importRes.PsbtBase64,
	}, &broadcastRes)
	require.Len(t, broadcastRes.Txid, 64)

	client.mustRequest(message.GetPendingMultisigTxs, nil, &pendingTxs)
	require.Empty(t, pendingTxs.PendingTxs)
}

func TestWizardSessionOwnership(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	first := env.connect(t, 1)
	second := env.connect(t, 2)

	first.mustRequest(message.WizardCreateSession, nil, nil)

	res := second.request(message.WizardCreateSession, nil)
	require.False(t, res.Success)
	require.Equal(
		t, ws_handler.UserMessage(application.ErrSessionAlreadyActive), res.Error,
	)

	step := 2
	first.mustRequest(message.WizardUpdateSession, message.WizardUpdateSessionRequest{
		Step: &step,
	}, nil)

	var getRes message.WizardGetSessionResponse
	second.mustRequest(message.WizardGetSession, nil, &getRes)
	require.NotNil(t, getRes.Session)
	require.Equal(t, 1, getRes.Session.TabID)
	require.Equal(t, 2, getRes.Session.Step)

	res = second.request(message.WizardUpdateSession, message.WizardUpdateSessionRequest{
		Step: &step,
	})
	require.False(t, res.Success)

	// Closing the owner tab releases the session.
	require.NoError(t, first.ws.Close())
	require.Eventually(t, func() bool {
		return second.request(message.WizardCreateSession, nil).Success
	}, 5*time.Second, 100*time.Millisecond)
}

func TestInvalidRequests(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	t.Run("invalid tab id", func(t *testing.T) {
		for _, tabID := range []string{"", "abc", "0", "-3"} {
			_, res, err := websocket.DefaultDialer.Dial(env.wsURL(tabID), nil)
			require.Error(t, err)
			require.NotNil(t, res)
			require.Equal(t, http.StatusBadRequest, res.StatusCode)
		}
	})

	client := env.connect(t, 7)

	t.Run("unknown message type", func(t *testing.T) {
		res := client.request("NOT_A_MESSAGE", nil)
		require.False(t, res.Success)
		require.Equal(t, errUnknownMessageType.Error(), res.Error)
	})

	t.Run("malformed payload", func(t *testing.T) {
		res := client.request(message.DeletePendingMultisigTx, message.DeletePendingTxRequest{
			Txid: "not-a-txid",
		})
		require.False(t, res.Success)
		require.NotEqual(t, "internal error", res.Error)
	})

	t.Run("heartbeat", func(t *testing.T) {
		res := client.request(message.Heartbeat, nil)
		require.True(t, res.Success)
	})

	t.Run("metrics", func(t *testing.T) {
		res, err := http.Get(env.server.URL + metricsPath)
		require.NoError(t, err)
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Contains(t, string(body), "multisig_messages_total")
		require.Contains(t, string(body), "multisig_ws_connections")
	})
}
