package ws_handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

var ErrInvalidRequest = fmt.Errorf("invalid request")

// HandlerFunc serves a single request sent by the given tab and returns the
// payload of the response.
type HandlerFunc func(
	ctx context.Context, tabID int, payload json.RawMessage,
) (interface{}, error)

func decodePayload(payload json.RawMessage, v interface{}) error {
	if len(payload) <= 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: malformed payload", ErrInvalidRequest)
	}
	return nil
}

func parsePsbt(psbtB64 string) (string, error) {
	psbtB64 = strings.TrimSpace(psbtB64)
	if psbtB64 == "" {
		return "", fmt.Errorf("%w: missing psbt", ErrInvalidRequest)
	}
	return psbtB64, nil
}

func parseTxid(txid string) (string, error) {
	if txid == "" {
		return "", fmt.Errorf("%w: missing txid", ErrInvalidRequest)
	}
	return parseOptionalTxid(txid)
}

func parseOptionalTxid(txid string) (string, error) {
	if txid == "" {
		return "", nil
	}
	if buf, err := hex.DecodeString(txid); err != nil || len(buf) != 32 {
		return "", fmt.Errorf("%w: invalid txid", ErrInvalidRequest)
	}
	return strings.ToLower(txid), nil
}

func parseMnemonic(mnemonic string) ([]string, error) {
	words := strings.Fields(mnemonic)
	if len(words) <= 0 {
		return nil, fmt.Errorf("%w: missing mnemonic", ErrInvalidRequest)
	}
	return words, nil
}

func parseAddressType(addressType string) (string, error) {
	if addressType == "" {
		return "", fmt.Errorf("%w: missing address type", ErrInvalidRequest)
	}
	return strings.ToLower(addressType), nil
}

func parseMetadata(m domain.PendingTxMetadata) message.Metadata {
	return message.Metadata{
		Amount:    m.Amount,
		Recipient: m.Recipient,
		Fee:       m.Fee,
		Note:      m.Note,
	}
}

func parseSignatureStatus(
	status map[string]domain.SignatureStatus,
) map[string]message.SignatureStatus {
	res := make(map[string]message.SignatureStatus, len(status))
	for fingerprint, s := range status {
		res[fingerprint] = message.SignatureStatus{Name: s.Name, Signed: s.Signed}
	}
	return res
}

func parsePendingTx(info *application.PendingTxInfo) message.PendingTx {
	signedBy := info.SignedBy()
	if signedBy == nil {
		signedBy = []string{}
	}
	return message.PendingTx{
		Txid:                info.TxID,
		AccountIndex:        info.AccountIndex,
		PsbtBase64:          info.Psbt,
		SignaturesRequired:  info.RequiredSignatures,
		SignaturesCollected: info.CollectedSignatures,
		SignatureStatus:     parseSignatureStatus(info.SignatureStatus),
		SignedBy:            signedBy,
		Metadata:            parseMetadata(info.Metadata),
		AmountBTC:           info.AmountBTC(),
		FeeBTC:              info.FeeBTC(),
		Status:              info.Status.String(),
		ReadyToBroadcast:    info.IsReadyToBroadcast(),
		CreatedAt:           info.CreatedAt,
		ExpiresAt:           info.ExpiresAt,
	}
}

func parsePendingTxs(txs application.PendingTxsInfo) []message.PendingTx {
	list := make([]message.PendingTx, 0, len(txs))
	for _, tx := range txs {
		list = append(list, parsePendingTx(tx))
	}
	return list
}

func parseAccount(a *application.AccountInfo) message.Account {
	cosigners := make([]message.Cosigner, 0, len(a.Cosigners))
	for _, c := range a.Cosigners {
		cosigners = append(cosigners, message.Cosigner{
			Name:           c.Name,
			Fingerprint:    c.Fingerprint,
			Xpub:           c.Xpub,
			DerivationPath: c.DerivationPath,
			IsLocal:        c.IsLocal,
		})
	}
	return message.Account{
		Index:              a.Index,
		Name:               a.Name,
		RequiredSignatures: a.RequiredSignatures,
		AddressType:        a.AddressType,
		Network:            a.Network,
		Cosigners:          cosigners,
		FirstAddress:       a.FirstAddress,
		NextExternalIndex:  a.NextExternalIndex,
		NextInternalIndex:  a.NextInternalIndex,
		CreatedAt:          a.CreatedAt,
	}
}

func parseAccounts(accounts []*application.AccountInfo) []message.Account {
	list := make([]message.Account, 0, len(accounts))
	for _, a := range accounts {
		list = append(list, parseAccount(a))
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Index < list[j].Index
	})
	return list
}

func parseAddress(info *application.AddressInfo) message.Address {
	return message.Address{
		AccountIndex:   info.AccountIndex,
		Address:        info.Address,
		Script:         info.Script,
		DerivationPath: info.DerivationPath,
	}
}

func parsePendingTxEventType(eventType domain.PendingTxEventType) string {
	return eventType.String()
}
