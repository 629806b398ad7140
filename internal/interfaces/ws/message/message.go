package message

import (
	"encoding/json"

	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

// Types of the messages exchanged with the UI tabs.
const (
	SignMultisigTransaction      = "SIGN_MULTISIG_TRANSACTION"
	ImportPsbt                   = "IMPORT_PSBT"
	BroadcastMultisigTransaction = "BROADCAST_MULTISIG_TRANSACTION"
	GetPendingMultisigTxs        = "GET_PENDING_MULTISIG_TXS"
	DeletePendingMultisigTx      = "DELETE_PENDING_MULTISIG_TX"
	CreatePendingMultisigTx      = "CREATE_PENDING_MULTISIG_TX"

	WizardCreateSession  = "WIZARD_CREATE_SESSION"
	WizardGetSession     = "WIZARD_GET_SESSION"
	WizardUpdateSession  = "WIZARD_UPDATE_SESSION"
	WizardDeleteSession  = "WIZARD_DELETE_SESSION"
	WizardPreviewAddress = "WIZARD_PREVIEW_ADDRESS"
	WizardComplete       = "WIZARD_COMPLETE"

	GetMultisigAccounts   = "GET_MULTISIG_ACCOUNTS"
	DeriveMultisigAddress = "DERIVE_MULTISIG_ADDRESS"

	GenSeed        = "GEN_SEED"
	UnlockWallet   = "UNLOCK_WALLET"
	LockWallet     = "LOCK_WALLET"
	GetAccountXpub = "GET_ACCOUNT_XPUB"

	Heartbeat = "HEARTBEAT"

	// PendingTxNotification is pushed by the server, it's never a reply.
	PendingTxNotification = "PENDING_MULTISIG_TX_NOTIFICATION"
)

// Request is the envelope of every message sent by a tab.
type Request struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the envelope of every message sent to a tab. ID and Type are
// those of the related request.
type Response struct {
	ID      string      `json:"id,omitempty"`
	Type    string      `json:"type"`
	Success bool        `json:"success"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func NewSuccessResponse(req Request, payload interface{}) Response {
	if payload == nil {
		payload = Empty{}
	}
	return Response{ID: req.ID, Type: req.Type, Success: true, Payload: payload}
}

func NewErrorResponse(req Request, errMsg string) Response {
	return Response{ID: req.ID, Type: req.Type, Error: errMsg}
}

type Empty struct{}

type SignatureStatus struct {
	Name   string `json:"name"`
	Signed bool   `json:"signed"`
}

type Metadata struct {
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient,omitempty"`
	Fee       uint64 `json:"fee"`
	Note      string `json:"note,omitempty"`
}

type PendingTx struct {
	Txid                string                     `json:"txid"`
	AccountIndex        uint32                     `json:"accountIndex"`
	PsbtBase64          string                     `json:"psbtBase64"`
	SignaturesRequired  int                        `json:"signaturesRequired"`
	SignaturesCollected int                        `json:"signaturesCollected"`
	SignatureStatus     map[string]SignatureStatus `json:"signatureStatus"`
	SignedBy            []string                   `json:"signedBy"`
	Metadata            Metadata                   `json:"metadata"`
	AmountBTC           string                     `json:"amountBtc"`
	FeeBTC              string                     `json:"feeBtc"`
	Status              string                     `json:"status"`
	ReadyToBroadcast    bool                       `json:"readyToBroadcast"`
	CreatedAt           int64                      `json:"createdAt"`
	ExpiresAt           int64                      `json:"expiresAt"`
}

type SignRequest struct {
	AccountIndex uint32 `json:"accountIndex"`
	PsbtBase64   string `json:"psbtBase64"`
}

type SignResponse struct {
	Txid                string                     `json:"txid"`
	PsbtBase64          string                     `json:"psbtBase64"`
	SignaturesCollected int                        `json:"signaturesCollected"`
	SignaturesRequired  int                        `json:"signaturesRequired"`
	SignatureStatus     map[string]SignatureStatus `json:"signatureStatus"`
}

type ImportPsbtRequest struct {
	// Txid is optional, if missing the pending tx is looked up by the psbt.
	Txid       string `json:"txid,omitempty"`
	PsbtBase64 string `json:"psbtBase64"`
}

type ImportPsbtResponse struct {
	Txid                string   `json:"txid"`
	PsbtBase64          string   `json:"psbtBase64"`
	SignaturesCollected int      `json:"signaturesCollected"`
	SignaturesRequired  int      `json:"signaturesRequired"`
	Metadata            Metadata `json:"metadata"`
}

type BroadcastRequest struct {
	AccountIndex uint32 `json:"accountIndex"`
	PsbtBase64   string `json:"psbtBase64"`
}

type BroadcastResponse struct {
	Txid string `json:"txid"`
}

type GetPendingTxsRequest struct {
	AccountIndex *uint32 `json:"accountIndex,omitempty"`
}

type GetPendingTxsResponse struct {
	PendingTxs []PendingTx `json:"pendingTxs"`
}

type DeletePendingTxRequest struct {
	Txid string `json:"txid"`
}

type CreatePendingTxRequest struct {
	AccountIndex uint32   `json:"accountIndex"`
	PsbtBase64   string   `json:"psbtBase64"`
	Metadata     Metadata `json:"metadata"`
}

type WizardSession = domain.WizardSession

type WizardUpdateSessionRequest = domain.WizardSessionUpdate

type WizardGetSessionResponse struct {
	Session *WizardSession `json:"session"`
}

type WizardPreviewAddressResponse struct {
	Address string `json:"address"`
}

type Cosigner struct {
	Name           string `json:"name"`
	Fingerprint    string `json:"fingerprint"`
	Xpub           string `json:"xpub"`
	DerivationPath string `json:"derivationPath"`
	IsLocal        bool   `json:"isLocal"`
}

type Account struct {
	Index              uint32     `json:"index"`
	Name               string     `json:"name"`
	RequiredSignatures int        `json:"requiredSignatures"`
	AddressType        string     `json:"addressType"`
	Network            string     `json:"network"`
	Cosigners          []Cosigner `json:"cosigners"`
	FirstAddress       string     `json:"firstAddress"`
	NextExternalIndex  uint32     `json:"nextExternalIndex"`
	NextInternalIndex  uint32     `json:"nextInternalIndex"`
	CreatedAt          int64      `json:"createdAt"`
}

type GetAccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

type DeriveAddressRequest struct {
	AccountIndex uint32 `json:"accountIndex"`
	Chain        uint32 `json:"chain"`
	// Index is optional, if missing the next unused address is derived.
	Index *uint32 `json:"index,omitempty"`
}

type Address struct {
	AccountIndex   uint32 `json:"accountIndex"`
	Address        string `json:"address"`
	Script         string `json:"script"`
	DerivationPath string `json:"derivationPath"`
}

type GenSeedResponse struct {
	Mnemonic string `json:"mnemonic"`
}

type UnlockWalletRequest struct {
	Mnemonic string `json:"mnemonic"`
}

type UnlockWalletResponse struct {
	Fingerprint string `json:"fingerprint"`
}

type GetAccountXpubRequest struct {
	AddressType string `json:"addressType"`
	Account     uint32 `json:"account"`
}

type GetAccountXpubResponse struct {
	Xpub           string `json:"xpub"`
	Fingerprint    string `json:"fingerprint"`
	DerivationPath string `json:"derivationPath"`
}

type PendingTxEvent struct {
	EventType string    `json:"eventType"`
	PendingTx PendingTx `json:"pendingTx"`
}
