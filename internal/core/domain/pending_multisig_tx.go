package domain

import (
	"fmt"
	"time"
)

const (
	PendingTxCreated PendingTxStatus = iota
	PendingTxPartiallySigned
	PendingTxFullySigned
	PendingTxBroadcast
	PendingTxDeleted

	DefaultPendingTxTTL = 7 * 24 * time.Hour
)

var (
	ErrPendingTxNotFound          = fmt.Errorf("pending transaction not found")
	ErrPendingTxMissingTxID       = fmt.Errorf("missing pending transaction id")
	ErrPendingTxMissingPsbt       = fmt.Errorf("missing pending transaction psbt")
	ErrPendingTxInvalidThreshold  = fmt.Errorf("required signatures must be in range [1, number of cosigners]")
	ErrPendingTxFinalized         = fmt.Errorf("pending transaction is already broadcast or deleted")
	ErrPendingTxNotReady          = fmt.Errorf("pending transaction has not enough signatures")
	ErrPendingTxSignaturesDropped = fmt.Errorf("collected signatures can't decrease")

	pendingTxStatusString = map[PendingTxStatus]string{
		PendingTxCreated:         "created",
		PendingTxPartiallySigned: "partially_signed",
		PendingTxFullySigned:     "fully_signed",
		PendingTxBroadcast:       "broadcast",
		PendingTxDeleted:         "deleted",
	}
)

type PendingTxStatus int

func (s PendingTxStatus) String() string {
	return pendingTxStatusString[s]
}

// SignatureStatus tells whether the named cosigner has signed.
type SignatureStatus struct {
	Name   string
	Signed bool
}

// PendingTxMetadata holds descriptive info about a spend, it never affects
// the psbt.
type PendingTxMetadata struct {
	Amount    uint64
	Recipient string
	Fee       uint64
	Note      string
}

// PendingMultisigTransaction is a psbt waiting for the signatures of the
// cosigners of a MultisigAccount.
type PendingMultisigTransaction struct {
	// TxID is the hash of the unsigned transaction.
	TxID                string
	AccountIndex        uint32
	Psbt                string
	RequiredSignatures  int
	CollectedSignatures int
	// SignatureStatus is keyed by cosigner master fingerprint.
	SignatureStatus map[string]SignatureStatus
	Metadata        PendingTxMetadata
	Status          PendingTxStatus
	BroadcastTxID   string
	CreatedAt       int64
	ExpiresAt       int64
}

// NewPendingMultisigTransaction returns a pending tx with one status row per
// cosigner of the given roster, mapping fingerprints to names.
func NewPendingMultisigTransaction(
	txid string, accountIndex uint32, psbtB64 string, required int,
	roster map[string]string, metadata PendingTxMetadata,
	now time.Time, ttl time.Duration,
) (*PendingMultisigTransaction, error) {
	if len(txid) <= 0 {
		return nil, ErrPendingTxMissingTxID
	}
	if len(psbtB64) <= 0 {
		return nil, ErrPendingTxMissingPsbt
	}
	if required < 1 || required > len(roster) {
		return nil, ErrPendingTxInvalidThreshold
	}
	if ttl <= 0 {
		ttl = DefaultPendingTxTTL
	}

	status := make(map[string]SignatureStatus, len(roster))
	for fingerprint, name := range roster {
		status[fingerprint] = SignatureStatus{Name: name}
	}

	return &PendingMultisigTransaction{
		TxID:               txid,
		AccountIndex:       accountIndex,
		Psbt:               psbtB64,
		RequiredSignatures: required,
		SignatureStatus:    status,
		Metadata:           metadata,
		Status:             PendingTxCreated,
		CreatedAt:          now.Unix(),
		ExpiresAt:          now.Add(ttl).Unix(),
	}, nil
}

// IsReadyToBroadcast returns whether the threshold has been reached.
func (p *PendingMultisigTransaction) IsReadyToBroadcast() bool {
	return p.CollectedSignatures >= p.RequiredSignatures
}

// IsFinalized returns whether the pending tx reached a terminal status.
func (p *PendingMultisigTransaction) IsFinalized() bool {
	return p.Status == PendingTxBroadcast || p.Status == PendingTxDeleted
}

// IsExpired returns whether now is past the expiration time.
func (p *PendingMultisigTransaction) IsExpired(now time.Time) bool {
	return now.Unix() > p.ExpiresAt
}

// Signers returns the names of the cosigners that already signed.
func (p *PendingMultisigTransaction) Signers() []string {
	names := make([]string, 0, len(p.SignatureStatus))
	for _, s := range p.SignatureStatus {
		if s.Signed {
			names = append(names, s.Name)
		}
	}
	return names
}

// UpdateSignatures replaces the psbt with one that carries the given number
// of valid signatures. signed lists the fingerprints of the cosigners that
// signed all inputs.
func (p *PendingMultisigTransaction) UpdateSignatures(
	psbtB64 string, collected int, signed map[string]bool,
) error {
	if p.IsFinalized() {
		return ErrPendingTxFinalized
	}
	if len(psbtB64) <= 0 {
		return ErrPendingTxMissingPsbt
	}
	if collected < p.CollectedSignatures {
		return ErrPendingTxSignaturesDropped
	}

	p.Psbt = psbtB64
	p.CollectedSignatures = collected
	for fingerprint, s := range p.SignatureStatus {
		s.Signed = s.Signed || signed[fingerprint]
		p.SignatureStatus[fingerprint] = s
	}
	p.updateStatus()
	return nil
}

// MarkBroadcast moves the pending tx to the broadcast terminal status.
func (p *PendingMultisigTransaction) MarkBroadcast(txid string) error {
	if p.IsFinalized() {
		return ErrPendingTxFinalized
	}
	if !p.IsReadyToBroadcast() {
		return ErrPendingTxNotReady
	}
	p.Status = PendingTxBroadcast
	p.BroadcastTxID = txid
	return nil
}

// Delete moves the pending tx to the deleted terminal status.
func (p *PendingMultisigTransaction) Delete() {
	if p.Status == PendingTxBroadcast {
		return
	}
	p.Status = PendingTxDeleted
}

// Expire marks the pending tx as deleted if it's expired at the given time.
func (p *PendingMultisigTransaction) Expire(now time.Time) bool {
	if p.IsFinalized() || !p.IsExpired(now) {
		return false
	}
	p.Status = PendingTxDeleted
	return true
}

func (p *PendingMultisigTransaction) updateStatus() {
	switch {
	case p.CollectedSignatures >= p.RequiredSignatures:
		p.Status = PendingTxFullySigned
	case p.CollectedSignatures > 0:
		p.Status = PendingTxPartiallySigned
	default:
		p.Status = PendingTxCreated
	}
}
