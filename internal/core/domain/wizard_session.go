package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	MinWizardStep = 1
	MaxWizardStep = 7

	DefaultSessionTTL = 24 * time.Hour
)

var (
	ErrWizardSessionNotFound   = fmt.Errorf("wizard session not found")
	ErrInvalidWizardSession    = fmt.Errorf("invalid wizard session")
	ErrInvalidWizardStep       = fmt.Errorf("wizard step must be in range [1, 7]")
	ErrInvalidWizardUpdate     = fmt.Errorf("invalid wizard session update")
	ErrInvalidSelectedConfig   = fmt.Errorf("selected config must be in the form M-of-N")
	ErrWizardMissingTabID      = fmt.Errorf("tab id must be a positive integer")
	requiredSessionFields      = []string{"tabId", "step", "state", "createdAt", "updatedAt"}
	requiredSessionStateFields = []string{"cosignerXpubs", "addressVerified"}
)

// WizardCosigner is a remote cosigner collected during account setup.
type WizardCosigner struct {
	Name           string `json:"name"`
	Xpub           string `json:"xpub"`
	Fingerprint    string `json:"fingerprint"`
	DerivationPath string `json:"derivationPath,omitempty"`
}

// WizardState is the progress of the account setup wizard.
type WizardState struct {
	SelectedConfig      string           `json:"selectedConfig,omitempty"`
	AddressType         string           `json:"addressType,omitempty"`
	LocalXpub           string           `json:"localXpub,omitempty"`
	LocalFingerprint    string           `json:"localFingerprint,omitempty"`
	LocalDerivationPath string           `json:"localDerivationPath,omitempty"`
	CosignerXpubs       []WizardCosigner `json:"cosignerXpubs"`
	FirstAddress        string           `json:"firstAddress,omitempty"`
	AccountName         string           `json:"accountName,omitempty"`
	AddressVerified     bool             `json:"addressVerified"`
}

// Threshold parses the selected M-of-N config.
func (s WizardState) Threshold() (required, total int, err error) {
	parts := strings.Split(s.SelectedConfig, "-of-")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidSelectedConfig
	}
	if required, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, ErrInvalidSelectedConfig
	}
	if total, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, ErrInvalidSelectedConfig
	}
	if required < 1 || total < 2 || required > total {
		return 0, 0, ErrInvalidSelectedConfig
	}
	return
}

// WizardSession is the single account setup session, owned by a UI tab.
// Timestamps are unix millis.
type WizardSession struct {
	TabID     int         `json:"tabId"`
	Step      int         `json:"step"`
	State     WizardState `json:"state"`
	CreatedAt int64       `json:"createdAt"`
	UpdatedAt int64       `json:"updatedAt"`
}

// WizardSessionUpdate is a partial change to a session. State is deep-merged
// into the current one: nested objects are merged key by key, any other value
// replaces the current one.
type WizardSessionUpdate struct {
	Step  *int                   `json:"step,omitempty"`
	State map[string]interface{} `json:"state,omitempty"`
}

func NewWizardSession(tabID int, now time.Time) (*WizardSession, error) {
	if tabID <= 0 {
		return nil, ErrWizardMissingTabID
	}
	ts := now.UnixMilli()
	return &WizardSession{
		TabID: tabID,
		Step:  MinWizardStep,
		State: WizardState{
			CosignerXpubs: make([]WizardCosigner, 0),
		},
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// IsExpired returns whether the session has not been updated for longer
// than ttl.
func (s *WizardSession) IsExpired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return now.UnixMilli()-s.UpdatedAt > ttl.Milliseconds()
}

// Apply deep-merges the given update into the session and refreshes
// UpdatedAt. The session is left untouched on error.
func (s *WizardSession) Apply(update WizardSessionUpdate, now time.Time) error {
	step := s.Step
	if update.Step != nil {
		step = *update.Step
	}
	if step < MinWizardStep || step > MaxWizardStep {
		return ErrInvalidWizardStep
	}

	state := s.State
	if len(update.State) > 0 {
		current, err := toMap(s.State)
		if err != nil {
			return err
		}
		merged := deepMerge(current, update.State)

		buf, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidWizardUpdate, err)
		}
		state = WizardState{}
		if err := json.Unmarshal(buf, &state); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidWizardUpdate, err)
		}
		if state.CosignerXpubs == nil {
			state.CosignerXpubs = make([]WizardCosigner, 0)
		}
	}

	s.Step = step
	s.State = state
	s.UpdatedAt = now.UnixMilli()
	return nil
}

// EncodeWizardSession serializes the session to JSON, the format used by
// every storage backend.
func EncodeWizardSession(s *WizardSession) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeWizardSession parses and validates a stored session. It fails with
// ErrInvalidWizardSession if any required field is missing or mistyped or if
// the step is out of range.
func DecodeWizardSession(buf []byte) (*WizardSession, error) {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWizardSession, err)
	}
	for _, field := range requiredSessionFields {
		if isMissing(raw[field]) {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidWizardSession, field)
		}
	}

	rawState := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw["state"], &rawState); err != nil {
		return nil, fmt.Errorf("%w: state: %s", ErrInvalidWizardSession, err)
	}
	for _, field := range requiredSessionStateFields {
		if isMissing(rawState[field]) {
			return nil, fmt.Errorf(
				"%w: missing state.%s", ErrInvalidWizardSession, field,
			)
		}
	}

	session := &WizardSession{}
	if err := json.Unmarshal(buf, session); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWizardSession, err)
	}
	if session.TabID <= 0 {
		return nil, fmt.Errorf("%w: bad tab id", ErrInvalidWizardSession)
	}
	if session.Step < MinWizardStep || session.Step > MaxWizardStep {
		return nil, fmt.Errorf(
			"%w: step %d out of range", ErrInvalidWizardSession, session.Step,
		)
	}
	return session, nil
}

func isMissing(field json.RawMessage) bool {
	return len(field) <= 0 || bytes.Equal(field, []byte("null"))
}

func toMap(v interface{}) (map[string]interface{}, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func deepMerge(dst, src map[string]interface{}) map[string]interface{} {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]interface{})
		dstMap, dstIsMap := dst[k].(map[string]interface{})
		if srcIsMap && dstIsMap {
			dst[k] = deepMerge(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
	return dst
}
