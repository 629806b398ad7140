package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

const requestTimeout = 30 * time.Second

var colorRed = string("\033[31m")

type response struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

// sendRequest opens a connection with the daemon, sends a single request and
// waits for its reply. Notifications received in the meantime are skipped.
func sendRequest(msgType string, payload interface{}) (json.RawMessage, error) {
	endpoint, err := getEndpoint()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to multisig daemon: %v", err)
	}
	defer conn.Close()

	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %s", err)
	}
	req := message.Request{
		ID:      uuid.New().String(),
		Type:    msgType,
		Payload: buf,
	}

	// nolint
	conn.SetWriteDeadline(time.Now().Add(requestTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %s", err)
	}

	// nolint
	conn.SetReadDeadline(time.Now().Add(requestTimeout))
	for {
		var res response
		if err := conn.ReadJSON(&res); err != nil {
			return nil, fmt.Errorf("failed to read response: %s", err)
		}
		if res.ID != req.ID {
			continue
		}
		if !res.Success {
			return nil, fmt.Errorf("%s", res.Error)
		}
		return res.Payload, nil
	}
}

func getEndpoint() (string, error) {
	state, err := getState()
	if err != nil {
		return "", err
	}
	server, ok := state[wsServerKey]
	if !ok || server == "" {
		return "", fmt.Errorf("set wsserver with `config set wsserver`")
	}
	tabID := state[tabIDKey]
	if tabID == "" {
		tabID = initialState()[tabIDKey]
	}

	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid wsserver url: %s", err)
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"tabId": []string{tabID}}.Encode()
	return u.String(), nil
}

func getState() (map[string]string, error) {
	file, err := os.ReadFile(statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := writeState(initialState()); err != nil {
			return nil, err
		}
		return initialState(), nil
	}

	data := map[string]string{}
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, fmt.Errorf("invalid state file %s: %s", statePath, err)
	}
	return data, nil
}

func setState(partialState map[string]string) error {
	state, err := getState()
	if err != nil {
		return err
	}

	for key, value := range partialState {
		state[key] = value
	}
	return writeState(state)
}

func writeState(state map[string]string) error {
	dir := filepath.Dir(statePath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %v", err)
		}
	}

	buf, _ := json.MarshalIndent(state, "", "  ")
	if err := os.WriteFile(statePath, buf, 0644); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}
	return nil
}

func printResponse(payload json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("failed to parse response: %s", err)
	}
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}

func printErr(err error) {
	msg := fmt.Sprintf("%s%s", colorRed, capitalize(err.Error()))
	fmt.Fprintln(os.Stderr, msg)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[0:1]) + s[1:]
}

// readPsbt returns the given psbt, or the content of the file at the given
// path if the psbt is empty.
func readPsbt(psbtB64, path string) (string, error) {
	if psbtB64 != "" {
		return psbtB64, nil
	}
	if path == "" {
		return "", fmt.Errorf("either psbt or psbt file must be specified")
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf)), nil
}
