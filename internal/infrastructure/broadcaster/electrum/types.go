package electrum_broadcaster

import (
	"encoding/json"
	"fmt"
	"sync"
)

const delim = byte('\n')

type request struct {
	Id     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type response struct {
	Id     uint64      `json:"id,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Method string      `json:"method,omitempty"`
	Params interface{} `json:"params,omitempty"`
	Error  interface{} `json:"error,omitempty"`
}

func (r response) error() error {
	if r.Error == nil {
		return nil
	}

	if err, ok := r.Error.(string); ok {
		return fmt.Errorf("%s", err)
	}

	buf, _ := json.Marshal(r.Error)
	var err responseErr
	// nolint
	json.Unmarshal(buf, &err)
	return err.Error()
}

type responseErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e responseErr) Error() error {
	if len(e.Message) <= 0 {
		return fmt.Errorf("code: %d", e.Code)
	}
	return fmt.Errorf("code: %d, message: %s", e.Code, e.Message)
}

// chHandler routes responses to the goroutines waiting for them, by request
// id. Channels are buffered so that a late response never blocks the reader.
type chHandler struct {
	lock             *sync.RWMutex
	chReportsByReqId map[uint64]chan response
}

func newChHandler() *chHandler {
	return &chHandler{
		lock:             &sync.RWMutex{},
		chReportsByReqId: make(map[uint64]chan response),
	}
}

func (h *chHandler) addRequest(req request) chan response {
	h.lock.Lock()
	defer h.lock.Unlock()

	ch := make(chan response, 1)
	h.chReportsByReqId[req.Id] = ch
	return ch
}

func (h *chHandler) sendResponse(resp response) bool {
	h.lock.RLock()
	defer h.lock.RUnlock()

	ch, ok := h.chReportsByReqId[resp.Id]
	if !ok {
		return false
	}
	select {
	case ch <- resp:
	default:
	}
	return true
}

func (h *chHandler) clearRequest(id uint64) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.chReportsByReqId, id)
}

func (h *chHandler) clear() {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.chReportsByReqId = make(map[uint64]chan response)
}
