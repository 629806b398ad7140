package ws_interface

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	ws_handler "github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/handler"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

const jobQueueSize = 256

var errUnknownMessageType = fmt.Errorf("unknown message type")

type job struct {
	tabID int
	req   message.Request
	// reply is nil for requests issued by the server itself.
	reply func(message.Response)
}

// router runs every request on a single goroutine, one at a time, so that
// no two operations ever touch the storage concurrently.
type router struct {
	routes  map[string]ws_handler.HandlerFunc
	metrics *metrics

	chJobs   chan job
	quitChan chan struct{}
	stopOnce *sync.Once
	wg       *sync.WaitGroup

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func newRouter(m *metrics) *router {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("router: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("router: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &router{
		routes:   make(map[string]ws_handler.HandlerFunc),
		metrics:  m,
		chJobs:   make(chan job, jobQueueSize),
		quitChan: make(chan struct{}),
		stopOnce: &sync.Once{},
		wg:       &sync.WaitGroup{},
		log:      logFn,
		warn:     warnFn,
	}
}

func (r *router) register(msgType string, handler ws_handler.HandlerFunc) {
	r.routes[msgType] = handler
}

func (r *router) start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		for {
			select {
			case <-r.quitChan:
				return
			case j := <-r.chJobs:
				res := r.handle(j)
				if j.reply != nil {
					j.reply(res)
				}
			}
		}
	}()
}

func (r *router) stop() {
	r.stopOnce.Do(func() {
		close(r.quitChan)
		r.wg.Wait()
	})
}

// dispatch enqueues the given job and returns false if the router is
// stopped.
func (r *router) dispatch(j job) bool {
	select {
	case <-r.quitChan:
		return false
	case r.chJobs <- j:
		return true
	}
}

// handle doesn't use the context of the connection: once started, an
// operation runs to completion even if the tab goes away.
func (r *router) handle(j job) message.Response {
	handler, ok := r.routes[j.req.Type]
	if !ok {
		r.metrics.observe("unknown", nil, errUnknownMessageType)
		return message.NewErrorResponse(j.req, errUnknownMessageType.Error())
	}

	payload, err := handler(context.Background(), j.tabID, j.req.Payload)
	r.metrics.observe(j.req.Type, payload, err)
	if err != nil {
		if ws_handler.IsInternal(err) {
			r.warn(err, "failed to handle %s for tab %d", j.req.Type, j.tabID)
		} else {
			r.log("%s for tab %d rejected: %s", j.req.Type, j.tabID, err)
		}
		return message.NewErrorResponse(j.req, ws_handler.UserMessage(err))
	}
	return message.NewSuccessResponse(j.req, payload)
}
