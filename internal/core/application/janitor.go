package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const DefaultJanitorInterval = time.Minute

// Janitor periodically removes expired wizard sessions and pending
// transactions.
type Janitor struct {
	sessionService *SessionService
	signingService *SigningService
	interval       time.Duration

	quitChan chan struct{}
	wg       *sync.WaitGroup
	log      func(format string, a ...interface{})
	warn     func(err error, format string, a ...interface{})
}

func NewJanitor(
	sessionService *SessionService, signingService *SigningService,
	interval time.Duration,
) *Janitor {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("janitor: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("janitor: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	return &Janitor{
		sessionService, signingService, interval,
		make(chan struct{}), &sync.WaitGroup{}, logFn, warnFn,
	}
}

func (j *Janitor) Start() {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		t := time.NewTicker(j.interval)
		defer t.Stop()

		for {
			select {
			case <-j.quitChan:
				return
			case <-t.C:
				j.Run(context.Background())
			}
		}
	}()
	j.log("started with interval %s", j.interval)
}

func (j *Janitor) Stop() {
	close(j.quitChan)
	j.wg.Wait()
	j.log("stopped")
}

// Run does a single cleanup round.
func (j *Janitor) Run(ctx context.Context) {
	if _, err := j.sessionService.CleanupExpiredSessions(ctx); err != nil {
		j.warn(err, "failed to cleanup expired sessions")
	}
	if _, err := j.signingService.SweepExpiredPendingTxs(ctx); err != nil {
		j.warn(err, "failed to sweep expired pending txs")
	}
}
