package ws_interface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	appconfig "github.com/vulpemventures/ocean-multisig/internal/app-config"
	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	tabregistry "github.com/vulpemventures/ocean-multisig/internal/infrastructure/tab-registry/in-memory"
	ws_handler "github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/handler"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

const (
	wsPath      = "/ws"
	metricsPath = "/metrics"
	tabIDParam  = "tabId"

	shutdownTimeout = 5 * time.Second
)

type service struct {
	config    ServiceConfig
	appConfig *appconfig.AppConfig

	server   *http.Server
	upgrader websocket.Upgrader
	router   *router
	metrics  *metrics
	registry tabregistry.Registry
	janitor  *application.Janitor
	notifier *ws_handler.NotificationHandler

	conns                    map[*conn]struct{}
	connLock                 *sync.RWMutex
	chCloseStreamConnections chan struct{}
	wg                       *sync.WaitGroup

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewService(
	config ServiceConfig, appConfig *appconfig.AppConfig,
) (*service, error) {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("service: %s", format)
		log.Infof(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}
	config = config.withDefaults()

	chCloseStreamConnections := make(chan struct{})
	m := newMetrics()
	svc := &service{
		config:    config,
		appConfig: appConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Tabs of the browser extension don't send a matching origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		router:   newRouter(m),
		metrics:  m,
		registry: appConfig.TabRegistry(),
		janitor:  appConfig.Janitor(),
		notifier: ws_handler.NewNotificationHandler(
			appConfig.NotificationService(), chCloseStreamConnections,
		),
		conns:                    make(map[*conn]struct{}),
		connLock:                 &sync.RWMutex{},
		chCloseStreamConnections: chCloseStreamConnections,
		wg:                       &sync.WaitGroup{},
		log:                      logFn,
		warn:                     warnFn,
	}
	svc.registerHandlers()
	svc.server = &http.Server{
		Handler:           svc.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return svc, nil
}

func (s *service) Start() error {
	lis, err := s.config.listener()
	if err != nil {
		return err
	}

	s.router.start()
	s.log("started message router")
	s.janitor.Start()
	s.log("started janitor")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.notifier.PendingTxNotifications(
			context.Background(), s.broadcastToAll,
		); err != nil && err != ws_handler.ErrConnectionClosed {
			s.warn(err, "pending tx notifications interrupted")
		}
	}()

	go func() {
		if err := s.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.warn(err, "server stopped unexpectedly")
		}
	}()

	s.log("start listening on %s", s.config.address())
	return nil
}

func (s *service) Stop() {
	close(s.chCloseStreamConnections)
	s.wg.Wait()
	s.log("closed stream connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.warn(err, "failed to gracefully shutdown server")
	}
	s.closeAllConns()
	s.log("stopped server")

	s.janitor.Stop()
	s.router.stop()
	s.log("stopped message router")

	s.appConfig.Broadcaster().Close()
	s.log("closed connection with broadcaster")
	s.appConfig.RepoManager().Close()
	s.log("closed connection with db")
	s.log("shutdown")
}

func (s *service) registerHandlers() {
	signingHandler := ws_handler.NewSigningHandler(
		s.appConfig.SigningService(), s.appConfig.BroadcastService(),
	)
	wizardHandler := ws_handler.NewWizardHandler(
		s.appConfig.SessionService(), s.appConfig.AccountService(),
	)
	accountHandler := ws_handler.NewAccountHandler(s.appConfig.AccountService())
	walletHandler := ws_handler.NewWalletHandler(s.appConfig.WalletService())

	s.router.register(message.SignMultisigTransaction, signingHandler.SignMultisigTransaction)
	s.router.register(message.ImportPsbt, signingHandler.ImportPsbt)
	s.router.register(message.BroadcastMultisigTransaction, signingHandler.BroadcastMultisigTransaction)
	s.router.register(message.GetPendingMultisigTxs, signingHandler.GetPendingMultisigTxs)
	s.router.register(message.DeletePendingMultisigTx, signingHandler.DeletePendingMultisigTx)
	s.router.register(message.CreatePendingMultisigTx, signingHandler.CreatePendingMultisigTx)
	s.log("registered signing handler")

	s.router.register(message.WizardCreateSession, wizardHandler.CreateSession)
	s.router.register(message.WizardGetSession, wizardHandler.GetSession)
	s.router.register(message.WizardUpdateSession, wizardHandler.UpdateSession)
	s.router.register(message.WizardDeleteSession, wizardHandler.DeleteSession)
	s.router.register(message.WizardPreviewAddress, wizardHandler.PreviewAddress)
	s.router.register(message.WizardComplete, wizardHandler.Complete)
	s.log("registered wizard handler")

	s.router.register(message.GetMultisigAccounts, accountHandler.GetMultisigAccounts)
	s.router.register(message.DeriveMultisigAddress, accountHandler.DeriveMultisigAddress)
	s.log("registered account handler")

	s.router.register(message.GenSeed, walletHandler.GenSeed)
	s.router.register(message.UnlockWallet, walletHandler.UnlockWallet)
	s.router.register(message.LockWallet, walletHandler.LockWallet)
	s.router.register(message.GetAccountXpub, walletHandler.GetAccountXpub)
	s.log("registered wallet handler")
}

func (s *service) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, s.serveWs)
	mux.Handle(metricsPath, s.metrics.handler())
	return mux
}

func (s *service) serveWs(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(r.URL.Query().Get(tabIDParam))
	if err != nil || tabID <= 0 {
		http.Error(w, "missing or invalid tab id", http.StatusBadRequest)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.warn(err, "failed to upgrade connection of tab %d", tabID)
		return
	}

	c := newConn(tabID, wsConn, s.config.MessageRateLimit, s.config.burst())
	s.addConn(c)
	defer s.removeConn(c)

	go s.keepAlive(c)

	s.readLoop(c)
}

func (s *service) readLoop(c *conn) {
	readTimeout := s.config.readTimeout()
	// nolint
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		s.registry.Heartbeat(c.tabID)
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, buf, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
			) && !c.isClosed() {
				s.warn(err, "connection of tab %d closed unexpectedly", c.tabID)
			}
			return
		}
		// nolint
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		s.registry.Heartbeat(c.tabID)

		var req message.Request
		if err := json.Unmarshal(buf, &req); err != nil || req.Type == "" {
			s.reply(c, message.NewErrorResponse(req, "malformed message"))
			continue
		}
		if !c.limiter.Allow() {
			s.reply(c, message.NewErrorResponse(req, "too many requests, slow down"))
			continue
		}
		if req.Type == message.Heartbeat {
			s.reply(c, message.NewSuccessResponse(req, nil))
			continue
		}

		if !s.router.dispatch(job{
			tabID: c.tabID,
			req:   req,
			reply: func(res message.Response) { s.reply(c, res) },
		}) {
			return
		}
	}
}

func (s *service) keepAlive(c *conn) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.chClosed:
			return
		case <-s.chCloseStreamConnections:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				s.warn(err, "failed to ping tab %d", c.tabID)
				c.close()
				return
			}
		}
	}
}

func (s *service) reply(c *conn, res message.Response) {
	if c.isClosed() {
		return
	}
	if err := c.send(res); err != nil {
		s.warn(err, "failed to send %s reply to tab %d", res.Type, c.tabID)
	}
}

func (s *service) broadcastToAll(res message.Response) {
	s.connLock.RLock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connLock.RUnlock()

	for _, c := range conns {
		s.reply(c, res)
	}
}

func (s *service) addConn(c *conn) {
	s.connLock.Lock()
	s.conns[c] = struct{}{}
	s.connLock.Unlock()

	s.registry.Register(c.tabID)
	s.metrics.connections.Inc()
	s.metrics.tabs.Set(float64(len(s.registry.Tabs())))
	s.log("tab %d connected", c.tabID)
}

// removeConn closes the connection and, if it was the last one of its tab,
// drops the wizard session the tab owned, if any.
func (s *service) removeConn(c *conn) {
	c.close()

	s.connLock.Lock()
	delete(s.conns, c)
	s.connLock.Unlock()

	s.metrics.connections.Dec()
	lastConn := s.registry.Unregister(c.tabID)
	s.metrics.tabs.Set(float64(len(s.registry.Tabs())))
	if !lastConn {
		return
	}

	s.log("tab %d disconnected", c.tabID)
	s.router.dispatch(job{
		tabID: c.tabID,
		req:   message.Request{Type: message.WizardDeleteSession},
	})
}

func (s *service) closeAllConns() {
	s.connLock.RLock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connLock.RUnlock()

	for _, c := range conns {
		c.close()
	}
}
