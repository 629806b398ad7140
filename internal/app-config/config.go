package appconfig

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ocean-multisig/internal/config"
	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
	electrum_broadcaster "github.com/vulpemventures/ocean-multisig/internal/infrastructure/broadcaster/electrum"
	esplora_broadcaster "github.com/vulpemventures/ocean-multisig/internal/infrastructure/broadcaster/esplora"
	keystore "github.com/vulpemventures/ocean-multisig/internal/infrastructure/key-store/in-memory"
	dbbadger "github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/badger"
	"github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/inmemory"
	postgresdb "github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/postgres"
	redisdb "github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/redis"
	tabregistry "github.com/vulpemventures/ocean-multisig/internal/infrastructure/tab-registry/in-memory"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

// AppConfig is the struct holding all configuration options for
// every application service (wallet, account, signing, broadcast, session and
// notification).
// This data structure acts also as a factory of the mentioned application
// services and the portable services used by them.
// Public config args:
//   - Network - (required) The Bitcoin network (mainnet, testnet, regtest).
//   - PendingTxTTL - (optional) How long a pending tx waits for signatures, defaults to 7 days.
//   - SessionTTL - (optional) How long a wizard session survives without updates, defaults to 24 hours.
//   - JanitorInterval - (optional) How often expired sessions and pending txs are removed, defaults to 1 minute.
//   - TabHeartbeatTimeout - (optional) How long a tab is considered alive after its last heartbeat, defaults to 30 seconds.
//   - RepoManagerType - (required) One of the supported repository manager types.
//   - BroadcasterType - (required) One of the supported broadcaster types.
//   - RepoManagerConfig - (optional) Custom config args for the repository manager based on its type.
//   - BroadcasterConfig - (required) Custom config args for the broadcaster based on its type.
type AppConfig struct {
	Version string
	Commit  string
	Date    string

	Network             string
	PendingTxTTL        time.Duration
	SessionTTL          time.Duration
	JanitorInterval     time.Duration
	TabHeartbeatTimeout time.Duration

	RepoManagerType   string
	BroadcasterType   string
	RepoManagerConfig interface{}
	BroadcasterConfig interface{}

	rm           ports.RepoManager
	bc           ports.Broadcaster
	keyStore     ports.KeyStore
	tabRegistry  tabregistry.Registry
	walletSvc    *application.WalletService
	accountSvc   *application.AccountService
	signingSvc   *application.SigningService
	broadcastSvc *application.BroadcastService
	sessionSvc   *application.SessionService
	notifySvc    *application.NotificationService
	janitor      *application.Janitor
}

func (c *AppConfig) Validate() error {
	if c.Network == "" {
		return fmt.Errorf("missing network")
	}
	if _, err := multisig.NetworkByName(c.Network); err != nil {
		return err
	}
	if c.PendingTxTTL < 0 {
		return fmt.Errorf("pending tx ttl must not be negative")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session ttl must not be negative")
	}
	if len(c.RepoManagerType) == 0 {
		return fmt.Errorf("missing repo manager type")
	}
	if _, ok := config.SupportedDbs[c.RepoManagerType]; !ok {
		return fmt.Errorf(
			"repo manager type not supported, must be one of: %s",
			config.SupportedDbs,
		)
	}
	if len(c.BroadcasterType) == 0 {
		return fmt.Errorf("missing broadcaster type")
	}
	if _, ok := config.SupportedBroadcasters[c.BroadcasterType]; !ok {
		return fmt.Errorf(
			"broadcaster type not supported, must be one of: %s",
			config.SupportedBroadcasters,
		)
	}
	if _, err := c.repoManager(); err != nil {
		return err
	}
	if _, err := c.broadcaster(); err != nil {
		return err
	}
	return nil
}

func (c *AppConfig) RepoManager() ports.RepoManager {
	return c.rm
}

func (c *AppConfig) Broadcaster() ports.Broadcaster {
	return c.bc
}

func (c *AppConfig) TabRegistry() tabregistry.Registry {
	if c.tabRegistry == nil {
		c.tabRegistry = tabregistry.NewRegistry(c.TabHeartbeatTimeout)
	}
	return c.tabRegistry
}

func (c *AppConfig) WalletService() *application.WalletService {
	if c.walletSvc == nil {
		c.walletSvc = application.NewWalletService(c.getKeyStore(), c.Network)
	}
	return c.walletSvc
}

func (c *AppConfig) AccountService() *application.AccountService {
	if c.accountSvc == nil {
		c.accountSvc = application.NewAccountService(
			c.rm, c.SessionService(), c.Network,
		)
	}
	return c.accountSvc
}

func (c *AppConfig) SigningService() *application.SigningService {
	if c.signingSvc == nil {
		c.signingSvc = application.NewSigningService(
			c.rm, c.getKeyStore(), c.PendingTxTTL,
		)
	}
	return c.signingSvc
}

func (c *AppConfig) BroadcastService() *application.BroadcastService {
	if c.broadcastSvc == nil {
		c.broadcastSvc = application.NewBroadcastService(c.rm, c.bc)
	}
	return c.broadcastSvc
}

func (c *AppConfig) SessionService() *application.SessionService {
	if c.sessionSvc == nil {
		c.sessionSvc = application.NewSessionService(
			c.rm, c.TabRegistry(), c.SessionTTL,
		)
	}
	return c.sessionSvc
}

func (c *AppConfig) NotificationService() *application.NotificationService {
	if c.notifySvc == nil {
		c.notifySvc = application.NewNotificationService(c.rm)
	}
	return c.notifySvc
}

func (c *AppConfig) Janitor() *application.Janitor {
	if c.janitor == nil {
		c.janitor = application.NewJanitor(
			c.SessionService(), c.SigningService(), c.JanitorInterval,
		)
	}
	return c.janitor
}

func (c *AppConfig) BuildInfo() application.BuildInfo {
	version := "dev"
	if c.Version != "" {
		version = c.Version
	}
	commit := "none"
	if c.Commit != "" {
		commit = c.Commit
	}
	date := "unknown"
	if c.Date != "" {
		date = c.Date
	}
	return application.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

func (c *AppConfig) getKeyStore() ports.KeyStore {
	if c.keyStore == nil {
		c.keyStore = keystore.NewInMemoryKeyStore()
	}
	return c.keyStore
}

func (c *AppConfig) repoManager() (ports.RepoManager, error) {
	if c.rm != nil {
		return c.rm, nil
	}

	switch c.RepoManagerType {
	case "inmemory":
		c.rm = inmemory.NewRepoManager()
		return c.rm, nil
	case "badger":
		if c.RepoManagerConfig == nil {
			return nil, fmt.Errorf("missing repo manager config args")
		}
		datadir, ok := c.RepoManagerConfig.(string)
		if !ok {
			return nil, fmt.Errorf("invalid repo manager config type, must be string")
		}
		rm, err := dbbadger.NewRepoManager(datadir, log.New())
		if err != nil {
			return nil, err
		}
		c.rm = rm
		return c.rm, nil
	case "postgres":
		dbConfig, ok := c.RepoManagerConfig.(postgresdb.DbConfig)
		if !ok {
			return nil, fmt.Errorf("invalid repo manager config type, must be postgresdb.DbConfig")
		}
		rm, err := postgresdb.NewRepoManager(dbConfig)
		if err != nil {
			return nil, err
		}
		c.rm = rm
		return c.rm, nil
	case "redis":
		redisConfig, ok := c.RepoManagerConfig.(redisdb.Config)
		if !ok {
			return nil, fmt.Errorf("invalid repo manager config type, must be redisdb.Config")
		}
		rm, err := redisdb.NewRepoManager(redisConfig)
		if err != nil {
			return nil, err
		}
		c.rm = rm
		return c.rm, nil
	default:
		return nil, fmt.Errorf("unknown repo manager type")
	}
}

func (c *AppConfig) broadcaster() (ports.Broadcaster, error) {
	if c.bc != nil {
		return c.bc, nil
	}

	if c.BroadcasterConfig == nil {
		return nil, fmt.Errorf("missing broadcaster config args")
	}
	switch c.BroadcasterType {
	case "electrum":
		args, ok := c.BroadcasterConfig.(electrum_broadcaster.ServiceArgs)
		if !ok {
			return nil, fmt.Errorf(
				"invalid broadcaster config type, must be " +
					"electrum_broadcaster.ServiceArgs",
			)
		}
		bc, err := electrum_broadcaster.NewService(args)
		if err != nil {
			return nil, err
		}
		c.bc = bc
		return c.bc, nil
	case "esplora":
		args, ok := c.BroadcasterConfig.(esplora_broadcaster.ServiceArgs)
		if !ok {
			return nil, fmt.Errorf(
				"invalid broadcaster config type, must be " +
					"esplora_broadcaster.ServiceArgs",
			)
		}
		bc, err := esplora_broadcaster.NewService(args)
		if err != nil {
			return nil, err
		}
		c.bc = bc
		return c.bc, nil
	default:
		return nil, fmt.Errorf("unknown broadcaster type")
	}
}
