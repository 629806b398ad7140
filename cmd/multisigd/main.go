package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	appconfig "github.com/vulpemventures/ocean-multisig/internal/app-config"
	"github.com/vulpemventures/ocean-multisig/internal/config"
	electrum_broadcaster "github.com/vulpemventures/ocean-multisig/internal/infrastructure/broadcaster/electrum"
	esplora_broadcaster "github.com/vulpemventures/ocean-multisig/internal/infrastructure/broadcaster/esplora"
	postgresdb "github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/postgres"
	redisdb "github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/redis"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces"
	ws_interface "github.com/vulpemventures/ocean-multisig/internal/interfaces/ws"
	"github.com/vulpemventures/ocean-multisig/pkg/profiler"
)

var (
	// Build info.
	version string
	commit  string
	date    string

	// Config from env vars.
	dbType              = config.GetString(config.DatabaseTypeKey)
	broadcasterType     = config.GetString(config.BroadcasterTypeKey)
	logLevel            = config.GetInt(config.LogLevelKey)
	datadir             = config.GetDatadir()
	port                = config.GetInt(config.PortKey)
	profilerPort        = config.GetInt(config.ProfilerPortKey)
	network             = config.GetNetwork()
	noProfiler          = config.GetBool(config.NoProfilerKey)
	dbDir               = filepath.Join(datadir, config.DbLocation)
	profilerDir         = filepath.Join(datadir, config.ProfilerLocation)
	statsInterval       = time.Duration(config.GetInt(config.StatsIntervalKey)) * time.Second
	electrumUrl         = config.GetString(config.ElectrumUrlKey)
	esploraUrl          = config.GetEsploraUrl()
	pendingTxTTL        = config.GetPendingTxTTL()
	sessionTTL          = config.GetSessionTTL()
	janitorInterval     = config.GetJanitorInterval()
	tabHeartbeatTimeout = config.GetTabHeartbeatTimeout()
	maxConnections      = config.GetInt(config.MaxConnectionsKey)
	messageRateLimit    = config.GetFloat64(config.MessageRateLimitKey)
	dbUser              = config.GetString(config.DbUserKey)
	dbPass              = config.GetString(config.DbPassKey)
	dbHost              = config.GetString(config.DbHostKey)
	dbPort              = config.GetInt(config.DbPortKey)
	dbName              = config.GetString(config.DbNameKey)
	dbMigrationPath     = config.GetString(config.DbMigrationPath)
	redisAddr           = config.GetString(config.RedisAddrKey)
	redisPass           = config.GetString(config.RedisPassKey)
	redisDb             = config.GetInt(config.RedisDbKey)
	redisKeyPrefix      = config.GetString(config.RedisKeyPrefixKey)
)

func main() {
	log.SetLevel(log.Level(logLevel))

	if err := config.InitDatadir(); err != nil {
		log.WithError(err).Fatal("config: error while creating datadir")
	}

	if profilerEnabled := !noProfiler; profilerEnabled {
		profilerSvc, err := profiler.NewService(profiler.ServiceOpts{
			Port:          profilerPort,
			StatsInterval: statsInterval,
			Datadir:       profilerDir,
		})
		if err != nil {
			log.WithError(err).Fatal("profiler: error while starting")
		}

		// nolint
		profilerSvc.Start()
		defer func() {
			profilerSvc.Stop()
		}()
	}

	serviceCfg := ws_interface.ServiceConfig{
		Port:             port,
		MaxConnections:   maxConnections,
		MessageRateLimit: messageRateLimit,
	}
	appCfg := &appconfig.AppConfig{
		Version:             version,
		Commit:              commit,
		Date:                date,
		Network:             network,
		PendingTxTTL:        pendingTxTTL,
		SessionTTL:          sessionTTL,
		JanitorInterval:     janitorInterval,
		TabHeartbeatTimeout: tabHeartbeatTimeout,
		RepoManagerType:     dbType,
		BroadcasterType:     broadcasterType,
		RepoManagerConfig:   repoManagerConfig(),
		BroadcasterConfig:   broadcasterConfig(),
	}

	serviceManager, err := interfaces.NewWsServiceManager(serviceCfg, appCfg)
	if err != nil {
		log.WithError(err).Fatal("service: error while initializing")
	}
	defer func() {
		serviceManager.Service.Stop()
	}()

	if err := serviceManager.Service.Start(); err != nil {
		log.WithError(err).Fatal("service: error while starting")
	}
	info := appCfg.BuildInfo()
	log.Infof(
		"multisigd %s (%s, %s) running on %s network",
		info.Version, info.Commit, info.Date, network,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
}

func repoManagerConfig() interface{} {
	switch dbType {
	case "postgres":
		return postgresdb.DbConfig{
			DbUser:             dbUser,
			DbPassword:         dbPass,
			DbHost:             dbHost,
			DbPort:             dbPort,
			DbName:             dbName,
			MigrationSourceURL: dbMigrationPath,
		}
	case "redis":
		return redisdb.Config{
			Address:   redisAddr,
			Password:  redisPass,
			DB:        redisDb,
			KeyPrefix: redisKeyPrefix,
		}
	default:
		return dbDir
	}
}

func broadcasterConfig() interface{} {
	if broadcasterType == "electrum" {
		return electrum_broadcaster.ServiceArgs{Addr: electrumUrl}
	}
	return esplora_broadcaster.ServiceArgs{EsploraUrl: esploraUrl}
}
