package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

const (
	// DatadirKey is the key to customize the daemon datadir.
	DatadirKey = "DATADIR"
	// DatabaseTypeKey is the key to customize the type of database to use.
	DatabaseTypeKey = "DATABASE_TYPE"
	// BroadcasterTypeKey is the key to customize the type of service used to
	// publish transactions.
	BroadcasterTypeKey = "BROADCASTER_TYPE"
	// PortKey is the key to customize the port where the websocket interface
	// will be listening to.
	PortKey = "PORT"
	// ProfilerPortKey is the key to customize the port where the profiler will
	// be listening to.
	ProfilerPortKey = "PROFILER_PORT"
	// NetworkKey is the key to customize the Bitcoin network.
	NetworkKey = "NETWORK"
	// LogLevelKey is the key to customize the log level to catch more specific
	// or more high level logs.
	LogLevelKey = "LOG_LEVEL"
	// NoProfilerKey is the key to disable Prometheus profiling.
	NoProfilerKey = "NO_PROFILER"
	// StatsIntervalKey is the key to customize the interval for the profiler to
	// gather profiling stats.
	StatsIntervalKey = "STATS_INTERVAL"
	// ElectrumUrlKey is the endpoint of the electrum server used by the
	// electrum broadcaster, ie. ssl://blockstream.info:700.
	ElectrumUrlKey = "ELECTRUM_URL"
	// EsploraUrlKey is the base url of the esplora REST API used by the
	// esplora broadcaster.
	EsploraUrlKey = "ESPLORA_URL"
	// PendingTxTTLKey is the key to customize how long a pending transaction
	// waits for signatures.
	PendingTxTTLKey = "PENDING_TX_TTL_IN_HOURS"
	// SessionTTLKey is the key to customize how long an idle wizard session
	// survives.
	SessionTTLKey = "SESSION_TTL_IN_HOURS"
	// JanitorIntervalKey is the key to customize how often expired sessions
	// and pending transactions are removed.
	JanitorIntervalKey = "JANITOR_INTERVAL_IN_SECONDS"
	// MaxConnectionsKey is the key to cap the number of concurrent websocket
	// connections.
	MaxConnectionsKey = "MAX_CONNECTIONS"
	// MessageRateLimitKey is the key to cap the messages per second accepted
	// from a single connection.
	MessageRateLimitKey = "MESSAGE_RATE_LIMIT"
	// TabHeartbeatTimeoutKey is the key to customize how long a tab is
	// considered alive after its last heartbeat.
	TabHeartbeatTimeoutKey = "TAB_HEARTBEAT_TIMEOUT_IN_SECONDS"

	// DbLocation is the folder inside the datadir containing db files.
	DbLocation = "db"
	// ProfilerLocation is the folder inside the datadir containing profiler
	// stats files.
	ProfilerLocation = "stats"
	// DbUserKey is user used to connect to db
	DbUserKey = "DB_USER"
	// DbPassKey is password used to connect to db
	DbPassKey = "DB_PASS"
	// DbHostKey is host where db is installed
	DbHostKey = "DB_HOST"
	// DbPortKey is port on which db is listening
	DbPortKey = "DB_PORT"
	// DbNameKey is name of database
	DbNameKey = "DB_NAME"
	// DbMigrationPath is the path to migration files
	DbMigrationPath = "DB_MIGRATION_PATH"
	// RedisAddrKey is the address of the redis server.
	RedisAddrKey = "REDIS_ADDR"
	// RedisPassKey is the password used to connect to redis.
	RedisPassKey = "REDIS_PASS"
	// RedisDbKey is the redis logical database.
	RedisDbKey = "REDIS_DB"
	// RedisKeyPrefixKey is prepended to every redis key.
	RedisKeyPrefixKey = "REDIS_KEY_PREFIX"
)

var (
	vip *viper.Viper

	defaultDatadir             = btcutil.AppDataDir("multisigd", false)
	defaultDbType              = "badger"
	defaultBroadcasterType     = "esplora"
	defaultPort                = 18100
	defaultLogLevel            = 4
	defaultNetwork             = "mainnet"
	defaultProfilerPort        = 18101
	defaultStatsInterval       = 600 // 10 minutes
	defaultPendingTxTTL        = 7 * 24
	defaultSessionTTL          = 24
	defaultJanitorInterval     = 60
	defaultMaxConnections      = 64
	defaultMessageRateLimit    = 20
	defaultTabHeartbeatTimeout = 30
	defaultEsploraUrlByNetwork = map[string]string{
		"mainnet": "https://blockstream.info/api",
		"testnet": "https://blockstream.info/testnet/api",
		"signet":  "https://mempool.space/signet/api",
		"regtest": "http://localhost:3000",
	}

	SupportedDbs = supportedType{
		"badger":   {},
		"inmemory": {},
		"postgres": {},
		"redis":    {},
	}
	SupportedBroadcasters = supportedType{
		"electrum": {},
		"esplora":  {},
	}
)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("MULTISIG")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(DatabaseTypeKey, defaultDbType)
	vip.SetDefault(BroadcasterTypeKey, defaultBroadcasterType)
	vip.SetDefault(PortKey, defaultPort)
	vip.SetDefault(NetworkKey, defaultNetwork)
	vip.SetDefault(LogLevelKey, defaultLogLevel)
	vip.SetDefault(NoProfilerKey, false)
	vip.SetDefault(ProfilerPortKey, defaultProfilerPort)
	vip.SetDefault(StatsIntervalKey, defaultStatsInterval)
	vip.SetDefault(PendingTxTTLKey, defaultPendingTxTTL)
	vip.SetDefault(SessionTTLKey, defaultSessionTTL)
	vip.SetDefault(JanitorIntervalKey, defaultJanitorInterval)
	vip.SetDefault(MaxConnectionsKey, defaultMaxConnections)
	vip.SetDefault(MessageRateLimitKey, defaultMessageRateLimit)
	vip.SetDefault(TabHeartbeatTimeoutKey, defaultTabHeartbeatTimeout)
	vip.SetDefault(DbUserKey, "root")
	vip.SetDefault(DbPassKey, "secret")
	vip.SetDefault(DbHostKey, "127.0.0.1")
	vip.SetDefault(DbPortKey, 5432)
	vip.SetDefault(DbNameKey, "multisigd-db-pg")
	vip.SetDefault(DbMigrationPath, "file://internal/infrastructure/storage/db/postgres/migration")
	vip.SetDefault(RedisAddrKey, "127.0.0.1:6379")
	vip.SetDefault(RedisDbKey, 0)
	vip.SetDefault(RedisKeyPrefixKey, "multisigd:")

	if err := validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	net := GetString(NetworkKey)
	if len(net) == 0 {
		return fmt.Errorf("network must not be null")
	}
	if _, err := multisig.NetworkByName(net); err != nil {
		nets := make([]string, 0, len(defaultEsploraUrlByNetwork))
		for net := range defaultEsploraUrlByNetwork {
			nets = append(nets, net)
		}
		sort.Strings(nets)
		return fmt.Errorf("unknown network, must be one of: %v", nets)
	}

	dbType := GetString(DatabaseTypeKey)
	if _, ok := SupportedDbs[dbType]; !ok {
		return fmt.Errorf("unsupported database type, must be one of %s", SupportedDbs)
	}

	broadcasterType := GetString(BroadcasterTypeKey)
	if _, ok := SupportedBroadcasters[broadcasterType]; !ok {
		return fmt.Errorf(
			"unsupported broadcaster type, must be one of %s", SupportedBroadcasters,
		)
	}
	if broadcasterType == "electrum" && GetString(ElectrumUrlKey) == "" {
		return fmt.Errorf("electrum url must not be null")
	}

	for _, key := range []string{
		PendingTxTTLKey, SessionTTLKey, JanitorIntervalKey,
		TabHeartbeatTimeoutKey, MaxConnectionsKey, MessageRateLimitKey,
	} {
		if GetInt(key) <= 0 {
			return fmt.Errorf("%s must be a positive number", strings.ToLower(key))
		}
	}

	port := GetInt(PortKey)
	noProfiler := GetBool(NoProfilerKey)
	if !noProfiler {
		profilerPort := GetInt(ProfilerPortKey)
		if port == profilerPort {
			return fmt.Errorf("port and profiler port must not be equal")
		}
	}

	return nil
}

func GetDatadir() string {
	return filepath.Join(GetString(DatadirKey), GetString(NetworkKey))
}

func GetNetwork() string {
	return GetString(NetworkKey)
}

func GetEsploraUrl() string {
	if url := GetString(EsploraUrlKey); url != "" {
		return url
	}
	return defaultEsploraUrlByNetwork[GetNetwork()]
}

func GetPendingTxTTL() time.Duration {
	return time.Duration(GetInt(PendingTxTTLKey)) * time.Hour
}

func GetSessionTTL() time.Duration {
	return time.Duration(GetInt(SessionTTLKey)) * time.Hour
}

func GetJanitorInterval() time.Duration {
	return time.Duration(GetInt(JanitorIntervalKey)) * time.Second
}

func GetTabHeartbeatTimeout() time.Duration {
	return time.Duration(GetInt(TabHeartbeatTimeoutKey)) * time.Second
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetFloat64(key string) float64 {
	return vip.GetFloat64(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func Set(key string, val interface{}) {
	vip.Set(key, val)
}

func Unset(key string) {
	vip.Set(key, nil)
}

func IsSet(key string) bool {
	return vip.IsSet(key)
}

// InitDatadir creates the folders used by the daemon inside the datadir.
func InitDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
		return err
	}

	noProfiler := GetBool(NoProfilerKey)
	if noProfiler {
		return nil
	}
	return makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	sort.Strings(types)
	return strings.Join(types, " | ")
}
