// Package config loads the foundry configuration from the environment, an optional config file
// and command line flags, in increasing order of precedence.
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type StorageType string

const (
	StorageRedis  StorageType = "redis"
	StorageSQLite StorageType = "sqlite"
)

func (s StorageType) IsValid() bool {
	return s == StorageRedis || s == StorageSQLite
}

const (
	DefaultNamespace          = "foundry"
	DefaultPort               = 4040
	DefaultLogLevel           = "info"
	DefaultTickRate           = 20
	DefaultSaveInterval       = 100
	DefaultSQLitePath         = "data/foundry.db"
	DefaultSnapshotCacheBytes = 16 * 1024 * 1024
	DefaultRedisAddress       = "localhost:6379"
	DefaultUpstreamURL        = "localhost:4040"

	// ConfigFileEnv names a yaml, toml or json file read before the environment.
	ConfigFileEnv = "FOUNDRY_CONFIG_FILE"
)

var namespacePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type Config struct {
	Namespace          string      `mapstructure:"FOUNDRY_NAMESPACE"`
	Port               int         `mapstructure:"FOUNDRY_PORT"`
	LogLevel           string      `mapstructure:"FOUNDRY_LOG_LEVEL"`
	LogPretty          bool        `mapstructure:"FOUNDRY_LOG_PRETTY"`
	TickRate           int         `mapstructure:"FOUNDRY_TICK_RATE"`
	SaveInterval       uint64      `mapstructure:"FOUNDRY_SAVE_INTERVAL"`
	Storage            StorageType `mapstructure:"FOUNDRY_STORAGE"`
	SQLitePath         string      `mapstructure:"FOUNDRY_SQLITE_PATH"`
	CatalogPath        string      `mapstructure:"FOUNDRY_CATALOG_PATH"`
	SnapshotCacheBytes int         `mapstructure:"FOUNDRY_SNAPSHOT_CACHE_BYTES"`
	SyncNATS           bool        `mapstructure:"FOUNDRY_SYNC_NATS"`
	UpstreamURL        string      `mapstructure:"FOUNDRY_UPSTREAM_URL"`
	RedisAddress       string      `mapstructure:"REDIS_ADDRESS"`
	RedisPassword      string      `mapstructure:"REDIS_PASSWORD"`
	StatsdAddress      string      `mapstructure:"STATSD_ADDRESS"`
}

var defaultConfig = Config{
	Namespace:          DefaultNamespace,
	Port:               DefaultPort,
	LogLevel:           DefaultLogLevel,
	LogPretty:          false,
	TickRate:           DefaultTickRate,
	SaveInterval:       DefaultSaveInterval,
	Storage:            StorageRedis,
	SQLitePath:         DefaultSQLitePath,
	CatalogPath:        "",
	SnapshotCacheBytes: DefaultSnapshotCacheBytes,
	SyncNATS:           false,
	UpstreamURL:        DefaultUpstreamURL,
	RedisAddress:       DefaultRedisAddress,
	RedisPassword:      "",
	StatsdAddress:      "",
}

func Default() Config {
	return defaultConfig
}

// flag describes the command line flag bound to a config key.
type flag struct {
	key   string
	name  string
	usage string
}

var flags = []flag{
	{"FOUNDRY_NAMESPACE", "namespace", "namespace of the world"},
	{"FOUNDRY_PORT", "port", "port the HTTP server listens on"},
	{"FOUNDRY_LOG_LEVEL", "log-level", "zerolog level"},
	{"FOUNDRY_LOG_PRETTY", "log-pretty", "human readable log output"},
	{"FOUNDRY_TICK_RATE", "tick-rate", "ticks per second"},
	{"FOUNDRY_SAVE_INTERVAL", "save-interval", "ticks between saves, 0 saves only on shutdown"},
	{"FOUNDRY_STORAGE", "storage", "storage backend: redis or sqlite"},
	{"FOUNDRY_SQLITE_PATH", "sqlite-path", "database file of the sqlite backend"},
	{"FOUNDRY_CATALOG_PATH", "catalog", "item catalog file, the built-in catalog when empty"},
	{"FOUNDRY_SYNC_NATS", "sync-nats", "publish snapshots to NATS"},
	{"FOUNDRY_UPSTREAM_URL", "upstream", "host:port of the authoritative foundry an observer follows"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("FOUNDRY_NAMESPACE", defaultConfig.Namespace)
	v.SetDefault("FOUNDRY_PORT", defaultConfig.Port)
	v.SetDefault("FOUNDRY_LOG_LEVEL", defaultConfig.LogLevel)
	v.SetDefault("FOUNDRY_LOG_PRETTY", defaultConfig.LogPretty)
	v.SetDefault("FOUNDRY_TICK_RATE", defaultConfig.TickRate)
	v.SetDefault("FOUNDRY_SAVE_INTERVAL", defaultConfig.SaveInterval)
	v.SetDefault("FOUNDRY_STORAGE", string(defaultConfig.Storage))
	v.SetDefault("FOUNDRY_SQLITE_PATH", defaultConfig.SQLitePath)
	v.SetDefault("FOUNDRY_CATALOG_PATH", defaultConfig.CatalogPath)
	v.SetDefault("FOUNDRY_SNAPSHOT_CACHE_BYTES", defaultConfig.SnapshotCacheBytes)
	v.SetDefault("FOUNDRY_SYNC_NATS", defaultConfig.SyncNATS)
	v.SetDefault("FOUNDRY_UPSTREAM_URL", defaultConfig.UpstreamURL)
	v.SetDefault("REDIS_ADDRESS", defaultConfig.RedisAddress)
	v.SetDefault("REDIS_PASSWORD", defaultConfig.RedisPassword)
	v.SetDefault("STATSD_ADDRESS", defaultConfig.StatsdAddress)
}

// Load reads the configuration through the global viper instance, which is where BindFlags binds
// the command line flags of the foundry commands.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if file := os.Getenv(ConfigFileEnv); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "failed to read config file %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "failed to unmarshal config")
	}
	cfg.Storage = StorageType(strings.ToLower(string(cfg.Storage)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BindFlags defines the foundry flags on fs and binds each to its config key on v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	setDefaults(v)
	for _, f := range flags {
		switch def := v.Get(f.key).(type) {
		case bool:
			fs.Bool(f.name, def, f.usage)
		case int:
			fs.Int(f.name, def, f.usage)
		default:
			fs.String(f.name, v.GetString(f.key), f.usage)
		}
		if err := v.BindPFlag(f.key, fs.Lookup(f.name)); err != nil {
			return eris.Wrapf(err, "failed to bind flag --%s", f.name)
		}
	}
	return nil
}

func (c Config) Validate() error {
	if !namespacePattern.MatchString(c.Namespace) {
		return eris.Errorf("FOUNDRY_NAMESPACE %q must only contain letters, digits, '_' and '-'", c.Namespace)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return eris.Errorf("FOUNDRY_PORT %d is out of range", c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return eris.Wrapf(err, "FOUNDRY_LOG_LEVEL %q is not a valid log level", c.LogLevel)
	}
	if c.TickRate <= 0 {
		return eris.New("FOUNDRY_TICK_RATE must be positive")
	}
	if !c.Storage.IsValid() {
		return eris.Errorf("FOUNDRY_STORAGE %q must be %q or %q", c.Storage, StorageRedis, StorageSQLite)
	}
	if c.Storage == StorageSQLite && c.SQLitePath == "" {
		return eris.New("FOUNDRY_SQLITE_PATH is required by the sqlite storage")
	}
	if c.Storage == StorageRedis && c.RedisAddress == "" {
		return eris.New("REDIS_ADDRESS is required by the redis storage")
	}
	if c.SnapshotCacheBytes < 0 {
		return eris.New("FOUNDRY_SNAPSHOT_CACHE_BYTES must not be negative")
	}
	return nil
}
