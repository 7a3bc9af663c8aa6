package config

import (
	"time"
)

// Config defines the interface the rest of the code uses to get items from the
// config. There are different implementations of the config using different
// backends to store the config.
type Config interface {
	// RegisterReloadCallback takes a function that will be called whenever
	// the configuration is reloaded and its content hash has changed. The
	// callback is passed the new hash.
	RegisterReloadCallback(callback ConfigReloadCallback)

	// Reload forces the config to attempt to reload its values. If the config
	// checksum has changed, the reload callbacks will be called.
	Reload()

	// GetHash returns the hash of the currently loaded configuration.
	GetHash() string

	// GetGeneralConfig returns the config specific to General
	GetGeneralConfig() GeneralConfig

	// GetLoggerType returns the type of the logger to use. Valid types are in
	// the logger package
	GetLoggerType() string

	// GetLoggerLevel returns the level of the logger to use.
	GetLoggerLevel() Level

	// GetStdoutLoggerConfig returns the config specific to the StdoutLogger
	GetStdoutLoggerConfig() StdoutLoggerConfig

	// GetCatalogConfig returns where the shard registry and the catalogue
	// are kept.
	GetCatalogConfig() CatalogConfig

	GetRedisConfig() RedisConfig

	GetMySQLConfig() MySQLConfig

	// GetStorageConfig returns the backend used when sharding is disabled.
	GetStorageConfig() StorageConfig

	// GetBackendOptions returns the options configured for every backend of
	// the given type (the URI scheme of a shard, e.g. "memory"). The result
	// is never nil.
	GetBackendOptions(storageType string) map[string]any

	GetLimitsConfig() LimitsConfig

	// GetPipelineConfig returns the stages placed in front of each controller.
	GetPipelineConfig() PipelineConfig

	// GetPrometheusMetricsConfig returns the config specific to PrometheusMetrics
	GetPrometheusMetricsConfig() PrometheusMetricsConfig
}

type ConfigReloadCallback func(configHash string)

type GeneralConfig struct {
	ConfigurationVersion int  `yaml:"ConfigurationVersion" toml:"ConfigurationVersion" json:"ConfigurationVersion" default:"1"`
	Sharding             bool `yaml:"Sharding" toml:"Sharding" json:"Sharding" cmdenv:"Sharding"`
}

type LoggerConfig struct {
	Type  string `yaml:"Type" toml:"Type" json:"Type" default:"stdout" cmdenv:"LoggerType"`
	Level Level  `yaml:"Level" toml:"Level" json:"Level" default:"info" cmdenv:"LoggerLevel"`
}

type StdoutLoggerConfig struct {
	Structured bool `yaml:"Structured" toml:"Structured" json:"Structured"`
}

type CatalogConfig struct {
	// Storage is one of "inmem", "redis" or "mysql".
	Storage string `yaml:"Storage" toml:"Storage" json:"Storage" default:"inmem" cmdenv:"CatalogStorage"`
}

type RedisConfig struct {
	Host           string   `yaml:"Host" toml:"Host" json:"Host" default:"localhost:6379" cmdenv:"RedisHost"`
	Username       string   `yaml:"Username" toml:"Username" json:"Username" cmdenv:"RedisUsername"`
	Password       string   `yaml:"Password" toml:"Password" json:"Password" cmdenv:"RedisPassword"`
	AuthCode       string   `yaml:"AuthCode" toml:"AuthCode" json:"AuthCode" cmdenv:"RedisAuthCode"`
	Database       int      `yaml:"Database" toml:"Database" json:"Database"`
	Prefix         string   `yaml:"Prefix" toml:"Prefix" json:"Prefix" default:"queuerouter"`
	UseTLS         bool     `yaml:"UseTLS" toml:"UseTLS" json:"UseTLS"`
	UseTLSInsecure bool     `yaml:"UseTLSInsecure" toml:"UseTLSInsecure" json:"UseTLSInsecure"`
	MaxIdle        int      `yaml:"MaxIdle" toml:"MaxIdle" json:"MaxIdle" default:"3"`
	MaxActive      int      `yaml:"MaxActive" toml:"MaxActive" json:"MaxActive" default:"30"`
	Timeout        Duration `yaml:"Timeout" toml:"Timeout" json:"Timeout" default:"5s"`
}

type MySQLConfig struct {
	DSN          string `yaml:"DSN" toml:"DSN" json:"DSN" cmdenv:"MySQLDSN"`
	MaxOpenConns int    `yaml:"MaxOpenConns" toml:"MaxOpenConns" json:"MaxOpenConns" default:"10"`
}

type StorageConfig struct {
	URI     string         `yaml:"URI" toml:"URI" json:"URI" default:"memory://" cmdenv:"StorageURI"`
	Options map[string]any `yaml:"Options" toml:"Options" json:"Options"`
}

type LimitsConfig struct {
	DefaultQueuePaging   int `yaml:"DefaultQueuePaging" toml:"DefaultQueuePaging" json:"DefaultQueuePaging" default:"10"`
	DefaultMessagePaging int `yaml:"DefaultMessagePaging" toml:"DefaultMessagePaging" json:"DefaultMessagePaging" default:"10"`
	DefaultClaimLimit    int `yaml:"DefaultClaimLimit" toml:"DefaultClaimLimit" json:"DefaultClaimLimit" default:"10"`
}

// PipelineConfig names, per resource, the stages that see each operation
// before the storage driver does. Stages run in the order listed.
type PipelineConfig struct {
	Queue   []string `yaml:"Queue" toml:"Queue" json:"Queue"`
	Message []string `yaml:"Message" toml:"Message" json:"Message"`
	Claim   []string `yaml:"Claim" toml:"Claim" json:"Claim"`
}

type PrometheusMetricsConfig struct {
	Enabled    bool   `yaml:"Enabled" toml:"Enabled" json:"Enabled"`
	ListenAddr string `yaml:"ListenAddr" toml:"ListenAddr" json:"ListenAddr" default:"localhost:2112"`
}

// Duration is a time.Duration that can be read from text in config files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
