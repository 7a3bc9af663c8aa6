package config

import (
	"fmt"
	"maps"
	"net/url"
	"sync"
)

type fileConfig struct {
	mainConfig    *configContents
	mainHash      string
	opts          *CmdEnv
	callbacks     []ConfigReloadCallback
	errorCallback func(error)
	mux           sync.RWMutex
}

type configContents struct {
	General           GeneralConfig             `yaml:"General" toml:"General" json:"General"`
	Logger            LoggerConfig              `yaml:"Logger" toml:"Logger" json:"Logger"`
	StdoutLogger      StdoutLoggerConfig        `yaml:"StdoutLogger" toml:"StdoutLogger" json:"StdoutLogger"`
	Catalog           CatalogConfig             `yaml:"Catalog" toml:"Catalog" json:"Catalog"`
	Redis             RedisConfig               `yaml:"Redis" toml:"Redis" json:"Redis"`
	MySQL             MySQLConfig               `yaml:"MySQL" toml:"MySQL" json:"MySQL"`
	Storage           StorageConfig             `yaml:"Storage" toml:"Storage" json:"Storage"`
	Backends          map[string]map[string]any `yaml:"Backends" toml:"Backends" json:"Backends"`
	Limits            LimitsConfig              `yaml:"Limits" toml:"Limits" json:"Limits"`
	Pipeline          PipelineConfig            `yaml:"Pipeline" toml:"Pipeline" json:"Pipeline"`
	PrometheusMetrics PrometheusMetricsConfig   `yaml:"PrometheusMetrics" toml:"PrometheusMetrics" json:"PrometheusMetrics"`
}

// NewConfig creates a new Config object from the locations named in opts.
// When no location is given, every value comes from defaults and the command
// line. The errorCallback is invoked when a later Reload fails.
func NewConfig(opts *CmdEnv, errorCallback func(error)) (Config, error) {
	cfg, hash, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if errs := cfg.validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %v", errs)
	}

	return &fileConfig{
		mainConfig:    cfg,
		mainHash:      hash,
		opts:          opts,
		errorCallback: errorCallback,
	}, nil
}

func loadConfig(opts *CmdEnv) (*configContents, string, error) {
	cfg := &configContents{}
	hash, err := readConfigInto(cfg, opts.ConfigLocations, opts)
	if err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}

func (f *fileConfig) RegisterReloadCallback(cb ConfigReloadCallback) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.callbacks = append(f.callbacks, cb)
}

func (f *fileConfig) Reload() {
	cfg, hash, err := loadConfig(f.opts)
	if err == nil {
		if errs := cfg.validate(); len(errs) > 0 {
			err = fmt.Errorf("config validation failed: %v", errs)
		}
	}
	if err != nil {
		if f.errorCallback != nil {
			f.errorCallback(err)
		}
		return
	}

	f.mux.Lock()
	if hash == f.mainHash {
		f.mux.Unlock()
		return
	}
	f.mainConfig = cfg
	f.mainHash = hash
	callbacks := append([]ConfigReloadCallback(nil), f.callbacks...)
	f.mux.Unlock()

	for _, cb := range callbacks {
		cb(hash)
	}
}

func (f *fileConfig) GetHash() string {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.mainHash
}

func (f *fileConfig) GetGeneralConfig() GeneralConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.mainConfig.General
}

func (f *fileConfig) GetLoggerType() string {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.mainConfig.Logger.Type
}

func (f *fileConfig) GetLoggerLevel() Level {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.mainConfig.Logger.Level
}

func (f *fileConfig) GetStdoutLoggerConfig() StdoutLoggerConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.mainConfig.StdoutLogger
}

func (f *fileConfig) GetCatalogConfig() CatalogConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.mainConfig.Catalog
}

func (f *fileConfig) GetRedisConfig() RedisConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.mainConfig.Redis
}

func (f *fileConfig) GetMySQLConfig() MySQLConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.mainConfig.MySQL
}

func (f *fileConfig) GetStorageConfig() StorageConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	sc := f.mainConfig.Storage
	sc.Options = maps.Clone(sc.Options)
	return sc
}

func (f *fileConfig) GetBackendOptions(storageType string) map[string]any {
	f.mux.RLock()
	defer f.mux.RUnlock()
	opts := maps.Clone(f.mainConfig.Backends[storageType])
	if opts == nil {
		opts = make(map[string]any)
	}
	return opts
}

func (f *fileConfig) GetLimitsConfig() LimitsConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.mainConfig.Limits
}

func (f *fileConfig) GetPipelineConfig() PipelineConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.mainConfig.Pipeline
}

func (f *fileConfig) GetPrometheusMetricsConfig() PrometheusMetricsConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.mainConfig.PrometheusMetrics
}

// storageScheme returns the scheme of a storage URI, which names the backend
// type.
func storageScheme(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("storage uri %q has no scheme", uri)
	}
	return u.Scheme, nil
}
