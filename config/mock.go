package config

import (
	"maps"
	"sync"
)

// MockConfig will respond with whatever config it's set to do during
// initialization
type MockConfig struct {
	Callbacks                     []ConfigReloadCallback
	GetHashVal                    string
	GetGeneralConfigVal           GeneralConfig
	GetLoggerTypeVal              string
	GetLoggerLevelVal             Level
	GetStdoutLoggerConfigVal      StdoutLoggerConfig
	GetCatalogConfigVal           CatalogConfig
	GetRedisConfigVal             RedisConfig
	GetMySQLConfigVal             MySQLConfig
	GetStorageConfigVal           StorageConfig
	GetBackendOptionsVal          map[string]map[string]any
	GetLimitsConfigVal            LimitsConfig
	GetPipelineConfigVal          PipelineConfig
	GetPrometheusMetricsConfigVal PrometheusMetricsConfig

	Mux sync.RWMutex
}

var _ Config = (*MockConfig)(nil)

func (m *MockConfig) RegisterReloadCallback(callback ConfigReloadCallback) {
	m.Mux.Lock()
	m.Callbacks = append(m.Callbacks, callback)
	m.Mux.Unlock()
}

func (m *MockConfig) Reload() {
	m.Mux.RLock()
	callbacks := append([]ConfigReloadCallback(nil), m.Callbacks...)
	hash := m.GetHashVal
	m.Mux.RUnlock()
	for _, cb := range callbacks {
		cb(hash)
	}
}

func (m *MockConfig) GetHash() string {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetHashVal
}

func (m *MockConfig) GetGeneralConfig() GeneralConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetGeneralConfigVal
}

func (m *MockConfig) GetLoggerType() string {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetLoggerTypeVal
}

func (m *MockConfig) GetLoggerLevel() Level {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetLoggerLevelVal
}

func (m *MockConfig) GetStdoutLoggerConfig() StdoutLoggerConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetStdoutLoggerConfigVal
}

func (m *MockConfig) GetCatalogConfig() CatalogConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetCatalogConfigVal
}

func (m *MockConfig) GetRedisConfig() RedisConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetRedisConfigVal
}

func (m *MockConfig) GetMySQLConfig() MySQLConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetMySQLConfigVal
}

func (m *MockConfig) GetStorageConfig() StorageConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetStorageConfigVal
}

func (m *MockConfig) GetBackendOptions(storageType string) map[string]any {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	opts := maps.Clone(m.GetBackendOptionsVal[storageType])
	if opts == nil {
		opts = make(map[string]any)
	}
	return opts
}

func (m *MockConfig) GetLimitsConfig() LimitsConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetLimitsConfigVal
}

func (m *MockConfig) GetPipelineConfig() PipelineConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetPipelineConfigVal
}

func (m *MockConfig) GetPrometheusMetricsConfig() PrometheusMetricsConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetPrometheusMetricsConfigVal
}
