package sharding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/queuerouter/config"
	"github.com/honeycombio/queuerouter/controlstore"
	"github.com/honeycombio/queuerouter/logger"
	"github.com/honeycombio/queuerouter/metrics"
	"github.com/honeycombio/queuerouter/storage"
	"github.com/honeycombio/queuerouter/storage/memory"
)

type testEnv struct {
	clock     *clockwork.FakeClock
	config    *config.MockConfig
	shards    *controlstore.LocalShardStore
	catalogue controlstore.CatalogueStore
	loader    *storage.Loader
	metrics   *metrics.MockMetrics
	logger    *logger.MockLogger
	registry  *DriverRegistry
	catalog   *Catalog
	driver    *DataDriver

	builds  atomic.Int32
	mut     sync.Mutex
	configs []storage.DriverConfig
	// slows down memory driver construction so concurrent first use overlaps
	buildDelay time.Duration
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithCatalogue(t, &controlstore.LocalCatalogueStore{})
}

func newTestEnvWithCatalogue(t *testing.T, catalogue controlstore.CatalogueStore) *testEnv {
	env := &testEnv{
		clock: clockwork.NewFakeClock(),
		config: &config.MockConfig{
			GetLimitsConfigVal: config.LimitsConfig{
				DefaultQueuePaging:   10,
				DefaultMessagePaging: 10,
				DefaultClaimLimit:    10,
			},
		},
		shards:    &controlstore.LocalShardStore{},
		catalogue: catalogue,
		loader:    storage.NewLoader(),
		metrics:   &metrics.MockMetrics{},
		logger:    &logger.MockLogger{},
	}
	env.metrics.Start()

	memoryDriver := memory.Constructor(env.clock)
	env.loader.Register("memory", func(cfg storage.DriverConfig) (storage.DataDriver, error) {
		env.builds.Add(1)
		env.mut.Lock()
		env.configs = append(env.configs, cfg)
		env.mut.Unlock()
		if env.buildDelay > 0 {
			time.Sleep(env.buildDelay)
		}
		return memoryDriver(cfg)
	})
	env.loader.Register("flaky", func(cfg storage.DriverConfig) (storage.DataDriver, error) {
		d, err := memoryDriver(cfg)
		if err != nil {
			return nil, err
		}
		return &flakyDriver{DataDriver: d}, nil
	})

	env.registry = &DriverRegistry{
		Config:  env.config,
		Shards:  env.shards,
		Factory: env.loader,
		Metrics: env.metrics,
		Logger:  env.logger,
		Clock:   env.clock,
	}
	require.NoError(t, env.registry.Start())

	env.catalog = &Catalog{
		Shards:    env.shards,
		Catalogue: env.catalogue,
		Drivers:   env.registry,
		Metrics:   env.metrics,
		Logger:    env.logger,
	}
	require.NoError(t, env.catalog.Start())
	env.driver = NewDataDriver(env.catalog)
	return env
}

func (e *testEnv) addShard(t *testing.T, id string, weight int, uri string) {
	require.NoError(t, e.shards.Create(context.Background(), id, weight, uri, nil))
}

// shardOf returns the shard the catalogue holds for queue.
func (e *testEnv) shardOf(t *testing.T, project, queue string) string {
	entry, err := e.catalogue.Get(context.Background(), project, queue)
	require.NoError(t, err)
	return entry.Shard
}

var errFlaky = errors.New("backend refused to delete")

// flakyDriver is a memory driver whose queue deletes always fail.
type flakyDriver struct {
	storage.DataDriver
}

func (f *flakyDriver) QueueController() storage.QueueController {
	return flakyQueues{f.DataDriver.QueueController()}
}

type flakyQueues struct {
	storage.QueueController
}

func (flakyQueues) Delete(ctx context.Context, name, project string) error {
	return errFlaky
}

// forgetfulCatalogue accepts placements but never finds them again, which is
// what a concurrent delete looks like to a queue create.
type forgetfulCatalogue struct {
	controlstore.LocalCatalogueStore
}

func (f *forgetfulCatalogue) Get(ctx context.Context, project, queue string) (controlstore.CatalogueEntry, error) {
	return controlstore.CatalogueEntry{}, &storage.QueueNotMappedError{Queue: queue, Project: project}
}
