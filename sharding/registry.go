package sharding

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/honeycombio/queuerouter/config"
	"github.com/honeycombio/queuerouter/controlstore"
	"github.com/honeycombio/queuerouter/logger"
	"github.com/honeycombio/queuerouter/metrics"
	"github.com/honeycombio/queuerouter/storage"
)

var registryMetrics = []metrics.Metadata{
	{Name: "driver_registry_builds", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "drivers built for shards"},
	{Name: "driver_registry_build_errors", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "failed attempts to build a shard driver"},
	{Name: "driver_registry_size", Type: metrics.Gauge, Unit: metrics.Dimensionless, Description: "number of shard drivers held by the registry"},
	{Name: "driver_build_duration_ms", Type: metrics.Histogram, Unit: metrics.Milliseconds, Description: "time spent building a shard driver"},
}

// DriverRegistry builds the driver of a shard on first use and hands the
// same instance to every later caller. Drivers are never evicted, and a
// cached driver is not revalidated against the shard store.
type DriverRegistry struct {
	Config  config.Config           `inject:""`
	Shards  controlstore.ShardStore `inject:""`
	Factory storage.Factory         `inject:""`
	Metrics metrics.Metrics         `inject:"metrics"`
	Logger  logger.Logger           `inject:""`
	Clock   clockwork.Clock         `inject:""`

	mut     sync.RWMutex
	drivers map[string]storage.DataDriver
	// collapses concurrent first use of a shard into one build
	builds singleflight.Group
}

func (r *DriverRegistry) Start() error {
	if r.Shards == nil {
		return errors.New("missing Shards injection in DriverRegistry")
	}
	if r.Factory == nil {
		return errors.New("missing Factory injection in DriverRegistry")
	}
	if r.Config == nil {
		return errors.New("missing Config injection in DriverRegistry")
	}
	if r.Logger == nil {
		r.Logger = &logger.NullLogger{}
	}
	if r.Metrics == nil {
		r.Metrics = &metrics.NullMetrics{}
	}
	if r.Clock == nil {
		r.Clock = clockwork.NewRealClock()
	}
	for _, m := range registryMetrics {
		r.Metrics.Register(m)
	}

	r.mut.Lock()
	r.drivers = make(map[string]storage.DataDriver)
	r.mut.Unlock()
	return nil
}

// Get returns the driver for shardID, building it if this is the first
// request for that shard. Concurrent first requests share one build. The
// build does not inherit the cancellation of the caller that started it, and
// each caller stops waiting when its own context is done.
func (r *DriverRegistry) Get(ctx context.Context, shardID string) (storage.DataDriver, error) {
	if d, ok := r.cached(shardID); ok {
		return d, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := r.builds.DoChan(shardID, func() (any, error) {
		// another flight may have finished between the check above and here
		if d, ok := r.cached(shardID); ok {
			return d, nil
		}
		d, err := r.build(buildCtx, shardID)
		if err != nil {
			return nil, err
		}
		r.mut.Lock()
		r.drivers[shardID] = d
		size := len(r.drivers)
		r.mut.Unlock()
		r.Metrics.Gauge("driver_registry_size", size)
		return d, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(storage.DataDriver), nil
	}
}

func (r *DriverRegistry) cached(shardID string) (storage.DataDriver, bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()
	d, ok := r.drivers[shardID]
	return d, ok
}

// Len returns the number of drivers built so far.
func (r *DriverRegistry) Len() int {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return len(r.drivers)
}

// Built returns the drivers built so far, keyed by shard id.
func (r *DriverRegistry) Built() map[string]storage.DataDriver {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return maps.Clone(r.drivers)
}

func (r *DriverRegistry) build(ctx context.Context, shardID string) (storage.DataDriver, error) {
	shard, err := r.Shards.Get(ctx, shardID, true)
	if err != nil {
		r.Metrics.Increment("driver_registry_build_errors")
		r.Logger.Error().WithString("shard", shardID).WithField("error", err.Error()).
			Logf("unable to read shard to build its driver")
		return nil, err
	}

	cfg, err := LayeredDriverConfig(r.Config, true, shard.URI, shard.Options)
	if err != nil {
		r.Metrics.Increment("driver_registry_build_errors")
		return nil, &storage.InvalidDriverError{Storage: shard.URI, Err: err}
	}
	start := r.Clock.Now()
	d, err := r.Factory.Build(cfg)
	r.Metrics.Histogram("driver_build_duration_ms", float64(r.Clock.Since(start).Milliseconds()))
	if err != nil {
		r.Metrics.Increment("driver_registry_build_errors")
		r.Logger.Error().WithFields(map[string]any{
			"shard":   shardID,
			"storage": cfg.Storage,
			"error":   err.Error(),
		}).Logf("unable to build driver for shard")
		return nil, err
	}

	r.Metrics.Increment("driver_registry_builds")
	r.Logger.Info().WithFields(map[string]any{
		"shard":   shardID,
		"storage": cfg.Storage,
	}).Logf("built driver for shard")
	return d, nil
}
