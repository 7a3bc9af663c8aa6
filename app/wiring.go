package app

import (
	"fmt"

	"github.com/facebookgo/inject"
	"github.com/jonboulle/clockwork"

	"github.com/honeycombio/queuerouter/config"
	"github.com/honeycombio/queuerouter/controlstore"
	"github.com/honeycombio/queuerouter/internal/redis"
	"github.com/honeycombio/queuerouter/sharding"
	"github.com/honeycombio/queuerouter/storage"
	"github.com/honeycombio/queuerouter/storage/memory"
	"github.com/honeycombio/queuerouter/storage/pipeline"
)

// NewLoader returns a driver factory with every built-in backend registered.
func NewLoader(clock clockwork.Clock) *storage.Loader {
	l := storage.NewLoader()
	l.Register("memory", memory.Constructor(clock))
	return l
}

// DriverObjects returns the objects to add to the injection graph so that a
// storage.DataDriver named "driver" is available. That driver is always the
// storage pipeline; the driver it ends in is named "backend". With sharding
// on, the backend is the routing core plus the catalog stores selected by
// Catalog.Storage. Otherwise the single configured backend is built right
// away.
func DriverObjects(c config.Config, factory storage.Factory) ([]*inject.Object, error) {
	objects := []*inject.Object{{Value: &pipeline.DataDriver{}, Name: "driver"}}

	if !c.GetGeneralConfig().Sharding {
		d, err := SingleBackend(c, factory)
		if err != nil {
			return nil, err
		}
		return append(objects, &inject.Object{Value: d, Name: "backend"}), nil
	}

	stores, err := catalogStores(c.GetCatalogConfig().Storage)
	if err != nil {
		return nil, err
	}
	objects = append(objects, stores...)
	return append(objects,
		&inject.Object{Value: &sharding.DriverRegistry{}},
		&inject.Object{Value: &sharding.Catalog{}},
		&inject.Object{Value: &sharding.DataDriver{}, Name: "backend"},
	), nil
}

func catalogStores(storageType string) ([]*inject.Object, error) {
	switch storageType {
	case "inmem":
		return []*inject.Object{
			{Value: &controlstore.LocalShardStore{}},
			{Value: &controlstore.LocalPartitionStore{}},
			{Value: &controlstore.LocalCatalogueStore{}},
		}, nil
	case "redis":
		return []*inject.Object{
			{Value: &redis.DefaultClient{}, Name: "redis"},
			{Value: &controlstore.RedisShardStore{}},
			{Value: &controlstore.RedisPartitionStore{}},
			{Value: &controlstore.RedisCatalogueStore{}},
		}, nil
	case "mysql":
		// partitions belong to the proxy tier and stay in memory
		return []*inject.Object{
			{Value: &controlstore.MySQLDB{}},
			{Value: &controlstore.MySQLShardStore{}},
			{Value: &controlstore.LocalPartitionStore{}},
			{Value: &controlstore.MySQLCatalogueStore{}},
		}, nil
	default:
		return nil, fmt.Errorf("unknown catalog storage %q", storageType)
	}
}

// SingleBackend builds the backend named by the Storage section, layering its
// options over the Backends entry for its type.
func SingleBackend(c config.Config, factory storage.Factory) (storage.DataDriver, error) {
	sc := c.GetStorageConfig()
	cfg, err := sharding.LayeredDriverConfig(c, false, sc.URI, sc.Options)
	if err != nil {
		return nil, fmt.Errorf("Storage.URI: %w", err)
	}
	return factory.Build(cfg)
}
