package sharding

import (
	"context"
	"errors"
	"fmt"

	"github.com/honeycombio/queuerouter/controlstore"
	"github.com/honeycombio/queuerouter/logger"
	"github.com/honeycombio/queuerouter/metrics"
	"github.com/honeycombio/queuerouter/storage"
)

var catalogMetrics = []metrics.Metadata{
	{Name: "catalog_registrations", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "queues placed on a shard"},
	{Name: "catalog_register_noop", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "registrations of queues that were already placed"},
	{Name: "catalog_lookups", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "queue lookups"},
	{Name: "catalog_lookup_unmapped", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "lookups of queues not placed on any shard"},
	{Name: "catalog_deregistrations", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "queues removed from the catalogue"},
}

// Catalog maps queues to the shards that own them.
type Catalog struct {
	Shards    controlstore.ShardStore     `inject:""`
	Catalogue controlstore.CatalogueStore `inject:""`
	Drivers   *DriverRegistry             `inject:""`
	// only used by SelectPartition
	Partitions controlstore.PartitionStore `inject:""`
	Metrics    metrics.Metrics             `inject:"metrics"`
	Logger     logger.Logger               `inject:""`

	// replaced in tests to make placement deterministic
	intn func(int) int
}

func (c *Catalog) Start() error {
	if c.Shards == nil {
		return errors.New("missing Shards injection in Catalog")
	}
	if c.Catalogue == nil {
		return errors.New("missing Catalogue injection in Catalog")
	}
	if c.Drivers == nil {
		return errors.New("missing Drivers injection in Catalog")
	}
	if c.Logger == nil {
		c.Logger = &logger.NullLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &metrics.NullMetrics{}
	}
	for _, m := range catalogMetrics {
		c.Metrics.Register(m)
	}
	return nil
}

// Register places a new queue on a shard chosen by weight. It does nothing
// if the queue is already placed.
//
// Two concurrent registrations of the same new queue may both choose a
// shard; the last write wins.
func (c *Catalog) Register(ctx context.Context, queue, project string) error {
	exists, err := c.Catalogue.Exists(ctx, project, queue)
	if err != nil {
		return err
	}
	if exists {
		c.Metrics.Increment("catalog_register_noop")
		return nil
	}

	shards, err := c.Shards.List(ctx, controlstore.ListOptions{})
	if err != nil {
		return err
	}
	intn := c.intn
	if intn == nil {
		intn = randIntN
	}
	shard, ok := selectWeighted(shards, intn)
	if !ok {
		return fmt.Errorf("placing queue %s of project %q: %w", queue, project, storage.ErrNoShardFound)
	}
	if err := c.Catalogue.Insert(ctx, project, queue, shard.ID); err != nil {
		return err
	}

	c.Metrics.Increment("catalog_registrations")
	c.Logger.Debug().WithFields(map[string]any{
		"queue":   queue,
		"project": project,
		"shard":   shard.ID,
	}).Logf("placed queue on shard")
	return nil
}

// Deregister removes the placement of a queue. Removing an unplaced queue is
// not an error.
func (c *Catalog) Deregister(ctx context.Context, queue, project string) error {
	if err := c.Catalogue.Delete(ctx, project, queue); err != nil {
		return err
	}
	c.Metrics.Increment("catalog_deregistrations")
	return nil
}

// Lookup returns the driver of the shard that owns the queue, or nil with no
// error if the queue is not placed anywhere.
func (c *Catalog) Lookup(ctx context.Context, queue, project string) (storage.DataDriver, error) {
	c.Metrics.Increment("catalog_lookups")
	entry, err := c.Catalogue.Get(ctx, project, queue)
	if errors.Is(err, storage.ErrDoesNotExist) {
		c.Metrics.Increment("catalog_lookup_unmapped")
		c.Logger.Debug().WithString("queue", queue).WithString("project", project).
			Logf("queue is not placed on any shard")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.Drivers.Get(ctx, entry.Shard)
}

// SelectPartition picks a proxy partition by weight.
func (c *Catalog) SelectPartition(ctx context.Context) (controlstore.Partition, error) {
	if c.Partitions == nil {
		return controlstore.Partition{}, fmt.Errorf("no partition store configured: %w", storage.ErrNoShardFound)
	}
	return SelectPartition(ctx, c.Partitions)
}
