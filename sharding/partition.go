package sharding

import (
	"context"
	"fmt"

	"github.com/honeycombio/queuerouter/controlstore"
	"github.com/honeycombio/queuerouter/storage"
)

// SelectPartition picks a proxy partition by weight.
func SelectPartition(ctx context.Context, partitions controlstore.PartitionStore) (controlstore.Partition, error) {
	return selectPartition(ctx, partitions, randIntN)
}

func selectPartition(ctx context.Context, partitions controlstore.PartitionStore, intn func(int) int) (controlstore.Partition, error) {
	all, err := partitions.List(ctx)
	if err != nil {
		return controlstore.Partition{}, err
	}
	p, ok := selectWeighted(all, intn)
	if !ok {
		return controlstore.Partition{}, fmt.Errorf("selecting a partition among %d: %w", len(all), storage.ErrNoShardFound)
	}
	return p, nil
}
