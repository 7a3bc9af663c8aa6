// Package controlstore keeps the durable control data of the router: the
// shard registry, the proxy partitions and the catalogue that maps each queue
// to its shard.
package controlstore

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/honeycombio/queuerouter/storage"
)

// Shard is one registered storage backend.
type Shard struct {
	ID     string
	Weight int
	URI    string
	// Options is only populated by detailed reads.
	Options map[string]any
}

func (s Shard) GetWeight() int { return s.Weight }

// Partition is a coarse-grained backend used by the proxy tier: a named set
// of hosts.
type Partition struct {
	Name   string
	Weight int
	Hosts  []string
}

func (p Partition) GetWeight() int { return p.Weight }

type ListOptions struct {
	// Marker excludes every id up to and including itself.
	Marker string
	// Limit of 0 lists everything.
	Limit    int
	Detailed bool
}

// ShardUpdate names the fields to change; nil fields are left alone.
type ShardUpdate struct {
	Weight  *int
	URI     *string
	Options map[string]any
}

func (u ShardUpdate) empty() bool {
	return u.Weight == nil && u.URI == nil && u.Options == nil
}

type PartitionUpdate struct {
	Weight *int
	Hosts  []string
}

func (u PartitionUpdate) empty() bool {
	return u.Weight == nil && u.Hosts == nil
}

type CatalogueEntry struct {
	Project string
	Queue   string
	Shard   string
}

type ShardStore interface {
	// List returns shards ordered by id.
	List(ctx context.Context, opts ListOptions) ([]Shard, error)
	Get(ctx context.Context, id string, detailed bool) (Shard, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Create registers a shard, replacing any shard with the same id.
	Create(ctx context.Context, id string, weight int, uri string, options map[string]any) error
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, update ShardUpdate) error
	DropAll(ctx context.Context) error
}

type PartitionStore interface {
	// List returns partitions ordered by name.
	List(ctx context.Context) ([]Partition, error)
	Get(ctx context.Context, name string) (Partition, error)
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name string, weight int, hosts []string) error
	Delete(ctx context.Context, name string) error
	Update(ctx context.Context, name string, update PartitionUpdate) error
	DropAll(ctx context.Context) error
}

type CatalogueStore interface {
	// List returns the entries of one project ordered by queue name.
	List(ctx context.Context, project string) ([]CatalogueEntry, error)
	Get(ctx context.Context, project, queue string) (CatalogueEntry, error)
	Exists(ctx context.Context, project, queue string) (bool, error)
	// Insert maps queue to shard, replacing any existing mapping.
	Insert(ctx context.Context, project, queue, shard string) error
	Delete(ctx context.Context, project, queue string) error
	Update(ctx context.Context, project, queue, shard string) error
	DropAll(ctx context.Context) error
}

func validateShard(id string, weight int) error {
	if id == "" {
		return fmt.Errorf("%w: shard id must not be empty", storage.ErrInvalidArgument)
	}
	if weight < 0 {
		return fmt.Errorf("%w: shard %s weight must not be negative, got %d", storage.ErrInvalidArgument, id, weight)
	}
	return nil
}

func validateShardUpdate(id string, update ShardUpdate) error {
	if update.empty() {
		return fmt.Errorf("%w: update of shard %s names neither weight, uri nor options", storage.ErrInvalidArgument, id)
	}
	if update.Weight != nil && *update.Weight < 0 {
		return fmt.Errorf("%w: shard %s weight must not be negative, got %d", storage.ErrInvalidArgument, id, *update.Weight)
	}
	return nil
}

func validatePartition(name string, weight int) error {
	if name == "" {
		return fmt.Errorf("%w: partition name must not be empty", storage.ErrInvalidArgument)
	}
	if weight < 0 {
		return fmt.Errorf("%w: partition %s weight must not be negative, got %d", storage.ErrInvalidArgument, name, weight)
	}
	return nil
}

func validatePartitionUpdate(name string, update PartitionUpdate) error {
	if update.empty() {
		return fmt.Errorf("%w: update of partition %s names neither hosts nor weight", storage.ErrInvalidArgument, name)
	}
	if update.Weight != nil && *update.Weight < 0 {
		return fmt.Errorf("%w: partition %s weight must not be negative, got %d", storage.ErrInvalidArgument, name, *update.Weight)
	}
	return nil
}

// page applies marker and limit to ids, which must be sorted.
func page(ids []string, opts ListOptions) []string {
	start, found := slices.BinarySearch(ids, opts.Marker)
	if found {
		start++
	}
	ids = ids[start:]
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}
	return ids
}

func encodeOptions(options map[string]any) ([]byte, error) {
	if options == nil {
		options = map[string]any{}
	}
	return msgpack.Marshal(options)
}

func decodeOptions(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return map[string]any{}, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	v, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return nil, fmt.Errorf("decoding shard options: %w", err)
	}
	if v == nil {
		return map[string]any{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decoding shard options: expected a map, got %T", v)
	}
	return m, nil
}

func cloneOptions(options map[string]any) map[string]any {
	if options == nil {
		return map[string]any{}
	}
	return maps.Clone(options)
}
