package controlstore

import (
	"context"
	"slices"
	"sync"

	"github.com/honeycombio/queuerouter/generics"
	"github.com/honeycombio/queuerouter/storage"
)

// LocalShardStore keeps shards in process memory. It backs the "inmem"
// catalog storage and tests.
type LocalShardStore struct {
	mut    sync.RWMutex
	shards map[string]Shard
}

var _ ShardStore = (*LocalShardStore)(nil)

func (s *LocalShardStore) List(ctx context.Context, opts ListOptions) ([]Shard, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	ids := generics.NewSet[string]()
	for id := range s.shards {
		ids.Add(id)
	}
	var out []Shard
	for _, id := range page(generics.SortedMembers(ids), opts) {
		out = append(out, s.view(s.shards[id], opts.Detailed))
	}
	return out, nil
}

func (s *LocalShardStore) view(sh Shard, detailed bool) Shard {
	if detailed {
		sh.Options = cloneOptions(sh.Options)
	} else {
		sh.Options = nil
	}
	return sh
}

func (s *LocalShardStore) Get(ctx context.Context, id string, detailed bool) (Shard, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	sh, ok := s.shards[id]
	if !ok {
		return Shard{}, &storage.ShardDoesNotExistError{Shard: id}
	}
	return s.view(sh, detailed), nil
}

func (s *LocalShardStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	_, ok := s.shards[id]
	return ok, nil
}

func (s *LocalShardStore) Create(ctx context.Context, id string, weight int, uri string, options map[string]any) error {
	if err := validateShard(id, weight); err != nil {
		return err
	}
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.shards == nil {
		s.shards = make(map[string]Shard)
	}
	s.shards[id] = Shard{ID: id, Weight: weight, URI: uri, Options: cloneOptions(options)}
	return nil
}

func (s *LocalShardStore) Delete(ctx context.Context, id string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	delete(s.shards, id)
	return nil
}

func (s *LocalShardStore) Update(ctx context.Context, id string, update ShardUpdate) error {
	if err := validateShardUpdate(id, update); err != nil {
		return err
	}
	s.mut.Lock()
	defer s.mut.Unlock()
	sh, ok := s.shards[id]
	if !ok {
		return &storage.ShardDoesNotExistError{Shard: id}
	}
	if update.Weight != nil {
		sh.Weight = *update.Weight
	}
	if update.URI != nil {
		sh.URI = *update.URI
	}
	if update.Options != nil {
		sh.Options = cloneOptions(update.Options)
	}
	s.shards[id] = sh
	return nil
}

func (s *LocalShardStore) DropAll(ctx context.Context) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.shards = nil
	return nil
}

type LocalPartitionStore struct {
	mut        sync.RWMutex
	partitions map[string]Partition
}

var _ PartitionStore = (*LocalPartitionStore)(nil)

func (s *LocalPartitionStore) List(ctx context.Context) ([]Partition, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	names := generics.NewSet[string]()
	for name := range s.partitions {
		names.Add(name)
	}
	var out []Partition
	for _, name := range generics.SortedMembers(names) {
		p := s.partitions[name]
		p.Hosts = slices.Clone(p.Hosts)
		out = append(out, p)
	}
	return out, nil
}

func (s *LocalPartitionStore) Get(ctx context.Context, name string) (Partition, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	p, ok := s.partitions[name]
	if !ok {
		return Partition{}, &storage.PartitionDoesNotExistError{Partition: name}
	}
	p.Hosts = slices.Clone(p.Hosts)
	return p, nil
}

func (s *LocalPartitionStore) Exists(ctx context.Context, name string) (bool, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	_, ok := s.partitions[name]
	return ok, nil
}

func (s *LocalPartitionStore) Create(ctx context.Context, name string, weight int, hosts []string) error {
	if err := validatePartition(name, weight); err != nil {
		return err
	}
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.partitions == nil {
		s.partitions = make(map[string]Partition)
	}
	s.partitions[name] = Partition{Name: name, Weight: weight, Hosts: slices.Clone(hosts)}
	return nil
}

func (s *LocalPartitionStore) Delete(ctx context.Context, name string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	delete(s.partitions, name)
	return nil
}

func (s *LocalPartitionStore) Update(ctx context.Context, name string, update PartitionUpdate) error {
	if err := validatePartitionUpdate(name, update); err != nil {
		return err
	}
	s.mut.Lock()
	defer s.mut.Unlock()
	p, ok := s.partitions[name]
	if !ok {
		return &storage.PartitionDoesNotExistError{Partition: name}
	}
	if update.Weight != nil {
		p.Weight = *update.Weight
	}
	if update.Hosts != nil {
		p.Hosts = slices.Clone(update.Hosts)
	}
	s.partitions[name] = p
	return nil
}

func (s *LocalPartitionStore) DropAll(ctx context.Context) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.partitions = nil
	return nil
}

type LocalCatalogueStore struct {
	mut     sync.RWMutex
	entries map[string]map[string]string // project -> queue -> shard
}

var _ CatalogueStore = (*LocalCatalogueStore)(nil)

func (s *LocalCatalogueStore) List(ctx context.Context, project string) ([]CatalogueEntry, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	queues := s.entries[project]
	names := generics.NewSet[string]()
	for q := range queues {
		names.Add(q)
	}
	var out []CatalogueEntry
	for _, q := range generics.SortedMembers(names) {
		out = append(out, CatalogueEntry{Project: project, Queue: q, Shard: queues[q]})
	}
	return out, nil
}

func (s *LocalCatalogueStore) Get(ctx context.Context, project, queue string) (CatalogueEntry, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	shard, ok := s.entries[project][queue]
	if !ok {
		return CatalogueEntry{}, &storage.QueueNotMappedError{Queue: queue, Project: project}
	}
	return CatalogueEntry{Project: project, Queue: queue, Shard: shard}, nil
}

func (s *LocalCatalogueStore) Exists(ctx context.Context, project, queue string) (bool, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	_, ok := s.entries[project][queue]
	return ok, nil
}

func (s *LocalCatalogueStore) Insert(ctx context.Context, project, queue, shard string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.entries == nil {
		s.entries = make(map[string]map[string]string)
	}
	if s.entries[project] == nil {
		s.entries[project] = make(map[string]string)
	}
	s.entries[project][queue] = shard
	return nil
}

func (s *LocalCatalogueStore) Delete(ctx context.Context, project, queue string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	delete(s.entries[project], queue)
	if len(s.entries[project]) == 0 {
		delete(s.entries, project)
	}
	return nil
}

func (s *LocalCatalogueStore) Update(ctx context.Context, project, queue, shard string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, ok := s.entries[project][queue]; !ok {
		return &storage.QueueNotMappedError{Queue: queue, Project: project}
	}
	s.entries[project][queue] = shard
	return nil
}

func (s *LocalCatalogueStore) DropAll(ctx context.Context) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.entries = nil
	return nil
}
