package controlstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/honeycombio/queuerouter/generics"
	"github.com/honeycombio/queuerouter/internal/redis"
	"github.com/honeycombio/queuerouter/storage"
)

const (
	shardsKey     = "shards"
	partitionsKey = "partitions"
	projectsKey   = "catalogue_projects"
)

// Writes fields only if the hash at KEYS[1] already exists.
// ARGV holds field/value pairs.
const updateHashScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`

// Sets ARGV[1] to ARGV[2] only if the field already exists.
const updateFieldScript = `
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`

// redisError marks failures to reach the server so callers can tell them
// apart from missing records.
func redisError(op string, err error) error {
	if err == nil {
		return nil
	}
	if redis.IsConnectionError(err) {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrConnection, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// loadScript registers src with the server so a store fails at startup,
// not on first use, when Redis is unreachable.
func loadScript(client redis.Client, src string) (redis.Script, error) {
	script := client.NewScript(1, src)
	conn := client.Get()
	defer conn.Close()
	if err := script.Load(conn); err != nil {
		return nil, redisError("loading script", err)
	}
	return script, nil
}

// RedisShardStore keeps the shard registry in Redis: a set of ids plus one
// hash per shard.
type RedisShardStore struct {
	RedisClient redis.Client `inject:"redis"`

	updateScript redis.Script
}

var _ ShardStore = (*RedisShardStore)(nil)

func (r *RedisShardStore) Start() error {
	if r.RedisClient == nil {
		return errors.New("missing RedisClient injection in RedisShardStore")
	}
	var err error
	r.updateScript, err = loadScript(r.RedisClient, updateHashScript)
	return err
}

func (r *RedisShardStore) Stop() error { return nil }

func (r *RedisShardStore) shardKey(id string) string {
	return r.RedisClient.Key("shard", id)
}

func (r *RedisShardStore) List(ctx context.Context, opts ListOptions) ([]Shard, error) {
	conn := r.RedisClient.Get()
	defer conn.Close()

	members, err := conn.SMembers(r.RedisClient.Key(shardsKey))
	if err != nil {
		return nil, redisError("listing shards", err)
	}
	slices.Sort(members)

	var out []Shard
	for _, id := range page(members, opts) {
		sh, err := r.read(conn, id, opts.Detailed)
		if errors.Is(err, storage.ErrDoesNotExist) {
			// deleted between SMEMBERS and HGETALL
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, nil
}

func (r *RedisShardStore) read(conn redis.Conn, id string, detailed bool) (Shard, error) {
	fields, err := conn.GetBytesHash(r.shardKey(id))
	if err != nil {
		return Shard{}, redisError("reading shard "+id, err)
	}
	if len(fields) == 0 {
		return Shard{}, &storage.ShardDoesNotExistError{Shard: id}
	}
	weight, err := strconv.Atoi(string(fields["weight"]))
	if err != nil {
		return Shard{}, fmt.Errorf("shard %s has a malformed weight: %w", id, err)
	}
	sh := Shard{ID: id, Weight: weight, URI: string(fields["uri"])}
	if detailed {
		if sh.Options, err = decodeOptions(fields["options"]); err != nil {
			return Shard{}, err
		}
	}
	return sh, nil
}

func (r *RedisShardStore) Get(ctx context.Context, id string, detailed bool) (Shard, error) {
	conn := r.RedisClient.Get()
	defer conn.Close()
	return r.read(conn, id, detailed)
}

func (r *RedisShardStore) Exists(ctx context.Context, id string) (bool, error) {
	conn := r.RedisClient.Get()
	defer conn.Close()
	ok, err := conn.SIsMember(r.RedisClient.Key(shardsKey), id)
	return ok, redisError("checking shard "+id, err)
}

func (r *RedisShardStore) Create(ctx context.Context, id string, weight int, uri string, options map[string]any) error {
	if err := validateShard(id, weight); err != nil {
		return err
	}
	encoded, err := encodeOptions(options)
	if err != nil {
		return fmt.Errorf("encoding options of shard %s: %w", id, err)
	}

	conn := r.RedisClient.Get()
	defer conn.Close()
	key := r.shardKey(id)
	err = conn.Exec(
		redis.NewDelCommand(key),
		redis.NewSetHashCommand(key, map[string]any{"weight": weight, "uri": uri, "options": encoded}),
		redis.NewCommand("SADD", r.RedisClient.Key(shardsKey), id),
	)
	return redisError("creating shard "+id, err)
}

func (r *RedisShardStore) Delete(ctx context.Context, id string) error {
	conn := r.RedisClient.Get()
	defer conn.Close()
	err := conn.Exec(
		redis.NewDelCommand(r.shardKey(id)),
		redis.NewCommand("SREM", r.RedisClient.Key(shardsKey), id),
	)
	return redisError("deleting shard "+id, err)
}

func (r *RedisShardStore) Update(ctx context.Context, id string, update ShardUpdate) error {
	if err := validateShardUpdate(id, update); err != nil {
		return err
	}
	args := []any{r.shardKey(id)}
	if update.Weight != nil {
		args = append(args, "weight", *update.Weight)
	}
	if update.URI != nil {
		args = append(args, "uri", *update.URI)
	}
	if update.Options != nil {
		encoded, err := encodeOptions(update.Options)
		if err != nil {
			return fmt.Errorf("encoding options of shard %s: %w", id, err)
		}
		args = append(args, "options", encoded)
	}

	conn := r.RedisClient.Get()
	defer conn.Close()
	applied, err := r.updateScript.Do(ctx, conn, args...)
	if err != nil {
		return redisError("updating shard "+id, err)
	}
	if n, _ := applied.(int64); n == 0 {
		return &storage.ShardDoesNotExistError{Shard: id}
	}
	return nil
}

func (r *RedisShardStore) DropAll(ctx context.Context) error {
	conn := r.RedisClient.Get()
	defer conn.Close()
	members, err := conn.SMembers(r.RedisClient.Key(shardsKey))
	if err != nil {
		return redisError("dropping shards", err)
	}
	keys := []string{r.RedisClient.Key(shardsKey)}
	for _, id := range members {
		keys = append(keys, r.shardKey(id))
	}
	_, err = conn.Del(keys...)
	return redisError("dropping shards", err)
}

type RedisPartitionStore struct {
	RedisClient redis.Client `inject:"redis"`

	updateScript redis.Script
}

var _ PartitionStore = (*RedisPartitionStore)(nil)

func (r *RedisPartitionStore) Start() error {
	if r.RedisClient == nil {
		return errors.New("missing RedisClient injection in RedisPartitionStore")
	}
	var err error
	r.updateScript, err = loadScript(r.RedisClient, updateHashScript)
	return err
}

func (r *RedisPartitionStore) Stop() error { return nil }

func (r *RedisPartitionStore) partitionKey(name string) string {
	return r.RedisClient.Key("partition", name)
}

func (r *RedisPartitionStore) List(ctx context.Context) ([]Partition, error) {
	conn := r.RedisClient.Get()
	defer conn.Close()
	members, err := conn.SMembers(r.RedisClient.Key(partitionsKey))
	if err != nil {
		return nil, redisError("listing partitions", err)
	}
	slices.Sort(members)

	var out []Partition
	for _, name := range members {
		p, err := r.read(conn, name)
		if errors.Is(err, storage.ErrDoesNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *RedisPartitionStore) read(conn redis.Conn, name string) (Partition, error) {
	fields, err := conn.GetBytesHash(r.partitionKey(name))
	if err != nil {
		return Partition{}, redisError("reading partition "+name, err)
	}
	if len(fields) == 0 {
		return Partition{}, &storage.PartitionDoesNotExistError{Partition: name}
	}
	weight, err := strconv.Atoi(string(fields["weight"]))
	if err != nil {
		return Partition{}, fmt.Errorf("partition %s has a malformed weight: %w", name, err)
	}
	p := Partition{Name: name, Weight: weight}
	if err := msgpack.Unmarshal(fields["hosts"], &p.Hosts); err != nil {
		return Partition{}, fmt.Errorf("decoding hosts of partition %s: %w", name, err)
	}
	return p, nil
}

func (r *RedisPartitionStore) Get(ctx context.Context, name string) (Partition, error) {
	conn := r.RedisClient.Get()
	defer conn.Close()
	return r.read(conn, name)
}

func (r *RedisPartitionStore) Exists(ctx context.Context, name string) (bool, error) {
	conn := r.RedisClient.Get()
	defer conn.Close()
	ok, err := conn.SIsMember(r.RedisClient.Key(partitionsKey), name)
	return ok, redisError("checking partition "+name, err)
}

func (r *RedisPartitionStore) Create(ctx context.Context, name string, weight int, hosts []string) error {
	if err := validatePartition(name, weight); err != nil {
		return err
	}
	encoded, err := msgpack.Marshal(hosts)
	if err != nil {
		return fmt.Errorf("encoding hosts of partition %s: %w", name, err)
	}
	conn := r.RedisClient.Get()
	defer conn.Close()
	key := r.partitionKey(name)
	err = conn.Exec(
		redis.NewDelCommand(key),
		redis.NewSetHashCommand(key, map[string]any{"weight": weight, "hosts": encoded}),
		redis.NewCommand("SADD", r.RedisClient.Key(partitionsKey), name),
	)
	return redisError("creating partition "+name, err)
}

func (r *RedisPartitionStore) Delete(ctx context.Context, name string) error {
	conn := r.RedisClient.Get()
	defer conn.Close()
	err := conn.Exec(
		redis.NewDelCommand(r.partitionKey(name)),
		redis.NewCommand("SREM", r.RedisClient.Key(partitionsKey), name),
	)
	return redisError("deleting partition "+name, err)
}

func (r *RedisPartitionStore) Update(ctx context.Context, name string, update PartitionUpdate) error {
	if err := validatePartitionUpdate(name, update); err != nil {
		return err
	}
	args := []any{r.partitionKey(name)}
	if update.Weight != nil {
		args = append(args, "weight", *update.Weight)
	}
	if update.Hosts != nil {
		encoded, err := msgpack.Marshal(update.Hosts)
		if err != nil {
			return fmt.Errorf("encoding hosts of partition %s: %w", name, err)
		}
		args = append(args, "hosts", encoded)
	}

	conn := r.RedisClient.Get()
	defer conn.Close()
	applied, err := r.updateScript.Do(ctx, conn, args...)
	if err != nil {
		return redisError("updating partition "+name, err)
	}
	if n, _ := applied.(int64); n == 0 {
		return &storage.PartitionDoesNotExistError{Partition: name}
	}
	return nil
}

func (r *RedisPartitionStore) DropAll(ctx context.Context) error {
	conn := r.RedisClient.Get()
	defer conn.Close()
	members, err := conn.SMembers(r.RedisClient.Key(partitionsKey))
	if err != nil {
		return redisError("dropping partitions", err)
	}
	keys := []string{r.RedisClient.Key(partitionsKey)}
	for _, name := range members {
		keys = append(keys, r.partitionKey(name))
	}
	_, err = conn.Del(keys...)
	return redisError("dropping partitions", err)
}

// RedisCatalogueStore keeps one hash per project mapping queue names to
// shard ids.
type RedisCatalogueStore struct {
	RedisClient redis.Client `inject:"redis"`

	updateScript redis.Script
}

var _ CatalogueStore = (*RedisCatalogueStore)(nil)

func (r *RedisCatalogueStore) Start() error {
	if r.RedisClient == nil {
		return errors.New("missing RedisClient injection in RedisCatalogueStore")
	}
	var err error
	r.updateScript, err = loadScript(r.RedisClient, updateFieldScript)
	return err
}

func (r *RedisCatalogueStore) Stop() error { return nil }

func (r *RedisCatalogueStore) projectKey(project string) string {
	return r.RedisClient.Key("catalogue", project)
}

func (r *RedisCatalogueStore) List(ctx context.Context, project string) ([]CatalogueEntry, error) {
	conn := r.RedisClient.Get()
	defer conn.Close()
	fields, err := conn.GetBytesHash(r.projectKey(project))
	if err != nil {
		return nil, redisError("listing catalogue of project "+project, err)
	}
	queues := generics.NewSet[string]()
	for q := range fields {
		queues.Add(q)
	}
	var out []CatalogueEntry
	for _, q := range generics.SortedMembers(queues) {
		out = append(out, CatalogueEntry{Project: project, Queue: q, Shard: string(fields[q])})
	}
	return out, nil
}

func (r *RedisCatalogueStore) Get(ctx context.Context, project, queue string) (CatalogueEntry, error) {
	conn := r.RedisClient.Get()
	defer conn.Close()
	shard, err := conn.GetHashField(r.projectKey(project), queue)
	if errors.Is(err, redis.ErrNil) {
		return CatalogueEntry{}, &storage.QueueNotMappedError{Queue: queue, Project: project}
	}
	if err != nil {
		return CatalogueEntry{}, redisError("looking up queue "+queue, err)
	}
	return CatalogueEntry{Project: project, Queue: queue, Shard: shard}, nil
}

func (r *RedisCatalogueStore) Exists(ctx context.Context, project, queue string) (bool, error) {
	conn := r.RedisClient.Get()
	defer conn.Close()
	ok, err := conn.HExists(r.projectKey(project), queue)
	return ok, redisError("checking queue "+queue, err)
}

func (r *RedisCatalogueStore) Insert(ctx context.Context, project, queue, shard string) error {
	conn := r.RedisClient.Get()
	defer conn.Close()
	err := conn.Exec(
		redis.NewSetHashCommand(r.projectKey(project), map[string]string{queue: shard}),
		redis.NewCommand("SADD", r.RedisClient.Key(projectsKey), project),
	)
	return redisError("inserting queue "+queue, err)
}

func (r *RedisCatalogueStore) Delete(ctx context.Context, project, queue string) error {
	conn := r.RedisClient.Get()
	defer conn.Close()
	_, err := conn.HDel(r.projectKey(project), queue)
	return redisError("deleting queue "+queue, err)
}

func (r *RedisCatalogueStore) Update(ctx context.Context, project, queue, shard string) error {
	conn := r.RedisClient.Get()
	defer conn.Close()
	applied, err := r.updateScript.Do(ctx, conn, r.projectKey(project), queue, shard)
	if err != nil {
		return redisError("updating queue "+queue, err)
	}
	if n, _ := applied.(int64); n == 0 {
		return &storage.QueueNotMappedError{Queue: queue, Project: project}
	}
	return nil
}

func (r *RedisCatalogueStore) DropAll(ctx context.Context) error {
	conn := r.RedisClient.Get()
	defer conn.Close()
	projects, err := conn.SMembers(r.RedisClient.Key(projectsKey))
	if err != nil {
		return redisError("dropping catalogue", err)
	}
	keys := []string{r.RedisClient.Key(projectsKey)}
	for _, p := range projects {
		keys = append(keys, r.projectKey(p))
	}
	_, err = conn.Del(keys...)
	return redisError("dropping catalogue", err)
}
