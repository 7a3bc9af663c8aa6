package controlstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/queuerouter/config"
	"github.com/honeycombio/queuerouter/internal/redis"
	"github.com/honeycombio/queuerouter/storage"
)

func newRedisClient(t *testing.T) redis.Client {
	client := &redis.TestService{Prefix: "test"}
	require.NoError(t, client.Start())
	t.Cleanup(func() { client.Stop() })
	return client
}

func newMySQLDB(t *testing.T) *MySQLDB {
	dsn := os.Getenv("QUEUEROUTER_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("QUEUEROUTER_TEST_MYSQL_DSN not set")
	}
	db := &MySQLDB{Config: &config.MockConfig{GetMySQLConfigVal: config.MySQLConfig{DSN: dsn}}}
	require.NoError(t, db.Start())
	t.Cleanup(func() { db.Stop() })
	return db
}

func shardStores() map[string]func(t *testing.T) ShardStore {
	return map[string]func(t *testing.T) ShardStore{
		"local": func(t *testing.T) ShardStore { return &LocalShardStore{} },
		"redis": func(t *testing.T) ShardStore {
			s := &RedisShardStore{RedisClient: newRedisClient(t)}
			require.NoError(t, s.Start())
			return s
		},
		"mysql": func(t *testing.T) ShardStore {
			s := &MySQLShardStore{DB: newMySQLDB(t)}
			require.NoError(t, s.Start())
			require.NoError(t, s.DropAll(context.Background()))
			return s
		},
	}
}

func partitionStores() map[string]func(t *testing.T) PartitionStore {
	return map[string]func(t *testing.T) PartitionStore{
		"local": func(t *testing.T) PartitionStore { return &LocalPartitionStore{} },
		"redis": func(t *testing.T) PartitionStore {
			s := &RedisPartitionStore{RedisClient: newRedisClient(t)}
			require.NoError(t, s.Start())
			return s
		},
	}
}

func catalogueStores() map[string]func(t *testing.T) CatalogueStore {
	return map[string]func(t *testing.T) CatalogueStore{
		"local": func(t *testing.T) CatalogueStore { return &LocalCatalogueStore{} },
		"redis": func(t *testing.T) CatalogueStore {
			s := &RedisCatalogueStore{RedisClient: newRedisClient(t)}
			require.NoError(t, s.Start())
			return s
		},
		"mysql": func(t *testing.T) CatalogueStore {
			s := &MySQLCatalogueStore{DB: newMySQLDB(t)}
			require.NoError(t, s.Start())
			require.NoError(t, s.DropAll(context.Background()))
			return s
		},
	}
}

func ids(shards []Shard) []string {
	var out []string
	for _, s := range shards {
		out = append(out, s.ID)
	}
	return out
}

func TestShardStoreCreateAndGet(t *testing.T) {
	for name, build := range shardStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)

			require.NoError(t, s.Create(ctx, "s1", 100, "memory://one", map[string]any{"database": "q", "replicas": 3}))

			sh, err := s.Get(ctx, "s1", false)
			require.NoError(t, err)
			assert.Equal(t, "s1", sh.ID)
			assert.Equal(t, 100, sh.Weight)
			assert.Equal(t, "memory://one", sh.URI)
			assert.Nil(t, sh.Options)

			sh, err = s.Get(ctx, "s1", true)
			require.NoError(t, err)
			assert.Equal(t, "q", sh.Options["database"])
			assert.EqualValues(t, 3, sh.Options["replicas"])

			ok, err := s.Exists(ctx, "s1")
			require.NoError(t, err)
			assert.True(t, ok)

			// create replaces
			require.NoError(t, s.Create(ctx, "s1", 5, "memory://two", nil))
			sh, err = s.Get(ctx, "s1", true)
			require.NoError(t, err)
			assert.Equal(t, 5, sh.Weight)
			assert.Equal(t, "memory://two", sh.URI)
			assert.Empty(t, sh.Options)
		})
	}
}

func TestShardStoreMissing(t *testing.T) {
	for name, build := range shardStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)

			_, err := s.Get(ctx, "nope", true)
			var notFound *storage.ShardDoesNotExistError
			require.ErrorAs(t, err, &notFound)
			assert.Equal(t, "nope", notFound.Shard)
			assert.ErrorIs(t, err, storage.ErrDoesNotExist)

			ok, err := s.Exists(ctx, "nope")
			require.NoError(t, err)
			assert.False(t, ok)

			assert.NoError(t, s.Delete(ctx, "nope"))

			w := 1
			err = s.Update(ctx, "nope", ShardUpdate{Weight: &w})
			assert.ErrorAs(t, err, &notFound)
		})
	}
}

func TestShardStoreRejectsBadInput(t *testing.T) {
	for name, build := range shardStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)

			assert.ErrorIs(t, s.Create(ctx, "s1", -1, "memory://", nil), storage.ErrInvalidArgument)
			assert.ErrorIs(t, s.Create(ctx, "", 1, "memory://", nil), storage.ErrInvalidArgument)

			require.NoError(t, s.Create(ctx, "s1", 1, "memory://", nil))
			assert.ErrorIs(t, s.Update(ctx, "s1", ShardUpdate{}), storage.ErrInvalidArgument)
			neg := -3
			assert.ErrorIs(t, s.Update(ctx, "s1", ShardUpdate{Weight: &neg}), storage.ErrInvalidArgument)
		})
	}
}

func TestShardStoreUpdate(t *testing.T) {
	for name, build := range shardStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)
			require.NoError(t, s.Create(ctx, "s1", 10, "memory://a", map[string]any{"k": "v"}))

			w := 0
			require.NoError(t, s.Update(ctx, "s1", ShardUpdate{Weight: &w}))
			sh, err := s.Get(ctx, "s1", true)
			require.NoError(t, err)
			assert.Equal(t, 0, sh.Weight)
			assert.Equal(t, "memory://a", sh.URI)
			assert.Equal(t, "v", sh.Options["k"])

			uri := "memory://b"
			require.NoError(t, s.Update(ctx, "s1", ShardUpdate{URI: &uri, Options: map[string]any{"k": "w"}}))
			sh, err = s.Get(ctx, "s1", true)
			require.NoError(t, err)
			assert.Equal(t, 0, sh.Weight)
			assert.Equal(t, "memory://b", sh.URI)
			assert.Equal(t, "w", sh.Options["k"])
		})
	}
}

func TestShardStoreListPaging(t *testing.T) {
	for name, build := range shardStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)
			for _, id := range []string{"d", "b", "a", "e", "c"} {
				require.NoError(t, s.Create(ctx, id, 1, "memory://"+id, map[string]any{"id": id}))
			}

			all, err := s.List(ctx, ListOptions{})
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(all))
			assert.Nil(t, all[0].Options)

			first, err := s.List(ctx, ListOptions{Limit: 2, Detailed: true})
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, ids(first))
			assert.Equal(t, "a", first[0].Options["id"])

			next, err := s.List(ctx, ListOptions{Marker: "b", Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []string{"c", "d"}, ids(next))

			// the marker need not exist
			next, err = s.List(ctx, ListOptions{Marker: "bb"})
			require.NoError(t, err)
			assert.Equal(t, []string{"c", "d", "e"}, ids(next))

			last, err := s.List(ctx, ListOptions{Marker: "e"})
			require.NoError(t, err)
			assert.Empty(t, last)
		})
	}
}

func TestShardStoreDeleteAndDropAll(t *testing.T) {
	for name, build := range shardStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)
			require.NoError(t, s.Create(ctx, "a", 1, "memory://", nil))
			require.NoError(t, s.Create(ctx, "b", 1, "memory://", nil))

			require.NoError(t, s.Delete(ctx, "a"))
			ok, err := s.Exists(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)
			require.NoError(t, s.Delete(ctx, "a"))

			require.NoError(t, s.DropAll(ctx))
			all, err := s.List(ctx, ListOptions{})
			require.NoError(t, err)
			assert.Empty(t, all)

			// the store is usable after a drop
			require.NoError(t, s.Create(ctx, "a", 2, "memory://", nil))
			all, err = s.List(ctx, ListOptions{})
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, ids(all))
		})
	}
}

func TestPartitionStore(t *testing.T) {
	for name, build := range partitionStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)

			_, err := s.Get(ctx, "p1")
			var notFound *storage.PartitionDoesNotExistError
			require.ErrorAs(t, err, &notFound)

			require.NoError(t, s.Create(ctx, "p2", 10, []string{"http://b:8888"}))
			require.NoError(t, s.Create(ctx, "p1", 20, []string{"http://a:8888", "http://a:8889"}))

			p, err := s.Get(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, Partition{Name: "p1", Weight: 20, Hosts: []string{"http://a:8888", "http://a:8889"}}, p)

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "p1", list[0].Name)
			assert.Equal(t, "p2", list[1].Name)

			assert.ErrorIs(t, s.Update(ctx, "p1", PartitionUpdate{}), storage.ErrInvalidArgument)
			w := 5
			assert.ErrorAs(t, s.Update(ctx, "zz", PartitionUpdate{Weight: &w}), &notFound)

			require.NoError(t, s.Update(ctx, "p1", PartitionUpdate{Weight: &w}))
			p, err = s.Get(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, 5, p.Weight)
			assert.Len(t, p.Hosts, 2)

			require.NoError(t, s.Update(ctx, "p1", PartitionUpdate{Hosts: []string{"http://c:1"}}))
			p, err = s.Get(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, []string{"http://c:1"}, p.Hosts)

			require.NoError(t, s.Delete(ctx, "p1"))
			require.NoError(t, s.Delete(ctx, "p1"))
			ok, err := s.Exists(ctx, "p1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.DropAll(ctx))
			list, err = s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestCatalogueStore(t *testing.T) {
	for name, build := range catalogueStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)

			_, err := s.Get(ctx, "p", "q1")
			var notMapped *storage.QueueNotMappedError
			require.ErrorAs(t, err, &notMapped)
			assert.Equal(t, "q1", notMapped.Queue)

			assert.ErrorAs(t, s.Update(ctx, "p", "q1", "s1"), &notMapped)
			ok, err := s.Exists(ctx, "p", "q1")
			require.NoError(t, err)
			assert.False(t, ok, "a failed update must not create an entry")

			require.NoError(t, s.Insert(ctx, "p", "q2", "s1"))
			require.NoError(t, s.Insert(ctx, "p", "q1", "s1"))
			require.NoError(t, s.Insert(ctx, "", "q1", "s2"))

			e, err := s.Get(ctx, "p", "q1")
			require.NoError(t, err)
			assert.Equal(t, CatalogueEntry{Project: "p", Queue: "q1", Shard: "s1"}, e)

			// projects are separate namespaces
			e, err = s.Get(ctx, "", "q1")
			require.NoError(t, err)
			assert.Equal(t, "s2", e.Shard)

			require.NoError(t, s.Insert(ctx, "p", "q1", "s3"))
			require.NoError(t, s.Update(ctx, "p", "q2", "s4"))

			list, err := s.List(ctx, "p")
			require.NoError(t, err)
			assert.Equal(t, []CatalogueEntry{
				{Project: "p", Queue: "q1", Shard: "s3"},
				{Project: "p", Queue: "q2", Shard: "s4"},
			}, list)

			require.NoError(t, s.Delete(ctx, "p", "q1"))
			require.NoError(t, s.Delete(ctx, "p", "q1"))
			ok, err = s.Exists(ctx, "p", "q1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.DropAll(ctx))
			for _, project := range []string{"", "p"} {
				list, err = s.List(ctx, project)
				require.NoError(t, err)
				assert.Empty(t, list)
			}
		})
	}
}

func TestRedisStoresReportConnectionErrors(t *testing.T) {
	client := &redis.TestService{Prefix: "test"}
	require.NoError(t, client.Start())
	shards := &RedisShardStore{RedisClient: client}
	catalogue := &RedisCatalogueStore{RedisClient: client}
	require.NoError(t, shards.Start())
	require.NoError(t, catalogue.Start())
	client.Service.Close()

	ctx := context.Background()
	_, err := shards.Get(ctx, "s1", false)
	assert.ErrorIs(t, err, storage.ErrConnection)
	_, err = catalogue.Exists(ctx, "p", "q")
	assert.ErrorIs(t, err, storage.ErrConnection)
	assert.NotErrorIs(t, err, storage.ErrDoesNotExist)
}

func TestRedisStoresFailToStartWithoutServer(t *testing.T) {
	client := &redis.TestService{Prefix: "test"}
	require.NoError(t, client.Start())
	client.Service.Close()

	err := (&RedisShardStore{RedisClient: client}).Start()
	assert.ErrorIs(t, err, storage.ErrConnection)
	err = (&RedisCatalogueStore{RedisClient: client}).Start()
	assert.ErrorIs(t, err, storage.ErrConnection)
}

func TestRedisLayout(t *testing.T) {
	client := newRedisClient(t)
	shards := &RedisShardStore{RedisClient: client}
	catalogue := &RedisCatalogueStore{RedisClient: client}
	require.NoError(t, shards.Start())
	require.NoError(t, catalogue.Start())
	ctx := context.Background()

	require.NoError(t, shards.Create(ctx, "s1", 3, "memory://one", map[string]any{"a": "b"}))
	require.NoError(t, catalogue.Insert(ctx, "p", "orders", "s1"))

	conn := client.Get()
	defer conn.Close()
	fields, err := conn.GetBytesHash("test:shard:s1")
	require.NoError(t, err)
	assert.Equal(t, "3", string(fields["weight"]))
	assert.Equal(t, "memory://one", string(fields["uri"]))
	assert.NotEmpty(t, fields["options"])

	members, err := conn.SMembers("test:shards")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, members)

	shard, err := conn.GetHashField("test:catalogue:p", "orders")
	require.NoError(t, err)
	assert.Equal(t, "s1", shard)
	projects, err := conn.SMembers("test:catalogue_projects")
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, projects)
}

func TestRedisStoresRequireClient(t *testing.T) {
	assert.Error(t, (&RedisShardStore{}).Start())
	assert.Error(t, (&RedisPartitionStore{}).Start())
	assert.Error(t, (&RedisCatalogueStore{}).Start())
}

func TestOptionsRoundTripNested(t *testing.T) {
	b, err := encodeOptions(map[string]any{"nested": map[string]any{"a": []any{"x", 1}}})
	require.NoError(t, err)
	m, err := decodeOptions(b)
	require.NoError(t, err)
	nested, ok := m["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"x", int64(1)}, nested["a"])

	m, err = decodeOptions(nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}
