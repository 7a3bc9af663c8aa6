package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/queuerouter/storage"
)

const (
	testQueue   = "test_queue"
	testProject = "project"
)

func newTestDriver(t *testing.T) (*Driver, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	d := New(clock, Options{})
	created, err := d.QueueController().Create(context.Background(), testQueue, testProject)
	require.NoError(t, err)
	require.True(t, created)
	return d, clock
}

func postN(t *testing.T, d *Driver, client uuid.UUID, n int, ttl time.Duration) []string {
	t.Helper()
	msgs := make([]storage.NewMessage, n)
	for i := range msgs {
		msgs[i] = storage.NewMessage{TTL: ttl, Body: i}
	}
	ids, err := d.MessageController().Post(context.Background(), testQueue, testProject, msgs, client)
	require.NoError(t, err)
	require.Len(t, ids, n)
	return ids
}

func TestConstructorReadsOptions(t *testing.T) {
	build := Constructor(clockwork.NewFakeClock())

	d, err := build(storage.DriverConfig{URI: "memory://", Options: map[string]any{"queue_paging": 3, "claim_limit": float64(2)}})
	require.NoError(t, err)
	md := d.(*Driver)
	assert.Equal(t, 3, md.opts.QueuePaging)
	assert.Equal(t, 2, md.opts.ClaimLimit)
	assert.Equal(t, defaultMessagePaging, md.opts.MessagePaging)

	_, err = build(storage.DriverConfig{Options: map[string]any{"message_paging": "lots"}})
	assert.Error(t, err)
	_, err = build(storage.DriverConfig{Options: map[string]any{"message_paging": -1}})
	assert.Error(t, err)
}

func TestQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	d, clock := newTestDriver(t)
	qc := d.QueueController()

	exists, err := qc.Exists(ctx, testQueue, testProject)
	require.NoError(t, err)
	assert.True(t, exists)

	md, err := qc.GetMetadata(ctx, testQueue, testProject)
	require.NoError(t, err)
	assert.Empty(t, md)

	require.NoError(t, qc.SetMetadata(ctx, testQueue, testProject, map[string]any{"meta": "test_meta"}))

	// creating an existing queue does not touch its metadata
	created, err := qc.Create(ctx, testQueue, testProject)
	require.NoError(t, err)
	assert.False(t, created)
	md, err = qc.GetMetadata(ctx, testQueue, testProject)
	require.NoError(t, err)
	assert.Equal(t, "test_meta", md["meta"])

	client := uuid.New()
	postN(t, d, client, 6, time.Minute)
	clock.Advance(2 * time.Second)
	postN(t, d, client, 6, time.Minute)

	stats, err := qc.Stats(ctx, testQueue, testProject)
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Free)
	assert.Equal(t, 0, stats.Claimed)
	assert.Equal(t, 12, stats.Total)
	require.NotNil(t, stats.Oldest)
	require.NotNil(t, stats.Newest)
	assert.Equal(t, 2*time.Second, stats.Oldest.Age)
	assert.True(t, stats.Oldest.Created.Before(stats.Newest.Created))

	require.NoError(t, qc.Delete(ctx, testQueue, testProject))
	exists, err = qc.Exists(ctx, testQueue, testProject)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = qc.GetMetadata(ctx, testQueue, testProject)
	assert.ErrorIs(t, err, storage.ErrDoesNotExist)
	err = qc.SetMetadata(ctx, testQueue, testProject, map[string]any{})
	var qdne *storage.QueueDoesNotExistError
	assert.ErrorAs(t, err, &qdne)
	_, err = qc.Stats(ctx, testQueue, testProject)
	assert.ErrorAs(t, err, &qdne)

	// deleting again is fine
	assert.NoError(t, qc.Delete(ctx, testQueue, testProject))
}

func TestStatsForEmptyQueue(t *testing.T) {
	d, _ := newTestDriver(t)
	stats, err := d.QueueController().Stats(context.Background(), testQueue, testProject)
	require.NoError(t, err)
	assert.Equal(t, storage.QueueStats{}, stats)
}

func TestQueueListingIsScopedAndPaged(t *testing.T) {
	ctx := context.Background()
	d := New(clockwork.NewFakeClock(), Options{})
	qc := d.QueueController()

	for i := 0; i < 15; i++ {
		_, err := qc.Create(ctx, fmt.Sprintf("q%02d", i), testProject)
		require.NoError(t, err)
		_, err = qc.Create(ctx, fmt.Sprintf("q%02d", i), "")
		require.NoError(t, err)
	}

	listing, err := qc.List(ctx, testProject, storage.QueueListOptions{Detailed: true})
	require.NoError(t, err)
	require.Len(t, listing.Queues, 10)
	for _, q := range listing.Queues {
		assert.NotNil(t, q.Metadata)
	}
	assert.Equal(t, "q09", listing.NextMarker)

	listing, err = qc.List(ctx, testProject, storage.QueueListOptions{Marker: listing.NextMarker})
	require.NoError(t, err)
	require.Len(t, listing.Queues, 5)
	for _, q := range listing.Queues {
		assert.Nil(t, q.Metadata)
	}

	listing, err = qc.List(ctx, "other", storage.QueueListOptions{})
	require.NoError(t, err)
	assert.Empty(t, listing.Queues)
}

func TestMessageLifecycle(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)
	mc := d.MessageController()

	ids := postN(t, d, uuid.New(), 1, time.Minute)
	msg, err := mc.Get(ctx, testQueue, testProject, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 0, msg.Body)
	assert.Equal(t, time.Minute, msg.TTL)

	require.NoError(t, mc.Delete(ctx, testQueue, testProject, ids[0], ""))
	_, err = mc.Get(ctx, testQueue, testProject, ids[0])
	var mdne *storage.MessageDoesNotExistError
	assert.ErrorAs(t, err, &mdne)

	// bad ids are simply absent
	assert.NoError(t, mc.Delete(ctx, testQueue, testProject, "xyz", ""))
	_, err = mc.Get(ctx, testQueue, testProject, "xyz")
	assert.ErrorAs(t, err, &mdne)

	_, err = mc.Post(ctx, "missing", testProject, []storage.NewMessage{{TTL: time.Minute}}, uuid.New())
	assert.ErrorIs(t, err, storage.ErrDoesNotExist)
	_, err = mc.Post(ctx, testQueue, testProject, []storage.NewMessage{{TTL: -time.Second}}, uuid.New())
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestMessageListing(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)
	mc := d.MessageController()
	client := uuid.New()
	postN(t, d, client, 15, time.Minute)

	listing, err := mc.List(ctx, testQueue, testProject, storage.MessageListOptions{ClientID: client})
	require.NoError(t, err)
	assert.Empty(t, listing.Messages)

	listing, err = mc.List(ctx, testQueue, testProject, storage.MessageListOptions{Limit: 20, Echo: true})
	require.NoError(t, err)
	assert.Len(t, listing.Messages, 15)

	listing, err = mc.List(ctx, testQueue, testProject, storage.MessageListOptions{Echo: true, ClientID: client})
	require.NoError(t, err)
	assert.Len(t, listing.Messages, 10)

	listing, err = mc.List(ctx, testQueue, testProject, storage.MessageListOptions{Echo: true, ClientID: client, Marker: listing.NextMarker})
	require.NoError(t, err)
	assert.Len(t, listing.Messages, 5)

	listing, err = mc.List(ctx, testQueue, testProject, storage.MessageListOptions{Echo: true, Marker: "xyz"})
	require.NoError(t, err)
	assert.Empty(t, listing.Messages)

	listing, err = mc.List(ctx, "missing", testProject, storage.MessageListOptions{Echo: true})
	require.NoError(t, err)
	assert.Empty(t, listing.Messages)
}

func TestBulkGetAndDelete(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)
	mc := d.MessageController()

	ids := postN(t, d, uuid.New(), 2, time.Minute)
	msgs, err := mc.BulkGet(ctx, testQueue, testProject, append([]string{"nope"}, ids...))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 0, msgs[0].Body)
	assert.Equal(t, 1, msgs[1].Body)

	require.NoError(t, mc.BulkDelete(ctx, testQueue, testProject, ids))
	msgs, err = mc.BulkGet(ctx, testQueue, testProject, ids)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestFirst(t *testing.T) {
	ctx := context.Background()
	d, clock := newTestDriver(t)
	mc := d.MessageController()

	_, err := mc.First(ctx, testQueue, testProject, 1)
	var empty *storage.QueueIsEmptyError
	assert.ErrorAs(t, err, &empty)

	first := postN(t, d, uuid.New(), 1, time.Minute)
	clock.Advance(time.Second)
	last := postN(t, d, uuid.New(), 1, time.Minute)

	m, err := mc.First(ctx, testQueue, testProject, 1)
	require.NoError(t, err)
	assert.Equal(t, first[0], m.ID)
	m, err = mc.First(ctx, testQueue, testProject, -1)
	require.NoError(t, err)
	assert.Equal(t, last[0], m.ID)

	_, err = mc.First(ctx, testQueue, testProject, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
	_, err = mc.First(ctx, "missing", testProject, 1)
	assert.ErrorIs(t, err, storage.ErrDoesNotExist)
}

func TestExpiredMessages(t *testing.T) {
	ctx := context.Background()
	d, clock := newTestDriver(t)
	mc := d.MessageController()

	zero := postN(t, d, uuid.New(), 1, 0)
	short := postN(t, d, uuid.New(), 1, time.Second)

	_, err := mc.Get(ctx, testQueue, testProject, zero[0])
	assert.ErrorIs(t, err, storage.ErrDoesNotExist)
	_, err = mc.Get(ctx, testQueue, testProject, short[0])
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = mc.Get(ctx, testQueue, testProject, short[0])
	assert.ErrorIs(t, err, storage.ErrDoesNotExist)

	stats, err := d.QueueController().Stats(ctx, testQueue, testProject)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestIsAlive(t *testing.T) {
	d, _ := newTestDriver(t)
	assert.True(t, d.IsAlive(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, d.IsAlive(ctx))
}
