package memory

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/honeycombio/queuerouter/storage"
)

type QueueController struct {
	d *Driver
}

var _ storage.QueueController = (*QueueController)(nil)

func (c *QueueController) List(ctx context.Context, project string, opts storage.QueueListOptions) (storage.QueueListing, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = c.d.opts.QueuePaging
	}

	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	var names []string
	for k := range c.d.queues {
		if k.project == project && k.name > opts.Marker {
			names = append(names, k.name)
		}
	}
	slices.Sort(names)
	if len(names) > limit {
		names = names[:limit]
	}

	listing := storage.QueueListing{NextMarker: opts.Marker}
	for _, name := range names {
		q := storage.Queue{Name: name}
		if opts.Detailed {
			q.Metadata = maps.Clone(c.d.queues[queueKey{project: project, name: name}].metadata)
		}
		listing.Queues = append(listing.Queues, q)
		listing.NextMarker = name
	}
	return listing, nil
}

func (c *QueueController) Create(ctx context.Context, name, project string) (bool, error) {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	key := queueKey{project: project, name: name}
	if _, ok := c.d.queues[key]; ok {
		return false, nil
	}
	c.d.queues[key] = &queue{
		metadata: make(map[string]any),
		byID:     make(map[string]*message),
		claims:   make(map[string]*claim),
	}
	return true, nil
}

func (c *QueueController) Exists(ctx context.Context, name, project string) (bool, error) {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()
	_, ok := c.d.queues[queueKey{project: project, name: name}]
	return ok, nil
}

func (c *QueueController) GetMetadata(ctx context.Context, name, project string) (map[string]any, error) {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	q, ok := c.d.queues[queueKey{project: project, name: name}]
	if !ok {
		return nil, &storage.QueueDoesNotExistError{Queue: name, Project: project}
	}
	return maps.Clone(q.metadata), nil
}

func (c *QueueController) SetMetadata(ctx context.Context, name, project string, metadata map[string]any) error {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	q, ok := c.d.queues[queueKey{project: project, name: name}]
	if !ok {
		return &storage.QueueDoesNotExistError{Queue: name, Project: project}
	}
	q.metadata = maps.Clone(metadata)
	if q.metadata == nil {
		q.metadata = make(map[string]any)
	}
	return nil
}

func (c *QueueController) Delete(ctx context.Context, name, project string) error {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()
	delete(c.d.queues, queueKey{project: project, name: name})
	return nil
}

func (c *QueueController) Stats(ctx context.Context, name, project string) (storage.QueueStats, error) {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	now := c.d.clock.Now()
	q := c.d.lookup(name, project, now)
	if q == nil {
		return storage.QueueStats{}, &storage.QueueDoesNotExistError{Queue: name, Project: project}
	}

	var stats storage.QueueStats
	for _, m := range q.messages {
		if m.claimed(now) {
			stats.Claimed++
		} else {
			stats.Free++
		}
	}
	stats.Total = stats.Free + stats.Claimed
	if len(q.messages) > 0 {
		stats.Oldest = messageStat(q.messages[0], now)
		stats.Newest = messageStat(q.messages[len(q.messages)-1], now)
	}
	return stats, nil
}

func messageStat(m *message, now time.Time) *storage.MessageStat {
	return &storage.MessageStat{
		ID:      m.id,
		Age:     now.Sub(m.created),
		Created: m.created,
	}
}
