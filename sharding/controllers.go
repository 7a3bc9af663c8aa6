package sharding

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/honeycombio/queuerouter/controlstore"
	"github.com/honeycombio/queuerouter/storage"
)

// DataDriver is a storage.DataDriver that spreads queues across shards. It
// holds no queue data itself: every call is routed through the Catalog to
// the driver of the owning shard, and that driver's results and errors are
// returned unchanged.
type DataDriver struct {
	Catalog *Catalog `inject:""`
}

var _ storage.DataDriver = (*DataDriver)(nil)

func NewDataDriver(catalog *Catalog) *DataDriver {
	return &DataDriver{Catalog: catalog}
}

func (d *DataDriver) QueueController() storage.QueueController {
	return &QueueController{catalog: d.Catalog}
}

func (d *DataDriver) MessageController() storage.MessageController {
	return &MessageController{catalog: d.Catalog}
}

func (d *DataDriver) ClaimController() storage.ClaimController {
	return &ClaimController{catalog: d.Catalog}
}

// IsAlive reports whether the shard store answers and every driver built so
// far is alive. Shards that no request has touched yet are not built here.
func (d *DataDriver) IsAlive(ctx context.Context) bool {
	if _, err := d.Catalog.Shards.List(ctx, controlstore.ListOptions{Limit: 1}); err != nil {
		return false
	}
	for _, driver := range d.Catalog.Drivers.Built() {
		if !driver.IsAlive(ctx) {
			return false
		}
	}
	return true
}

type QueueController struct {
	catalog *Catalog
}

var _ storage.QueueController = (*QueueController)(nil)

// List always returns an empty listing: queues are not listed across shards.
func (q *QueueController) List(ctx context.Context, project string, opts storage.QueueListOptions) (storage.QueueListing, error) {
	return storage.QueueListing{}, nil
}

// Create places the queue on a shard, then creates it there.
func (q *QueueController) Create(ctx context.Context, name, project string) (bool, error) {
	if err := q.catalog.Register(ctx, name, project); err != nil {
		return false, err
	}
	driver, err := q.catalog.Lookup(ctx, name, project)
	if err != nil {
		return false, err
	}
	if driver == nil {
		// a delete removed the placement between Register and Lookup
		q.catalog.Logger.Warn().WithString("queue", name).WithString("project", project).
			Logf("queue was deregistered while being created")
		return false, fmt.Errorf("queue %s of project %q was deregistered while being created: %w",
			name, project, storage.ErrConflict)
	}
	return driver.QueueController().Create(ctx, name, project)
}

func (q *QueueController) Exists(ctx context.Context, name, project string) (bool, error) {
	driver, err := q.catalog.Lookup(ctx, name, project)
	if err != nil || driver == nil {
		return false, err
	}
	return driver.QueueController().Exists(ctx, name, project)
}

func (q *QueueController) GetMetadata(ctx context.Context, name, project string) (map[string]any, error) {
	driver, err := q.lookup(ctx, name, project)
	if err != nil {
		return nil, err
	}
	return driver.QueueController().GetMetadata(ctx, name, project)
}

func (q *QueueController) SetMetadata(ctx context.Context, name, project string, metadata map[string]any) error {
	driver, err := q.lookup(ctx, name, project)
	if err != nil {
		return err
	}
	return driver.QueueController().SetMetadata(ctx, name, project, metadata)
}

// Delete deletes the queue from its shard and, only if that succeeded,
// removes its placement. Deleting an unplaced queue does nothing.
func (q *QueueController) Delete(ctx context.Context, name, project string) error {
	driver, err := q.catalog.Lookup(ctx, name, project)
	if err != nil || driver == nil {
		return err
	}
	if err := driver.QueueController().Delete(ctx, name, project); err != nil {
		return err
	}
	return q.catalog.Deregister(ctx, name, project)
}

func (q *QueueController) Stats(ctx context.Context, name, project string) (storage.QueueStats, error) {
	driver, err := q.lookup(ctx, name, project)
	if err != nil {
		return storage.QueueStats{}, err
	}
	return driver.QueueController().Stats(ctx, name, project)
}

// lookup fails with QueueDoesNotExistError for unplaced queues.
func (q *QueueController) lookup(ctx context.Context, name, project string) (storage.DataDriver, error) {
	return lookupQueue(ctx, q.catalog, name, project)
}

func lookupQueue(ctx context.Context, catalog *Catalog, queue, project string) (storage.DataDriver, error) {
	driver, err := catalog.Lookup(ctx, queue, project)
	if err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, &storage.QueueDoesNotExistError{Queue: queue, Project: project}
	}
	return driver, nil
}

// MessageController routes message operations. Reads and deletes against an
// unplaced queue return an empty result instead of an error.
type MessageController struct {
	catalog *Catalog
}

var _ storage.MessageController = (*MessageController)(nil)

func (m *MessageController) List(ctx context.Context, queue, project string, opts storage.MessageListOptions) (storage.MessageListing, error) {
	driver, err := m.catalog.Lookup(ctx, queue, project)
	if err != nil || driver == nil {
		return storage.MessageListing{}, err
	}
	return driver.MessageController().List(ctx, queue, project, opts)
}

func (m *MessageController) First(ctx context.Context, queue, project string, sort int) (storage.Message, error) {
	driver, err := lookupQueue(ctx, m.catalog, queue, project)
	if err != nil {
		return storage.Message{}, err
	}
	return driver.MessageController().First(ctx, queue, project, sort)
}

func (m *MessageController) Get(ctx context.Context, queue, project, messageID string) (storage.Message, error) {
	driver, err := lookupQueue(ctx, m.catalog, queue, project)
	if err != nil {
		return storage.Message{}, err
	}
	return driver.MessageController().Get(ctx, queue, project, messageID)
}

func (m *MessageController) BulkGet(ctx context.Context, queue, project string, ids []string) ([]storage.Message, error) {
	driver, err := m.catalog.Lookup(ctx, queue, project)
	if err != nil || driver == nil {
		return nil, err
	}
	return driver.MessageController().BulkGet(ctx, queue, project, ids)
}

func (m *MessageController) Post(ctx context.Context, queue, project string, messages []storage.NewMessage, clientID uuid.UUID) ([]string, error) {
	driver, err := lookupQueue(ctx, m.catalog, queue, project)
	if err != nil {
		return nil, err
	}
	return driver.MessageController().Post(ctx, queue, project, messages, clientID)
}

func (m *MessageController) Delete(ctx context.Context, queue, project, messageID, claimID string) error {
	driver, err := m.catalog.Lookup(ctx, queue, project)
	if err != nil || driver == nil {
		return err
	}
	return driver.MessageController().Delete(ctx, queue, project, messageID, claimID)
}

func (m *MessageController) BulkDelete(ctx context.Context, queue, project string, ids []string) error {
	driver, err := m.catalog.Lookup(ctx, queue, project)
	if err != nil || driver == nil {
		return err
	}
	return driver.MessageController().BulkDelete(ctx, queue, project, ids)
}

type ClaimController struct {
	catalog *Catalog
}

var _ storage.ClaimController = (*ClaimController)(nil)

// Create claims nothing on an unplaced queue.
func (c *ClaimController) Create(ctx context.Context, queue, project string, meta storage.ClaimMetadata, limit int) (string, []storage.Message, error) {
	driver, err := c.catalog.Lookup(ctx, queue, project)
	if err != nil || driver == nil {
		return "", nil, err
	}
	return driver.ClaimController().Create(ctx, queue, project, meta, limit)
}

func (c *ClaimController) Get(ctx context.Context, queue, project, claimID string) (storage.Claim, []storage.Message, error) {
	driver, err := c.lookup(ctx, queue, project, claimID)
	if err != nil {
		return storage.Claim{}, nil, err
	}
	return driver.ClaimController().Get(ctx, queue, project, claimID)
}

func (c *ClaimController) Update(ctx context.Context, queue, project, claimID string, meta storage.ClaimMetadata) error {
	driver, err := c.lookup(ctx, queue, project, claimID)
	if err != nil {
		return err
	}
	return driver.ClaimController().Update(ctx, queue, project, claimID, meta)
}

func (c *ClaimController) Delete(ctx context.Context, queue, project, claimID string) error {
	driver, err := c.lookup(ctx, queue, project, claimID)
	if err != nil {
		return err
	}
	return driver.ClaimController().Delete(ctx, queue, project, claimID)
}

// lookup fails with ClaimDoesNotExistError for unplaced queues.
func (c *ClaimController) lookup(ctx context.Context, queue, project, claimID string) (storage.DataDriver, error) {
	driver, err := c.catalog.Lookup(ctx, queue, project)
	if err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, &storage.ClaimDoesNotExistError{ID: claimID, Queue: queue, Project: project}
	}
	return driver, nil
}
