package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/honeycombio/queuerouter/logger"
	"github.com/honeycombio/queuerouter/metrics"
	"github.com/honeycombio/queuerouter/storage"
)

// BuiltinStages returns the stages that can be named in the Pipeline config
// section without registering anything:
//
//	validate  rejects malformed queue names and out of range TTLs
//	metrics   counts operations and failures per resource
//	log       logs every operation at debug level
func BuiltinStages(lgr logger.Logger, m metrics.Metrics) map[string]Stage {
	for _, resource := range []string{"queue", "message", "claim"} {
		m.Register(metrics.Metadata{
			Name:        "pipeline_" + resource + "_operations",
			Type:        metrics.Counter,
			Unit:        metrics.Dimensionless,
			Description: resource + " operations seen by the metrics stage",
		})
		m.Register(metrics.Metadata{
			Name:        "pipeline_" + resource + "_errors",
			Type:        metrics.Counter,
			Unit:        metrics.Dimensionless,
			Description: resource + " operations that returned an error",
		})
	}

	count := func(resource, op string, err error) {
		m.Increment("pipeline_" + resource + "_operations")
		if err != nil {
			m.Increment("pipeline_" + resource + "_errors")
		}
	}
	logOp := func(resource, op string, err error) {
		e := lgr.Debug().WithString("resource", resource).WithString("operation", op)
		if err != nil {
			e = e.WithField("error", err.Error())
		}
		e.Logf("storage operation")
	}

	return map[string]Stage{
		"validate": {
			Queue:   func(next storage.QueueController) storage.QueueController { return validQueues{next} },
			Message: func(next storage.MessageController) storage.MessageController { return validMessages{next} },
			Claim:   func(next storage.ClaimController) storage.ClaimController { return validClaims{next} },
		},
		"metrics": observing(count),
		"log":     observing(logOp),
	}
}

type observer func(resource, op string, err error)

func observing(o observer) Stage {
	return Stage{
		Queue:   func(next storage.QueueController) storage.QueueController { return observedQueues{next, o} },
		Message: func(next storage.MessageController) storage.MessageController { return observedMessages{next, o} },
		Claim:   func(next storage.ClaimController) storage.ClaimController { return observedClaims{next, o} },
	}
}

type observedQueues struct {
	next    storage.QueueController
	observe observer
}

func (q observedQueues) List(ctx context.Context, project string, opts storage.QueueListOptions) (storage.QueueListing, error) {
	l, err := q.next.List(ctx, project, opts)
	q.observe("queue", "list", err)
	return l, err
}

func (q observedQueues) Create(ctx context.Context, name, project string) (bool, error) {
	created, err := q.next.Create(ctx, name, project)
	q.observe("queue", "create", err)
	return created, err
}

func (q observedQueues) Exists(ctx context.Context, name, project string) (bool, error) {
	ok, err := q.next.Exists(ctx, name, project)
	q.observe("queue", "exists", err)
	return ok, err
}

func (q observedQueues) GetMetadata(ctx context.Context, name, project string) (map[string]any, error) {
	md, err := q.next.GetMetadata(ctx, name, project)
	q.observe("queue", "get_metadata", err)
	return md, err
}

func (q observedQueues) SetMetadata(ctx context.Context, name, project string, metadata map[string]any) error {
	err := q.next.SetMetadata(ctx, name, project, metadata)
	q.observe("queue", "set_metadata", err)
	return err
}

func (q observedQueues) Delete(ctx context.Context, name, project string) error {
	err := q.next.Delete(ctx, name, project)
	q.observe("queue", "delete", err)
	return err
}

func (q observedQueues) Stats(ctx context.Context, name, project string) (storage.QueueStats, error) {
	st, err := q.next.Stats(ctx, name, project)
	q.observe("queue", "stats", err)
	return st, err
}

type observedMessages struct {
	next    storage.MessageController
	observe observer
}

func (m observedMessages) List(ctx context.Context, queue, project string, opts storage.MessageListOptions) (storage.MessageListing, error) {
	l, err := m.next.List(ctx, queue, project, opts)
	m.observe("message", "list", err)
	return l, err
}

func (m observedMessages) First(ctx context.Context, queue, project string, sort int) (storage.Message, error) {
	msg, err := m.next.First(ctx, queue, project, sort)
	m.observe("message", "first", err)
	return msg, err
}

func (m observedMessages) Get(ctx context.Context, queue, project, messageID string) (storage.Message, error) {
	msg, err := m.next.Get(ctx, queue, project, messageID)
	m.observe("message", "get", err)
	return msg, err
}

func (m observedMessages) BulkGet(ctx context.Context, queue, project string, ids []string) ([]storage.Message, error) {
	msgs, err := m.next.BulkGet(ctx, queue, project, ids)
	m.observe("message", "bulk_get", err)
	return msgs, err
}

func (m observedMessages) Post(ctx context.Context, queue, project string, messages []storage.NewMessage, clientID uuid.UUID) ([]string, error) {
	ids, err := m.next.Post(ctx, queue, project, messages, clientID)
	m.observe("message", "post", err)
	return ids, err
}

func (m observedMessages) Delete(ctx context.Context, queue, project, messageID, claimID string) error {
	err := m.next.Delete(ctx, queue, project, messageID, claimID)
	m.observe("message", "delete", err)
	return err
}

func (m observedMessages) BulkDelete(ctx context.Context, queue, project string, ids []string) error {
	err := m.next.BulkDelete(ctx, queue, project, ids)
	m.observe("message", "bulk_delete", err)
	return err
}

type observedClaims struct {
	next    storage.ClaimController
	observe observer
}

func (c observedClaims) Create(ctx context.Context, queue, project string, meta storage.ClaimMetadata, limit int) (string, []storage.Message, error) {
	id, msgs, err := c.next.Create(ctx, queue, project, meta, limit)
	c.observe("claim", "create", err)
	return id, msgs, err
}

func (c observedClaims) Get(ctx context.Context, queue, project, claimID string) (storage.Claim, []storage.Message, error) {
	cl, msgs, err := c.next.Get(ctx, queue, project, claimID)
	c.observe("claim", "get", err)
	return cl, msgs, err
}

func (c observedClaims) Update(ctx context.Context, queue, project, claimID string, meta storage.ClaimMetadata) error {
	err := c.next.Update(ctx, queue, project, claimID, meta)
	c.observe("claim", "update", err)
	return err
}

func (c observedClaims) Delete(ctx context.Context, queue, project, claimID string) error {
	err := c.next.Delete(ctx, queue, project, claimID)
	c.observe("claim", "delete", err)
	return err
}

const (
	maxQueueNameLength = 64
	minTTL             = time.Minute
	maxMessageTTL      = 14 * 24 * time.Hour
	maxClaimTTL        = 12 * time.Hour
)

var queueNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func checkQueueName(name string) error {
	if len(name) > maxQueueNameLength || !queueNamePattern.MatchString(name) {
		return fmt.Errorf("queue name %q must be 1 to %d letters, digits, underscores or hyphens: %w",
			name, maxQueueNameLength, storage.ErrInvalidArgument)
	}
	return nil
}

func checkTTL(what string, ttl, maximum time.Duration) error {
	if ttl < minTTL || ttl > maximum {
		return fmt.Errorf("%s %s must be between %s and %s: %w", what, ttl, minTTL, maximum, storage.ErrInvalidArgument)
	}
	return nil
}

// validQueues only checks names on Create; other operations on a malformed
// name simply find nothing.
type validQueues struct {
	storage.QueueController
}

func (q validQueues) Create(ctx context.Context, name, project string) (bool, error) {
	if err := checkQueueName(name); err != nil {
		return false, err
	}
	return q.QueueController.Create(ctx, name, project)
}

type validMessages struct {
	storage.MessageController
}

func (m validMessages) Post(ctx context.Context, queue, project string, messages []storage.NewMessage, clientID uuid.UUID) ([]string, error) {
	for _, msg := range messages {
		if err := checkTTL("message TTL", msg.TTL, maxMessageTTL); err != nil {
			return nil, err
		}
	}
	return m.MessageController.Post(ctx, queue, project, messages, clientID)
}

type validClaims struct {
	storage.ClaimController
}

func checkClaim(meta storage.ClaimMetadata) error {
	if err := checkTTL("claim TTL", meta.TTL, maxClaimTTL); err != nil {
		return err
	}
	return checkTTL("claim grace", meta.Grace, maxClaimTTL)
}

func (c validClaims) Create(ctx context.Context, queue, project string, meta storage.ClaimMetadata, limit int) (string, []storage.Message, error) {
	if err := checkClaim(meta); err != nil {
		return "", nil, err
	}
	return c.ClaimController.Create(ctx, queue, project, meta, limit)
}

func (c validClaims) Update(ctx context.Context, queue, project, claimID string, meta storage.ClaimMetadata) error {
	if err := checkClaim(meta); err != nil {
		return err
	}
	return c.ClaimController.Update(ctx, queue, project, claimID, meta)
}
