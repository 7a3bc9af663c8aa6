package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/honeycombio/queuerouter/storage"
)

type ClaimController struct {
	d *Driver
}

var _ storage.ClaimController = (*ClaimController)(nil)

func validClaimMetadata(meta storage.ClaimMetadata) error {
	if meta.TTL < 0 || meta.Grace < 0 {
		return fmt.Errorf("%w: claim ttl and grace must not be negative", storage.ErrInvalidArgument)
	}
	return nil
}

func (c *ClaimController) Create(ctx context.Context, queue, project string, meta storage.ClaimMetadata, limit int) (string, []storage.Message, error) {
	if err := validClaimMetadata(meta); err != nil {
		return "", nil, err
	}
	if limit <= 0 {
		limit = c.d.opts.ClaimLimit
	}

	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	now := c.d.clock.Now()
	q := c.d.lookup(queue, project, now)
	if q == nil {
		return "", nil, &storage.QueueDoesNotExistError{Queue: queue, Project: project}
	}

	var free []*message
	for _, m := range q.messages {
		if len(free) == limit {
			break
		}
		if !m.claimed(now) {
			free = append(free, m)
		}
	}
	if len(free) == 0 {
		return "", nil, nil
	}

	cl := &claim{
		id:      uuid.NewString(),
		ttl:     meta.TTL,
		grace:   meta.Grace,
		created: now,
		expires: now.Add(meta.TTL),
	}
	q.claims[cl.id] = cl

	claimed := make([]storage.Message, 0, len(free))
	for _, m := range free {
		m.claimID = cl.id
		m.claimExpires = cl.expires
		m.extend(now, meta)
		claimed = append(claimed, m.view(now))
	}
	return cl.id, claimed, nil
}

// active returns the live claim named id, or nil. The caller holds d.mut.
func (c *ClaimController) active(queue, project, id string, now time.Time) (*queue, *claim) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	q := c.d.lookup(queue, project, now)
	if q == nil {
		return nil, nil
	}
	cl, ok := q.claims[id]
	if !ok {
		return q, nil
	}
	return q, cl
}

func (c *ClaimController) Get(ctx context.Context, queue, project, claimID string) (storage.Claim, []storage.Message, error) {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	now := c.d.clock.Now()
	q, cl := c.active(queue, project, claimID, now)
	if cl == nil {
		return storage.Claim{}, nil, &storage.ClaimDoesNotExistError{ID: claimID, Queue: queue, Project: project}
	}

	var msgs []storage.Message
	for _, m := range q.messages {
		if m.claimID == cl.id && m.claimed(now) {
			msgs = append(msgs, m.view(now))
		}
	}
	return storage.Claim{ID: cl.id, TTL: cl.ttl, Age: now.Sub(cl.created)}, msgs, nil
}

func (c *ClaimController) Update(ctx context.Context, queue, project, claimID string, meta storage.ClaimMetadata) error {
	if err := validClaimMetadata(meta); err != nil {
		return err
	}

	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	now := c.d.clock.Now()
	q, cl := c.active(queue, project, claimID, now)
	if cl == nil {
		return &storage.ClaimDoesNotExistError{ID: claimID, Queue: queue, Project: project}
	}

	cl.ttl = meta.TTL
	cl.grace = meta.Grace
	cl.expires = now.Add(meta.TTL)
	for _, m := range q.messages {
		if m.claimID == cl.id && m.claimed(now) {
			m.claimExpires = cl.expires
			m.extend(now, meta)
		}
	}
	return nil
}

func (c *ClaimController) Delete(ctx context.Context, queue, project, claimID string) error {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	q, cl := c.active(queue, project, claimID, c.d.clock.Now())
	if cl == nil {
		return nil
	}
	delete(q.claims, cl.id)
	for _, m := range q.messages {
		if m.claimID == cl.id {
			m.claimID = ""
			m.claimExpires = time.Time{}
		}
	}
	return nil
}
