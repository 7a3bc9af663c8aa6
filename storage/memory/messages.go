package memory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/honeycombio/queuerouter/generics"
	"github.com/honeycombio/queuerouter/storage"
)

type MessageController struct {
	d *Driver
}

var _ storage.MessageController = (*MessageController)(nil)

func (c *MessageController) List(ctx context.Context, queue, project string, opts storage.MessageListOptions) (storage.MessageListing, error) {
	listing := storage.MessageListing{NextMarker: opts.Marker}

	var after int64
	if opts.Marker != "" {
		m, err := strconv.ParseInt(opts.Marker, 10, 64)
		if err != nil {
			// an unparseable marker selects nothing
			return listing, nil
		}
		after = m
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = c.d.opts.MessagePaging
	}

	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	now := c.d.clock.Now()
	q := c.d.lookup(queue, project, now)
	if q == nil {
		return listing, nil
	}

	for _, m := range q.messages {
		if len(listing.Messages) == limit {
			break
		}
		if m.marker <= after {
			continue
		}
		if !opts.Echo && m.clientID == opts.ClientID {
			continue
		}
		if !opts.IncludeClaimed && m.claimed(now) {
			continue
		}
		listing.Messages = append(listing.Messages, m.view(now))
		listing.NextMarker = strconv.FormatInt(m.marker, 10)
	}
	return listing, nil
}

func (c *MessageController) First(ctx context.Context, queue, project string, sort int) (storage.Message, error) {
	if sort != 1 && sort != -1 {
		return storage.Message{}, fmt.Errorf("%w: sort must be 1 or -1, got %d", storage.ErrInvalidArgument, sort)
	}

	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	now := c.d.clock.Now()
	q := c.d.lookup(queue, project, now)
	if q == nil {
		return storage.Message{}, &storage.QueueDoesNotExistError{Queue: queue, Project: project}
	}
	if len(q.messages) == 0 {
		return storage.Message{}, &storage.QueueIsEmptyError{Queue: queue, Project: project}
	}
	if sort == 1 {
		return q.messages[0].view(now), nil
	}
	return q.messages[len(q.messages)-1].view(now), nil
}

func (c *MessageController) Get(ctx context.Context, queue, project, messageID string) (storage.Message, error) {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	now := c.d.clock.Now()
	if q := c.d.lookup(queue, project, now); q != nil {
		if m, ok := q.byID[messageID]; ok {
			return m.view(now), nil
		}
	}
	return storage.Message{}, &storage.MessageDoesNotExistError{ID: messageID, Queue: queue, Project: project}
}

func (c *MessageController) BulkGet(ctx context.Context, queue, project string, ids []string) ([]storage.Message, error) {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	now := c.d.clock.Now()
	q := c.d.lookup(queue, project, now)
	if q == nil {
		return nil, nil
	}
	var out []storage.Message
	for _, id := range ids {
		if m, ok := q.byID[id]; ok {
			out = append(out, m.view(now))
		}
	}
	return out, nil
}

func (c *MessageController) Post(ctx context.Context, queue, project string, messages []storage.NewMessage, clientID uuid.UUID) ([]string, error) {
	for i, nm := range messages {
		if nm.TTL < 0 {
			return nil, fmt.Errorf("%w: message %d has a negative ttl", storage.ErrInvalidArgument, i)
		}
	}

	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	now := c.d.clock.Now()
	q := c.d.lookup(queue, project, now)
	if q == nil {
		return nil, &storage.QueueDoesNotExistError{Queue: queue, Project: project}
	}

	ids := make([]string, 0, len(messages))
	for _, nm := range messages {
		q.lastMarker++
		m := &message{
			id:       uuid.NewString(),
			marker:   q.lastMarker,
			ttl:      nm.TTL,
			created:  now,
			expires:  now.Add(nm.TTL),
			body:     nm.Body,
			clientID: clientID,
		}
		q.messages = append(q.messages, m)
		q.byID[m.id] = m
		ids = append(ids, m.id)
	}
	return ids, nil
}

func (c *MessageController) Delete(ctx context.Context, queue, project, messageID, claimID string) error {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	now := c.d.clock.Now()
	q := c.d.lookup(queue, project, now)
	if q == nil {
		return nil
	}
	m, ok := q.byID[messageID]
	if !ok {
		return nil
	}

	if claimID == "" {
		if m.claimed(now) {
			return &storage.MessageIsClaimedError{ID: messageID}
		}
		q.remove(messageID)
		return nil
	}

	// ill-formed claim ids cannot name any claim
	if _, err := uuid.Parse(claimID); err != nil {
		return nil
	}
	if !m.claimed(now) || m.claimID != claimID {
		return &storage.MessageIsClaimedByError{ID: messageID, Claim: claimID}
	}
	q.remove(messageID)
	return nil
}

func (c *MessageController) BulkDelete(ctx context.Context, queue, project string, ids []string) error {
	c.d.mut.Lock()
	defer c.d.mut.Unlock()

	q := c.d.lookup(queue, project, c.d.clock.Now())
	if q == nil {
		return nil
	}
	q.remove(generics.NewSet(ids...).Members()...)
	return nil
}
