// Package memory is a complete in-process queue backend, registered for the
// "memory" storage type. Each driver instance holds its own data.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/honeycombio/queuerouter/storage"
)

const (
	defaultQueuePaging   = 10
	defaultMessagePaging = 10
	defaultClaimLimit    = 10
)

// Options are read from the driver configuration's option map under the keys
// queue_paging, message_paging and claim_limit.
type Options struct {
	QueuePaging   int
	MessagePaging int
	ClaimLimit    int
}

type Driver struct {
	clock clockwork.Clock
	opts  Options

	mut    sync.Mutex
	queues map[queueKey]*queue

	queueController   *QueueController
	messageController *MessageController
	claimController   *ClaimController
}

var _ storage.DataDriver = (*Driver)(nil)

type queueKey struct {
	project string
	name    string
}

type queue struct {
	metadata   map[string]any
	messages   []*message // ascending by marker
	byID       map[string]*message
	claims     map[string]*claim
	lastMarker int64
}

type message struct {
	id           string
	marker       int64
	ttl          time.Duration
	created      time.Time
	expires      time.Time
	body         any
	clientID     uuid.UUID
	claimID      string
	claimExpires time.Time
}

type claim struct {
	id      string
	ttl     time.Duration
	grace   time.Duration
	created time.Time
	expires time.Time
}

func New(clock clockwork.Clock, opts Options) *Driver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.QueuePaging <= 0 {
		opts.QueuePaging = defaultQueuePaging
	}
	if opts.MessagePaging <= 0 {
		opts.MessagePaging = defaultMessagePaging
	}
	if opts.ClaimLimit <= 0 {
		opts.ClaimLimit = defaultClaimLimit
	}
	d := &Driver{
		clock:  clock,
		opts:   opts,
		queues: make(map[queueKey]*queue),
	}
	d.queueController = &QueueController{d: d}
	d.messageController = &MessageController{d: d}
	d.claimController = &ClaimController{d: d}
	return d
}

// Constructor returns a storage.Constructor that builds memory drivers on
// clock.
func Constructor(clock clockwork.Clock) storage.Constructor {
	return func(cfg storage.DriverConfig) (storage.DataDriver, error) {
		opts, err := ParseOptions(cfg.Options)
		if err != nil {
			return nil, err
		}
		return New(clock, opts), nil
	}
}

func ParseOptions(raw map[string]any) (Options, error) {
	var opts Options
	for key, dest := range map[string]*int{
		"queue_paging":   &opts.QueuePaging,
		"message_paging": &opts.MessagePaging,
		"claim_limit":    &opts.ClaimLimit,
	} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		n, err := toInt(v)
		if err != nil {
			return opts, fmt.Errorf("option %s: %w", key, err)
		}
		if n < 0 {
			return opts, fmt.Errorf("option %s must not be negative", key)
		}
		*dest = n
	}
	return opts, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not a whole number", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

func (d *Driver) QueueController() storage.QueueController     { return d.queueController }
func (d *Driver) MessageController() storage.MessageController { return d.messageController }
func (d *Driver) ClaimController() storage.ClaimController     { return d.claimController }

func (d *Driver) IsAlive(ctx context.Context) bool { return ctx.Err() == nil }

// lookup returns the queue after dropping anything that has expired. The
// caller holds d.mut.
func (d *Driver) lookup(name, project string, now time.Time) *queue {
	q, ok := d.queues[queueKey{project: project, name: name}]
	if !ok {
		return nil
	}
	q.purge(now)
	return q
}

func (q *queue) purge(now time.Time) {
	for id, c := range q.claims {
		if !now.Before(c.expires) {
			delete(q.claims, id)
		}
	}
	live := q.messages[:0]
	for _, m := range q.messages {
		if m.live(now) {
			live = append(live, m)
			continue
		}
		delete(q.byID, m.id)
	}
	clear(q.messages[len(live):])
	q.messages = live
}

func (q *queue) remove(ids ...string) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := q.byID[id]; ok {
			drop[id] = struct{}{}
			delete(q.byID, id)
		}
	}
	if len(drop) == 0 {
		return
	}
	kept := q.messages[:0]
	for _, m := range q.messages {
		if _, ok := drop[m.id]; !ok {
			kept = append(kept, m)
		}
	}
	clear(q.messages[len(kept):])
	q.messages = kept
}

func (m *message) live(now time.Time) bool {
	return now.Before(m.expires)
}

func (m *message) claimed(now time.Time) bool {
	return m.claimID != "" && now.Before(m.claimExpires)
}

// extend pushes the message's expiry out to cover a claim lifetime plus
// grace. It never shortens a message's life.
func (m *message) extend(now time.Time, meta storage.ClaimMetadata) {
	lifetime := meta.TTL + meta.Grace
	if expires := now.Add(lifetime); expires.After(m.expires) {
		m.expires = expires
		m.ttl = lifetime
	}
}

func (m *message) view(now time.Time) storage.Message {
	return storage.Message{
		ID:   m.id,
		TTL:  m.ttl,
		Age:  now.Sub(m.created),
		Body: m.body,
	}
}
