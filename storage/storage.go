// Package storage defines the contracts every queue backend implements and
// the driver factory that builds backends from their configuration.
//
// Every controller operation takes the context first, then the queue name,
// then the project. The empty project is the global project.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DataDriver interface {
	QueueController() QueueController
	MessageController() MessageController
	ClaimController() ClaimController
	// IsAlive reports whether the backend is reachable.
	IsAlive(ctx context.Context) bool
}

type QueueController interface {
	List(ctx context.Context, project string, opts QueueListOptions) (QueueListing, error)
	// Create returns true if the queue was created and false if it already
	// existed.
	Create(ctx context.Context, name, project string) (bool, error)
	Exists(ctx context.Context, name, project string) (bool, error)
	GetMetadata(ctx context.Context, name, project string) (map[string]any, error)
	SetMetadata(ctx context.Context, name, project string, metadata map[string]any) error
	Delete(ctx context.Context, name, project string) error
	Stats(ctx context.Context, name, project string) (QueueStats, error)
}

type MessageController interface {
	List(ctx context.Context, queue, project string, opts MessageListOptions) (MessageListing, error)
	// First returns the oldest (sort 1) or newest (sort -1) live message.
	First(ctx context.Context, queue, project string, sort int) (Message, error)
	Get(ctx context.Context, queue, project, messageID string) (Message, error)
	// BulkGet returns the live messages among ids; missing ids are skipped.
	BulkGet(ctx context.Context, queue, project string, ids []string) ([]Message, error)
	// Post returns the ids of the new messages, in order.
	Post(ctx context.Context, queue, project string, messages []NewMessage, clientID uuid.UUID) ([]string, error)
	// Delete removes a message. A claimed message can only be deleted under
	// its claim.
	Delete(ctx context.Context, queue, project, messageID, claimID string) error
	BulkDelete(ctx context.Context, queue, project string, ids []string) error
}

type ClaimController interface {
	// Create claims up to limit free messages. When none are free the claim
	// id is empty and no messages are returned.
	Create(ctx context.Context, queue, project string, meta ClaimMetadata, limit int) (string, []Message, error)
	Get(ctx context.Context, queue, project, claimID string) (Claim, []Message, error)
	Update(ctx context.Context, queue, project, claimID string, meta ClaimMetadata) error
	Delete(ctx context.Context, queue, project, claimID string) error
}

type QueueListOptions struct {
	Marker   string
	Limit    int
	Detailed bool
}

type Queue struct {
	Name string
	// Metadata is only set for detailed listings.
	Metadata map[string]any
}

type QueueListing struct {
	Queues     []Queue
	NextMarker string
}

type MessageStat struct {
	ID      string
	Age     time.Duration
	Created time.Time
}

type QueueStats struct {
	Free    int
	Claimed int
	Total   int
	// Oldest and Newest are nil for an empty queue.
	Oldest *MessageStat
	Newest *MessageStat
}

type NewMessage struct {
	TTL  time.Duration
	Body any
}

type Message struct {
	ID   string
	TTL  time.Duration
	Age  time.Duration
	Body any
}

type MessageListOptions struct {
	Marker string
	Limit  int
	// Echo includes messages posted by ClientID.
	Echo           bool
	ClientID       uuid.UUID
	IncludeClaimed bool
}

type MessageListing struct {
	Messages   []Message
	NextMarker string
}

type ClaimMetadata struct {
	TTL   time.Duration
	Grace time.Duration
}

type Claim struct {
	ID  string
	TTL time.Duration
	Age time.Duration
}
