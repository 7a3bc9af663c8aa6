package storage

import (
	"errors"
	"fmt"
)

// Sentinels for the broad failure classes. The typed errors below match one of
// these through errors.Is.
var (
	ErrDoesNotExist    = errors.New("does not exist")
	ErrConnection      = errors.New("storage unavailable")
	ErrNoShardFound    = errors.New("no shards registered")
	ErrInvalidDriver   = errors.New("invalid storage driver")
	ErrNotPermitted    = errors.New("not permitted")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
)

func projectName(project string) string {
	if project == "" {
		return "<global>"
	}
	return project
}

type QueueDoesNotExistError struct {
	Queue   string
	Project string
}

func (e *QueueDoesNotExistError) Error() string {
	return fmt.Sprintf("queue %s does not exist for project %s", e.Queue, projectName(e.Project))
}

func (e *QueueDoesNotExistError) Is(target error) bool { return target == ErrDoesNotExist }

type MessageDoesNotExistError struct {
	ID      string
	Queue   string
	Project string
}

func (e *MessageDoesNotExistError) Error() string {
	return fmt.Sprintf("message %s does not exist in queue %s for project %s", e.ID, e.Queue, projectName(e.Project))
}

func (e *MessageDoesNotExistError) Is(target error) bool { return target == ErrDoesNotExist }

type ClaimDoesNotExistError struct {
	ID      string
	Queue   string
	Project string
}

func (e *ClaimDoesNotExistError) Error() string {
	return fmt.Sprintf("claim %s does not exist in queue %s for project %s", e.ID, e.Queue, projectName(e.Project))
}

func (e *ClaimDoesNotExistError) Is(target error) bool { return target == ErrDoesNotExist }

// QueueNotMappedError is returned by catalogue stores when no shard is
// recorded for a queue.
type QueueNotMappedError struct {
	Queue   string
	Project string
}

func (e *QueueNotMappedError) Error() string {
	return fmt.Sprintf("no shard found for queue %s in project %s", e.Queue, projectName(e.Project))
}

func (e *QueueNotMappedError) Is(target error) bool { return target == ErrDoesNotExist }

type ShardDoesNotExistError struct {
	Shard string
}

func (e *ShardDoesNotExistError) Error() string {
	return fmt.Sprintf("shard %s does not exist", e.Shard)
}

func (e *ShardDoesNotExistError) Is(target error) bool { return target == ErrDoesNotExist }

type PartitionDoesNotExistError struct {
	Partition string
}

func (e *PartitionDoesNotExistError) Error() string {
	return fmt.Sprintf("partition %s does not exist", e.Partition)
}

func (e *PartitionDoesNotExistError) Is(target error) bool { return target == ErrDoesNotExist }

// QueueIsEmptyError is returned by MessageController.First when the queue holds
// no live messages.
type QueueIsEmptyError struct {
	Queue   string
	Project string
}

func (e *QueueIsEmptyError) Error() string {
	return fmt.Sprintf("queue %s in project %s is empty", e.Queue, projectName(e.Project))
}

// MessageIsClaimedError is returned when a claimed message is deleted without
// naming the claim that holds it.
type MessageIsClaimedError struct {
	ID string
}

func (e *MessageIsClaimedError) Error() string {
	return fmt.Sprintf("message %s is claimed", e.ID)
}

func (e *MessageIsClaimedError) Is(target error) bool { return target == ErrNotPermitted }

// MessageIsClaimedByError is returned when a message is deleted under a claim
// that does not hold it.
type MessageIsClaimedByError struct {
	ID    string
	Claim string
}

func (e *MessageIsClaimedByError) Error() string {
	return fmt.Sprintf("message %s is not claimed by %s", e.ID, e.Claim)
}

func (e *MessageIsClaimedByError) Is(target error) bool { return target == ErrNotPermitted }

// InvalidDriverError is returned when no driver can be built for a storage
// type.
type InvalidDriverError struct {
	Storage string
	Err     error
}

func (e *InvalidDriverError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid storage driver %q", e.Storage)
	}
	return fmt.Sprintf("invalid storage driver %q: %v", e.Storage, e.Err)
}

func (e *InvalidDriverError) Is(target error) bool { return target == ErrInvalidDriver }

func (e *InvalidDriverError) Unwrap() error { return e.Err }
