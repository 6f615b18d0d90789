// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

// Package deletion implements cascading soft deletes: the operation
// state machine, the subtree traversal service, and the background
// processor that drives operations to completion.
package deletion

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of a delete operation. The string values
// are a wire contract with polling clients and must not change.
type Status string

// Operation statuses. Pending operations advance to InProgress when the
// processor picks them up, then to exactly one terminal state.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
)

// String returns the wire representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// ErrInvalidTransition is returned when a state-machine method is called
// from a state it is not legal in. Status never regresses.
var ErrInvalidTransition = errors.New("invalid operation transition")

// Operation is one cascading-delete request and its progress. It is
// created Pending by a caller and owned exclusively by the processor
// from pickup until it reaches a terminal status.
type Operation struct {
	ID              ulid.ULID
	WorldID         ulid.ULID
	RootEntityID    ulid.ULID
	RootEntityName  string
	RequestedBy     string
	Cascade         bool
	Status          Status
	TotalEntities   int
	DeletedCount    int
	FailedCount     int
	FailedEntityIDs []ulid.ULID
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ErrorDetails    string
}

// NewOperation creates a Pending operation for the given root entity.
func NewOperation(worldID, rootEntityID ulid.ULID, rootEntityName, requestedBy string, cascade bool) *Operation {
	return &Operation{
		ID:             ulid.Make(),
		WorldID:        worldID,
		RootEntityID:   rootEntityID,
		RootEntityName: rootEntityName,
		RequestedBy:    requestedBy,
		Cascade:        cascade,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

// Start transitions Pending -> InProgress, fixing the total entity count
// and the start time. Illegal from any other state.
func (op *Operation) Start(totalEntities int) error {
	if op.Status != StatusPending {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, op.Status)
	}
	if totalEntities < 0 {
		return fmt.Errorf("%w: negative total %d", ErrInvalidTransition, totalEntities)
	}
	now := time.Now().UTC()
	op.Status = StatusInProgress
	op.TotalEntities = totalEntities
	op.StartedAt = &now
	return nil
}

// UpdateProgress records traversal progress. Counts are monotonic; a
// regression or an overshoot past TotalEntities is rejected. failedIDs
// accumulate onto FailedEntityIDs.
func (op *Operation) UpdateProgress(deletedCount, failedCount int, failedIDs ...ulid.ULID) error {
	if op.Status != StatusInProgress {
		return fmt.Errorf("%w: cannot record progress in %s", ErrInvalidTransition, op.Status)
	}
	if deletedCount < op.DeletedCount || failedCount < op.FailedCount {
		return fmt.Errorf("%w: progress counts cannot decrease", ErrInvalidTransition)
	}
	if deletedCount+failedCount > op.TotalEntities {
		return fmt.Errorf("%w: progress %d exceeds total %d",
			ErrInvalidTransition, deletedCount+failedCount, op.TotalEntities)
	}
	op.DeletedCount = deletedCount
	op.FailedCount = failedCount
	for _, id := range failedIDs {
		if !op.hasFailedID(id) {
			op.FailedEntityIDs = append(op.FailedEntityIDs, id)
		}
	}
	return nil
}

// Complete transitions InProgress to Completed, or to Partial when any
// per-entity failures were recorded.
func (op *Operation) Complete() error {
	if op.Status != StatusInProgress {
		return fmt.Errorf("%w: cannot complete from %s", ErrInvalidTransition, op.Status)
	}
	now := time.Now().UTC()
	if op.FailedCount > 0 {
		op.Status = StatusPartial
	} else {
		op.Status = StatusCompleted
	}
	op.CompletedAt = &now
	return nil
}

// Fail transitions InProgress to Failed. It is used when the traversal
// itself breaks before per-entity accounting is meaningful, such as an
// unreadable root.
func (op *Operation) Fail(errorDetails string) error {
	if op.Status != StatusInProgress {
		return fmt.Errorf("%w: cannot fail from %s", ErrInvalidTransition, op.Status)
	}
	now := time.Now().UTC()
	op.Status = StatusFailed
	op.ErrorDetails = errorDetails
	op.CompletedAt = &now
	return nil
}

func (op *Operation) hasFailedID(id ulid.ULID) bool {
	for _, existing := range op.FailedEntityIDs {
		if existing == id {
			return true
		}
	}
	return false
}
