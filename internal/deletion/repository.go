// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package deletion

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// OperationRepository manages delete-operation persistence.
type OperationRepository interface {
	// Create persists a new operation.
	Create(ctx context.Context, op *Operation) error

	// GetByID retrieves an operation by world and id. Returns (nil, nil)
	// when absent; callers map that to a not-found response upstream.
	GetByID(ctx context.Context, worldID, id ulid.ULID) (*Operation, error)

	// Update persists the operation's current status and progress.
	Update(ctx context.Context, op *Operation) error

	// ListByStatus returns up to limit operations in the given status,
	// oldest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Operation, error)

	// ListRecent returns up to limit operations for a world, newest first.
	ListRecent(ctx context.Context, worldID ulid.ULID, limit int) ([]*Operation, error)

	// CountActive returns the number of non-terminal operations a user
	// has in the given world. Used to cap concurrent submissions.
	CountActive(ctx context.Context, worldID ulid.ULID, requestedBy string) (int, error)
}
