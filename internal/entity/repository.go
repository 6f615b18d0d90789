// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package entity

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// MaxPageSize is the hard cap on ListByWorld page sizes. Caller-supplied
// limits are clamped to it regardless of input.
const MaxPageSize = 200

// DefaultPageSize is used when a caller supplies no limit.
const DefaultPageSize = 50

// Filter narrows a ListByWorld query. Zero values match everything.
type Filter struct {
	// Type restricts results to a single entity type when non-empty.
	Type Type

	// Tags restricts results to entities carrying every listed tag.
	Tags []string
}

// Page is one page of a cursor-paginated listing. Cursor is opaque and
// empty when the listing is exhausted.
type Page struct {
	Entities []*Entity
	Cursor   string
}

// Repository manages entity persistence and owns the hierarchy invariants.
type Repository interface {
	// Create persists a new entity, computing Path and Depth from its
	// parent and assigning an initial concurrency token.
	// Returns ErrParentNotFound if ParentID references a missing,
	// soft-deleted, or cross-world entity.
	Create(ctx context.Context, e *Entity) error

	// GetByID retrieves an entity by world and id. Returns (nil, nil)
	// for missing or soft-deleted entities; absence is an expected
	// outcome, not an error.
	GetByID(ctx context.Context, worldID, id ulid.ULID) (*Entity, error)

	// ListChildren returns the non-deleted direct children of parentID.
	// An empty slice is valid when none exist.
	ListChildren(ctx context.Context, worldID, parentID ulid.ULID) ([]*Entity, error)

	// ListByWorld returns a page of non-deleted entities ordered by
	// creation, honoring filter and the opaque cursor. limit is clamped
	// to MaxPageSize.
	ListByWorld(ctx context.Context, worldID ulid.ULID, filter Filter, cursor string, limit int) (*Page, error)

	// Update applies field changes. If expectedToken is non-empty and
	// does not match persisted state, it fails with
	// ErrConcurrencyConflict and writes nothing. Parent reassignment is
	// re-validated against cycles and recomputes the entity's own Path
	// and Depth (descendants are left to a maintenance job).
	Update(ctx context.Context, e *Entity, expectedToken string) error

	// SoftDelete marks the entity deleted, bumping ModifiedDate and the
	// concurrency token. Returns ErrNotFound if the entity is missing
	// or already deleted.
	SoftDelete(ctx context.Context, worldID, id ulid.ULID) error
}

// WorldRepository resolves world ownership. The full world CRUD surface
// lives outside this core; only lookup is consumed here.
type WorldRepository interface {
	// GetByID retrieves a world. Returns ErrWorldNotFound when absent.
	GetByID(ctx context.Context, id ulid.ULID) (*World, error)
}
