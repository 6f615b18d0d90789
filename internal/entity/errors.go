// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for the entity store. Repository implementations wrap
// these with call-site context; callers match with errors.Is.
var (
	// ErrNotFound is returned when a world, entity, or operation is
	// absent or soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when a world exists but is not owned
	// by the caller's principal.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidOperation is the base error for mutations rejected by a
	// hierarchy rule rather than by missing data.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrConcurrencyConflict is returned when a caller-supplied
	// concurrency token does not match persisted state.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// Specializations of ErrInvalidOperation and ErrNotFound. They satisfy
// errors.Is for both the specific and the base sentinel.
var (
	// ErrParentNotFound is returned when ParentID references a missing,
	// soft-deleted, or cross-world entity.
	ErrParentNotFound = fmt.Errorf("parent %w", ErrNotFound)

	// ErrWorldNotFound is returned when the owning world does not exist.
	ErrWorldNotFound = fmt.Errorf("world %w", ErrNotFound)

	// ErrHasChildren is returned when a non-cascade delete targets an
	// entity with at least one non-deleted child.
	ErrHasChildren = fmt.Errorf("%w: entity has children", ErrInvalidOperation)

	// ErrCircularReference is returned when a parent reassignment would
	// make an entity its own ancestor.
	ErrCircularReference = fmt.Errorf("%w: circular reference", ErrInvalidOperation)
)
