// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

// Package entity contains the world-entity domain types and hierarchy logic.
package entity

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Type identifies the kind of world entity.
type Type string

// Entity types.
const (
	TypeLocation  Type = "location"
	TypeCharacter Type = "character"
	TypeItem      Type = "item"
	TypeFaction   Type = "faction"
	TypeNote      Type = "note"
)

// String returns the string representation of the entity type.
func (t Type) String() string {
	return string(t)
}

// Entity is a node in a world's hierarchy. ParentID, when set, references
// another non-deleted entity in the same world. Path holds the ancestor
// chain from root to immediate parent, so Depth == len(Path).
type Entity struct {
	ID           ulid.ULID
	WorldID      ulid.ULID
	ParentID     *ulid.ULID
	Type         Type
	Name         string
	Description  string
	Tags         []string
	Path         []ulid.ULID
	Depth        int
	HasChildren  bool
	IsDeleted    bool
	CreatedDate  time.Time
	ModifiedDate time.Time
	// ConcurrencyToken is an opaque version stamp reassigned on every
	// successful mutation. Callers supply it back on Update to detect
	// lost updates.
	ConcurrencyToken string
}

// IsRoot reports whether the entity has no parent.
func (e *Entity) IsRoot() bool {
	return e.ParentID == nil
}

// HasAncestor reports whether id appears in the entity's ancestor path.
func (e *Entity) HasAncestor(id ulid.ULID) bool {
	for _, a := range e.Path {
		if a == id {
			return true
		}
	}
	return false
}

// ChildPath returns the path a direct child of this entity must carry.
func (e *Entity) ChildPath() []ulid.ULID {
	path := make([]ulid.ULID, 0, len(e.Path)+1)
	path = append(path, e.Path...)
	return append(path, e.ID)
}

// NewConcurrencyToken returns a fresh opaque version stamp.
func NewConcurrencyToken() string {
	return ulid.Make().String()
}

// World is the owning collection for a set of entities. Ownership is
// resolved before any store mutation; entities never cross worlds.
type World struct {
	ID          ulid.ULID
	Name        string
	OwnerID     string
	CreatedDate time.Time
}
