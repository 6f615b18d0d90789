// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package entity

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ServiceConfig holds dependencies for Service.
type ServiceConfig struct {
	Repo      Repository
	WorldRepo WorldRepository
}

// Service provides ownership-checked access to the entity store.
// Every operation resolves the owning world and rejects cross-tenant
// access before touching entity state.
type Service struct {
	repo      Repository
	worldRepo WorldRepository
}

// NewService creates a new Service with the given configuration.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:      cfg.Repo,
		worldRepo: cfg.WorldRepo,
	}
}

// checkWorld resolves the world and verifies the principal owns it.
func (s *Service) checkWorld(ctx context.Context, worldID ulid.ULID, principal string) error {
	w, err := s.worldRepo.GetByID(ctx, worldID)
	if err != nil {
		return oops.With("world_id", worldID.String()).Wrap(err)
	}
	if w.OwnerID != principal {
		return oops.With("world_id", worldID.String()).Wrap(ErrUnauthorized)
	}
	return nil
}

// Create validates and persists a new entity after checking world
// ownership. The entity ID is generated if not set.
func (s *Service) Create(ctx context.Context, principal string, e *Entity) error {
	if err := s.checkWorld(ctx, e.WorldID, principal); err != nil {
		return err
	}
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	if err := ValidateDescription(e.Description); err != nil {
		return err
	}
	if err := ValidateTags(e.Tags); err != nil {
		return err
	}
	if err := ValidateType(e.Type); err != nil {
		return err
	}
	if e.ID.IsZero() {
		e.ID = ulid.Make()
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return oops.Wrapf(err, "create entity %s", e.ID)
	}
	return nil
}

// GetByID retrieves an entity after checking world ownership.
// Returns (nil, nil) when the entity is missing or soft-deleted.
func (s *Service) GetByID(ctx context.Context, principal string, worldID, id ulid.ULID) (*Entity, error) {
	if err := s.checkWorld(ctx, worldID, principal); err != nil {
		return nil, err
	}
	e, err := s.repo.GetByID(ctx, worldID, id)
	if err != nil {
		return nil, oops.Wrapf(err, "get entity %s", id)
	}
	return e, nil
}

// ListChildren returns the non-deleted direct children of parentID after
// checking world ownership.
func (s *Service) ListChildren(ctx context.Context, principal string, worldID, parentID ulid.ULID) ([]*Entity, error) {
	if err := s.checkWorld(ctx, worldID, principal); err != nil {
		return nil, err
	}
	children, err := s.repo.ListChildren(ctx, worldID, parentID)
	if err != nil {
		return nil, oops.Wrapf(err, "list children of %s", parentID)
	}
	return children, nil
}

// ListByWorld returns a page of the world's entities after checking
// ownership. The limit is clamped by the repository.
func (s *Service) ListByWorld(ctx context.Context, principal string, worldID ulid.ULID, filter Filter, cursor string, limit int) (*Page, error) {
	if err := s.checkWorld(ctx, worldID, principal); err != nil {
		return nil, err
	}
	page, err := s.repo.ListByWorld(ctx, worldID, filter, cursor, limit)
	if err != nil {
		return nil, oops.Wrapf(err, "list entities in world %s", worldID)
	}
	return page, nil
}

// Update validates and applies field changes after checking world
// ownership. expectedToken, when non-empty, enables optimistic-lock
// verification against the persisted concurrency token.
func (s *Service) Update(ctx context.Context, principal string, e *Entity, expectedToken string) error {
	if err := s.checkWorld(ctx, e.WorldID, principal); err != nil {
		return err
	}
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	if err := ValidateDescription(e.Description); err != nil {
		return err
	}
	if err := ValidateTags(e.Tags); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, e, expectedToken); err != nil {
		return oops.Wrapf(err, "update entity %s", e.ID)
	}
	return nil
}
