// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package deletion

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/worldsmith/worldsmith/internal/entity"
)

// Listing limits for ListRecentOperations.
const (
	DefaultOperationListLimit = 20
	MaxOperationListLimit     = 100
)

// ServiceConfig holds dependencies for Service.
type ServiceConfig struct {
	Entities   entity.Repository
	Worlds     entity.WorldRepository
	Operations OperationRepository

	// MaxConcurrentPerUserPerWorld caps the non-terminal operations one
	// user may have queued or running in a single world. Zero means
	// unlimited.
	MaxConcurrentPerUserPerWorld int

	// Limiter throttles per-entity deletes during cascades. Nil means
	// no throttling.
	Limiter *Limiter
}

// Service performs cascading deletes against the entity store and
// exposes the submission and polling surface consumed by the REST layer.
type Service struct {
	entities   entity.Repository
	worlds     entity.WorldRepository
	operations OperationRepository
	maxPerUser int
	limiter    *Limiter
}

// NewService creates a new Service with the given configuration.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		entities:   cfg.Entities,
		worlds:     cfg.Worlds,
		operations: cfg.Operations,
		maxPerUser: cfg.MaxConcurrentPerUserPerWorld,
		limiter:    cfg.Limiter,
	}
}

// checkWorld resolves the world and verifies the principal owns it.
func (s *Service) checkWorld(ctx context.Context, worldID ulid.ULID, principal string) error {
	w, err := s.worlds.GetByID(ctx, worldID)
	if err != nil {
		return oops.With("world_id", worldID.String()).Wrap(err)
	}
	if w.OwnerID != principal {
		return oops.With("world_id", worldID.String()).Wrap(entity.ErrUnauthorized)
	}
	return nil
}

// CreateDeleteOperation records a Pending cascading-delete request and
// returns immediately; the processor drives it in the background.
// Submission fails when the root entity is absent or the user already
// has MaxConcurrentPerUserPerWorld operations in flight for this world.
func (s *Service) CreateDeleteOperation(ctx context.Context, principal string, worldID, rootEntityID ulid.ULID, cascade bool) (*Operation, error) {
	if err := s.checkWorld(ctx, worldID, principal); err != nil {
		return nil, err
	}

	root, err := s.entities.GetByID(ctx, worldID, rootEntityID)
	if err != nil {
		return nil, oops.Wrapf(err, "resolve root entity %s", rootEntityID)
	}
	if root == nil {
		return nil, oops.With("entity_id", rootEntityID.String()).Wrap(entity.ErrNotFound)
	}

	if s.maxPerUser > 0 {
		active, err := s.operations.CountActive(ctx, worldID, principal)
		if err != nil {
			return nil, oops.Wrapf(err, "count active operations for %s", principal)
		}
		if active >= s.maxPerUser {
			return nil, oops.Code("OPERATION_LIMIT").
				With("world_id", worldID.String()).
				With("requested_by", principal).
				With("active", active).
				Wrapf(entity.ErrInvalidOperation, "concurrent delete operation limit reached")
		}
	}

	op := NewOperation(worldID, rootEntityID, root.Name, principal, cascade)
	if err := s.operations.Create(ctx, op); err != nil {
		return nil, oops.Wrapf(err, "create delete operation %s", op.ID)
	}

	slog.Info("delete operation submitted",
		"operation_id", op.ID.String(),
		"world_id", worldID.String(),
		"root_entity_id", rootEntityID.String(),
		"cascade", cascade,
	)
	return op, nil
}

// GetOperationStatus returns the operation for polling clients, or
// (nil, nil) when it does not exist.
func (s *Service) GetOperationStatus(ctx context.Context, principal string, worldID, operationID ulid.ULID) (*Operation, error) {
	if err := s.checkWorld(ctx, worldID, principal); err != nil {
		return nil, err
	}
	op, err := s.operations.GetByID(ctx, worldID, operationID)
	if err != nil {
		return nil, oops.Wrapf(err, "get operation %s", operationID)
	}
	return op, nil
}

// ListRecentOperations returns a world's operations, newest first. The
// limit is clamped to MaxOperationListLimit.
func (s *Service) ListRecentOperations(ctx context.Context, principal string, worldID ulid.ULID, limit int) ([]*Operation, error) {
	if err := s.checkWorld(ctx, worldID, principal); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultOperationListLimit
	}
	if limit > MaxOperationListLimit {
		limit = MaxOperationListLimit
	}
	ops, err := s.operations.ListRecent(ctx, worldID, limit)
	if err != nil {
		return nil, oops.Wrapf(err, "list operations for world %s", worldID)
	}
	return ops, nil
}

// DeleteEntity is the synchronous non-cascading path. It refuses to
// delete an entity with live children and never touches the background
// pipeline.
func (s *Service) DeleteEntity(ctx context.Context, principal string, worldID, entityID ulid.ULID) error {
	if err := s.checkWorld(ctx, worldID, principal); err != nil {
		return err
	}

	e, err := s.entities.GetByID(ctx, worldID, entityID)
	if err != nil {
		return oops.Wrapf(err, "resolve entity %s", entityID)
	}
	if e == nil {
		return oops.With("entity_id", entityID.String()).Wrap(entity.ErrNotFound)
	}
	if e.HasChildren {
		return oops.With("entity_id", entityID.String()).Wrap(entity.ErrHasChildren)
	}

	if err := s.entities.SoftDelete(ctx, worldID, entityID); err != nil {
		return oops.Wrapf(err, "soft delete entity %s", entityID)
	}
	return nil
}

// CollectSubtree enumerates the root entity and all its non-deleted
// descendants breadth-first. The root comes first, so deleting the
// returned slice in reverse order is post-order: children always go
// before their parent. An unreadable or missing root is an error; the
// operation must fail rather than report zero work.
func (s *Service) CollectSubtree(ctx context.Context, worldID, rootID ulid.ULID) ([]*entity.Entity, error) {
	root, err := s.entities.GetByID(ctx, worldID, rootID)
	if err != nil {
		return nil, oops.Wrapf(err, "resolve root entity %s", rootID)
	}
	if root == nil {
		return nil, oops.With("entity_id", rootID.String()).Wrap(entity.ErrNotFound)
	}

	subtree := []*entity.Entity{root}
	for i := 0; i < len(subtree); i++ {
		children, err := s.entities.ListChildren(ctx, worldID, subtree[i].ID)
		if err != nil {
			return nil, oops.Wrapf(err, "list children of %s", subtree[i].ID)
		}
		subtree = append(subtree, children...)
	}
	return subtree, nil
}

// CascadeResult is the outcome of one subtree traversal.
type CascadeResult struct {
	Deleted   int
	FailedIDs []ulid.ULID
}

// ExecuteCascade soft-deletes the collected subtree in reverse BFS
// order. Each per-entity failure is recorded and traversal continues;
// one failed leaf must not abort unrelated siblings. Only context
// cancellation stops the walk early, so an interrupted operation can be
// observed as still in progress after a restart.
func (s *Service) ExecuteCascade(ctx context.Context, worldID ulid.ULID, subtree []*entity.Entity) (*CascadeResult, error) {
	result := &CascadeResult{}
	for i := len(subtree) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return result, err
			}
		}

		node := subtree[i]
		if err := s.entities.SoftDelete(ctx, worldID, node.ID); err != nil {
			result.FailedIDs = append(result.FailedIDs, node.ID)
			slog.Warn("entity delete failed, continuing traversal",
				"world_id", worldID.String(),
				"entity_id", node.ID.String(),
				"error", err,
			)
			continue
		}
		result.Deleted++
	}
	return result, nil
}
