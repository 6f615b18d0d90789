// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

// Package postgres implements the delete-operation repository using
// PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/worldsmith/worldsmith/internal/deletion"
)

// querier abstracts query execution so pgxpool.Pool and pgxmock pools
// are interchangeable in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const operationColumns = `
	id, world_id, root_entity_id, root_entity_name, requested_by, cascade,
	status, total_entities, deleted_count, failed_count, failed_entity_ids,
	created_at, started_at, completed_at, error_details`

// OperationRepository implements deletion.OperationRepository using
// PostgreSQL.
type OperationRepository struct {
	pool querier
}

// NewOperationRepository creates a new OperationRepository.
func NewOperationRepository(pool querier) *OperationRepository {
	return &OperationRepository{pool: pool}
}

// Create persists a new operation.
func (r *OperationRepository) Create(ctx context.Context, op *deletion.Operation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO delete_operations (id, world_id, root_entity_id,
		       root_entity_name, requested_by, cascade, status,
		       total_entities, deleted_count, failed_count,
		       failed_entity_ids, created_at, started_at, completed_at,
		       error_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, op.ID.String(), op.WorldID.String(), op.RootEntityID.String(),
		op.RootEntityName, op.RequestedBy, op.Cascade, op.Status.String(),
		op.TotalEntities, op.DeletedCount, op.FailedCount,
		failedIDsToStrings(op.FailedEntityIDs), op.CreatedAt, op.StartedAt,
		op.CompletedAt, errorDetailsPtr(op.ErrorDetails))
	if err != nil {
		return oops.With("operation", "create delete operation").With("id", op.ID.String()).Wrap(err)
	}
	return nil
}

// GetByID retrieves an operation by world and id, or (nil, nil) when
// absent.
func (r *OperationRepository) GetByID(ctx context.Context, worldID, id ulid.ULID) (*deletion.Operation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+operationColumns+`
		FROM delete_operations WHERE id = $1 AND world_id = $2
	`, id.String(), worldID.String())

	op, err := scanOperation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.With("operation", "get delete operation").With("id", id.String()).Wrap(err)
	}
	return op, nil
}

// Update persists the operation's current status and progress.
func (r *OperationRepository) Update(ctx context.Context, op *deletion.Operation) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE delete_operations
		SET status = $2, total_entities = $3, deleted_count = $4,
		    failed_count = $5, failed_entity_ids = $6, started_at = $7,
		    completed_at = $8, error_details = $9
		WHERE id = $1
	`, op.ID.String(), op.Status.String(), op.TotalEntities,
		op.DeletedCount, op.FailedCount, failedIDsToStrings(op.FailedEntityIDs),
		op.StartedAt, op.CompletedAt, errorDetailsPtr(op.ErrorDetails))
	if err != nil {
		return oops.With("operation", "update delete operation").With("id", op.ID.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", op.ID.String()).Errorf("delete operation not found")
	}
	return nil
}

// ListByStatus returns up to limit operations in the given status,
// oldest first so earlier submissions are served first.
func (r *OperationRepository) ListByStatus(ctx context.Context, status deletion.Status, limit int) ([]*deletion.Operation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+operationColumns+`
		FROM delete_operations WHERE status = $1 ORDER BY id LIMIT $2
	`, status.String(), limit)
	if err != nil {
		return nil, oops.With("operation", "list operations by status").With("status", status.String()).Wrap(err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// ListRecent returns up to limit operations for a world, newest first.
func (r *OperationRepository) ListRecent(ctx context.Context, worldID ulid.ULID, limit int) ([]*deletion.Operation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+operationColumns+`
		FROM delete_operations WHERE world_id = $1 ORDER BY id DESC LIMIT $2
	`, worldID.String(), limit)
	if err != nil {
		return nil, oops.With("operation", "list recent operations").With("world_id", worldID.String()).Wrap(err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// CountActive returns the number of non-terminal operations a user has
// in the given world.
func (r *OperationRepository) CountActive(ctx context.Context, worldID ulid.ULID, requestedBy string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM delete_operations
		WHERE world_id = $1 AND requested_by = $2 AND status IN ($3, $4)
	`, worldID.String(), requestedBy,
		deletion.StatusPending.String(), deletion.StatusInProgress.String()).Scan(&count)
	if err != nil {
		return 0, oops.With("operation", "count active operations").With("world_id", worldID.String()).Wrap(err)
	}
	return count, nil
}

func scanOperation(row pgx.Row) (*deletion.Operation, error) {
	var op deletion.Operation
	var idStr, worldIDStr, rootIDStr, statusStr string
	var failedIDs []string
	var errorDetails *string

	err := row.Scan(&idStr, &worldIDStr, &rootIDStr, &op.RootEntityName,
		&op.RequestedBy, &op.Cascade, &statusStr, &op.TotalEntities,
		&op.DeletedCount, &op.FailedCount, &failedIDs, &op.CreatedAt,
		&op.StartedAt, &op.CompletedAt, &errorDetails)
	if err != nil {
		return nil, err
	}

	op.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse operation id").With("id", idStr).Wrap(err)
	}
	op.WorldID, err = ulid.Parse(worldIDStr)
	if err != nil {
		return nil, oops.With("operation", "parse world_id").With("world_id", worldIDStr).Wrap(err)
	}
	op.RootEntityID, err = ulid.Parse(rootIDStr)
	if err != nil {
		return nil, oops.With("operation", "parse root_entity_id").With("root_entity_id", rootIDStr).Wrap(err)
	}
	for _, s := range failedIDs {
		id, err := ulid.Parse(s)
		if err != nil {
			return nil, oops.With("operation", "parse failed_entity_id").With("failed_entity_id", s).Wrap(err)
		}
		op.FailedEntityIDs = append(op.FailedEntityIDs, id)
	}
	op.Status = deletion.Status(statusStr)
	if errorDetails != nil {
		op.ErrorDetails = *errorDetails
	}
	return &op, nil
}

func scanOperations(rows pgx.Rows) ([]*deletion.Operation, error) {
	ops := make([]*deletion.Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, oops.With("operation", "scan delete operation").Wrap(err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate delete operations").Wrap(err)
	}
	return ops, nil
}

func failedIDsToStrings(ids []ulid.ULID) []string {
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, id.String())
	}
	return strs
}

// errorDetailsPtr maps an empty error string to SQL NULL.
func errorDetailsPtr(details string) *string {
	if details == "" {
		return nil
	}
	return &details
}

// Compile-time interface check.
var _ deletion.OperationRepository = (*OperationRepository)(nil)
