// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/worldsmith/worldsmith/internal/entity"
)

// db is the subset of pgxpool.Pool the repositories need. pgxmock pools
// satisfy it too, which keeps repository unit tests off the network.
type db interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// entityColumns is the select list shared by every entity query. The
// has_children flag is derived on read so it can never go stale against
// concurrent subtree mutations.
const entityColumns = `
	e.id, e.world_id, e.parent_id, e.type, e.name, e.description,
	e.tags, e.path, e.is_deleted, e.created_date, e.modified_date,
	e.concurrency_token,
	EXISTS(
		SELECT 1 FROM entities c
		WHERE c.parent_id = e.id AND NOT c.is_deleted
	) AS has_children`

// EntityRepository implements entity.Repository using PostgreSQL.
type EntityRepository struct {
	pool db
}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(pool db) *EntityRepository {
	return &EntityRepository{pool: pool}
}

// Create persists a new entity, deriving Path and Depth from its parent
// and assigning an initial concurrency token.
func (r *EntityRepository) Create(ctx context.Context, e *entity.Entity) error {
	var path []ulid.ULID
	if e.ParentID != nil {
		parent, err := r.GetByID(ctx, e.WorldID, *e.ParentID)
		if err != nil {
			return oops.With("operation", "resolve parent").With("parent_id", e.ParentID.String()).Wrap(err)
		}
		if parent == nil {
			return oops.With("parent_id", e.ParentID.String()).Wrap(entity.ErrParentNotFound)
		}
		path = parent.ChildPath()
	}

	now := time.Now().UTC()
	if e.CreatedDate.IsZero() {
		e.CreatedDate = now
	}
	e.ModifiedDate = e.CreatedDate
	e.Path = path
	e.Depth = len(path)
	e.IsDeleted = false
	e.ConcurrencyToken = entity.NewConcurrencyToken()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO entities (id, world_id, parent_id, type, name, description,
		                      tags, path, is_deleted, created_date, modified_date,
		                      concurrency_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $10, $11)
	`, e.ID.String(), e.WorldID.String(), ulidToStringPtr(e.ParentID),
		e.Type.String(), e.Name, e.Description, tagsOrEmpty(e.Tags),
		ulidsToStrings(e.Path), e.CreatedDate, e.ModifiedDate, e.ConcurrencyToken)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return oops.With("world_id", e.WorldID.String()).Wrap(entity.ErrWorldNotFound)
		}
		return oops.With("operation", "create entity").With("id", e.ID.String()).Wrap(err)
	}
	return nil
}

// GetByID retrieves an entity by world and id. Missing and soft-deleted
// entities both yield (nil, nil).
func (r *EntityRepository) GetByID(ctx context.Context, worldID, id ulid.ULID) (*entity.Entity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entityColumns+`
		FROM entities e
		WHERE e.id = $1 AND e.world_id = $2 AND NOT e.is_deleted
	`, id.String(), worldID.String())

	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.With("operation", "get entity").With("id", id.String()).Wrap(err)
	}
	return e, nil
}

// ListChildren returns the non-deleted direct children of parentID in
// creation order.
func (r *EntityRepository) ListChildren(ctx context.Context, worldID, parentID ulid.ULID) ([]*entity.Entity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities e
		WHERE e.world_id = $1 AND e.parent_id = $2 AND NOT e.is_deleted
		ORDER BY e.id
	`, worldID.String(), parentID.String())
	if err != nil {
		return nil, oops.With("operation", "list children").With("parent_id", parentID.String()).Wrap(err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// ListByWorld returns one page of the world's non-deleted entities in
// creation order. ULIDs sort by creation time, so the cursor is the
// last-seen id.
func (r *EntityRepository) ListByWorld(ctx context.Context, worldID ulid.ULID, filter entity.Filter, cursor string, limit int) (*entity.Page, error) {
	after, err := entity.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = entity.DefaultPageSize
	}
	if limit > entity.MaxPageSize {
		limit = entity.MaxPageSize
	}

	query := `
		SELECT ` + entityColumns + `
		FROM entities e
		WHERE e.world_id = $1 AND NOT e.is_deleted AND e.id > $2`
	args := []any{worldID.String(), after.String()}
	if filter.Type != "" {
		args = append(args, filter.Type.String())
		query += fmt.Sprintf(" AND e.type = $%d", len(args))
	}
	if len(filter.Tags) > 0 {
		args = append(args, filter.Tags)
		query += fmt.Sprintf(" AND e.tags @> $%d", len(args))
	}
	// Fetch one extra row to learn whether another page exists.
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY e.id LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.With("operation", "list entities").With("world_id", worldID.String()).Wrap(err)
	}
	defer rows.Close()

	entities, err := scanEntities(rows)
	if err != nil {
		return nil, err
	}

	page := &entity.Page{Entities: entities}
	if len(entities) > limit {
		page.Entities = entities[:limit]
		page.Cursor = entity.EncodeCursor(page.Entities[limit-1].ID)
	}
	return page, nil
}

// Update applies field changes under optimistic concurrency. The read,
// cycle check, and write share one transaction so no partial update is
// ever visible.
func (r *EntityRepository) Update(ctx context.Context, e *entity.Entity, expectedToken string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var currentParent *string
	var currentPath []string
	var currentToken string
	err = tx.QueryRow(ctx, `
		SELECT parent_id, path, concurrency_token
		FROM entities
		WHERE id = $1 AND world_id = $2 AND NOT is_deleted
		FOR UPDATE
	`, e.ID.String(), e.WorldID.String()).Scan(&currentParent, &currentPath, &currentToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.With("id", e.ID.String()).Wrap(entity.ErrNotFound)
	}
	if err != nil {
		return oops.With("operation", "read entity for update").With("id", e.ID.String()).Wrap(err)
	}

	if expectedToken != "" && expectedToken != currentToken {
		return oops.With("id", e.ID.String()).
			With("expected_token", expectedToken).
			Wrap(entity.ErrConcurrencyConflict)
	}

	path, err := parseULIDs(currentPath, "path")
	if err != nil {
		return err
	}
	if parentChanged(currentParent, e.ParentID) {
		path, err = r.reparentPath(ctx, tx, e)
		if err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	token := entity.NewConcurrencyToken()
	_, err = tx.Exec(ctx, `
		UPDATE entities
		SET name = $3, description = $4, tags = $5, parent_id = $6,
		    path = $7, modified_date = $8, concurrency_token = $9
		WHERE id = $1 AND world_id = $2
	`, e.ID.String(), e.WorldID.String(), e.Name, e.Description,
		tagsOrEmpty(e.Tags), ulidToStringPtr(e.ParentID),
		ulidsToStrings(path), now, token)
	if err != nil {
		return oops.With("operation", "update entity").With("id", e.ID.String()).Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}

	e.Path = path
	e.Depth = len(path)
	e.ModifiedDate = now
	e.ConcurrencyToken = token
	return nil
}

// reparentPath validates a parent reassignment and returns the entity's
// new path. The candidate parent's own ancestor chain must not contain
// the entity, or the move would create a cycle.
func (r *EntityRepository) reparentPath(ctx context.Context, q querier, e *entity.Entity) ([]ulid.ULID, error) {
	if e.ParentID == nil {
		return nil, nil
	}
	if *e.ParentID == e.ID {
		return nil, oops.With("id", e.ID.String()).Wrap(entity.ErrCircularReference)
	}

	var parentPath []string
	err := q.QueryRow(ctx, `
		SELECT path FROM entities
		WHERE id = $1 AND world_id = $2 AND NOT is_deleted
	`, e.ParentID.String(), e.WorldID.String()).Scan(&parentPath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("parent_id", e.ParentID.String()).Wrap(entity.ErrParentNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "resolve new parent").With("parent_id", e.ParentID.String()).Wrap(err)
	}

	ancestors, err := parseULIDs(parentPath, "path")
	if err != nil {
		return nil, err
	}
	for _, a := range ancestors {
		if a == e.ID {
			return nil, oops.With("id", e.ID.String()).
				With("parent_id", e.ParentID.String()).
				Wrap(entity.ErrCircularReference)
		}
	}
	return append(ancestors, *e.ParentID), nil
}

// SoftDelete marks the entity deleted, bumping ModifiedDate and the
// concurrency token. Already-deleted and missing entities both report
// ErrNotFound.
func (r *EntityRepository) SoftDelete(ctx context.Context, worldID, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE entities
		SET is_deleted = TRUE, modified_date = $3, concurrency_token = $4
		WHERE id = $1 AND world_id = $2 AND NOT is_deleted
	`, id.String(), worldID.String(), time.Now().UTC(), entity.NewConcurrencyToken())
	if err != nil {
		return oops.With("operation", "soft delete entity").With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", id.String()).Wrap(entity.ErrNotFound)
	}
	return nil
}

// parentChanged reports whether the stored parent differs from the
// requested one.
func parentChanged(current *string, requested *ulid.ULID) bool {
	if current == nil && requested == nil {
		return false
	}
	if current == nil || requested == nil {
		return true
	}
	return *current != requested.String()
}

// tagsOrEmpty normalizes a nil tag slice to an empty array so the column
// never stores SQL NULL.
func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func scanEntity(row pgx.Row) (*entity.Entity, error) {
	var e entity.Entity
	var idStr, worldIDStr, typeStr string
	var parentIDStr *string
	var tags, path []string

	err := row.Scan(&idStr, &worldIDStr, &parentIDStr, &typeStr, &e.Name,
		&e.Description, &tags, &path, &e.IsDeleted, &e.CreatedDate,
		&e.ModifiedDate, &e.ConcurrencyToken, &e.HasChildren)
	if err != nil {
		return nil, err
	}

	e.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse entity id").With("id", idStr).Wrap(err)
	}
	e.WorldID, err = ulid.Parse(worldIDStr)
	if err != nil {
		return nil, oops.With("operation", "parse world_id").With("world_id", worldIDStr).Wrap(err)
	}
	e.ParentID, err = parseOptionalULID(parentIDStr, "parent_id")
	if err != nil {
		return nil, err
	}
	e.Path, err = parseULIDs(path, "path")
	if err != nil {
		return nil, err
	}
	e.Type = entity.Type(typeStr)
	e.Tags = tags
	e.Depth = len(e.Path)
	return &e, nil
}

func scanEntities(rows pgx.Rows) ([]*entity.Entity, error) {
	entities := make([]*entity.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, oops.With("operation", "scan entity").Wrap(err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate entities").Wrap(err)
	}
	return entities, nil
}

// Compile-time interface check.
var _ entity.Repository = (*EntityRepository)(nil)
