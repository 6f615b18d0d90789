// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/worldsmith/worldsmith/internal/entity"
)

// WorldRepository implements entity.WorldRepository using PostgreSQL.
type WorldRepository struct {
	pool db
}

// NewWorldRepository creates a new WorldRepository.
func NewWorldRepository(pool db) *WorldRepository {
	return &WorldRepository{pool: pool}
}

// GetByID retrieves a world by id.
func (r *WorldRepository) GetByID(ctx context.Context, id ulid.ULID) (*entity.World, error) {
	var w entity.World
	var idStr string

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, owner_id, created_date FROM worlds WHERE id = $1
	`, id.String()).Scan(&idStr, &w.Name, &w.OwnerID, &w.CreatedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("id", id.String()).Wrap(entity.ErrWorldNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get world").With("id", id.String()).Wrap(err)
	}

	w.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse world id").With("id", idStr).Wrap(err)
	}
	return &w, nil
}

// Create persists a new world. Worlds are managed by the product's outer
// layers; this is kept for seeding and integration tests.
func (r *WorldRepository) Create(ctx context.Context, w *entity.World) error {
	if w.CreatedDate.IsZero() {
		w.CreatedDate = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO worlds (id, name, owner_id, created_date)
		VALUES ($1, $2, $3, $4)
	`, w.ID.String(), w.Name, w.OwnerID, w.CreatedDate)
	if err != nil {
		return oops.With("operation", "create world").With("id", w.ID.String()).Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ entity.WorldRepository = (*WorldRepository)(nil)
