// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

// Package postgres implements the entity, world, and delete-operation
// repositories using PostgreSQL.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// querier abstracts query execution for *pgxpool.Pool, pgx.Tx, and
// pgxmock pools, so repository methods work within or outside of
// transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ulidToStringPtr converts a ULID pointer to a string pointer for SQL
// parameters. Returns nil if the input is nil.
func ulidToStringPtr(id *ulid.ULID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// parseOptionalULID parses an optional ULID string pointer into a ULID
// pointer. Returns nil if the input is nil. Wraps parse errors with the
// field name for context.
func parseOptionalULID(strPtr *string, fieldName string) (*ulid.ULID, error) {
	if strPtr == nil {
		return nil, nil
	}
	id, err := ulid.Parse(*strPtr)
	if err != nil {
		return nil, oops.With("operation", "parse "+fieldName).With(fieldName, *strPtr).Wrap(err)
	}
	return &id, nil
}

// parseULIDs parses a slice of ULID strings, wrapping the first parse
// error with the field name for context.
func parseULIDs(strs []string, fieldName string) ([]ulid.ULID, error) {
	ids := make([]ulid.ULID, 0, len(strs))
	for _, s := range strs {
		id, err := ulid.Parse(s)
		if err != nil {
			return nil, oops.With("operation", "parse "+fieldName).With(fieldName, s).Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ulidsToStrings converts a ULID slice to its string form for SQL array
// parameters.
func ulidsToStrings(ids []ulid.ULID) []string {
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, id.String())
	}
	return strs
}
