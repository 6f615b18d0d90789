// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

// Package store provides database bootstrap and schema management.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection bootstrap tuning. A fresh deployment often races the
// database container coming up, so the first pings retry with
// fibonacci backoff before giving up.
const (
	connectBaseDelay  = 500 * time.Millisecond
	connectMaxRetries = 6
)

// Connect opens a pgx connection pool and verifies it with a retried
// ping. The returned pool is ready for use; the caller owns Close.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DATABASE_CONFIG_INVALID").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DATABASE_POOL_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(connectMaxRetries, retry.NewFibonacci(connectBaseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			slog.Warn("database ping failed, retrying", "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DATABASE_UNREACHABLE").Wrap(err)
	}

	return pool, nil
}
