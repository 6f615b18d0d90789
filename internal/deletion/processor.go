// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package deletion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/worldsmith/worldsmith/pkg/errutil"
)

// Default processor configuration values.
const (
	DefaultPollingInterval = 5 * time.Second
	DefaultMaxBatchSize    = 20
	DefaultWorkers         = 4

	// MinPollingInterval guards against busy-looping on misconfiguration.
	MinPollingInterval = 100 * time.Millisecond
)

// ProcessorConfig configures the background processor.
type ProcessorConfig struct {
	// PollingInterval is the delay between poll-loop ticks.
	// Defaults to DefaultPollingInterval if zero.
	PollingInterval time.Duration

	// MaxBatchSize is the maximum number of pending operations fetched
	// per tick. Defaults to DefaultMaxBatchSize if zero or negative.
	MaxBatchSize int

	// Workers bounds how many operations run concurrently across
	// worlds. Defaults to DefaultWorkers if zero or negative.
	Workers int

	// RetryAfter is reserved for future automatic retry of failed
	// operations. The current state machine never re-enters a terminal
	// status, so it is carried but unused.
	RetryAfter time.Duration
}

// Processor discovers pending delete operations and drives them to
// completion. A single poll loop owns all scheduling decisions; subtree
// traversals are dispatched to a bounded set of workers, with at most
// one in-flight operation per world so no two cascades ever race on the
// same hierarchy.
type Processor struct {
	cfg ProcessorConfig
	ops OperationRepository
	svc *Service

	mu      sync.Mutex
	byWorld map[ulid.ULID]ulid.ULID // world id -> in-flight operation id

	sem      chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewProcessor creates a processor. Call Start to begin polling and
// Stop to shut it down.
func NewProcessor(cfg ProcessorConfig, ops OperationRepository, svc *Service) *Processor {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = DefaultPollingInterval
	}
	if cfg.PollingInterval < MinPollingInterval {
		cfg.PollingInterval = MinPollingInterval
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Processor{
		cfg:      cfg,
		ops:      ops,
		svc:      svc,
		byWorld:  make(map[ulid.ULID]ulid.ULID),
		sem:      make(chan struct{}, cfg.Workers),
		stopChan: make(chan struct{}),
	}
}

// Start launches the poll loop. The context is propagated into running
// traversals: cancelling it cooperatively aborts them, leaving the
// affected operations InProgress for a later observer rather than
// silently marking them complete.
func (p *Processor) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)
	slog.Info("delete operation processor started",
		"polling_interval", p.cfg.PollingInterval.String(),
		"max_batch_size", p.cfg.MaxBatchSize,
		"workers", p.cfg.Workers,
	)
}

// Stop stops picking up new operations and blocks until in-flight
// traversals have returned. Pair with cancelling the Start context to
// abort long traversals instead of draining them.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
	slog.Info("delete operation processor stopped")
}

// InFlight returns the number of operations currently being driven.
func (p *Processor) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byWorld)
}

func (p *Processor) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs one scheduling pass: log still-running work, then dispatch
// eligible pending operations.
func (p *Processor) tick(ctx context.Context) {
	inProgress, err := p.ops.ListByStatus(ctx, StatusInProgress, p.cfg.MaxBatchSize)
	if err != nil {
		errutil.LogError(slog.Default(), "failed to list in-progress operations", err)
	} else if len(inProgress) > 0 {
		// In-progress operations are never re-dispatched; they are either
		// running in this process or were interrupted by a crash and need
		// operator attention.
		slog.Debug("operations still in progress", "count", len(inProgress))
	}

	pending, err := p.ops.ListByStatus(ctx, StatusPending, p.cfg.MaxBatchSize)
	if err != nil {
		errutil.LogError(slog.Default(), "failed to list pending operations", err)
		return
	}

	for _, op := range pending {
		if !p.claim(op) {
			continue
		}
		select {
		case p.sem <- struct{}{}:
		case <-p.stopChan:
			p.release(op.WorldID)
			return
		case <-ctx.Done():
			p.release(op.WorldID)
			return
		}

		p.wg.Add(1)
		go func(op *Operation) {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			defer p.release(op.WorldID)
			p.run(ctx, op)
		}(op)
	}
}

// claim reserves a world for an operation. At most one operation per
// world is ever in flight, so concurrent cascades cannot race on one
// hierarchy.
func (p *Processor) claim(op *Operation) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.byWorld[op.WorldID]; busy {
		return false
	}
	p.byWorld[op.WorldID] = op.ID
	return true
}

func (p *Processor) release(worldID ulid.ULID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byWorld, worldID)
}

// run drives one operation from Pending to a terminal status. Per-entity
// failures surface as Partial; enumeration failures as Failed; context
// cancellation leaves the operation InProgress with its progress
// persisted.
func (p *Processor) run(ctx context.Context, op *Operation) {
	started := time.Now()
	OperationsInFlight.Inc()
	defer OperationsInFlight.Dec()

	slog.Info("delete operation picked up",
		"operation_id", op.ID.String(),
		"world_id", op.WorldID.String(),
		"root_entity_id", op.RootEntityID.String(),
		"cascade", op.Cascade,
	)

	subtree, err := p.svc.CollectSubtree(ctx, op.WorldID, op.RootEntityID)
	if err != nil {
		p.fail(ctx, op, err.Error(), started)
		return
	}

	if !op.Cascade && len(subtree) > 1 {
		p.fail(ctx, op, "entity has non-deleted children and cascade was not requested", started)
		return
	}

	if err := op.Start(len(subtree)); err != nil {
		errutil.LogError(slog.Default(), "cannot start operation", err)
		return
	}
	p.persist(ctx, op)

	result, execErr := p.svc.ExecuteCascade(ctx, op.WorldID, subtree)
	if err := op.UpdateProgress(result.Deleted, len(result.FailedIDs), result.FailedIDs...); err != nil {
		errutil.LogError(slog.Default(), "cannot record operation progress", err)
	}

	if execErr != nil {
		// Interrupted traversal: persist counts but leave the operation
		// InProgress so a restart or observer can surface it.
		p.persist(ctx, op)
		slog.Warn("delete operation interrupted",
			"operation_id", op.ID.String(),
			"world_id", op.WorldID.String(),
			"deleted", op.DeletedCount,
			"failed", op.FailedCount,
			"error", execErr,
		)
		return
	}

	if err := op.Complete(); err != nil {
		errutil.LogError(slog.Default(), "cannot complete operation", err)
		return
	}
	p.persist(ctx, op)

	recordOperation(op.Status, time.Since(started))
	recordEntities(op.DeletedCount, op.FailedCount)
	slog.Info("delete operation finished",
		"operation_id", op.ID.String(),
		"world_id", op.WorldID.String(),
		"status", op.Status.String(),
		"total", op.TotalEntities,
		"deleted", op.DeletedCount,
		"failed", op.FailedCount,
		"duration", time.Since(started).String(),
	)
}

// fail marks an operation Failed before any per-entity accounting was
// possible.
func (p *Processor) fail(ctx context.Context, op *Operation, details string, started time.Time) {
	if err := op.Start(0); err != nil {
		errutil.LogError(slog.Default(), "cannot start operation for failure", err)
		return
	}
	if err := op.Fail(details); err != nil {
		errutil.LogError(slog.Default(), "cannot fail operation", err)
		return
	}
	p.persist(ctx, op)

	recordOperation(StatusFailed, time.Since(started))
	slog.Error("delete operation failed",
		"operation_id", op.ID.String(),
		"world_id", op.WorldID.String(),
		"error", details,
	)
}

// persist writes the operation's current state, detaching from the
// caller's context so a cancelled traversal can still record progress.
func (p *Processor) persist(ctx context.Context, op *Operation) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := p.ops.Update(ctx, op); err != nil {
		errutil.LogError(slog.Default(), "failed to persist operation", err)
	}
}
