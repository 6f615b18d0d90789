// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

//go:build integration

package deletion_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/worldsmith/worldsmith/internal/deletion"
	"github.com/worldsmith/worldsmith/internal/entity"
)

const testOwner = "user-1"

var _ = Describe("Cascading delete", func() {
	BeforeEach(func() {
		cleanupAll(env.ctx, env.pool)
	})

	startProcessor := func(ctx context.Context) *deletion.Processor {
		proc := deletion.NewProcessor(deletion.ProcessorConfig{
			PollingInterval: deletion.MinPollingInterval,
		}, env.Operations, env.Service)
		proc.Start(ctx)
		return proc
	}

	It("soft-deletes a whole subtree and completes the operation", func() {
		world := createTestWorld(testOwner)
		rootA := createTestEntity(world.ID, nil, "Castle", entity.TypeLocation)
		childB := createTestEntity(world.ID, &rootA.ID, "Great Hall", entity.TypeLocation)
		childC := createTestEntity(world.ID, &rootA.ID, "Throne", entity.TypeItem)

		op, err := env.Service.CreateDeleteOperation(env.ctx, testOwner, world.ID, rootA.ID, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(op.Status).To(Equal(deletion.StatusPending))

		proc := startProcessor(env.ctx)
		defer proc.Stop()

		Eventually(func() deletion.Status {
			got, err := env.Service.GetOperationStatus(env.ctx, testOwner, world.ID, op.ID)
			if err != nil || got == nil {
				return deletion.Status("")
			}
			return got.Status
		}, 10*time.Second, 50*time.Millisecond).Should(Equal(deletion.StatusCompleted))

		final, err := env.Service.GetOperationStatus(env.ctx, testOwner, world.ID, op.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(final.TotalEntities).To(Equal(3))
		Expect(final.DeletedCount).To(Equal(3))
		Expect(final.FailedCount).To(BeZero())
		Expect(final.StartedAt).NotTo(BeNil())
		Expect(final.CompletedAt).NotTo(BeNil())

		for _, id := range []string{rootA.ID.String(), childB.ID.String(), childC.ID.String()} {
			var deleted bool
			err := env.pool.QueryRow(env.ctx,
				"SELECT is_deleted FROM entities WHERE id = $1", id).Scan(&deleted)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeTrue(), "entity %s must be soft-deleted", id)
		}
	})

	It("fails a non-cascade operation on an entity with children", func() {
		world := createTestWorld(testOwner)
		root := createTestEntity(world.ID, nil, "Castle", entity.TypeLocation)
		createTestEntity(world.ID, &root.ID, "Great Hall", entity.TypeLocation)

		op, err := env.Service.CreateDeleteOperation(env.ctx, testOwner, world.ID, root.ID, false)
		Expect(err).NotTo(HaveOccurred())

		proc := startProcessor(env.ctx)
		defer proc.Stop()

		Eventually(func() deletion.Status {
			got, err := env.Service.GetOperationStatus(env.ctx, testOwner, world.ID, op.ID)
			if err != nil || got == nil {
				return deletion.Status("")
			}
			return got.Status
		}, 10*time.Second, 50*time.Millisecond).Should(Equal(deletion.StatusFailed))

		// The root is untouched.
		got, err := env.Entities.GetByID(env.ctx, world.ID, root.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).NotTo(BeNil())
	})

	It("deletes a leaf synchronously without an operation", func() {
		world := createTestWorld(testOwner)
		root := createTestEntity(world.ID, nil, "Castle", entity.TypeLocation)
		leaf := createTestEntity(world.ID, &root.ID, "Throne", entity.TypeItem)

		Expect(env.Service.DeleteEntity(env.ctx, testOwner, world.ID, leaf.ID)).To(Succeed())

		got, err := env.Entities.GetByID(env.ctx, world.ID, leaf.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeNil(), "soft-deleted entities are invisible to reads")

		// A repeat delete reports not found.
		err = env.Service.DeleteEntity(env.ctx, testOwner, world.ID, leaf.ID)
		Expect(err).To(MatchError(entity.ErrNotFound))
	})

	It("refuses cross-tenant access", func() {
		world := createTestWorld(testOwner)
		root := createTestEntity(world.ID, nil, "Castle", entity.TypeLocation)

		_, err := env.Service.CreateDeleteOperation(env.ctx, "intruder", world.ID, root.ID, true)
		Expect(err).To(MatchError(entity.ErrUnauthorized))
	})
})

var _ = Describe("Entity listing", func() {
	BeforeEach(func() {
		cleanupAll(env.ctx, env.pool)
	})

	It("pages through a world with a cursor and no overlap", func() {
		world := createTestWorld(testOwner)
		root := createTestEntity(world.ID, nil, "Castle", entity.TypeLocation)

		ids := map[string]bool{root.ID.String(): true}
		for i := 0; i < 9; i++ {
			e := createTestEntity(world.ID, &root.ID, "Room", entity.TypeLocation)
			ids[e.ID.String()] = true
		}

		first, err := env.Entities.ListByWorld(env.ctx, world.ID, entity.Filter{}, "", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Entities).To(HaveLen(5))
		Expect(first.Cursor).NotTo(BeEmpty())

		second, err := env.Entities.ListByWorld(env.ctx, world.ID, entity.Filter{}, first.Cursor, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Entities).To(HaveLen(5))
		Expect(second.Cursor).To(BeEmpty(), "ten entities fit in two pages")

		seen := map[string]bool{}
		for _, e := range append(first.Entities, second.Entities...) {
			Expect(seen[e.ID.String()]).To(BeFalse(), "entity %s appeared twice", e.ID)
			seen[e.ID.String()] = true
			Expect(ids[e.ID.String()]).To(BeTrue(), "unexpected entity %s", e.ID)
		}
		Expect(seen).To(HaveLen(10), "both pages together cover the whole world")
	})
})

var _ = Describe("Optimistic concurrency", func() {
	BeforeEach(func() {
		cleanupAll(env.ctx, env.pool)
	})

	It("rejects updates carrying a stale token", func() {
		world := createTestWorld(testOwner)
		e := createTestEntity(world.ID, nil, "Castle", entity.TypeLocation)
		staleToken := e.ConcurrencyToken

		e.Name = "New Castle"
		Expect(env.Entities.Update(env.ctx, e, staleToken)).To(Succeed())
		Expect(e.ConcurrencyToken).NotTo(Equal(staleToken), "each write rotates the token")

		e.Name = "Third Castle"
		err := env.Entities.Update(env.ctx, e, staleToken)
		Expect(err).To(MatchError(entity.ErrConcurrencyConflict))
	})

	It("derives has_children from live rows", func() {
		world := createTestWorld(testOwner)
		root := createTestEntity(world.ID, nil, "Castle", entity.TypeLocation)
		leaf := createTestEntity(world.ID, &root.ID, "Throne", entity.TypeItem)

		got, err := env.Entities.GetByID(env.ctx, world.ID, root.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.HasChildren).To(BeTrue())

		Expect(env.Entities.SoftDelete(env.ctx, world.ID, leaf.ID)).To(Succeed())

		got, err = env.Entities.GetByID(env.ctx, world.ID, root.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.HasChildren).To(BeFalse(), "deleted children no longer count")
	})
})
