// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package deletion

import (
	"context"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/worldsmith/worldsmith/internal/entity"
)

// fakeEntityStore is an in-memory entity.Repository sufficient for
// traversal tests. Hierarchy is expressed through ParentID only.
type fakeEntityStore struct {
	mu       sync.Mutex
	entities map[ulid.ULID]*entity.Entity

	// deleteErrs makes SoftDelete fail for specific entities.
	deleteErrs map[ulid.ULID]error

	// deleteGate, when non-nil, is received from before every SoftDelete
	// so tests can hold a traversal mid-flight.
	deleteGate chan struct{}

	deleted []ulid.ULID
	listErr error
	getErr  error
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{
		entities:   make(map[ulid.ULID]*entity.Entity),
		deleteErrs: make(map[ulid.ULID]error),
	}
}

func (f *fakeEntityStore) add(e *entity.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[e.ID] = e
}

func (f *fakeEntityStore) deletedOrder() []ulid.ULID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ulid.ULID, len(f.deleted))
	copy(out, f.deleted)
	return out
}

func (f *fakeEntityStore) Create(_ context.Context, e *entity.Entity) error {
	f.add(e)
	return nil
}

func (f *fakeEntityStore) GetByID(_ context.Context, worldID, id ulid.ULID) (*entity.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	e, ok := f.entities[id]
	if !ok || e.WorldID != worldID || e.IsDeleted {
		return nil, nil
	}
	return e, nil
}

func (f *fakeEntityStore) ListChildren(_ context.Context, worldID, parentID ulid.ULID) ([]*entity.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var children []*entity.Entity
	for _, e := range f.entities {
		if e.WorldID == worldID && !e.IsDeleted && e.ParentID != nil && *e.ParentID == parentID {
			children = append(children, e)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].ID.Compare(children[j].ID) < 0
	})
	return children, nil
}

func (f *fakeEntityStore) ListByWorld(_ context.Context, _ ulid.ULID, _ entity.Filter, _ string, _ int) (*entity.Page, error) {
	return &entity.Page{}, nil
}

func (f *fakeEntityStore) Update(_ context.Context, e *entity.Entity, _ string) error {
	f.add(e)
	return nil
}

func (f *fakeEntityStore) SoftDelete(_ context.Context, _ ulid.ULID, id ulid.ULID) error {
	if f.deleteGate != nil {
		<-f.deleteGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.deleteErrs[id]; ok {
		return err
	}
	e, ok := f.entities[id]
	if !ok || e.IsDeleted {
		return entity.ErrNotFound
	}
	e.IsDeleted = true
	f.deleted = append(f.deleted, id)
	return nil
}

var _ entity.Repository = (*fakeEntityStore)(nil)

// fakeWorlds is an in-memory entity.WorldRepository.
type fakeWorlds struct {
	worlds map[ulid.ULID]*entity.World
}

func newFakeWorlds(worlds ...*entity.World) *fakeWorlds {
	f := &fakeWorlds{worlds: make(map[ulid.ULID]*entity.World)}
	for _, w := range worlds {
		f.worlds[w.ID] = w
	}
	return f
}

func (f *fakeWorlds) GetByID(_ context.Context, id ulid.ULID) (*entity.World, error) {
	w, ok := f.worlds[id]
	if !ok {
		return nil, entity.ErrWorldNotFound
	}
	return w, nil
}

var _ entity.WorldRepository = (*fakeWorlds)(nil)

// fakeOperationRepo is an in-memory OperationRepository.
type fakeOperationRepo struct {
	mu  sync.Mutex
	ops map[ulid.ULID]*Operation

	createErr error
	updateErr error
	listErr   error

	// lastRecentLimit records the limit passed to ListRecent for clamp
	// assertions.
	lastRecentLimit int
}

func newFakeOperationRepo() *fakeOperationRepo {
	return &fakeOperationRepo{ops: make(map[ulid.ULID]*Operation)}
}

func clone(op *Operation) *Operation {
	cp := *op
	cp.FailedEntityIDs = append([]ulid.ULID(nil), op.FailedEntityIDs...)
	return &cp
}

func (f *fakeOperationRepo) Create(_ context.Context, op *Operation) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops[op.ID] = clone(op)
	return nil
}

func (f *fakeOperationRepo) GetByID(_ context.Context, worldID, id ulid.ULID) (*Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok || op.WorldID != worldID {
		return nil, nil
	}
	return clone(op), nil
}

func (f *fakeOperationRepo) Update(_ context.Context, op *Operation) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops[op.ID] = clone(op)
	return nil
}

func (f *fakeOperationRepo) ListByStatus(_ context.Context, status Status, limit int) ([]*Operation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Operation
	for _, op := range f.ops {
		if op.Status == status {
			out = append(out, clone(op))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeOperationRepo) ListRecent(_ context.Context, worldID ulid.ULID, limit int) ([]*Operation, error) {
	f.mu.Lock()
	f.lastRecentLimit = limit
	defer f.mu.Unlock()
	var out []*Operation
	for _, op := range f.ops {
		if op.WorldID == worldID {
			out = append(out, clone(op))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) > 0 })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeOperationRepo) CountActive(_ context.Context, worldID ulid.ULID, requestedBy string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, op := range f.ops {
		if op.WorldID == worldID && op.RequestedBy == requestedBy && !op.Status.IsTerminal() {
			count++
		}
	}
	return count, nil
}

func (f *fakeOperationRepo) get(id ulid.ULID) *Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok {
		return nil
	}
	return clone(op)
}

var _ OperationRepository = (*fakeOperationRepo)(nil)

// buildTree creates a world with a root entity and two children under
// it, one of which has a child of its own:
//
//	root
//	├── childA
//	│   └── grandchild
//	└── childB
type testTree struct {
	world      *entity.World
	root       *entity.Entity
	childA     *entity.Entity
	childB     *entity.Entity
	grandchild *entity.Entity
}

func buildTree(store *fakeEntityStore, owner string) *testTree {
	world := &entity.World{ID: ulid.Make(), Name: "Hollowdeep", OwnerID: owner}

	root := &entity.Entity{ID: ulid.Make(), WorldID: world.ID, Type: entity.TypeLocation, Name: "Dungeon"}
	childA := &entity.Entity{ID: ulid.Make(), WorldID: world.ID, ParentID: &root.ID, Type: entity.TypeLocation, Name: "Hall"}
	childB := &entity.Entity{ID: ulid.Make(), WorldID: world.ID, ParentID: &root.ID, Type: entity.TypeItem, Name: "Chest"}
	grandchild := &entity.Entity{ID: ulid.Make(), WorldID: world.ID, ParentID: &childA.ID, Type: entity.TypeCharacter, Name: "Guard"}

	store.add(root)
	store.add(childA)
	store.add(childB)
	store.add(grandchild)

	return &testTree{world: world, root: root, childA: childA, childB: childB, grandchild: grandchild}
}
