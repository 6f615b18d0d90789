// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package entity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory Repository for service tests. It enforces only
// the slices of behavior the service delegates to it.
type memRepo struct {
	mu       sync.Mutex
	entities map[ulid.ULID]*Entity

	createErr error
	updateErr error

	lastExpectedToken string
}

func newMemRepo() *memRepo {
	return &memRepo{entities: make(map[ulid.ULID]*Entity)}
}

func (r *memRepo) Create(_ context.Context, e *Entity) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e.ID] = e
	return nil
}

func (r *memRepo) GetByID(_ context.Context, worldID, id ulid.ULID) (*Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok || e.WorldID != worldID || e.IsDeleted {
		return nil, nil
	}
	return e, nil
}

func (r *memRepo) ListChildren(_ context.Context, worldID, parentID ulid.ULID) ([]*Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entity
	for _, e := range r.entities {
		if e.WorldID == worldID && !e.IsDeleted && e.ParentID != nil && *e.ParentID == parentID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out, nil
}

func (r *memRepo) ListByWorld(_ context.Context, worldID ulid.ULID, filter Filter, _ string, _ int) (*Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entity
	for _, e := range r.entities {
		if e.WorldID != worldID || e.IsDeleted {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return &Page{Entities: out}, nil
}

func (r *memRepo) Update(_ context.Context, e *Entity, expectedToken string) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastExpectedToken = expectedToken
	r.entities[e.ID] = e
	return nil
}

func (r *memRepo) SoftDelete(_ context.Context, worldID, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok || e.WorldID != worldID || e.IsDeleted {
		return ErrNotFound
	}
	e.IsDeleted = true
	return nil
}

var _ Repository = (*memRepo)(nil)

type memWorlds struct {
	worlds map[ulid.ULID]*World
}

func (r *memWorlds) GetByID(_ context.Context, id ulid.ULID) (*World, error) {
	w, ok := r.worlds[id]
	if !ok {
		return nil, ErrWorldNotFound
	}
	return w, nil
}

var _ WorldRepository = (*memWorlds)(nil)

const owner = "user-1"

type svcFixture struct {
	repo  *memRepo
	world *World
	svc   *Service
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()
	repo := newMemRepo()
	world := &World{ID: ulid.Make(), Name: "Hollowdeep", OwnerID: owner}
	worlds := &memWorlds{worlds: map[ulid.ULID]*World{world.ID: world}}
	return &svcFixture{
		repo:  repo,
		world: world,
		svc:   NewService(ServiceConfig{Repo: repo, WorldRepo: worlds}),
	}
}

func (f *svcFixture) newEntity(name string) *Entity {
	return &Entity{
		WorldID: f.world.ID,
		Type:    TypeLocation,
		Name:    name,
	}
}

func TestService_Create(t *testing.T) {
	f := newSvcFixture(t)
	e := f.newEntity("Dungeon")

	err := f.svc.Create(context.Background(), owner, e)
	require.NoError(t, err)

	assert.False(t, e.ID.IsZero(), "an id is assigned when unset")
	assert.Contains(t, f.repo.entities, e.ID)
}

func TestService_Create_KeepsProvidedID(t *testing.T) {
	f := newSvcFixture(t)
	e := f.newEntity("Dungeon")
	e.ID = ulid.Make()
	want := e.ID

	require.NoError(t, f.svc.Create(context.Background(), owner, e))
	assert.Equal(t, want, e.ID)
}

func TestService_Create_ValidationFailures(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(e *Entity)
		field  string
	}{
		{name: "empty name", mutate: func(e *Entity) { e.Name = "" }, field: "name"},
		{name: "bad tag", mutate: func(e *Entity) { e.Tags = []string{""} }, field: "tags"},
		{name: "bad type", mutate: func(e *Entity) { e.Type = Type("dragon") }, field: "type"},
		{name: "bad description", mutate: func(e *Entity) { e.Description = "a\x00b" }, field: "description"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := f.newEntity("Dungeon")
			tt.mutate(e)

			err := f.svc.Create(ctx, owner, e)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, f.repo.entities, "nothing may be persisted")
		})
	}
}

func TestService_Create_WorldMissing(t *testing.T) {
	f := newSvcFixture(t)
	e := f.newEntity("Dungeon")
	e.WorldID = ulid.Make()

	err := f.svc.Create(context.Background(), owner, e)
	require.ErrorIs(t, err, ErrWorldNotFound)
}

func TestService_Create_WrongOwner(t *testing.T) {
	f := newSvcFixture(t)
	e := f.newEntity("Dungeon")

	err := f.svc.Create(context.Background(), "intruder", e)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.repo.entities)
}

func TestService_Create_RepoError(t *testing.T) {
	f := newSvcFixture(t)
	f.repo.createErr = errors.New("disk full")

	err := f.svc.Create(context.Background(), owner, f.newEntity("Dungeon"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestService_GetByID(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()
	e := f.newEntity("Dungeon")
	require.NoError(t, f.svc.Create(ctx, owner, e))

	got, err := f.svc.GetByID(ctx, owner, f.world.ID, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e.ID, got.ID)

	// Absence is (nil, nil), not an error.
	got, err = f.svc.GetByID(ctx, owner, f.world.ID, ulid.Make())
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = f.svc.GetByID(ctx, "intruder", f.world.ID, e.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestService_ListChildren(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	parent := f.newEntity("Dungeon")
	require.NoError(t, f.svc.Create(ctx, owner, parent))

	childA := f.newEntity("Hall")
	childA.ParentID = &parent.ID
	require.NoError(t, f.svc.Create(ctx, owner, childA))

	childB := f.newEntity("Crypt")
	childB.ParentID = &parent.ID
	require.NoError(t, f.svc.Create(ctx, owner, childB))

	children, err := f.svc.ListChildren(ctx, owner, f.world.ID, parent.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	children, err = f.svc.ListChildren(ctx, owner, f.world.ID, childB.ID)
	require.NoError(t, err)
	assert.Empty(t, children)

	_, err = f.svc.ListChildren(ctx, "intruder", f.world.ID, parent.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestService_ListByWorld(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	loc := f.newEntity("Dungeon")
	require.NoError(t, f.svc.Create(ctx, owner, loc))

	item := f.newEntity("Chest")
	item.Type = TypeItem
	require.NoError(t, f.svc.Create(ctx, owner, item))

	page, err := f.svc.ListByWorld(ctx, owner, f.world.ID, Filter{}, "", 0)
	require.NoError(t, err)
	assert.Len(t, page.Entities, 2)

	page, err = f.svc.ListByWorld(ctx, owner, f.world.ID, Filter{Type: TypeItem}, "", 0)
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, item.ID, page.Entities[0].ID)

	_, err = f.svc.ListByWorld(ctx, "intruder", f.world.ID, Filter{}, "", 0)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestService_Update(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()
	e := f.newEntity("Dungeon")
	require.NoError(t, f.svc.Create(ctx, owner, e))

	e.Name = "Deep Dungeon"
	err := f.svc.Update(ctx, owner, e, "token-1")
	require.NoError(t, err)
	assert.Equal(t, "token-1", f.repo.lastExpectedToken,
		"the caller token is handed through for optimistic locking")

	e.Name = ""
	err = f.svc.Update(ctx, owner, e, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestService_Update_ConcurrencyConflictSurfaces(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()
	e := f.newEntity("Dungeon")
	require.NoError(t, f.svc.Create(ctx, owner, e))

	f.repo.updateErr = ErrConcurrencyConflict
	err := f.svc.Update(ctx, owner, e, "stale")
	require.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestService_Update_WrongOwner(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()
	e := f.newEntity("Dungeon")
	require.NoError(t, f.svc.Create(ctx, owner, e))

	err := f.svc.Update(ctx, "intruder", e, "")
	require.ErrorIs(t, err, ErrUnauthorized)
}
