package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanvirul-I/Collab-Notes/internal/metrics"
	"github.com/Tanvirul-I/Collab-Notes/internal/presence"
	"github.com/Tanvirul-I/Collab-Notes/internal/snapshot"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage/storagetest"
)

func newTestRegistry(t *testing.T) (*Registry, *storagetest.Store) {
	t.Helper()
	durable := storagetest.New()
	store := snapshot.New(nil, durable, 5*time.Second, nil)
	reg := NewRegistry(store, metrics.NewCollector(), Config{
		DebounceCache:   time.Second,
		DebounceDurable: 5 * time.Second,
	}, nil)
	return reg, durable
}

func TestGetOrCreate_ReturnsSameRoomForSameDocument(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	r1, err := reg.GetOrCreate(ctx, "d1", "owner")
	require.NoError(t, err)
	r2, err := reg.GetOrCreate(ctx, "d1", "owner")
	require.NoError(t, err)

	assert.Same(t, r1, r2)
	assert.Equal(t, 1, reg.Count())
}

func TestGetOrCreate_LoadsLatestSnapshot(t *testing.T) {
	reg, durable := newTestRegistry(t)
	ctx := context.Background()

	seeded := newTestRoom(t)
	_, err := seeded.replica.InsertText(0, "prior state")
	require.NoError(t, err)
	state, err := seeded.replica.EncodeState()
	require.NoError(t, err)
	_, err = durable.CreateVersion(ctx, "d1", "owner", "", state)
	require.NoError(t, err)

	r, err := reg.GetOrCreate(ctx, "d1", "owner")
	require.NoError(t, err)
	assert.Equal(t, "prior state", r.replica.Content())
}

func TestRemove_FlushesPendingPersistBeforeTeardown(t *testing.T) {
	reg, durable := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.GetOrCreate(ctx, "d1", "owner")
	require.NoError(t, err)

	sender := newFakeSender("c1")
	r.Join(sender, "u1", storage.PermissionEditor, "U", "#000", 0, presence.SelectionRange{}, 1000)

	update, err := r.replica.InsertText(0, "unsaved edit")
	require.NoError(t, err)
	r.ApplyUpdate(sender.ID(), update)
	require.True(t, r.PersistPending())

	r.Leave(sender.ID())
	reg.Remove(ctx, "d1")

	assert.Equal(t, 0, reg.Count(), "empty room must be reclaimed after its flush")
	rows := durable.Versions("d1")
	require.Len(t, rows, 1, "pending persist must complete before teardown")
	assert.Equal(t, "Auto-save", rows[0].Summary)
}

func TestRemove_KeepsRoomWithMembers(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.GetOrCreate(ctx, "d1", "owner")
	require.NoError(t, err)
	r.Join(newFakeSender("c1"), "u1", storage.PermissionEditor, "U", "#000", 0, presence.SelectionRange{}, 1000)

	reg.Remove(ctx, "d1")
	assert.Equal(t, 1, reg.Count())
}

func TestSweep_ReclaimsEmptyRooms(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.GetOrCreate(ctx, "d1", "owner")
	require.NoError(t, err)
	sender := newFakeSender("c1")
	r.Join(sender, "u1", storage.PermissionEditor, "U", "#000", 0, presence.SelectionRange{}, 1000)
	require.Equal(t, 1, reg.Count())

	reg.Sweep(5000)
	assert.Equal(t, 0, reg.Count(), "sweep must evict the stale member and reclaim the room")
	assert.True(t, sender.closed)
}

func TestFlushAll_PersistsEveryPendingRoom(t *testing.T) {
	reg, durable := newTestRegistry(t)
	ctx := context.Background()

	for _, doc := range []string{"a", "b"} {
		r, err := reg.GetOrCreate(ctx, doc, "owner-"+doc)
		require.NoError(t, err)
		sender := newFakeSender("c-" + doc)
		r.Join(sender, "u1", storage.PermissionEditor, "U", "#000", 0, presence.SelectionRange{}, 1000)
		update, err := r.replica.InsertText(0, "edit "+doc)
		require.NoError(t, err)
		r.ApplyUpdate(sender.ID(), update)
	}

	reg.FlushAll(ctx)

	assert.Len(t, durable.Versions("a"), 1)
	assert.Len(t, durable.Versions("b"), 1)
}
