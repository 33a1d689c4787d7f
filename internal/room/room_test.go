package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanvirul-I/Collab-Notes/internal/crdt"
	"github.com/Tanvirul-I/Collab-Notes/internal/metrics"
	"github.com/Tanvirul-I/Collab-Notes/internal/presence"
	"github.com/Tanvirul-I/Collab-Notes/internal/proto"
	"github.com/Tanvirul-I/Collab-Notes/internal/snapshot"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage/storagetest"
)

// fakeSender is an in-memory Sender recording every frame it received.
type fakeSender struct {
	id     string
	mu     sync.Mutex
	frames []any
	closed bool
}

func newFakeSender(id string) *fakeSender { return &fakeSender{id: id} }

func (f *fakeSender) ID() string { return f.id }

func (f *fakeSender) Send(frame any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) last() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil
	}
	return f.frames[len(f.frames)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	store := snapshot.New(nil, storagetest.New(), 5*time.Second, nil)
	r, err := New(context.Background(), "doc1", "owner1", store, metrics.NewCollector(), Config{
		DebounceCache:   time.Second,
		DebounceDurable: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return r
}

func TestJoin_SendsDocSyncFirst(t *testing.T) {
	r := newTestRoom(t)
	sender := newFakeSender("c1")

	r.Join(sender, "u1", storage.PermissionEditor, "Alice", "#fff", 0, presence.SelectionRange{}, 1000)

	require.Equal(t, 2, sender.count(), "expected doc_sync then presence_update")
	sync, ok := sender.frames[0].(proto.DocSync)
	require.True(t, ok, "first frame must be doc_sync")
	assert.Equal(t, proto.TypeDocSync, sync.Type)
}

func TestViewerUpdateIsRefused(t *testing.T) {
	r := newTestRoom(t)
	viewer := newFakeSender("v1")
	editor := newFakeSender("e1")

	r.Join(viewer, "uv", storage.PermissionViewer, "V", "#000", 0, presence.SelectionRange{}, 1000)
	r.Join(editor, "ue", storage.PermissionEditor, "E", "#000", 0, presence.SelectionRange{}, 1000)

	before, err := r.replica.EncodeState()
	require.NoError(t, err)

	// Build the attempted update on an independent replica so exercising
	// it through the viewer's ApplyUpdate call is the only place it ever
	// touches the Room's shared CRDT.
	foreign := crdt.New("other-site")
	update, err := foreign.InsertText(0, "should not apply")
	require.NoError(t, err)

	editorFrameCountBefore := editor.count()

	r.ApplyUpdate(viewer.ID(), update)

	last := viewer.last()
	errFrame, ok := last.(proto.ErrorFrame)
	require.True(t, ok)
	assert.Equal(t, proto.MsgReadOnlyAccess, errFrame.Message)

	assert.Equal(t, editorFrameCountBefore, editor.count(), "viewer update must not broadcast")

	after, err := r.replica.EncodeState()
	require.NoError(t, err)
	assert.Equal(t, before, after, "viewer update must not change the Room's CRDT")
}

func TestApplyUpdate_BroadcastsToOthersNotSender(t *testing.T) {
	r := newTestRoom(t)
	a := newFakeSender("a")
	b := newFakeSender("b")
	r.Join(a, "ua", storage.PermissionEditor, "A", "#000", 0, presence.SelectionRange{}, 1000)
	r.Join(b, "ub", storage.PermissionEditor, "B", "#000", 0, presence.SelectionRange{}, 1000)

	bFramesBefore := b.count()
	aFramesBefore := a.count()

	update, err := r.replica.InsertText(0, "hi")
	require.NoError(t, err)
	r.ApplyUpdate(a.ID(), update)

	assert.Equal(t, bFramesBefore+1, b.count(), "peer must receive the broadcast")
	assert.Equal(t, aFramesBefore, a.count(), "sender must not receive its own broadcast")

	last, ok := b.last().(proto.YjsUpdate)
	require.True(t, ok)
	assert.Equal(t, update, last.Update)
}

func TestConvergence_ConcurrentInserts(t *testing.T) {
	// Two independent replicas concurrently insert text at position 0,
	// as if relayed through two Rooms' ApplyUpdate paths; once each has
	// applied the other's update, both must encode identical state.
	a := crdt.New("siteA")
	b := crdt.New("siteB")

	updA, err := a.InsertText(0, "Hello from A. ")
	require.NoError(t, err)
	updB, err := b.InsertText(0, "And B adds this. ")
	require.NoError(t, err)

	require.NoError(t, a.ApplyUpdate(updB))
	require.NoError(t, b.ApplyUpdate(updA))

	stateA, err := a.EncodeState()
	require.NoError(t, err)
	stateB, err := b.EncodeState()
	require.NoError(t, err)

	assert.Equal(t, stateA, stateB, "replicas must converge to byte-identical state")
	assert.Contains(t, a.Content(), "Hello from A.")
	assert.Contains(t, a.Content(), "And B adds this.")
	assert.Equal(t, a.Content(), b.Content())
}

func TestPresenceDedup_UniqueUserIDs(t *testing.T) {
	r := newTestRoom(t)
	tab1 := newFakeSender("tab1")
	tab2 := newFakeSender("tab2")

	r.Join(tab1, "same-user", storage.PermissionEditor, "Dup", "#000", 0, presence.SelectionRange{}, 1000)
	r.Join(tab2, "same-user", storage.PermissionEditor, "Dup", "#000", 0, presence.SelectionRange{}, 2000)

	last, ok := tab1.last().(proto.PresenceUpdate)
	require.True(t, ok)

	seen := map[string]bool{}
	for _, u := range last.Users {
		assert.False(t, seen[u.UserID], "userId must appear at most once")
		seen[u.UserID] = true
	}
}

func TestHeartbeatEviction_RemovesStaleMember(t *testing.T) {
	r := newTestRoom(t)
	stale := newFakeSender("stale")
	fresh := newFakeSender("fresh")

	r.Join(stale, "us", storage.PermissionEditor, "S", "#000", 0, presence.SelectionRange{}, 0)
	r.Join(fresh, "uf", storage.PermissionEditor, "F", "#000", 0, presence.SelectionRange{}, 20000)

	r.EvictStale(10000)

	assert.Equal(t, 1, r.MemberCount())
	assert.True(t, stale.closed, "stale connection must be force-closed")
	assert.False(t, fresh.closed)
}

func TestRoomGC_EmptyAfterLastLeave(t *testing.T) {
	r := newTestRoom(t)
	sender := newFakeSender("only")
	r.Join(sender, "u1", storage.PermissionEditor, "U", "#000", 0, presence.SelectionRange{}, 1000)
	assert.Equal(t, 1, r.MemberCount())

	r.Leave(sender.ID())
	assert.Equal(t, 0, r.MemberCount())
	assert.False(t, r.PersistPending(), "no edits were made, nothing to flush")
}

func TestApplyUpdate_RecordsOperationMetric(t *testing.T) {
	r := newTestRoom(t)
	sender := newFakeSender("c")
	r.Join(sender, "u1", storage.PermissionEditor, "U", "#000", 0, presence.SelectionRange{}, 1000)

	update, err := r.replica.InsertText(0, "x")
	require.NoError(t, err)
	r.ApplyUpdate(sender.ID(), update)

	snap := r.metrics.Snapshot()
	assert.Equal(t, 1, snap.OpsPerMinute)
}

func TestApplyUpdate_CorruptBytesAreDroppedNotFatal(t *testing.T) {
	r := newTestRoom(t)
	sender := newFakeSender("c")
	r.Join(sender, "u1", storage.PermissionEditor, "U", "#000", 0, presence.SelectionRange{}, 1000)

	before, err := r.replica.EncodeState()
	require.NoError(t, err)

	r.ApplyUpdate(sender.ID(), []byte("not json"))

	after, err := r.replica.EncodeState()
	require.NoError(t, err)
	var beforeNodes, afterNodes []json.RawMessage
	require.NoError(t, json.Unmarshal(before, &beforeNodes))
	require.NoError(t, json.Unmarshal(after, &afterNodes))
	assert.Equal(t, len(beforeNodes), len(afterNodes))
}
