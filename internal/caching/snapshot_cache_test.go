package caching

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSnapshotCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewSnapshotCache("redis://" + mr.Addr())
	require.NoError(t, err)
	return c, mr
}

func TestSnapshotCache_SetGetRoundTrip(t *testing.T) {
	c, _ := newTestSnapshotCache(t)
	require.True(t, c.Ready())

	ok := c.Set(context.Background(), "doc1", []byte("state-bytes"))
	require.True(t, ok)

	got, ok := c.Get(context.Background(), "doc1")
	require.True(t, ok)
	assert.Equal(t, []byte("state-bytes"), got)
}

func TestSnapshotCache_MissReturnsFalse(t *testing.T) {
	c, _ := newTestSnapshotCache(t)
	_, ok := c.Get(context.Background(), "never-written")
	assert.False(t, ok)
}

func TestSnapshotCache_OutageFlipsReadyOff(t *testing.T) {
	c, mr := newTestSnapshotCache(t)
	mr.Close()

	ok := c.Set(context.Background(), "doc1", []byte("x"))
	assert.False(t, ok)
	assert.False(t, c.Ready())
}

func TestSnapshotCache_ProbeRecoversReady(t *testing.T) {
	c, mr := newTestSnapshotCache(t)
	addr := mr.Addr()
	mr.Close()
	c.Set(context.Background(), "doc1", []byte("x"))
	assert.False(t, c.Ready())

	mr2 := miniredis.NewMiniRedis()
	require.NoError(t, mr2.StartAddr(addr))
	defer mr2.Close()

	c.Probe(context.Background())
	assert.True(t, c.Ready())
}
