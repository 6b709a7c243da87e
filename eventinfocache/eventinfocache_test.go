//go:build windows

package eventinfocache

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"

	"github.com/etwkit/tracekit/internal/winapi"
)

func TestCacheMissThenHit(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	key := Key{ProviderID: windows.GUID{Data1: 1}, EventID: 10}
	_, ok := c.Get(key)
	require.False(t, ok)

	schema := &Schema{Buffer: []byte{1, 2, 3}, Info: &winapi.TraceEventInfo{}}
	c.Put(key, schema)

	got, ok := c.Get(key)
	require.True(t, ok)
	require.Same(t, schema, got)
}

func TestCacheEvictsLRU(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	k1 := Key{EventID: 1}
	k2 := Key{EventID: 2}
	k3 := Key{EventID: 3}

	c.Put(k1, &Schema{})
	c.Put(k2, &Schema{})
	// touch k1 so it becomes MRU, k2 becomes LRU
	c.Get(k1)
	c.Put(k3, &Schema{})

	_, ok := c.Get(k2)
	require.False(t, ok, "k2 should have been evicted as least recently used")

	_, ok = c.Get(k1)
	require.True(t, ok)
	_, ok = c.Get(k3)
	require.True(t, ok)
}

func TestKeyForRecordDistinguishesTraceLoggingBlobs(t *testing.T) {
	providerID := windows.GUID{Data1: 7}
	k1 := KeyForRecord(providerID, 5, true, []byte("schema-a"))
	k2 := KeyForRecord(providerID, 5, true, []byte("schema-b"))
	require.NotEqual(t, k1, k2)

	classic := KeyForRecord(providerID, 5, false, nil)
	require.Equal(t, Key{ProviderID: providerID, EventID: 5}, classic)
}

func TestClearDropsEverything(t *testing.T) {
	c, err := New(DefaultCapacity)
	require.NoError(t, err)
	c.Put(Key{EventID: 1}, &Schema{})
	require.Equal(t, 1, c.Len())
	c.Clear()
	require.Equal(t, 0, c.Len())
}
