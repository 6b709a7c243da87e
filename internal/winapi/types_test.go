//go:build windows

package winapi

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// TestWnodeHeaderLayoutMatchesWnodeHeaderABI locks in WNODE_HEADER's real
// layout: BufferSize/ProviderId (4 bytes each), then two 8-byte unions
// (HistoricalContext, KernelHandle/TimeStamp), then Guid/ClientContext/Flags.
// A stray extra field here silently shifts every EVENT_TRACE_PROPERTIES
// offset StartTraceW reads.
func TestWnodeHeaderLayoutMatchesWnodeHeaderABI(t *testing.T) {
	var w WnodeHeader
	require.EqualValues(t, 0, unsafe.Offsetof(w.BufferSize))
	require.EqualValues(t, 4, unsafe.Offsetof(w.ProviderID))
	require.EqualValues(t, 8, unsafe.Offsetof(w.HistoricalContext))
	require.EqualValues(t, 16, unsafe.Offsetof(w.KernelHandleOrTimeStamp))
	require.EqualValues(t, 24, unsafe.Offsetof(w.Guid))
}

// TestEventFilterEventIDHeaderLayoutMatchesABI locks in
// EVENT_FILTER_EVENT_ID's real layout: FilterIn and Reserved are each one
// byte, so Count lands at offset 2, not 4.
func TestEventFilterEventIDHeaderLayoutMatchesABI(t *testing.T) {
	var h EventFilterEventIDHeader
	require.EqualValues(t, 0, unsafe.Offsetof(h.FilterIn))
	require.EqualValues(t, 1, unsafe.Offsetof(h.Reserved))
	require.EqualValues(t, 2, unsafe.Offsetof(h.Count))
	require.EqualValues(t, 4, unsafe.Sizeof(h))
}
