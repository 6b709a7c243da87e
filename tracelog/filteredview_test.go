//go:build windows

package tracelog

import (
	"testing"

	"github.com/stretchr/testify/require"

	etw "github.com/etwkit/tracekit"
	"github.com/etwkit/tracekit/eventinfocache"
)

func TestFilteredViewNoPredicateMatchesAll(t *testing.T) {
	l := newTestLog(t)
	l.pushDirect(Event{Raw: etw.RawEventRecord{Header: etw.EventHeader{ProcessID: 1}}})
	l.pushDirect(Event{Raw: etw.RawEventRecord{Header: etw.EventHeader{ProcessID: 2}}})

	v := NewFilteredView(l)
	require.Equal(t, 2, v.Count())
}

func TestFilteredViewNarrowsByPredicate(t *testing.T) {
	l := newTestLog(t)
	l.pushDirect(Event{Raw: etw.RawEventRecord{Header: etw.EventHeader{ProcessID: 1}}})
	l.pushDirect(Event{Raw: etw.RawEventRecord{Header: etw.EventHeader{ProcessID: 2}}})
	l.pushDirect(Event{Raw: etw.RawEventRecord{Header: etw.EventHeader{ProcessID: 2}}})

	v := NewFilteredView(l)
	v.SetFilter(func(raw etw.RawEventRecord, _ *eventinfocache.Schema) bool {
		return raw.Header.ProcessID == 2
	})

	require.Equal(t, 2, v.Count())
	ev, ok := v.Get(0)
	require.True(t, ok)
	require.EqualValues(t, 2, ev.Raw.Header.ProcessID)
}

func TestFilteredViewRefreshPicksUpNewAppends(t *testing.T) {
	l := newTestLog(t)
	v := NewFilteredView(l)
	require.Equal(t, 0, v.Count())

	l.OnChanged(v.Refresh)
	l.pushDirect(Event{Raw: etw.RawEventRecord{}})
	require.Equal(t, 1, v.Count())
}
