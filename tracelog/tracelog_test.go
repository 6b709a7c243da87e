//go:build windows

package tracelog

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	etw "github.com/etwkit/tracekit"
	"github.com/etwkit/tracekit/eventinfocache"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	cache, err := eventinfocache.New(eventinfocache.DefaultCapacity)
	require.NoError(t, err)
	return New(cache, nil, 8)
}

// pushDirect appends an event bypassing the real TDH/kernel path, for
// whitebox tests that only exercise the log's own bookkeeping.
func (l *Log) pushDirect(ev Event) int {
	l.mu.Lock()
	l.events = append(l.events, ev)
	count := len(l.events)
	l.mu.Unlock()
	l.notify(count)
	return count
}

func TestAppendBumpsCountAndNotifies(t *testing.T) {
	l := newTestLog(t)

	var notified int32
	l.OnChanged(func(count int) { atomic.StoreInt32(&notified, int32(count)) })

	l.pushDirect(Event{Raw: etw.RawEventRecord{}})
	require.Equal(t, 1, l.Count())
	require.EqualValues(t, 1, atomic.LoadInt32(&notified))

	l.pushDirect(Event{Raw: etw.RawEventRecord{}})
	require.Equal(t, 2, l.Count())
	require.EqualValues(t, 2, atomic.LoadInt32(&notified))
}

func TestGetOutOfRange(t *testing.T) {
	l := newTestLog(t)
	_, ok := l.Get(0)
	require.False(t, ok)
}

func TestClearResetsCountAndNotifies(t *testing.T) {
	l := newTestLog(t)
	l.pushDirect(Event{})
	l.pushDirect(Event{})

	var notified int32 = -1
	l.OnChanged(func(count int) { atomic.StoreInt32(&notified, int32(count)) })

	l.Clear()
	require.Equal(t, 0, l.Count())
	require.EqualValues(t, 0, atomic.LoadInt32(&notified))
}
