//go:build windows

package processor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"

	"github.com/etwkit/tracekit/internal/winapi"
)

func TestFillStartTimeSystemTimeMode(t *testing.T) {
	logfile := &winapi.EventTraceLogfile{}
	record := &winapi.EventRecord{}

	fillStartTime(logfile, record)
	require.NotZero(t, logfile.LogfileHeader.StartTime)
}

func TestFillStartTimeRawTimestampMode(t *testing.T) {
	logfile := &winapi.EventTraceLogfile{LogFileMode: winapi.ProcessTraceModeRawTimestamp}
	record := &winapi.EventRecord{}

	fillStartTime(logfile, record)
	require.NotZero(t, logfile.LogfileHeader.StartTime)
}

func TestFillStartTimeDoesNotOverwrite(t *testing.T) {
	logfile := &winapi.EventTraceLogfile{}
	logfile.LogfileHeader.StartTime = 42

	fillStartTime(logfile, &winapi.EventRecord{})
	require.EqualValues(t, 42, logfile.LogfileHeader.StartTime)
}

func TestHandleEventFiltersSyntheticInfoEvent(t *testing.T) {
	p := New(nil, nil)
	l := &logger{name: "test", logfile: &winapi.EventTraceLogfile{}}

	var appended int
	p.SetSink(sinkFunc(func(record *winapi.EventRecord) error {
		appended++
		return nil
	}))

	record := &winapi.EventRecord{}
	record.EventHeader.ProviderID = syntheticEventTraceGUID
	record.EventHeader.EventDescriptor.Opcode = opcodeInfo

	p.handleEvent(l, record)
	require.Zero(t, appended, "synthetic EventTraceEvent info record must not reach the sink")
}

func TestHandleEventForwardsOrdinaryRecord(t *testing.T) {
	p := New(nil, nil)
	l := &logger{name: "test", logfile: &winapi.EventTraceLogfile{}}

	var got *winapi.EventRecord
	p.SetSink(sinkFunc(func(record *winapi.EventRecord) error {
		got = record
		return nil
	}))

	record := &winapi.EventRecord{}
	record.EventHeader.ProviderID = windows.GUID{Data1: 0xAABBCCDD}
	record.EventHeader.EventDescriptor.Opcode = 5

	p.handleEvent(l, record)
	require.Same(t, record, got)
}

func TestHandleEventRecoversFromSinkPanic(t *testing.T) {
	p := New(nil, nil)
	l := &logger{name: "test", logfile: &winapi.EventTraceLogfile{}}

	p.SetSink(sinkFunc(func(record *winapi.EventRecord) error {
		panic("boom")
	}))

	require.NotPanics(t, func() {
		p.handleEvent(l, &winapi.EventRecord{})
	})
}

func TestHandleEventFillsStartTimeOnce(t *testing.T) {
	p := New(nil, nil)
	l := &logger{name: "test", logfile: &winapi.EventTraceLogfile{}}
	p.SetSink(sinkFunc(func(record *winapi.EventRecord) error { return nil }))

	p.handleEvent(l, &winapi.EventRecord{})
	first := l.logfile.LogfileHeader.StartTime
	require.NotZero(t, first)

	p.handleEvent(l, &winapi.EventRecord{})
	require.Equal(t, first, l.logfile.LogfileHeader.StartTime)
}

func TestIsEndOfTracingBeforeStart(t *testing.T) {
	p := New([]string{"some-logger"}, nil)
	require.True(t, p.IsEndOfTracing(), "a processor that never started has no running pumps")
}

func TestLogFileHeaderWithNoLoggers(t *testing.T) {
	p := New(nil, nil)
	_, ok := p.LogFileHeader()
	require.False(t, ok)
}

// sinkFunc adapts a function to the Sink interface for tests.
type sinkFunc func(record *winapi.EventRecord) error

func (f sinkFunc) Append(record *winapi.EventRecord) error { return f(record) }
