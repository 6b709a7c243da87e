//go:build windows

package session

import (
	etw "github.com/etwkit/tracekit"
	"github.com/etwkit/tracekit/internal/winapi"
)

func clockResolutionToWinapi(c etw.ClockResolution) winapi.ClockResolution {
	switch c {
	case etw.ClockResolutionSystemTime:
		return winapi.ClockResolutionSystemTime
	case etw.ClockResolutionCPUCycles:
		return winapi.ClockResolutionCpuCycles
	default:
		return winapi.ClockResolutionQPC
	}
}

// buildPropertiesBlob assembles the kernel session-properties blob, per
// spec.md §4.5: real-time mode plus stop-on-hybrid-shutdown, the flush
// timer resolved from TraceProperties.FlushPeriod, and the session name /
// log file name trailing strings.
func buildPropertiesBlob(sessionName string, props etw.TraceProperties) ([]byte, error) {
	const logFileMode = winapi.EventTraceRealTimeMode | winapi.EventTraceStopOnHybridShutdown

	return winapi.BuildSessionPropertiesBlob(
		props.SessionGUID,
		props.BufferSizeKB,
		props.MinimumBuffers,
		props.MaximumBuffers,
		clockResolutionToWinapi(props.ClockResolution),
		props.FlushTimerSeconds(),
		logFileMode,
		sessionName,
		props.LogFileName,
	)
}
