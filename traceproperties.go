//go:build windows

package etw

import (
	"time"

	"golang.org/x/sys/windows"
)

// ClockResolution selects the timestamp source EVENT_HEADER.TimeStamp uses
// for every record the session delivers.
type ClockResolution int

const (
	ClockResolutionQPC ClockResolution = iota
	ClockResolutionSystemTime
	ClockResolutionCPUCycles
)

// DefaultFlushPeriod is the engine default applied when TraceProperties.FlushPeriod
// is the zero value, per spec.md §3.
const DefaultFlushPeriod = time.Second

// TraceProperties configures the kernel session itself, as opposed to any
// one provider enabled on it. Once a session is started these are frozen
// except via stop+restart — spec.md §3's Trace Properties invariant.
type TraceProperties struct {
	SessionGUID windows.GUID

	BufferSizeKB    uint32
	MinimumBuffers  uint32
	MaximumBuffers  uint32

	// FlushPeriod of 0 means the engine default of 1s. Whole-second values
	// use the kernel's built-in flush timer; sub-second values disable it
	// and require the controller to drive flush() from a user-space timer.
	FlushPeriod time.Duration

	ClockResolution ClockResolution

	LogFileName string
}

// UsesBuiltinFlushTimer reports whether FlushPeriod can be expressed in the
// kernel's own timer field, per spec.md §4.5's flush-period handling.
func (p TraceProperties) UsesBuiltinFlushTimer() bool {
	if p.FlushPeriod == 0 {
		return true
	}
	return p.FlushPeriod%time.Second == 0
}

// FlushTimerSeconds returns the value to store in the kernel structure's
// timer field: the effective period in whole seconds, or 0 when a
// sub-second period requires a user-space timer instead.
func (p TraceProperties) FlushTimerSeconds() uint32 {
	switch {
	case p.FlushPeriod == 0:
		return uint32(DefaultFlushPeriod / time.Second)
	case p.FlushPeriod%time.Second == 0:
		return uint32(p.FlushPeriod / time.Second)
	default:
		return 0
	}
}

// EffectiveFlushPeriod returns the period the controller should actually
// schedule, resolving the "0 means default" rule.
func (p TraceProperties) EffectiveFlushPeriod() time.Duration {
	if p.FlushPeriod == 0 {
		return DefaultFlushPeriod
	}
	return p.FlushPeriod
}
