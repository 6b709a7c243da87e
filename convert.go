//go:build windows

package etw

import (
	"math"
	"time"

	"golang.org/x/sys/windows"

	"github.com/etwkit/tracekit/internal/winapi"
)

// headerFromWinapi translates the kernel's EVENT_HEADER into the core's
// EventHeader, grounded on bi-zone-etw's eventHeaderToGo. Timestamp
// conversion follows the teacher's stampToTime exactly (FILETIME split into
// high/low dwords, then windows.Filetime.Nanoseconds()).
func headerFromWinapi(h winapi.EventHeader) EventHeader {
	out := EventHeader{
		Flags:     h.Flags,
		ThreadID:  h.ThreadID,
		ProcessID: h.ProcessID,
		TimeStamp: stampToTime(h.TimeStamp),
		ProviderID: h.ProviderID,
		EventDescriptor: EventDescriptor{
			ID:      h.EventDescriptor.ID,
			Version: h.EventDescriptor.Version,
			Channel: h.EventDescriptor.Channel,
			Level:   h.EventDescriptor.Level,
			Opcode:  h.EventDescriptor.Opcode,
			Task:    h.EventDescriptor.Task,
			Keyword: h.EventDescriptor.Keyword,
		},
		ActivityID: h.ActivityID,
	}
	if h.Flags&EventHeaderFlagProcessorTime != 0 {
		out.ProcessorTime = h.ProcessorTime()
	} else {
		out.KernelTime = h.KernelTime()
		out.UserTime = h.UserTime()
	}
	return out
}

// stampToTime translates a FILETIME quad part into a Go time, same
// approach as bi-zone-etw's stampToTime.
func stampToTime(quadPart int64) time.Time {
	ft := windows.Filetime{
		HighDateTime: uint32(quadPart >> 32),
		LowDateTime:  uint32(quadPart & math.MaxUint32),
	}
	return time.Unix(0, ft.Nanoseconds())
}

// NewRawEventRecord builds a RawEventRecord from a live kernel EVENT_RECORD.
// The returned value still aliases kernel memory (UserData) and extended
// pointers derived from it; callers that need to retain it past the
// consumer callback MUST call CopyRawEventRecord on the result first, per
// spec.md §3's Raw Event Record lifetime note.
func NewRawEventRecord(record *winapi.EventRecord) RawEventRecord {
	var userData []byte
	if record.UserDataLength > 0 {
		userData = unsafeUserData(record)
	}
	return RawEventRecord{
		Header:       headerFromWinapi(record.EventHeader),
		ProcessorID:  record.BufferContext.ProcessorNumber,
		LoggerID:     record.BufferContext.LoggerID,
		UserData:     userData,
		ExtendedInfo: ParseExtendedEventInfo(record),
	}
}
