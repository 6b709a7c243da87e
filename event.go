//go:build windows

package etw

import (
	"time"

	"golang.org/x/sys/windows"
)

// EventDescriptor mirrors the kernel's EVENT_DESCRIPTOR: the stable identity
// of one event within a provider.
type EventDescriptor struct {
	ID      uint16
	Version uint8
	Channel uint8
	Level   uint8
	Opcode  uint8
	Task    uint16
	Keyword uint64
}

// EventHeader is the Go projection of EVENT_HEADER.
type EventHeader struct {
	Flags           uint16
	ThreadID        uint32
	ProcessID       uint32
	TimeStamp       time.Time
	ProviderID      windows.GUID
	EventDescriptor EventDescriptor
	ActivityID      windows.GUID

	// KernelTime/UserTime are valid unless Flags carries NoCPUTime; when
	// ProcessorTime is set instead the pair collapses into that single
	// counter, matching the union EVENT_HEADER actually stores on the wire.
	KernelTime    uint32
	UserTime      uint32
	ProcessorTime uint64
}

const (
	EventHeaderFlagStringOnly    = 0x0004
	EventHeaderFlagExtendedInfo  = 0x0001
	EventHeaderFlagProcessorTime = 0x0200
	EventHeaderFlagNoCPUTime     = 0x0080
)

// HasProcessorTime reports whether ProcessorTime holds a valid combined
// counter, as opposed to the KernelTime/UserTime pair.
func (h EventHeader) HasProcessorTime() bool {
	return h.Flags&EventHeaderFlagProcessorTime != 0
}

// EventInstanceInfo mirrors EVENT_EXTENDED_ITEM_INSTANCE: correlates related
// instances of the same event for providers that use InstanceId logging.
type EventInstanceInfo struct {
	InstanceID       uint32
	ParentInstanceID uint32
	ParentGUID       windows.GUID
}

// EventStackTrace mirrors the decoded form of EVENT_EXTENDED_ITEM_STACK_TRACE32/64:
// a captured call stack, oldest frame first, with the matching ID the
// kernel uses to correlate the stack with its originating event.
type EventStackTrace struct {
	MatchID   uint64
	Addresses []uint64
}

// ExtendedEventInfo holds the optional extended-data items a record may
// carry, decoded from the raw EVENT_HEADER_EXTENDED_DATA_ITEM array.
type ExtendedEventInfo struct {
	RelatedActivityID *windows.GUID
	SID               *windows.SID
	TerminalSessionID *uint32
	Instance          *EventInstanceInfo
	Stack             *EventStackTrace
}

// RawEventRecord is the core's owned copy of a kernel-delivered EVENT_RECORD.
// The kernel's own structure, and everything it points to, is valid only
// for the duration of the consumer callback; the core deep-copies it before
// enqueueing, per spec.md §3's Raw Event Record entity.
//
// UserContext is deliberately omitted: the original record's user_context
// pointer referenced the consumer-side session/logger that delivered the
// event, and keeping it across the copy would dangle once that logger's
// goroutine exits — see spec.md §4.4's copy requirement.
type RawEventRecord struct {
	Header       EventHeader
	ProcessorID  uint8
	LoggerID     uint16
	UserData     []byte
	ExtendedInfo ExtendedEventInfo
}

// CopyRawEventRecord deep-copies src into a new RawEventRecord suitable for
// long-lived storage in a Trace Log arena. The extended-info pointer fields
// are themselves copied, not aliased.
func CopyRawEventRecord(src RawEventRecord) RawEventRecord {
	dst := src
	if src.UserData != nil {
		dst.UserData = append([]byte(nil), src.UserData...)
	}
	if src.ExtendedInfo.RelatedActivityID != nil {
		g := *src.ExtendedInfo.RelatedActivityID
		dst.ExtendedInfo.RelatedActivityID = &g
	}
	if src.ExtendedInfo.SID != nil {
		if copied, err := src.ExtendedInfo.SID.Copy(); err == nil {
			dst.ExtendedInfo.SID = copied
		}
	}
	if src.ExtendedInfo.TerminalSessionID != nil {
		v := *src.ExtendedInfo.TerminalSessionID
		dst.ExtendedInfo.TerminalSessionID = &v
	}
	if src.ExtendedInfo.Instance != nil {
		inst := *src.ExtendedInfo.Instance
		dst.ExtendedInfo.Instance = &inst
	}
	if src.ExtendedInfo.Stack != nil {
		st := EventStackTrace{MatchID: src.ExtendedInfo.Stack.MatchID}
		st.Addresses = append([]uint64(nil), src.ExtendedInfo.Stack.Addresses...)
		dst.ExtendedInfo.Stack = &st
	}
	return dst
}
