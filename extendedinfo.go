//go:build windows

package etw

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/etwkit/tracekit/internal/winapi"
)

// ParseExtendedEventInfo walks a raw EVENT_RECORD's extended-data array and
// decodes the items the core understands. It is grounded on bi-zone-etw's
// event.go parseExtendedInfo, translated from cgo pointer casts to
// unsafe.Pointer arithmetic over the plain-Go EventRecord mirror.
func ParseExtendedEventInfo(record *winapi.EventRecord) ExtendedEventInfo {
	var info ExtendedEventInfo
	if record.EventHeader.Flags&winapi.EventHeaderFlagExtendedInfo == 0 {
		return info
	}

	for i := 0; i < int(record.ExtendedDataCount); i++ {
		item := winapi.ExtendedDataItemAt(record.ExtendedData, i)
		dataPtr := uintptr(item.DataPtr)

		switch item.ExtType {
		case winapi.EventHeaderExtTypeRelatedActivityID:
			g := *(*windows.GUID)(unsafe.Pointer(dataPtr))
			info.RelatedActivityID = &g

		case winapi.EventHeaderExtTypeSID:
			sid := (*windows.SID)(unsafe.Pointer(dataPtr))
			if copied, err := sid.Copy(); err == nil {
				info.SID = copied
			}

		case winapi.EventHeaderExtTypeTSID:
			v := *(*uint32)(unsafe.Pointer(dataPtr))
			info.TerminalSessionID = &v

		case winapi.EventHeaderExtTypeInstanceInfo:
			raw := (*winapi.EventExtendedItemInstance)(unsafe.Pointer(dataPtr))
			info.Instance = &EventInstanceInfo{
				InstanceID:       raw.InstanceID,
				ParentInstanceID: raw.ParentInstanceID,
				ParentGUID:       raw.ParentGuid,
			}

		case winapi.EventHeaderExtTypeStackTrace32:
			stack := (*winapi.EventExtendedItemStackTrace32)(unsafe.Pointer(dataPtr))
			addrs := winapi.StackAddresses32(dataPtr, item.DataSize)
			info.Stack = &EventStackTrace{MatchID: stack.MatchID, Addresses: addrs}

		case winapi.EventHeaderExtTypeStackTrace64:
			stack := (*winapi.EventExtendedItemStackTrace64)(unsafe.Pointer(dataPtr))
			addrs := winapi.StackAddresses64(dataPtr, item.DataSize)
			info.Stack = &EventStackTrace{MatchID: stack.MatchID, Addresses: addrs}

			// EVENT_HEADER_EXT_TYPE_SCHEMA_TL is consumed directly by
			// eventinfocache.KeyForRecord instead of surfaced here;
			// PSM_KEY/EVENT_KEY/PROCESS_START_KEY/PEBS_INDEX/PMC_COUNTERS
			// have no consumer in this module.
		}
	}
	return info
}

// TraceLoggingBlob returns the raw EVENT_HEADER_EXT_TYPE_SCHEMA_TL payload
// for a record, or nil if the record carries no embedded TraceLogging
// schema — the blob eventinfocache.KeyForRecord hashes into the cache key
// for TraceLogging events, per spec.md §4.2's key-derivation rule.
func TraceLoggingBlob(record *winapi.EventRecord) []byte {
	if record.EventHeader.Flags&winapi.EventHeaderFlagExtendedInfo == 0 {
		return nil
	}
	for i := 0; i < int(record.ExtendedDataCount); i++ {
		item := winapi.ExtendedDataItemAt(record.ExtendedData, i)
		if item.ExtType != winapi.EventHeaderExtTypeEventSchemaTl {
			continue
		}
		if item.DataSize == 0 {
			return nil
		}
		ptr := uintptr(item.DataPtr)
		src := (*[1 << 20]byte)(unsafe.Pointer(ptr))[:item.DataSize:item.DataSize]
		out := make([]byte, len(src))
		copy(out, src)
		return out
	}
	return nil
}
