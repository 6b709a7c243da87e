//go:build windows

package winapi

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// This file implements the "offset + index*stride" helpers spec.md's
// Design Notes calls for instead of inheritance, for every variable-sized
// structure this module touches: TRACE_EVENT_INFO's property array,
// EVENT_MAP_INFO's entry array, the session-properties blob, the event-id
// filter payload, and extended-data stack traces.

const traceEventInfoSize = unsafe.Sizeof(TraceEventInfo{})
const eventPropertyInfoSize = unsafe.Sizeof(EventPropertyInfo{})

// PropertyInfoAt returns the i-th EVENT_PROPERTY_INFO from a TRACE_EVENT_INFO
// buffer, reading the fixed header at offset 0 and the trailing array at
// traceEventInfoSize + i*sizeof(EVENT_PROPERTY_INFO).
func PropertyInfoAt(buf []byte, i int) *EventPropertyInfo {
	off := traceEventInfoSize + uintptr(i)*eventPropertyInfoSize
	return (*EventPropertyInfo)(unsafe.Pointer(&buf[off]))
}

// StringAt reads a zero-terminated UTF-16 string at a byte offset into buf,
// as used for TRACE_EVENT_INFO name offsets and EVENT_MAP_INFO name/value
// offsets. Returns "" for a zero offset (meaning "absent").
func StringAt(buf []byte, offset uint32) string {
	if offset == 0 || int(offset) >= len(buf) {
		return ""
	}
	u16 := (*[1 << 28]uint16)(unsafe.Pointer(&buf[offset]))
	length := 0
	for u16[length] != 0 {
		length++
	}
	return windows.UTF16ToString(u16[:length:length])
}

// StringPtrAt returns a raw *uint16 into buf at offset, or nil for a zero
// offset, for callers (TdhGetEventMapInformation) that need the pointer
// itself rather than a decoded Go string.
func StringPtrAt(buf []byte, offset uint32) *uint16 {
	if offset == 0 || int(offset) >= len(buf) {
		return nil
	}
	return (*uint16)(unsafe.Pointer(&buf[offset]))
}

const eventMapInfoSize = unsafe.Sizeof(EventMapInfo{})
const eventMapEntrySize = unsafe.Sizeof(EventMapEntry{})

// MapEntryAt returns the i-th EVENT_MAP_ENTRY trailing an EVENT_MAP_INFO
// buffer.
func MapEntryAt(buf []byte, i int) *EventMapEntry {
	off := eventMapInfoSize + uintptr(i)*eventMapEntrySize
	return (*EventMapEntry)(unsafe.Pointer(&buf[off]))
}

const traceProviderInfoSize = unsafe.Sizeof(TraceProviderInfo{})
const providerEnumerationInfoSize = unsafe.Sizeof(ProviderEnumerationInfo{})

// TraceProviderInfoAt returns the i-th TRACE_PROVIDER_INFO trailing a
// PROVIDER_ENUMERATION_INFO buffer.
func TraceProviderInfoAt(buf []byte, i int) *TraceProviderInfo {
	off := providerEnumerationInfoSize + uintptr(i)*traceProviderInfoSize
	return (*TraceProviderInfo)(unsafe.Pointer(&buf[off]))
}

const eventTracePropertiesSize = unsafe.Sizeof(EventTraceProperties{})

// BuildSessionPropertiesBlob allocates and populates the variable-sized
// "session control blob" described in spec.md §4.5/§6: a fixed
// EVENT_TRACE_PROPERTIES header followed by the zero-terminated session
// name and, if non-empty, the zero-terminated log file path. Offsets are
// recorded in the header as LoggerNameOffset/LogFileNameOffset.
func BuildSessionPropertiesBlob(sessionGUID windows.GUID, bufferSizeKB, minBuffers, maxBuffers uint32,
	clockResolution ClockResolution, flushTimerSeconds uint32, logFileMode uint32,
	sessionName, logFileName string) ([]byte, error) {

	nameUTF16, err := windows.UTF16FromString(sessionName)
	if err != nil {
		return nil, err
	}
	var fileUTF16 []uint16
	if logFileName != "" {
		fileUTF16, err = windows.UTF16FromString(logFileName)
		if err != nil {
			return nil, err
		}
	}

	nameBytes := len(nameUTF16) * 2
	fileBytes := len(fileUTF16) * 2
	total := int(eventTracePropertiesSize) + nameBytes + fileBytes

	buf := make([]byte, total)
	hdr := (*EventTraceProperties)(unsafe.Pointer(&buf[0]))
	hdr.Wnode.BufferSize = uint32(total)
	hdr.Wnode.Guid = sessionGUID
	hdr.Wnode.ClientContext = uint32(clockResolution)
	hdr.Wnode.Flags = WnodeFlagTracedGUID
	hdr.BufferSize = bufferSizeKB
	hdr.MinimumBuffers = minBuffers
	hdr.MaximumBuffers = maxBuffers
	hdr.LogFileMode = logFileMode
	hdr.FlushTimer = flushTimerSeconds
	hdr.LoggerNameOffset = uint32(eventTracePropertiesSize)

	nameDst := (*[1 << 28]uint16)(unsafe.Pointer(&buf[hdr.LoggerNameOffset]))[: len(nameUTF16) : len(nameUTF16)]
	copy(nameDst, nameUTF16)

	if fileBytes > 0 {
		hdr.LogFileNameOffset = hdr.LoggerNameOffset + uint32(nameBytes)
		fileDst := (*[1 << 28]uint16)(unsafe.Pointer(&buf[hdr.LogFileNameOffset]))[: len(fileUTF16) : len(fileUTF16)]
		copy(fileDst, fileUTF16)
	}

	return buf, nil
}

// PropertiesHeader reinterprets a session-properties blob's fixed header.
func PropertiesHeader(buf []byte) *EventTraceProperties {
	return (*EventTraceProperties)(unsafe.Pointer(&buf[0]))
}

const eventFilterEventIDHeaderSize = unsafe.Sizeof(EventFilterEventIDHeader{})

// BuildEventIDFilterPayload lays out the EVENT_FILTER_EVENT_ID structure's
// one-element-array trick from spec.md §4.5: a fixed header followed by N
// uint16 ids, with the header's Count field set to N (N may be 0).
func BuildEventIDFilterPayload(ids []uint16, filterIn bool) []byte {
	n := len(ids)
	buf := make([]byte, int(eventFilterEventIDHeaderSize)+n*2)
	hdr := (*EventFilterEventIDHeader)(unsafe.Pointer(&buf[0]))
	hdr.Count = uint16(n)
	if filterIn {
		hdr.FilterIn = 1
	}
	if n > 0 {
		dst := (*[1 << 28]uint16)(unsafe.Pointer(&buf[eventFilterEventIDHeaderSize]))[:n:n]
		copy(dst, ids)
	}
	return buf
}

// ExtendedDataItemAt returns the i-th EVENT_HEADER_EXTENDED_DATA_ITEM from
// an EVENT_RECORD's ExtendedData array.
func ExtendedDataItemAt(arrayPtr uintptr, i int) *EventHeaderExtendedDataItem {
	items := (*[1 << 16]EventHeaderExtendedDataItem)(unsafe.Pointer(arrayPtr))
	return &items[i]
}

// StackAddresses32 reads the trailing uint32 address array following an
// EVENT_EXTENDED_ITEM_STACK_TRACE32's MatchId field, sized from the
// extended-data item's DataSize per spec.md §4.3's remarks on stack trace
// extended items.
func StackAddresses32(dataPtr uintptr, dataSize uint16) []uint64 {
	const matchIDSize = 8
	count := (int(dataSize) - matchIDSize) / 4
	if count <= 0 {
		return nil
	}
	raw := (*[1 << 16]uint32)(unsafe.Pointer(dataPtr + matchIDSize))
	out := make([]uint64, count)
	for i := 0; i < count; i++ {
		out[i] = uint64(raw[i])
	}
	return out
}

// StackAddresses64 is StackAddresses32's 64-bit counterpart.
func StackAddresses64(dataPtr uintptr, dataSize uint16) []uint64 {
	const matchIDSize = 8
	count := (int(dataSize) - matchIDSize) / 8
	if count <= 0 {
		return nil
	}
	raw := (*[1 << 16]uint64)(unsafe.Pointer(dataPtr + matchIDSize))
	out := make([]uint64, count)
	copy(out, raw[:count])
	return out
}
