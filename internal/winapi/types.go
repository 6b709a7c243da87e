//go:build windows

// Package winapi mirrors the slice of the Win32 ETW/TDH ABI this module
// needs, expressed as plain Go structs instead of cgo. Field layouts follow
// evntrace.h/evntcons.h/tdh.h exactly; where the original C structure uses a
// union (LogFileMode/ProcessTraceMode, the EVENT_HEADER time union, the
// EVENT_PROPERTY_INFO type union) we store it as one fixed-width field of
// the union's size and read the active member through a conversion or an
// accessor method (KernelTime/UserTime/ProcessorTime, InType/OutType).
package winapi

import "golang.org/x/sys/windows"

// TraceHandle is a TRACEHANDLE (ULONG64), shared by session control and
// trace consumption.
type TraceHandle uint64

// InvalidProcessTraceHandle is INVALID_PROCESSTRACE_HANDLE: all bits set on
// 64-bit Windows.
const InvalidProcessTraceHandle = TraceHandle(0xFFFFFFFFFFFFFFFF)

func (h TraceHandle) IsValid() bool { return h != InvalidProcessTraceHandle }

// WnodeHeader mirrors WNODE_HEADER. KernelHandleOrTimeStamp is a single
// 8-byte slot: the C struct unions KernelHandle (HANDLE) and TimeStamp
// (LARGE_INTEGER) into one member, not two — laying them out as separate
// fields would push Guid/ClientContext/Flags 8 bytes too far and corrupt
// every offset EVENT_TRACE_PROPERTIES derives from this header.
type WnodeHeader struct {
	BufferSize               uint32
	ProviderID               uint32
	HistoricalContext        uint64 // union of Version/Linkage and HistoricalContext
	KernelHandleOrTimeStamp  uint64 // union of KernelHandle and TimeStamp
	Guid                     windows.GUID
	ClientContext            uint32
	Flags                    uint32
}

const (
	WnodeFlagTracedGUID = 0x00020000
)

// EventTraceProperties mirrors EVENT_TRACE_PROPERTIES. The session name and
// (optional) log file name are appended as zero-terminated UTF-16 strings
// immediately after this fixed header, per spec.md §4.5's "session control
// blob" description; LoggerNameOffset/LogFileNameOffset carry their byte
// offsets from the start of the whole allocation.
type EventTraceProperties struct {
	Wnode               WnodeHeader
	BufferSize          uint32
	MinimumBuffers      uint32
	MaximumBuffers      uint32
	MaximumFileSize     uint32
	LogFileMode         uint32
	FlushTimer          uint32
	EnableFlags         uint32
	AgeLimit            int32
	NumberOfBuffers     uint32
	FreeBuffers         uint32
	EventsLost          uint32
	BuffersWritten      uint32
	LogBuffersLost      uint32
	RealTimeBuffersLost uint32
	LoggerThreadID      uintptr
	LogFileNameOffset   uint32
	LoggerNameOffset    uint32
}

const (
	EventTraceControlStop = 1

	EventTraceRealTimeMode       = 0x00000100
	EventTraceStopOnHybridShutdown = 0x00400000

	ProcessTraceModeRealTime   = 0x00000100
	ProcessTraceModeRawTimestamp = 0x00001000
	ProcessTraceModeEventRecord = 0x10000000

	EventControlCodeEnableProvider  = 1
	EventControlCodeDisableProvider = 0
)

// ClockResolution selects the WNODE_HEADER.ClientContext value used when
// creating a session, per spec.md §3 Trace Properties.
type ClockResolution uint32

const (
	ClockResolutionQPC        ClockResolution = 1
	ClockResolutionSystemTime ClockResolution = 2
	ClockResolutionCpuCycles  ClockResolution = 3
)

// EnableTraceParameters mirrors ENABLE_TRACE_PARAMETERS (version 2 shape:
// no EnableFilterDesc/FilterDescCount in v1, present in v2).
type EnableTraceParameters struct {
	Version          uint32
	EnableProperty   uint32
	ControlFlags     uint32
	SourceID         windows.GUID
	EnableFilterDesc *EventFilterDescriptor
	FilterDescCount  uint32
}

const EnableTraceParametersVersion2 = 2

// EventFilterDescriptor mirrors EVENT_FILTER_DESCRIPTOR: {Ptr, Size, Type}.
type EventFilterDescriptor struct {
	Ptr  uint64
	Size uint32
	Type uint32
}

const (
	EventFilterTypePid             = 0x80000004
	EventFilterTypeExeName         = 0x80000008
	EventFilterTypeEventID         = 0x80000200
	EventFilterTypeStackwalk       = 0x80001000
	EventFilterTypeStackwalkLevelKw = 0x80004000
)

// EventFilterEventIDHeader mirrors EVENT_FILTER_EVENT_ID's fixed header; the
// Events[1] trailing array is represented separately by callers, per
// spec.md §4.5's "one-element-array trick" note.
type EventFilterEventIDHeader struct {
	FilterIn uint8
	Reserved uint8
	Count    uint16
}

// EventFilterLevelKw mirrors EVENT_FILTER_LEVEL_KW.
type EventFilterLevelKw struct {
	MatchAnyKeyword uint64
	MatchAllKeyword uint64
	Level           uint8
	FilterIn        uint8
	Reserved        [2]uint8
}

// EnableProperty flags, mirroring ns-evntrace-enable_trace_parameters.
const (
	EventEnablePropertySID              = 0x001
	EventEnablePropertyTSID             = 0x002
	EventEnablePropertyStackTrace       = 0x004
	EventEnablePropertyIgnoreKeyword0   = 0x010
	EventEnablePropertyExcludeInPrivate = 0x200
)

// EventDescriptor mirrors EVENT_DESCRIPTOR.
type EventDescriptor struct {
	ID      uint16
	Version uint8
	Channel uint8
	Level   uint8
	Opcode  uint8
	Task    uint16
	Keyword uint64
}

// EtwBufferContext mirrors ETW_BUFFER_CONTEXT.
type EtwBufferContext struct {
	ProcessorNumber uint8
	Alignment       uint8
	LoggerID        uint16
}

// EventHeader mirrors EVENT_HEADER.
type EventHeader struct {
	Size            uint16
	HeaderType      uint16
	Flags           uint16
	EventProperty   uint16
	ThreadID        uint32
	ProcessID       uint32
	TimeStamp       int64
	ProviderID      windows.GUID
	EventDescriptor EventDescriptor
	KernelTimeOrProcessorTime uint64 // union: {KernelTime,UserTime uint32,uint32} or ProcessorTime uint64
	ActivityID      windows.GUID
}

// KernelTime returns the low dword of the Kernel/User-time union.
func (h EventHeader) KernelTime() uint32 { return uint32(h.KernelTimeOrProcessorTime) }

// UserTime returns the high dword of the Kernel/User-time union.
func (h EventHeader) UserTime() uint32 { return uint32(h.KernelTimeOrProcessorTime >> 32) }

// ProcessorTime returns the union reinterpreted as a single 64-bit counter,
// valid only when EVENT_HEADER_FLAG_PROCESSOR_TIME is set.
func (h EventHeader) ProcessorTime() uint64 { return h.KernelTimeOrProcessorTime }

const (
	EventHeaderFlag32BitHeader      = 0x0020
	EventHeaderFlag64BitHeader      = 0x0040
	EventHeaderFlagStringOnly       = 0x0004
	EventHeaderFlagExtendedInfo     = 0x0001
	EventHeaderFlagProcessorTime    = 0x0200
	EventHeaderFlagNoCPUTime        = 0x0080
	EventHeaderFlagPrivateSession   = 0x0100
)

// EventHeaderExtendedDataItem mirrors EVENT_HEADER_EXTENDED_DATA_ITEM.
type EventHeaderExtendedDataItem struct {
	Reserved1 uint16
	ExtType   uint16
	Linkage   uint16
	DataSize  uint16
	DataPtr   uint64
}

const (
	EventHeaderExtTypeRelatedActivityID = 1
	EventHeaderExtTypeSID               = 2
	EventHeaderExtTypeTSID              = 3
	EventHeaderExtTypeInstanceInfo      = 4
	EventHeaderExtTypeStackTrace32      = 5
	EventHeaderExtTypeStackTrace64      = 6
	EventHeaderExtTypeEventSchemaTl     = 11
	EventHeaderExtTypeProvTraits        = 12
)

// EventExtendedItemInstance mirrors EVENT_EXTENDED_ITEM_INSTANCE.
type EventExtendedItemInstance struct {
	InstanceID       uint32
	ParentInstanceID uint32
	ParentGuid       windows.GUID
}

// EventExtendedItemStackTrace32 mirrors EVENT_EXTENDED_ITEM_STACK_TRACE32's
// fixed part; the Address[1] trailing array is read by the caller using
// DataSize from the enclosing extended-data item.
type EventExtendedItemStackTrace32 struct {
	MatchID uint64
}

// EventExtendedItemStackTrace64 mirrors EVENT_EXTENDED_ITEM_STACK_TRACE64's
// fixed part.
type EventExtendedItemStackTrace64 struct {
	MatchID uint64
}

// EventRecord mirrors EVENT_RECORD as delivered to the consumer callback.
// This structure, and everything it points to, is only valid for the
// duration of the callback — see spec.md §3 "Raw Event Record".
type EventRecord struct {
	EventHeader       EventHeader
	BufferContext     EtwBufferContext
	ExtendedDataCount uint16
	UserDataLength    uint16
	ExtendedData      uintptr // *EventHeaderExtendedDataItem array
	UserData          uintptr
	UserContext       uintptr
}

// EventTraceLogfile mirrors EVENT_TRACE_LOGFILEW for OpenTraceW. LogFileMode
// and EventCallback are unions in the original struct; each is laid out as
// one field of the union's size, and the processor package writes the
// active member (ProcessTraceMode, EventRecordCallback) through it, so the
// struct's memory layout still matches the C ABI.
type EventTraceLogfile struct {
	LogFileName   *uint16
	LoggerName    *uint16
	CurrentTime   int64
	BuffersRead   uint32
	LogFileMode   uint32 // also covers the union's ProcessTraceMode reading
	CurrentEvent  [88]byte // legacy EVENT_TRACE (88 bytes on 64-bit), unused in EVENT_RECORD mode
	LogfileHeader TraceLogfileHeader
	BufferCallback uintptr
	BufferSize     uint32
	Filled         uint32
	EventsLost     uint32
	EventCallback  uintptr // union with EventRecordCallback when ProcessTraceModeEventRecord set
	IsKernelTrace  uint32
	Context        uintptr
}

// TraceLogfileHeader mirrors TRACE_LOGFILE_HEADER's fields this module
// reads (spec.md §4.6 log_file_header: start-time, PerfFreq, pointer-size).
type TraceLogfileHeader struct {
	BufferSize       uint32
	VersionUnion     uint32
	ProviderVersion  uint32
	NumberOfProcessors uint32
	EndTime          int64
	TimerResolution  uint32
	MaximumFileSize  uint32
	LogFileMode      uint32
	BuffersWritten   uint32
	StartBuffers     uint32
	PointerSize      uint32
	EventsLost       uint32
	CPUSpeedInMHz    uint32
	LoggerName       *uint16
	LogFileName      *uint16
	TimeZone         [172]byte // TIME_ZONE_INFORMATION, opaque to us
	BootTime         int64
	PerfFreq         int64
	StartTime        int64
	ReservedFlags    uint32
	BuffersLost      uint32
}

// TraceEventInfo mirrors TRACE_EVENT_INFO's fixed header. The
// EventPropertyInfoArray[1] trailing array is reached via
// PropertyInfoAt, offsets given relative to the start of this struct
// per spec.md's Design Notes on variable-sized structures.
type TraceEventInfo struct {
	ProviderGuid          windows.GUID
	EventGuid             windows.GUID
	EventDescriptor       EventDescriptor
	DecodingSource        uint32
	ProviderNameOffset    uint32
	LevelNameOffset       uint32
	ChannelNameOffset     uint32
	KeywordsNameOffset    uint32
	TaskNameOffset        uint32
	OpcodeNameOffset      uint32
	EventMessageOffset    uint32
	ProviderMessageOffset uint32
	BinaryXMLOffset       uint32
	BinaryXMLSize         uint32
	ActivityIDNameOffset  uint32
	RelatedActivityIDNameOffset uint32
	PropertyCount         uint32
	TopLevelPropertyCount uint32
	Tags                  uint32 // actually a union with FLAGS; last field before the array
}

const (
	DecodingSourceXMLFile = 0
	DecodingSourceWbem    = 1
	DecodingSourceWPP     = 2
	DecodingSourceTlg     = 3
)

// EventPropertyInfo mirrors EVENT_PROPERTY_INFO. NameOffset/count/length are
// all union members in the C struct; CountUnion/LengthUnion hold either the
// literal value or the back-reference index depending on the corresponding
// Flags bit, exactly as spec.md §3's Event Schema entity describes.
type EventPropertyInfo struct {
	Flags       uint32
	NameOffset  uint32
	InOutType   uint32 // packed {InType uint16, OutType uint16} for non-struct properties
	MapNameOffsetOrStruct uint32 // MapNameOffset for non-struct, unused for struct
	StructStartIndex      uint16 // valid when Flags&PropertyStruct
	NumOfStructMembers    uint16
	CountUnion  uint16
	LengthUnion uint16
}

const (
	PropertyStruct      = 0x1
	PropertyParamLength = 0x2
	PropertyParamCount  = 0x4
	PropertyWithMapInfo = 0x8
)

func (p EventPropertyInfo) InType() uint16  { return uint16(p.InOutType) }
func (p EventPropertyInfo) OutType() uint16 { return uint16(p.InOutType >> 16) }
func (p EventPropertyInfo) MapNameOffset() uint32 { return p.MapNameOffsetOrStruct }

// EventMapInfo mirrors EVENT_MAP_INFO's fixed header; MapEntryArray[1]
// follows immediately, read via MapEntryAt.
type EventMapInfo struct {
	NameOffset   uint32
	Flag         uint32
	EntryCount   uint32
	FormatOrMapOffset uint32 // union of MapFormat and FirstMapValueRVA/NumberOfRanges depending on Flag
}

const (
	EventmapInfoFlagManifestValuemap = 1
	EventmapInfoFlagManifestBitmap   = 2
	EventmapInfoFlagManifestPatternmap = 3
	EventmapInfoFlagWbemValuemap     = 4
	EventmapInfoFlagWbemBitmap       = 5
	EventmapInfoFlagWbemFlag         = 6
	EventmapInfoFlagWbemNoMap        = 7
)

// EventMapEntry mirrors EVENT_MAP_ENTRY.
type EventMapEntry struct {
	NameOffset uint32
	Value      uint32 // also doubles as OutputOffset for pattern maps, unused here
}

// ProviderEnumerationInfo/TraceProviderInfo mirror
// PROVIDER_ENUMERATION_INFO/TRACE_PROVIDER_INFO for TdhEnumerateProviders.
type ProviderEnumerationInfo struct {
	NumberOfProviders uint32
	Reserved          uint32
}

type TraceProviderInfo struct {
	ProviderGuid       windows.GUID
	SchemaSource       uint32
	ProviderNameOffset uint32
}

// OSVersionInfo mirrors the fields of RTL_OSVERSIONINFOW this module reads.
type OSVersionInfo struct {
	OSVersionInfoSize uint32
	MajorVersion      uint32
	MinorVersion      uint32
	BuildNumber       uint32
	PlatformID        uint32
	CSDVersion        [128]uint16
}
