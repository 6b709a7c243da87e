//go:build windows

package winapi

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// Lazy DLL bindings. advapi32.dll hosts the trace-control/consumer API,
// tdh.dll hosts the decoding API — same split the teacher's cgo headers
// linked against (`#cgo LDFLAGS: -ltdh`).
var (
	modAdvapi32 = windows.NewLazySystemDLL("advapi32.dll")
	modTdh      = windows.NewLazySystemDLL("tdh.dll")
	modKernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modNtdll    = windows.NewLazySystemDLL("ntdll.dll")

	procFormatMessageW         = modKernel32.NewProc("FormatMessageW")
	procRtlGetVersion         = modNtdll.NewProc("RtlGetVersion")
	procQueryPerformanceCounter = modKernel32.NewProc("QueryPerformanceCounter")

	procStartTraceW    = modAdvapi32.NewProc("StartTraceW")
	procControlTraceW  = modAdvapi32.NewProc("ControlTraceW")
	procEnableTraceEx2 = modAdvapi32.NewProc("EnableTraceEx2")
	procOpenTraceW     = modAdvapi32.NewProc("OpenTraceW")
	procProcessTrace   = modAdvapi32.NewProc("ProcessTrace")
	procCloseTrace     = modAdvapi32.NewProc("CloseTrace")

	procTdhGetEventInformation   = modTdh.NewProc("TdhGetEventInformation")
	procTdhFormatProperty        = modTdh.NewProc("TdhFormatProperty")
	procTdhGetEventMapInformation = modTdh.NewProc("TdhGetEventMapInformation")
	procTdhEnumerateProviders    = modTdh.NewProc("TdhEnumerateProviders")
	procTdhGetPropertySize       = modTdh.NewProc("TdhGetPropertySize")
	procTdhLoadManifest          = modTdh.NewProc("TdhLoadManifest")
	procTdhUnloadManifest        = modTdh.NewProc("TdhUnloadManifest")
)

// LoadManifest wraps TdhLoadManifest, registering a provider manifest file
// with the OS schema subsystem so TdhGetEventInformation can decode its
// events without the provider being separately enabled.
func LoadManifest(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	r0, _, _ := procTdhLoadManifest.Call(uintptr(unsafe.Pointer(p)))
	if err := windows.Errno(r0); err != windows.ERROR_SUCCESS {
		return err
	}
	return nil
}

// UnloadManifest wraps TdhUnloadManifest.
func UnloadManifest(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	r0, _, _ := procTdhUnloadManifest.Call(uintptr(unsafe.Pointer(p)))
	if err := windows.Errno(r0); err != windows.ERROR_SUCCESS {
		return err
	}
	return nil
}

// StartTrace wraps StartTraceW. propertiesBuf must be sized per
// spec.md §4.5's "session control blob" and have its BufferSize/name
// offsets already populated by the caller (session package).
func StartTrace(sessionName *uint16, propertiesBuf []byte) (TraceHandle, error) {
	var handle TraceHandle
	r0, _, _ := procStartTraceW.Call(
		uintptr(unsafe.Pointer(&handle)),
		uintptr(unsafe.Pointer(sessionName)),
		uintptr(unsafe.Pointer(&propertiesBuf[0])),
	)
	if err := windows.Errno(r0); err != windows.ERROR_SUCCESS {
		return 0, err
	}
	return handle, nil
}

// ControlTrace wraps ControlTraceW.
func ControlTrace(handle TraceHandle, sessionName *uint16, propertiesBuf []byte, controlCode uint32) error {
	var pProps uintptr
	if len(propertiesBuf) > 0 {
		pProps = uintptr(unsafe.Pointer(&propertiesBuf[0]))
	}
	r0, _, _ := procControlTraceW.Call(
		uintptr(handle),
		uintptr(unsafe.Pointer(sessionName)),
		pProps,
		uintptr(controlCode),
	)
	switch err := windows.Errno(r0); err {
	case windows.ERROR_SUCCESS, windows.ERROR_MORE_DATA:
		return nil
	default:
		return err
	}
}

// EnableTraceEx2 wraps EnableTraceEx2.
func EnableTraceEx2(handle TraceHandle, providerID *windows.GUID, controlCode uint32, level uint8,
	matchAnyKeyword, matchAllKeyword uint64, timeout uint32, params *EnableTraceParameters) error {
	r0, _, _ := procEnableTraceEx2.Call(
		uintptr(handle),
		uintptr(unsafe.Pointer(providerID)),
		uintptr(controlCode),
		uintptr(level),
		uintptr(matchAnyKeyword),
		uintptr(matchAllKeyword),
		uintptr(timeout),
		uintptr(unsafe.Pointer(params)),
	)
	if err := windows.Errno(r0); err != windows.ERROR_SUCCESS {
		return err
	}
	return nil
}

// OpenTrace wraps OpenTraceW, taking a fully populated EventTraceLogfile
// (LoggerName + LogFileMode + EventCallback already set by the caller).
func OpenTrace(logfile *EventTraceLogfile) TraceHandle {
	r0, _, _ := procOpenTraceW.Call(uintptr(unsafe.Pointer(logfile)))
	return TraceHandle(r0)
}

// ProcessTrace wraps ProcessTrace for a single handle. Blocks until the
// handle is closed or the kernel cancels processing.
func ProcessTrace(handle TraceHandle) error {
	handles := [1]TraceHandle{handle}
	r0, _, _ := procProcessTrace.Call(
		uintptr(unsafe.Pointer(&handles[0])),
		1,
		0,
		0,
	)
	switch err := windows.Errno(r0); err {
	case windows.ERROR_SUCCESS, windows.ERROR_CANCELLED:
		return nil
	default:
		return err
	}
}

// CloseTrace wraps CloseTrace, which unblocks a concurrent ProcessTrace call
// on the same handle.
func CloseTrace(handle TraceHandle) error {
	r0, _, _ := procCloseTrace.Call(uintptr(handle))
	if err := windows.Errno(r0); err != windows.ERROR_SUCCESS {
		return err
	}
	return nil
}

const (
	formatMessageFromString    = 0x00000400
	formatMessageArgumentArray = 0x00002000
	formatMessageAllocateBuffer = 0x00000100
)

// FormatMessageFromTemplate wraps FormatMessageW with FROM_STRING |
// ARGUMENT_ARRAY, per spec.md §4.3's message-composition step: template is
// the event schema's message string (with %1, %2, ... placeholders), and
// args is the parallel array of pointers to each property's zero-terminated
// formatted text, exactly as TdhFormatProperty produced them.
func FormatMessageFromTemplate(template *uint16, args []*uint16) (string, error) {
	var argsPtr uintptr
	if len(args) > 0 {
		argsPtr = uintptr(unsafe.Pointer(&args[0]))
	}

	buf := make([]uint16, 4096)
	r0, _, _ := procFormatMessageW.Call(
		uintptr(formatMessageFromString|formatMessageArgumentArray),
		uintptr(unsafe.Pointer(template)),
		0, 0,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		argsPtr,
	)
	if r0 == 0 {
		return "", windows.GetLastError()
	}
	return windows.UTF16ToString(buf[:r0]), nil
}

// GetOSVersion wraps RTL_OSVERSIONINFOW / RtlGetVersion, the documented way
// to read the true OS version without the GetVersionEx compatibility lie,
// used by the session package to gate the executable-name and stackwalk
// filter descriptors by OS version per spec.md §4.5.
func GetOSVersion() (OSVersionInfo, error) {
	var info OSVersionInfo
	info.OSVersionInfoSize = uint32(unsafe.Sizeof(info))
	r0, _, _ := procRtlGetVersion.Call(uintptr(unsafe.Pointer(&info)))
	if r0 != 0 {
		return OSVersionInfo{}, windows.Errno(r0)
	}
	return info, nil
}

// QueryPerformanceCounter wraps QueryPerformanceCounter, used to fill in a
// logger's start-time when the kernel didn't populate one and the log is
// running in RAW_TIMESTAMP mode, per spec.md §4.6.
func QueryPerformanceCounter() int64 {
	var counter int64
	procQueryPerformanceCounter.Call(uintptr(unsafe.Pointer(&counter)))
	return counter
}

// GetEventInformation wraps TdhGetEventInformation, growing the buffer once
// on ERROR_INSUFFICIENT_BUFFER exactly as spec.md §4.2/§4.3 describe for
// schema lookup. The returned slice is pinned by the caller's reference;
// there is no separate free call since we allocate from the Go heap.
func GetEventInformation(record *EventRecord) ([]byte, *TraceEventInfo, error) {
	var bufferSize uint32
	r0, _, _ := procTdhGetEventInformation.Call(
		uintptr(unsafe.Pointer(record)), 0, 0, 0, uintptr(unsafe.Pointer(&bufferSize)),
	)
	if windows.Errno(r0) != windows.ERROR_INSUFFICIENT_BUFFER {
		return nil, nil, windows.Errno(r0)
	}

	buf := make([]byte, bufferSize)
	r0, _, _ = procTdhGetEventInformation.Call(
		uintptr(unsafe.Pointer(record)), 0, 0,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&bufferSize)),
	)
	if err := windows.Errno(r0); err != windows.ERROR_SUCCESS {
		return nil, nil, err
	}
	return buf, (*TraceEventInfo)(unsafe.Pointer(&buf[0])), nil
}

// FormatProperty wraps TdhFormatProperty with the insufficient-buffer retry
// spec.md §4.3 calls out. On the first call formattedData is sized to hold
// a modest guess; callers should pre-size it (e.g. 50 bytes) to save one
// syscall in the common case.
func FormatProperty(
	record *EventRecord, mapInfo unsafe.Pointer, pointerSize uintptr,
	inType, outType uint16, propertyLength uint16, userDataRemaining uintptr, userData uintptr,
	formattedData []byte,
) (consumed int, out []byte, err error) {
	formattedSize := uint32(len(formattedData))
	var userDataConsumed uint16

	for {
		r0, _, _ := procTdhFormatProperty.Call(
			uintptr(unsafe.Pointer(record)),
			uintptr(mapInfo),
			pointerSize,
			uintptr(inType),
			uintptr(outType),
			uintptr(propertyLength),
			userDataRemaining,
			userData,
			uintptr(unsafe.Pointer(&formattedSize)),
			sliceDataOrNil(formattedData),
			uintptr(unsafe.Pointer(&userDataConsumed)),
		)

		switch status := windows.Errno(r0); status {
		case windows.ERROR_SUCCESS:
			return int(userDataConsumed), formattedData[:formattedSize], nil
		case windows.ERROR_INSUFFICIENT_BUFFER:
			formattedData = make([]byte, formattedSize)
			continue
		default:
			return 0, nil, status
		}
	}
}

func sliceDataOrNil(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// GetEventMapInformation wraps TdhGetEventMapInformation. A nil return with
// nil error means "no map defined for this property", per spec.md §4.3.
func GetEventMapInformation(record *EventRecord, mapName *uint16) ([]byte, *EventMapInfo, error) {
	var mapSize uint32
	r0, _, _ := procTdhGetEventMapInformation.Call(
		uintptr(unsafe.Pointer(record)), uintptr(unsafe.Pointer(mapName)), 0, uintptr(unsafe.Pointer(&mapSize)),
	)
	switch windows.Errno(r0) {
	case windows.ERROR_NOT_FOUND:
		return nil, nil, nil
	case windows.ERROR_INSUFFICIENT_BUFFER:
		// fall through, buffer needed
	default:
		return nil, nil, windows.Errno(r0)
	}

	buf := make([]byte, mapSize)
	r0, _, _ = procTdhGetEventMapInformation.Call(
		uintptr(unsafe.Pointer(record)), uintptr(unsafe.Pointer(mapName)),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&mapSize)),
	)
	if err := windows.Errno(r0); err != windows.ERROR_SUCCESS {
		return nil, nil, err
	}
	return buf, (*EventMapInfo)(unsafe.Pointer(&buf[0])), nil
}

// EnumerateProviders wraps TdhEnumerateProviders.
func EnumerateProviders() ([]byte, *ProviderEnumerationInfo, error) {
	var size uint32
	procTdhEnumerateProviders.Call(0, uintptr(unsafe.Pointer(&size)))

	for {
		buf := make([]byte, size)
		r0, _, _ := procTdhEnumerateProviders.Call(
			uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)),
		)
		switch windows.Errno(r0) {
		case windows.ERROR_SUCCESS:
			return buf, (*ProviderEnumerationInfo)(unsafe.Pointer(&buf[0])), nil
		case windows.ERROR_INSUFFICIENT_BUFFER:
			continue
		default:
			return nil, nil, windows.Errno(r0)
		}
	}
}
