//go:build windows

package decoder

import (
	"unsafe"

	"github.com/etwkit/tracekit/internal/winapi"
	"golang.org/x/sys/windows"
)

// unsafePointer is an alias kept local to this package so the rest of
// decoder.go reads as plain Go rather than sprinkling unsafe.Pointer
// everywhere a map-info pointer is threaded through to TdhFormatProperty.
type unsafePointer = unsafe.Pointer

func unsafePointerOf(m *winapi.EventMapInfo) unsafePointer {
	return unsafe.Pointer(m)
}

// readBytesAt copies n bytes starting at a raw user-data pointer, used to
// remember a property's raw value for a later ParamLength/ParamCount
// back-reference. The copy is necessary because w.data keeps advancing:
// without it, a later read would see the wrong slice of the payload.
func readBytesAt(ptr uintptr, n int) []byte {
	if n <= 0 {
		return nil
	}
	src := (*[1 << 28]byte)(unsafe.Pointer(ptr))[:n:n]
	out := make([]byte, n)
	copy(out, src)
	return out
}

// utf16BytesToString reinterprets a byte slice produced by TdhFormatProperty
// (a zero-terminated UTF-16 string) as a Go string, trimming the trailing
// NUL pair(s) TDH reports as part of FormattedDataSize.
func utf16BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	u16 := (*[1 << 27]uint16)(unsafe.Pointer(&b[0]))[: len(b)/2 : len(b)/2]
	length := 0
	for length < len(u16) && u16[length] != 0 {
		length++
	}
	return windows.UTF16ToString(u16[:length])
}

// readUTF16StringAt reads a UTF-16 string of up to maxLen code units
// starting at ptr, stopping at the first NUL — used for STRING_ONLY events
// per spec.md §4.3 step 1.
func readUTF16StringAt(ptr uintptr, maxLen int) string {
	if ptr == 0 || maxLen <= 0 {
		return ""
	}
	u16 := (*[1 << 27]uint16)(unsafe.Pointer(ptr))[:maxLen:maxLen]
	length := 0
	for length < maxLen && u16[length] != 0 {
		length++
	}
	return windows.UTF16ToString(u16[:length])
}
