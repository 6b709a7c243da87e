//go:build windows

package etw

import (
	"unsafe"

	"github.com/etwkit/tracekit/internal/winapi"
)

// unsafeUserData aliases a kernel EVENT_RECORD's UserData buffer as a Go
// byte slice without copying — valid only for the duration of the
// consumer callback, matching the record it came from.
func unsafeUserData(record *winapi.EventRecord) []byte {
	return (*[1 << 28]byte)(unsafe.Pointer(record.UserData))[:record.UserDataLength:record.UserDataLength]
}
