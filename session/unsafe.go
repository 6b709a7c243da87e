//go:build windows

package session

import (
	"unsafe"

	"github.com/etwkit/tracekit/internal/winapi"
)

func payloadPointer(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func uint16SliceToBytes(u []uint16) []byte {
	if len(u) == 0 {
		return nil
	}
	return (*[1 << 28]byte)(unsafe.Pointer(&u[0]))[: len(u)*2 : len(u)*2]
}

func levelKwToBytes(v winapi.EventFilterLevelKw) []byte {
	n := int(unsafe.Sizeof(v))
	return (*[1 << 10]byte)(unsafe.Pointer(&v))[:n:n]
}
