//go:build windows

package etw

import (
	"github.com/beevik/guid"
	"golang.org/x/sys/windows"
)

// NewSessionGUID produces a fresh random GUID for an unnamed session or
// provider. The teacher's own randomName helper fell back to hand-rolled
// alphabet sampling when windows.GenerateGUID failed; we use beevik/guid
// instead, a dependency the teacher's go.mod already carried but never
// wired up.
func NewSessionGUID() windows.GUID {
	g := guid.New()
	return windows.GUID{
		Data1: uint32(g[0])<<24 | uint32(g[1])<<16 | uint32(g[2])<<8 | uint32(g[3]),
		Data2: uint16(g[4])<<8 | uint16(g[5]),
		Data3: uint16(g[6])<<8 | uint16(g[7]),
		Data4: [8]byte{g[8], g[9], g[10], g[11], g[12], g[13], g[14], g[15]},
	}
}

// RandomSessionName returns a unique session name of the form
// "tracekit-<guid>", used when the caller doesn't care about the name.
func RandomSessionName() string {
	return "tracekit-" + guid.New().String()
}
