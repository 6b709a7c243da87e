//go:build windows

package decoder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/etwkit/tracekit/internal/winapi"
)

func TestResolveLengthLiteral(t *testing.T) {
	p := &winapi.EventPropertyInfo{LengthUnion: 16}
	require.EqualValues(t, 16, resolveLength(p, nil))
}

func TestResolveLengthBackReference16Bit(t *testing.T) {
	p := &winapi.EventPropertyInfo{Flags: winapi.PropertyParamLength, LengthUnion: 0}
	raw := map[int][]byte{0: {0x2A, 0x00}} // little-endian uint16(42)
	require.EqualValues(t, 42, resolveLength(p, raw))
}

func TestResolveLengthBackReference32Bit(t *testing.T) {
	p := &winapi.EventPropertyInfo{Flags: winapi.PropertyParamLength, LengthUnion: 1}
	raw := map[int][]byte{1: {0x00, 0x01, 0x00, 0x00}} // little-endian uint32(256)
	require.EqualValues(t, 256, resolveLength(p, raw))
}

func TestResolveCountDefaultsToScalar(t *testing.T) {
	p := &winapi.EventPropertyInfo{}
	require.EqualValues(t, 1, resolveCount(p, nil))
}

func TestResolveCountLiteral(t *testing.T) {
	p := &winapi.EventPropertyInfo{CountUnion: 5}
	require.EqualValues(t, 5, resolveCount(p, nil))
}

func TestResolveCountBackReference(t *testing.T) {
	p := &winapi.EventPropertyInfo{Flags: winapi.PropertyParamCount, CountUnion: 2}
	raw := map[int][]byte{2: {0x03, 0x00}}
	require.EqualValues(t, 3, resolveCount(p, raw))
}

func TestReadUintTruncatesAtEightBytes(t *testing.T) {
	require.EqualValues(t, 0x0201, readUint([]byte{0x01, 0x02}))
	require.EqualValues(t, 0x04030201, readUint([]byte{0x01, 0x02, 0x03, 0x04}))
	require.EqualValues(t, uint64(0x0807060504030201), readUint([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}))
}
