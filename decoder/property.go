//go:build windows

package decoder

import "github.com/etwkit/tracekit/internal/winapi"

// Property is one decoded property, structured the way spec.md §4.3's walk
// produces it: a scalar, an array of scalars, a single nested structure, or
// an array of nested structures. Exactly one of the four value fields is
// meaningful, selected by IsArray/IsStruct.
type Property struct {
	Name string

	IsArray  bool
	IsStruct bool

	Text        string
	Values      []string
	Struct      []Property
	StructArray [][]Property
}

// resolveLength computes a property's length per spec.md §4.3 step 3a: the
// literal length field, or, if ParamLength is set, the value of an
// already-processed property read from rawValues. Binary-with-IPv6 output
// and variable strings/structs carry length 0, meaning "let TDH determine
// it" (except the IPv6-with-zero-length edge case, resolved by the caller).
func resolveLength(p *winapi.EventPropertyInfo, rawValues map[int][]byte) uint16 {
	if p.Flags&winapi.PropertyParamLength == 0 {
		return p.LengthUnion
	}
	idx := int(p.LengthUnion)
	raw, ok := rawValues[idx]
	if !ok {
		return 0
	}
	return uint16(readUint(raw))
}

// resolveCount computes a property's array count per spec.md §4.3 step 3b.
// Scalars report count 1.
func resolveCount(p *winapi.EventPropertyInfo, rawValues map[int][]byte) uint32 {
	if p.Flags&winapi.PropertyParamCount == 0 {
		if p.CountUnion == 0 {
			return 1
		}
		return uint32(p.CountUnion)
	}
	idx := int(p.CountUnion)
	raw, ok := rawValues[idx]
	if !ok {
		return 1
	}
	return uint32(readUint(raw))
}

// readUint interprets up to 8 little-endian bytes as an unsigned integer,
// used to resolve ParamLength/ParamCount back-references regardless of
// whether the referenced property was stored as 16 or 32 bits — spec.md
// §4.3's edge case "accept both 16-bit and 32-bit storage".
func readUint(b []byte) uint64 {
	var v uint64
	for i, c := range b {
		if i >= 8 {
			break
		}
		v |= uint64(c) << (8 * uint(i))
	}
	return v
}
