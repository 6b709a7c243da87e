//go:build windows

// Package decoder implements the recursive, length- and count-dependent
// property decoder described in spec.md §4.3. It is grounded on
// bi-zone-etw's event.go propertyParser (newPropertyParser/getPropertyValue/
// parseStruct/parseSimpleType/getMapInfo), generalized from the teacher's
// "everything is interface{}" shape into a typed Property tree, and
// extended with the length/count back-reference resolution and message
// template composition the teacher never implemented.
package decoder

import (
	"fmt"
	"strings"

	"golang.org/x/sys/windows"

	etw "github.com/etwkit/tracekit"
	"github.com/etwkit/tracekit/eventinfocache"
	"github.com/etwkit/tracekit/internal/winapi"
)

// Decoded is the full result of decoding one event record: its property
// tree and the composed message string.
type Decoded struct {
	Properties []Property
	Message    string
}

// walker carries the mutable state threaded through one decode pass: the
// current read position in the record's user-data buffer, and the raw
// bytes of every property processed so far (for ParamLength/ParamCount
// back-references).
type walker struct {
	record *winapi.EventRecord
	schema *eventinfocache.Schema
	ptrSize uintptr

	data    uintptr
	endData uintptr

	rawValues map[int][]byte
}

// Decode walks the record's top-level properties per schema and produces a
// Decoded tree plus the composed message, per spec.md §4.3. A property that
// fails to format is recorded as a placeholder rather than failing the
// whole record, so Decode itself never fails: every top-level property
// schema names produces exactly one emitted Property.
//
// If the record carries EVENT_HEADER_FLAG_STRING_ONLY, the payload is a
// zero-terminated UTF-16 string emitted verbatim as the message — spec.md
// §4.3 step 1.
func Decode(record *winapi.EventRecord, schema *eventinfocache.Schema, ptrSize uintptr) Decoded {
	if record.EventHeader.Flags&winapi.EventHeaderFlagStringOnly != 0 {
		msg := readUTF16StringAt(record.UserData, int(record.UserDataLength)/2)
		return Decoded{Message: msg}
	}

	w := &walker{
		record:    record,
		schema:    schema,
		ptrSize:   ptrSize,
		data:      record.UserData,
		endData:   record.UserData + uintptr(record.UserDataLength),
		rawValues: make(map[int][]byte),
	}

	info := schema.Info
	props := w.walkRange(0, int(info.TopLevelPropertyCount))

	msg, err := w.composeMessage(props)
	if err != nil {
		// Message composition failure never invalidates the decoded
		// properties themselves — fall back to the plain rendering.
		msg = fallbackMessage(props)
	}

	return Decoded{Properties: props, Message: msg}
}

// walkRange decodes properties [start, start+count) from the schema's flat
// property array, advancing w.data as it consumes payload bytes. Per
// spec.md §4.3/§7, a property that fails to format never aborts the walk:
// it is recorded as a placeholder (an etw.DecodeError rendered as text) and
// the walk continues with the next top-level property.
func (w *walker) walkRange(start, count int) []Property {
	buf := w.schema.Buffer
	out := make([]Property, 0, count)

	for i := start; i < start+count; i++ {
		pinfo := winapi.PropertyInfoAt(buf, i)
		name := winapi.StringAt(buf, pinfo.NameOffset)

		length := resolveLength(pinfo, w.rawValues)
		arrCount := resolveCount(pinfo, w.rawValues)
		isStruct := pinfo.Flags&winapi.PropertyStruct != 0

		prop := Property{Name: name, IsStruct: isStruct}
		isArray := arrCount != 1

		if isStruct {
			startIdx := int(pinfo.StructStartIndex)
			numMembers := int(pinfo.NumOfStructMembers)

			if isArray {
				prop.IsArray = true
				prop.StructArray = make([][]Property, arrCount)
				for j := uint32(0); j < arrCount; j++ {
					prop.StructArray[j] = w.walkRange(startIdx, numMembers)
				}
			} else {
				prop.Struct = w.walkRange(startIdx, numMembers)
			}
			out = append(out, prop)
			continue
		}

		if isArray {
			prop.IsArray = true
			prop.Values = make([]string, arrCount)
			for j := uint32(0); j < arrCount; j++ {
				text, err := w.formatOne(i, pinfo, length)
				if err != nil {
					prop.Values[j] = placeholderText(name, err)
					continue
				}
				prop.Values[j] = text
			}
		} else {
			text, err := w.formatOne(i, pinfo, length)
			if err != nil {
				prop.Text = placeholderText(name, err)
			} else {
				prop.Text = text
			}
		}
		out = append(out, prop)
	}
	return out
}

// placeholderText renders a failed property's DecodeError as its displayed
// text, the "placeholder" spec.md §4.3/§7 calls for in place of aborting
// the record.
func placeholderText(property string, err error) string {
	return etw.DecodeError{Property: property, Err: err}.Error()
}

// formatOne formats a single (non-struct) property element at the current
// read position, advances the position, and records the raw bytes consumed
// for any later ParamLength/ParamCount back-reference.
func (w *walker) formatOne(index int, pinfo *winapi.EventPropertyInfo, length uint16) (string, error) {
	buf := w.schema.Buffer

	mapInfoBuf, mapInfo, err := winapi.GetEventMapInformation(w.record, winapi.StringPtrAt(buf, pinfo.MapNameOffset()))
	if err != nil {
		return "", fmt.Errorf("get map info: %w", err)
	}
	if mapInfo != nil && (mapInfo.Flag == winapi.EventmapInfoFlagManifestValuemap ||
		mapInfo.Flag == winapi.EventmapInfoFlagManifestBitmap) {
		// Manifest map entry names carry one trailing space; trim it.
		for j := 0; j < int(mapInfo.EntryCount); j++ {
			off := int(winapi.MapEntryAt(mapInfoBuf, j).NameOffset)
			end := off
			for end+1 < len(mapInfoBuf) && (mapInfoBuf[end] != 0 || mapInfoBuf[end+1] != 0) {
				end += 2
			}
			if end-2 >= off && mapInfoBuf[end-2] == ' ' && mapInfoBuf[end-1] == 0 {
				mapInfoBuf[end-2] = 0
			}
		}
	}

	effectiveLength := length
	if pinfo.OutType() == outtypeIPv6 && length == 0 {
		// spec.md §4.3 edge case: OUTTYPE_IPV6 on a binary property
		// with length 0 means length 16.
		effectiveLength = 16
	}

	before := w.data
	formatted := make([]byte, 50)
	consumed, out, err := winapi.FormatProperty(
		w.record, mapInfoPointer(mapInfo), w.ptrSize,
		pinfo.InType(), pinfo.OutType(), effectiveLength,
		w.endData-w.data, w.data, formatted,
	)
	if err != nil {
		return "", fmt.Errorf("format property: %w", err)
	}

	w.rawValues[index] = readBytesAt(before, consumed)
	w.data += uintptr(consumed)

	return utf16BytesToString(out), nil
}

const outtypeIPv6 = 24 // TDH_OUTTYPE_IPV6

func mapInfoPointer(m *winapi.EventMapInfo) unsafePointer {
	if m == nil {
		return nil
	}
	return unsafePointerOf(m)
}

// composeMessage renders the event's message template (if the schema has
// one) via FormatMessageW with FROM_STRING|ARGUMENT_ARRAY, passing each
// top-level property's formatted text as a positional argument, per
// spec.md §4.3 step 4. Absent a template, falls back to "name: value; ...".
func (w *walker) composeMessage(props []Property) (string, error) {
	tmplOffset := w.schema.Info.EventMessageOffset
	if tmplOffset == 0 {
		return fallbackMessage(props), nil
	}
	tmplPtr := winapi.StringPtrAt(w.schema.Buffer, tmplOffset)
	if tmplPtr == nil {
		return fallbackMessage(props), nil
	}

	args := make([]*uint16, 0, len(props))
	owned := make([][]uint16, 0, len(props))
	for _, p := range props {
		u, err := windows.UTF16FromString(p.Text)
		if err != nil {
			u = []uint16{0}
		}
		owned = append(owned, u)
		args = append(args, &owned[len(owned)-1][0])
	}

	return winapi.FormatMessageFromTemplate(tmplPtr, args)
}

// fallbackMessage renders "name: value; name: value; ..." in property
// order, per spec.md §4.3 step 4's no-template fallback.
func fallbackMessage(props []Property) string {
	var sb strings.Builder
	for i, p := range props {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(p.Name)
		sb.WriteString(": ")
		sb.WriteString(propertyDisplayValue(p))
	}
	return sb.String()
}

func propertyDisplayValue(p Property) string {
	switch {
	case p.IsStruct && p.IsArray:
		return fmt.Sprintf("<%d structs>", len(p.StructArray))
	case p.IsStruct:
		return "<struct>"
	case p.IsArray:
		return strings.Join(p.Values, ", ")
	default:
		return p.Text
	}
}
