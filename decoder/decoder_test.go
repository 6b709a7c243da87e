//go:build windows

package decoder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	etw "github.com/etwkit/tracekit"
)

func TestFallbackMessageJoinsInOrder(t *testing.T) {
	props := []Property{
		{Name: "Pid", Text: "1234"},
		{Name: "Name", Text: "explorer.exe"},
	}
	require.Equal(t, "Pid: 1234; Name: explorer.exe", fallbackMessage(props))
}

func TestFallbackMessageRendersArraysAndStructs(t *testing.T) {
	props := []Property{
		{Name: "Flags", IsArray: true, Values: []string{"A", "B"}},
		{Name: "Header", IsStruct: true, Struct: []Property{{Name: "Size", Text: "8"}}},
		{Name: "Items", IsStruct: true, IsArray: true, StructArray: [][]Property{
			{{Name: "X", Text: "1"}},
			{{Name: "X", Text: "2"}},
		}},
	}
	msg := fallbackMessage(props)
	require.Contains(t, msg, "Flags: A, B")
	require.Contains(t, msg, "Header: <struct>")
	require.Contains(t, msg, "Items: <2 structs>")
}

func TestPlaceholderTextWrapsDecodeError(t *testing.T) {
	text := placeholderText("Size", errors.New("buffer too short"))
	require.Contains(t, text, "Size")
	require.Contains(t, text, "buffer too short")
	require.Equal(t, etw.DecodeError{Property: "Size", Err: errors.New("buffer too short")}.Error(), text)
}
