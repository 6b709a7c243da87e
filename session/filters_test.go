//go:build windows

package session

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"

	etw "github.com/etwkit/tracekit"
	"github.com/etwkit/tracekit/internal/winapi"
)

func TestBuildFilterDescriptorsEventID(t *testing.T) {
	d := etw.ProviderDescriptor{
		GUID:             windows.GUID{Data1: 1},
		EventIDs:         []uint16{10, 20, 30},
		EventIDsFilterIn: true,
	}
	descs, payloads, err := buildFilterDescriptors(d)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	require.EqualValues(t, winapi.EventFilterTypeEventID, descs[0].Type)
	require.EqualValues(t, len(payloads[0]), descs[0].Size)
}

func TestBuildFilterDescriptorsProcessIDs(t *testing.T) {
	d := etw.ProviderDescriptor{ProcessIDs: []uint32{100, 200}}
	descs, payloads, err := buildFilterDescriptors(d)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	require.EqualValues(t, winapi.EventFilterTypePid, descs[0].Type)
	require.Len(t, payloads[0], 8)
}

func TestBuildFilterDescriptorsEmptyDescriptorHasNoFilters(t *testing.T) {
	descs, payloads, err := buildFilterDescriptors(etw.ProviderDescriptor{})
	require.NoError(t, err)
	require.Empty(t, descs)
	require.Empty(t, payloads)
}

func TestBuildFilterDescriptorsStackWalkLevelKeyword(t *testing.T) {
	d := etw.ProviderDescriptor{
		StackWalkFilter: &etw.StackWalkLevelKeywordFilter{
			MatchAnyKeyword: 0xFF,
			Level:           4,
			FilterIn:        true,
		},
	}
	descs, payloads, err := buildFilterDescriptors(d)
	require.NoError(t, err)
	if supportsStackwalkFilters() {
		require.Len(t, descs, 1)
		require.EqualValues(t, winapi.EventFilterTypeStackwalkLevelKw, descs[0].Type)
		require.NotEmpty(t, payloads)
	} else {
		require.Empty(t, descs)
	}
}
