//go:build windows

package session

import (
	"fmt"

	"golang.org/x/sys/windows"

	etw "github.com/etwkit/tracekit"
	"github.com/etwkit/tracekit/internal/winapi"
)

// osVersion is resolved once per process; OS version doesn't change at
// runtime, and RtlGetVersion is cheap but there's no reason to call it on
// every enable.
var cachedOSVersion struct {
	once    bool
	info    winapi.OSVersionInfo
	err     error
}

func osVersion() (winapi.OSVersionInfo, error) {
	if !cachedOSVersion.once {
		cachedOSVersion.info, cachedOSVersion.err = winapi.GetOSVersion()
		cachedOSVersion.once = true
	}
	return cachedOSVersion.info, cachedOSVersion.err
}

func atLeast(major, minor, build uint32) bool {
	v, err := osVersion()
	if err != nil {
		return false
	}
	if v.MajorVersion != major {
		return v.MajorVersion > major
	}
	if v.MinorVersion != minor {
		return v.MinorVersion > minor
	}
	return v.BuildNumber >= build
}

// supportsExecutableNameFilter reports Windows 8.1+ (6.3+), per spec.md
// §4.5's filter translation table.
func supportsExecutableNameFilter() bool { return atLeast(6, 3, 0) }

// supportsStackwalkFilters reports Windows 10 1709+ (build 16299+).
func supportsStackwalkFilters() bool { return atLeast(10, 0, 16299) }

// buildFilterDescriptors assembles up to five kernel filter descriptors for
// one provider, per spec.md §4.5's filter translation rules. Each
// descriptor's backing payload is returned alongside it so the caller can
// keep it alive for the duration of the EnableTraceEx2 call.
func buildFilterDescriptors(d etw.ProviderDescriptor) ([]winapi.EventFilterDescriptor, [][]byte, error) {
	var descriptors []winapi.EventFilterDescriptor
	var payloads [][]byte

	if len(d.ProcessIDs) > 0 {
		payload := make([]byte, len(d.ProcessIDs)*4)
		for i, pid := range d.ProcessIDs {
			payload[i*4] = byte(pid)
			payload[i*4+1] = byte(pid >> 8)
			payload[i*4+2] = byte(pid >> 16)
			payload[i*4+3] = byte(pid >> 24)
		}
		descriptors = append(descriptors, winapi.EventFilterDescriptor{Type: winapi.EventFilterTypePid})
		payloads = append(payloads, payload)
	}

	if d.ExecutableName != "" && supportsExecutableNameFilter() {
		nameUTF16, err := windows.UTF16FromString(d.ExecutableName)
		if err != nil {
			return nil, nil, fmt.Errorf("session: exe-name filter: %w", err)
		}
		payload := uint16SliceToBytes(nameUTF16)
		descriptors = append(descriptors, winapi.EventFilterDescriptor{Type: winapi.EventFilterTypeExeName})
		payloads = append(payloads, payload)
	}

	if len(d.EventIDs) > 0 {
		payload := winapi.BuildEventIDFilterPayload(d.EventIDs, d.EventIDsFilterIn)
		descriptors = append(descriptors, winapi.EventFilterDescriptor{Type: winapi.EventFilterTypeEventID})
		payloads = append(payloads, payload)
	}

	if len(d.StackWalkEventIDs) > 0 && supportsStackwalkFilters() {
		payload := winapi.BuildEventIDFilterPayload(d.StackWalkEventIDs, d.StackWalkEventIDsFilterIn)
		descriptors = append(descriptors, winapi.EventFilterDescriptor{Type: winapi.EventFilterTypeStackwalk})
		payloads = append(payloads, payload)
	}

	if d.StackWalkFilter != nil && supportsStackwalkFilters() {
		f := d.StackWalkFilter
		lvlKw := winapi.EventFilterLevelKw{
			MatchAnyKeyword: f.MatchAnyKeyword,
			MatchAllKeyword: f.MatchAllKeyword,
			Level:           f.Level,
		}
		if f.FilterIn {
			lvlKw.FilterIn = 1
		}
		payload := levelKwToBytes(lvlKw)
		descriptors = append(descriptors, winapi.EventFilterDescriptor{Type: winapi.EventFilterTypeStackwalkLevelKw})
		payloads = append(payloads, payload)
	}

	for i := range descriptors {
		descriptors[i].Size = uint32(len(payloads[i]))
	}
	return descriptors, payloads, nil
}

// enableLocked issues EnableTraceEx2 for d. Caller must hold c.mu.
func (c *Controller) enableLocked(d etw.ProviderDescriptor) error {
	descs, payloads, err := buildFilterDescriptors(d)
	if err != nil {
		return err
	}
	for i := range descs {
		descs[i].Ptr = payloadPointer(payloads[i])
	}

	var paramsFilter *winapi.EventFilterDescriptor
	var filterCount uint32
	if len(descs) > 0 {
		paramsFilter = &descs[0]
		filterCount = uint32(len(descs))
	}

	params := winapi.EnableTraceParameters{
		Version:          winapi.EnableTraceParametersVersion2,
		EnableProperty:   d.EnableProperty(),
		SourceID:         c.name2guid(),
		EnableFilterDesc: paramsFilter,
		FilterDescCount:  filterCount,
	}

	guid := d.GUID
	err = winapi.EnableTraceEx2(
		c.handle, &guid, winapi.EventControlCodeEnableProvider,
		d.Level, d.MatchAnyKeyword, d.MatchAllKeyword, 0, &params,
	)
	if err != nil {
		return fmt.Errorf("session: enable provider %s: %w", guidString(guid), err)
	}
	return nil
}

// name2guid returns the session's own GUID for SourceId, per spec.md
// §4.5's "SourceId must equal the session GUID" rule.
func (c *Controller) name2guid() windows.GUID { return c.props.SessionGUID }
