//go:build windows

package etw

import "golang.org/x/sys/windows"

// ProviderDescriptor configures one ETW provider to be enabled on a session.
// Exactly one of ManifestFilePath/ProviderBinaryPath may be set — an unset
// descriptor is legal and simply falls back to raw property dumping when
// decoding, since the Event Info Cache has no schema source to consult.
type ProviderDescriptor struct {
	GUID windows.GUID

	Level           uint8
	MatchAnyKeyword uint64
	MatchAllKeyword uint64

	IncludeSecurityID        bool
	IncludeTerminalSessionID bool
	IncludeStackTrace        bool

	// ExecutableName filters by process image name. Only honored on
	// Windows 8.1 and later; the session controller drops the filter
	// descriptor silently on older hosts rather than failing the enable.
	ExecutableName string
	ProcessIDs     []uint32

	EventIDs          []uint16
	EventIDsFilterIn  bool

	StackWalkEventIDs         []uint16
	StackWalkEventIDsFilterIn bool

	StackWalkFilter *StackWalkLevelKeywordFilter

	// Schema source. At most one may be non-empty.
	ManifestFilePath   string
	ProviderBinaryPath string
}

// StackWalkLevelKeywordFilter mirrors the kernel's STACKWALK_LEVEL_KW filter:
// capture stacks for events matching a level/keyword combination rather than
// an explicit event-id list. Only honored on Windows 10 1709 and later.
type StackWalkLevelKeywordFilter struct {
	MatchAnyKeyword uint64
	MatchAllKeyword uint64
	Level           uint8
	FilterIn        bool
}

// HasSchemaSource reports whether d names a manifest or provider binary to
// resolve its event schema from.
func (d ProviderDescriptor) HasSchemaSource() bool {
	return d.ManifestFilePath != "" || d.ProviderBinaryPath != ""
}

// Validate checks d against the configuration invariants the session
// controller must enforce before ever touching the kernel: at most one
// schema source may be set.
func (d ProviderDescriptor) Validate() error {
	if d.ManifestFilePath != "" && d.ProviderBinaryPath != "" {
		return ConfigError{Reason: "provider " + d.GUID.String() + ": ManifestFilePath and ProviderBinaryPath are mutually exclusive"}
	}
	return nil
}

// EnableProperty composes the EnableProperty bitfield the session controller
// passes to EnableTraceEx2, per spec.md §4.5.
func (d ProviderDescriptor) EnableProperty() uint32 {
	var p uint32
	if d.IncludeSecurityID {
		p |= eventEnablePropertySID
	}
	if d.IncludeTerminalSessionID {
		p |= eventEnablePropertyTSID
	}
	if d.IncludeStackTrace {
		p |= eventEnablePropertyStackTrace
	}
	return p
}

const (
	eventEnablePropertySID        = 0x001
	eventEnablePropertyTSID       = 0x002
	eventEnablePropertyStackTrace = 0x004
)

// Provider names a provider discovered through enumeration, as returned by
// ListProviders: the GUID TdhEnumerateProviders reported alongside its
// registered display name.
type Provider struct {
	GUID windows.GUID
	Name string
}
