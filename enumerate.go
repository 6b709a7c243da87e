//go:build windows

package etw

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/etwkit/tracekit/internal/winapi"
)

// ListProviders enumerates every manifest/MOF-registered provider on the
// system via TdhEnumerateProviders. This is one of SPEC_FULL.md's
// supplemented features: the distilled spec only requires a session to
// target providers it already knows the GUID for, but a complete
// implementation needs a way to discover them, grounded on bi-zone-etw's
// provider.go ListProviders/LookupProvider (itself unused by the older
// tracing_session generation, absorbed here into the one kept provider
// surface).
func ListProviders() ([]Provider, error) {
	buf, info, err := winapi.EnumerateProviders()
	if err != nil {
		return nil, fmt.Errorf("etw: enumerate providers: %w", err)
	}

	out := make([]Provider, 0, info.NumberOfProviders)
	for i := 0; i < int(info.NumberOfProviders); i++ {
		entry := winapi.TraceProviderInfoAt(buf, i)
		out = append(out, Provider{
			GUID: entry.ProviderGuid,
			Name: winapi.StringAt(buf, entry.ProviderNameOffset),
		})
	}
	return out, nil
}

// LookupProvider returns the registered display name for a provider GUID,
// or "" if not found.
func LookupProvider(guid windows.GUID) (string, error) {
	providers, err := ListProviders()
	if err != nil {
		return "", err
	}
	for _, p := range providers {
		if p.GUID == guid {
			return p.Name, nil
		}
	}
	return "", nil
}
