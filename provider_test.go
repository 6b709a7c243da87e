//go:build windows

package etw

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func TestProviderDescriptorValidateRejectsBothSchemaSources(t *testing.T) {
	d := ProviderDescriptor{
		GUID:               windows.GUID{Data1: 1},
		ManifestFilePath:   "provider.man",
		ProviderBinaryPath: "provider.dll",
	}
	err := d.Validate()
	require.Error(t, err)
	var cfgErr ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestProviderDescriptorValidateAllowsOneOrNoSchemaSource(t *testing.T) {
	require.NoError(t, ProviderDescriptor{}.Validate())
	require.NoError(t, ProviderDescriptor{ManifestFilePath: "provider.man"}.Validate())
	require.NoError(t, ProviderDescriptor{ProviderBinaryPath: "provider.dll"}.Validate())
}
