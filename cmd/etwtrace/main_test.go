//go:build windows

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProvidersAppliesLevelAndKeyword(t *testing.T) {
	providers, err := parseProviders(
		[]string{"{00000000-0000-0000-0000-000000000001}"}, 5, 0xFF)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	require.EqualValues(t, 5, providers[0].Level)
	require.EqualValues(t, 0xFF, providers[0].MatchAnyKeyword)
}

func TestParseProvidersRejectsMalformedGUID(t *testing.T) {
	_, err := parseProviders([]string{"not-a-guid"}, 0, 0)
	require.Error(t, err)
}

func TestParseProvidersEmptyList(t *testing.T) {
	providers, err := parseProviders(nil, 0, 0)
	require.NoError(t, err)
	require.Empty(t, providers)
}
