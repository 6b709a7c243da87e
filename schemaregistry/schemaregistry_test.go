//go:build windows

package schemaregistry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeRegistry() *Registry {
	r := New(nil)
	var loaded, unloaded []string
	r.loadManifest = func(path string) error {
		loaded = append(loaded, path)
		return nil
	}
	r.unloadManifest = func(path string) error {
		unloaded = append(unloaded, path)
		return nil
	}
	return r
}

func TestAddRefLoadsOnceAndCountsAfter(t *testing.T) {
	r := fakeRegistry()
	require.NoError(t, r.AddRef("a.man"))
	require.NoError(t, r.AddRef("a.man"))
	require.Equal(t, 2, r.RefCount("a.man"))
}

func TestReleaseUnloadsAtZero(t *testing.T) {
	r := fakeRegistry()
	require.NoError(t, r.AddRef("a.man"))
	require.NoError(t, r.AddRef("a.man"))

	r.Release("a.man")
	require.Equal(t, 1, r.RefCount("a.man"))

	r.Release("a.man")
	require.Equal(t, 0, r.RefCount("a.man"))
}

func TestAddRefFailureLeavesNoPartialRefcount(t *testing.T) {
	r := New(nil)
	r.loadManifest = func(path string) error { return errors.New("boom") }

	err := r.AddRef("bad.man")
	require.Error(t, err)
	require.Equal(t, 0, r.RefCount("bad.man"))
}

func TestTokenCreateRollsBackOnPartialFailure(t *testing.T) {
	r := New(nil)
	var loaded []string
	r.loadManifest = func(path string) error {
		if path == "fails.man" {
			return errors.New("boom")
		}
		loaded = append(loaded, path)
		return nil
	}
	r.unloadManifest = func(string) error { return nil }

	tok, err := NewToken(r, []string{"ok.man", "fails.man"})
	require.Error(t, err)
	require.Nil(t, tok)
	require.Equal(t, 0, r.RefCount("ok.man"))
}

func TestTokenUpdateUnionsPaths(t *testing.T) {
	r := fakeRegistry()
	tok, err := NewToken(r, []string{"a.man"})
	require.NoError(t, err)

	require.NoError(t, tok.Update([]string{"a.man", "b.man"}))
	require.ElementsMatch(t, []string{"a.man", "b.man"}, tok.Paths())
	require.Equal(t, 1, r.RefCount("a.man"), "a.man was already held, should not be re-added")
	require.Equal(t, 1, r.RefCount("b.man"))
}

func TestTokenCloseReleasesEverything(t *testing.T) {
	r := fakeRegistry()
	tok, err := NewToken(r, []string{"a.man", "b.man"})
	require.NoError(t, err)

	tok.Close()
	require.Equal(t, 0, r.RefCount("a.man"))
	require.Equal(t, 0, r.RefCount("b.man"))

	tok.Close() // idempotent
}
