//go:build windows

// Package schemaregistry owns the process-wide manifest-path → refcount
// map, per spec.md §4.1. It is grounded on
// EventTraceKit.EtwCore/Source/TraceDataContext.cpp's AddRefManifest /
// ReleaseManifest pair, translated from a sorted-vector + binary_find into
// a plain Go map guarded by a sync.Mutex — idiomatic Go has no equivalent
// need for TraceDataContext.cpp's manual binary search, and the teacher
// repo doesn't touch manifest loading at all (bi-zone-etw only enables
// providers by GUID), so this component is grounded entirely on
// original_source.
package schemaregistry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/etwkit/tracekit/internal/winapi"
)

// Registry serializes TdhLoadManifest/TdhUnloadManifest calls against one
// process-wide refcount map. Load/unload calls happen while holding the
// lock: they are infrequent, and the OS schema subsystem must see them
// serialized.
type Registry struct {
	mu       sync.Mutex
	refcount map[string]int
	log      *zap.Logger

	// loadManifest/unloadManifest default to the real TDH calls; tests
	// override them to exercise refcounting without a real manifest file.
	loadManifest   func(string) error
	unloadManifest func(string) error
}

var (
	globalOnce sync.Once
	globalReg  *Registry
)

// Global returns the lazily created, process-wide registry, per spec.md
// §4.1's global() contract.
func Global() *Registry {
	globalOnce.Do(func() {
		globalReg = New(zap.NewNop())
	})
	return globalReg
}

// SetGlobalLogger attaches a logger to the global registry; callers
// typically do this once at process start before any token is created.
func SetGlobalLogger(log *zap.Logger) {
	Global().log = log
}

// New creates a standalone registry. Most callers want Global(); New exists
// for tests that need isolation from other tests' manifest state.
func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		refcount:       make(map[string]int),
		log:            log,
		loadManifest:   winapi.LoadManifest,
		unloadManifest: winapi.UnloadManifest,
	}
}

// AddRef loads path's manifest if this is the first reference, otherwise
// bumps its refcount. A failed load never leaves a partial refcount behind.
func (r *Registry) AddRef(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refcount[path] > 0 {
		r.refcount[path]++
		return nil
	}

	if err := r.loadManifest(path); err != nil {
		return fmt.Errorf("schemaregistry: load manifest %q: %w", path, err)
	}
	r.refcount[path] = 1
	return nil
}

// Release decrements path's refcount, unloading the manifest once it
// reaches zero. A failed unload is logged but not surfaced — the token
// contract only guarantees an eventual release attempt, per spec.md §4.1.
func (r *Registry) Release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.refcount[path]
	if !ok {
		return
	}
	n--
	if n > 0 {
		r.refcount[path] = n
		return
	}
	delete(r.refcount, path)

	if err := r.unloadManifest(path); err != nil {
		r.log.Warn("failed to unload manifest", zap.String("path", path), zap.Error(err))
	}
}

// RefCount reports the current reference count for path, for tests and
// diagnostics.
func (r *Registry) RefCount(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refcount[path]
}

// Token is an RAII handle representing one owner's reference to a set of
// manifest paths. Dropping it (Close) releases every path it still holds,
// per spec.md §3's Schema Registry Token entity.
type Token struct {
	registry *Registry
	paths    map[string]struct{}
}

// NewToken atomically add_refs every path; if any fails, every path that
// succeeded is released and the call fails as a whole, per spec.md §4.1's
// token::create contract.
func NewToken(registry *Registry, paths []string) (*Token, error) {
	t := &Token{registry: registry, paths: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		if err := registry.AddRef(p); err != nil {
			t.Close()
			return nil, err
		}
		t.paths[p] = struct{}{}
	}
	return t, nil
}

// Update add_refs every path not already held by the token; the token now
// represents the union of its prior paths and newPaths, per spec.md §4.1's
// token::update contract. Already-failed paths are rolled back individually
// without disturbing paths added in a previous call.
func (t *Token) Update(newPaths []string) error {
	for _, p := range newPaths {
		if _, already := t.paths[p]; already {
			continue
		}
		if err := t.registry.AddRef(p); err != nil {
			return err
		}
		t.paths[p] = struct{}{}
	}
	return nil
}

// Paths returns the manifest paths currently held by the token.
func (t *Token) Paths() []string {
	out := make([]string, 0, len(t.paths))
	for p := range t.paths {
		out = append(out, p)
	}
	return out
}

// Close releases every path still held by the token. Safe to call more
// than once.
func (t *Token) Close() {
	for p := range t.paths {
		t.registry.Release(p)
		delete(t.paths, p)
	}
}
