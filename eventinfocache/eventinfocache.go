//go:build windows

// Package eventinfocache amortizes the cost of TDH schema lookup, per
// spec.md §4.2. It mirrors EventTraceKit.EtwCore's EventInfoCache.cpp (an
// LRU keyed on provider/event-id, with a blob hash folded in for
// TraceLogging events) but swaps the hand-rolled intrusive list+map from
// original_source's LruCache.h for hashicorp/golang-lru/v2, a dependency
// the rest of the retrieved pack (DataDog-agent) already relies on for the
// same purpose.
package eventinfocache

import (
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sys/windows"

	"github.com/etwkit/tracekit/internal/winapi"
)

// DefaultCapacity is the cache's default entry capacity, per spec.md §4.2.
const DefaultCapacity = 50

// Key identifies one cached schema. For classic (MOF/manifest) events it is
// just (ProviderID, EventID); for TraceLogging events BlobHash additionally
// folds in a hash of the embedded schema blob, since two distinct
// TraceLogging events can share a numeric id.
type Key struct {
	ProviderID windows.GUID
	EventID    uint16
	BlobHash   uint64
}

// Schema is an immutable, shared view of one event's decoded metadata: the
// raw TDH buffer plus the fixed TRACE_EVENT_INFO header pointing into it.
// Once created it is never mutated, so it's safe to hand the same *Schema
// to many concurrent decodes.
type Schema struct {
	Buffer []byte
	Info   *winapi.TraceEventInfo
}

// Cache is a fixed-capacity, LRU-evicted schema cache. It is safe for
// concurrent use; golang-lru/v2's Cache already serializes internally, so
// spec.md §4.2's "single hash lookup + list splice" critical section maps
// directly onto it without an extra layer of locking.
type Cache struct {
	lru *lru.Cache[Key, *Schema]
}

// New creates a cache with the given capacity. A capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.New[Key, *Schema](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Get returns the cached schema for key, or (nil, false) on miss. Callers
// resolve the miss themselves (via TDH) and call Put.
func (c *Cache) Get(key Key) (*Schema, bool) {
	return c.lru.Get(key)
}

// Put inserts or replaces the schema for key, possibly evicting the LRU
// entry if the cache is at capacity.
func (c *Cache) Put(key Key, schema *Schema) {
	c.lru.Add(key, schema)
}

// Clear drops every cached entry, per spec.md §4.2's clear() contract.
func (c *Cache) Clear() {
	c.lru.Purge()
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// KeyForRecord derives the cache key for a raw event record. isTraceLogging
// selects whether blob is hashed into the key; blob is the record's
// EVENT_HEADER_EXT_TYPE_SCHEMA_TL extended-data payload, or nil for
// classic events.
func KeyForRecord(providerID windows.GUID, eventID uint16, isTraceLogging bool, blob []byte) Key {
	if !isTraceLogging || len(blob) == 0 {
		return Key{ProviderID: providerID, EventID: eventID}
	}
	h := fnv.New64a()
	h.Write(blob)
	return Key{ProviderID: providerID, EventID: eventID, BlobHash: h.Sum64()}
}
