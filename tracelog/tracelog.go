//go:build windows

// Package tracelog implements the append-only decoded-event store and its
// filtered view, per spec.md §4.4. It is grounded on
// EventTraceKit.Logger/EtwTraceLog.cpp and EventTraceKit.EtwCore's
// TraceLog (ITraceLog.h names append/count/get/clear/update_schema almost
// verbatim); the bump-allocator-per-log storage strategy in particular
// mirrors TraceLog.cpp's slab allocator, expressed here as a plain Go
// slice (Go's GC already amortizes the allocation cost a bump allocator
// exists to avoid in C++, so the slab is not reproduced — see DESIGN.md).
package tracelog

import (
	"sync"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"

	"github.com/etwkit/tracekit/eventinfocache"
	"github.com/etwkit/tracekit/internal/winapi"
	"github.com/etwkit/tracekit/schemaregistry"

	etw "github.com/etwkit/tracekit"
	"github.com/etwkit/tracekit/decoder"
)

// Event is the value stored in the log for each appended record: the deep
// copy of the raw record, a borrowed reference to its schema, and the
// decoded property tree, per spec.md §3's Decoded Event entity.
type Event struct {
	Raw     etw.RawEventRecord
	Schema  *eventinfocache.Schema
	Decoded decoder.Decoded
}

// Predicate filters the log for a FilteredView, given the raw record and
// its schema (nil when none was found; the schema size is len(schema.Buffer)).
type Predicate func(raw etw.RawEventRecord, schema *eventinfocache.Schema) bool

// Log is an append-only, thread-safe sequence of decoded events with
// change notifications, per spec.md §4.4. Zero value is not usable; use
// New.
type Log struct {
	mu sync.RWMutex

	events []Event

	cache *eventinfocache.Cache
	token *schemaregistry.Token

	onChanged []func(count int)

	pointerSize uintptr
	log         *zap.Logger
}

// New creates an empty log. pointerSize is the session's pointer width
// (4 or 8), used by the decoder for POINTER/SIZE_T properties.
func New(cache *eventinfocache.Cache, token *schemaregistry.Token, pointerSize uintptr) *Log {
	return &Log{cache: cache, token: token, pointerSize: pointerSize, log: zap.NewNop()}
}

// SetLogger wires a logger used for verbose per-event debug dumps. nil
// resets it to a no-op logger.
func (l *Log) SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	l.mu.Lock()
	l.log = log
	l.mu.Unlock()
}

// SetPointerSize updates the pointer width used to decode POINTER/SIZE_T
// properties. Hosts normally don't know this until the Processor reports
// the consuming logger's TRACE_LOGFILE_HEADER.PointerSize after Start.
func (l *Log) SetPointerSize(bytes uintptr) {
	l.mu.Lock()
	l.pointerSize = bytes
	l.mu.Unlock()
}

// OnChanged registers a callback fired after every append/clear, with the
// log's new count. Per spec.md §4.4, the callback runs outside the
// exclusive section to avoid reentrancy into the log from observers.
func (l *Log) OnChanged(fn func(count int)) {
	l.mu.Lock()
	l.onChanged = append(l.onChanged, fn)
	l.mu.Unlock()
}

// Append deep-copies record, resolves its schema (via the cache, falling
// back to a fresh TDH lookup on miss), decodes it, and appends the result.
// Fires the events-changed notification with the new count after releasing
// the write lock.
func (l *Log) Append(record *winapi.EventRecord) error {
	schema, err := l.resolveSchema(record)
	if err != nil {
		return err
	}

	l.mu.RLock()
	pointerSize := l.pointerSize
	l.mu.RUnlock()

	decoded := decoder.Decoded{}
	if schema != nil {
		decoded = decoder.Decode(record, schema, pointerSize)
	}

	raw := etw.CopyRawEventRecord(etw.NewRawEventRecord(record))
	event := Event{Raw: raw, Schema: schema, Decoded: decoded}

	l.mu.Lock()
	if ce := l.log.Check(zap.DebugLevel, "decoded event appended"); ce != nil {
		ce.Write(zap.String("dump", spew.Sdump(event)))
	}
	l.events = append(l.events, event)
	count := len(l.events)
	l.mu.Unlock()

	l.notify(count)
	return nil
}

// resolveSchema fetches the cached schema for record, populating the cache
// on miss via TdhGetEventInformation. Returns (nil, nil) when the provider
// has no decodable schema — not an error, per spec.md §3's Event Schema
// "unset descriptor is legal" note carried through to decode time.
func (l *Log) resolveSchema(record *winapi.EventRecord) (*eventinfocache.Schema, error) {
	blob := etw.TraceLoggingBlob(record)
	key := eventinfocache.KeyForRecord(
		record.EventHeader.ProviderID, record.EventHeader.EventDescriptor.ID, blob != nil, blob,
	)

	if schema, ok := l.cache.Get(key); ok {
		return schema, nil
	}

	buf, info, err := winapi.GetEventInformation(record)
	if err != nil {
		return nil, nil
	}
	schema := &eventinfocache.Schema{Buffer: buf, Info: info}
	l.cache.Put(key, schema)
	return schema, nil
}

func (l *Log) notify(count int) {
	l.mu.RLock()
	fns := append([]func(int){}, l.onChanged...)
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(count)
	}
}

// Count returns the number of appended events.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Get returns the event at index i, or (Event{}, false) if i >= Count().
func (l *Log) Get(i int) (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.events) {
		return Event{}, false
	}
	return l.events[i], true
}

// Clear resets the log to empty and fires a zero-count notification.
func (l *Log) Clear() {
	l.mu.Lock()
	l.events = nil
	l.cache.Clear()
	l.mu.Unlock()
	l.notify(0)
}

// UpdateSchema unions the log's registry token with additional manifest
// paths. Existing cache entries remain valid; new lookups pick up the new
// manifests, per spec.md §4.4's update_schema contract.
func (l *Log) UpdateSchema(manifestPaths []string) error {
	if l.token == nil {
		return nil
	}
	return l.token.Update(manifestPaths)
}
