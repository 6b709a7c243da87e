//go:build windows

package tracelog

import "sync"

// FilteredView is a derived ordered sequence over a Log: the subset of
// indices for which a predicate holds, re-indexed whenever the predicate or
// the underlying log changes, per spec.md §3's Filtered View entity.
//
// A FilteredView must be driven by the owner calling Refresh from the
// Log's OnChanged callback; it does not subscribe itself, so that multiple
// views can share one subscription slot cheaply.
type FilteredView struct {
	mu      sync.RWMutex
	log     *Log
	pred    Predicate
	indices []int
}

// NewFilteredView creates a view over log with no predicate (matches
// everything). Call SetFilter to narrow it.
func NewFilteredView(log *Log) *FilteredView {
	v := &FilteredView{log: log}
	v.reindex()
	return v
}

// SetFilter atomically replaces the predicate and re-indexes against the
// current log contents. A nil predicate matches everything. The view has
// no observers of its own, so SetFilter sends no notification; the new
// Count is visible once SetFilter returns.
func (v *FilteredView) SetFilter(pred Predicate) {
	v.mu.Lock()
	v.pred = pred
	v.reindexLocked()
	v.mu.Unlock()
}

// Refresh re-indexes the view against the log's current contents. Call
// this from the log's OnChanged callback to keep the view live.
func (v *FilteredView) Refresh(int) {
	v.reindex()
}

func (v *FilteredView) reindex() {
	v.mu.Lock()
	v.reindexLocked()
	v.mu.Unlock()
}

func (v *FilteredView) reindexLocked() {
	total := v.log.Count()
	if v.pred == nil {
		indices := make([]int, total)
		for i := range indices {
			indices[i] = i
		}
		v.indices = indices
		return
	}

	indices := v.indices[:0]
	for i := 0; i < total; i++ {
		ev, ok := v.log.Get(i)
		if !ok {
			continue
		}
		if v.pred(ev.Raw, ev.Schema) {
			indices = append(indices, i)
		}
	}
	v.indices = indices
}

// Count returns the number of entries currently matching the filter.
func (v *FilteredView) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.indices)
}

// Get returns the i-th matching event from the underlying log, or
// (Event{}, false) if i is out of range.
func (v *FilteredView) Get(i int) (Event, bool) {
	v.mu.RLock()
	if i < 0 || i >= len(v.indices) {
		v.mu.RUnlock()
		return Event{}, false
	}
	logIndex := v.indices[i]
	v.mu.RUnlock()
	return v.log.Get(logIndex)
}
