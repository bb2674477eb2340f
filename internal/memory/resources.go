// Package memory manages the lifecycle of Arrow resources acquired while a
// plan executes and estimates the memory held by records.
//
// A ResourceTracker owns every intermediate record or array an execution
// builds. On success the final result is detached and the rest released;
// on failure or cancellation everything is released, so no partial results
// outlive the call.
package memory

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Resource is anything holding reference-counted Arrow buffers.
type Resource interface {
	Release()
}

// ResourceTracker collects resources for release in one place. It is safe
// for concurrent use by the workers of a single execution.
type ResourceTracker struct {
	allocator memory.Allocator
	mu        sync.Mutex
	resources []Resource
}

// NewResourceTracker creates a tracker whose owner allocates from allocator.
// A nil allocator selects the Arrow default.
func NewResourceTracker(allocator memory.Allocator) *ResourceTracker {
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}
	return &ResourceTracker{allocator: allocator}
}

// Allocator returns the allocator executions should build with.
func (rt *ResourceTracker) Allocator() memory.Allocator {
	return rt.allocator
}

// Track takes ownership of r and returns it.
func Track[R Resource](rt *ResourceTracker, r R) R {
	rt.mu.Lock()
	rt.resources = append(rt.resources, r)
	rt.mu.Unlock()
	return r
}

// Detach hands r back to the caller; it is no longer released by the tracker.
// Detach reports whether r was tracked.
func (rt *ResourceTracker) Detach(r Resource) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for i, tracked := range rt.resources {
		if tracked == r {
			rt.resources = append(rt.resources[:i], rt.resources[i+1:]...)
			return true
		}
	}
	return false
}

// TrackedCount returns the number of tracked resources.
func (rt *ResourceTracker) TrackedCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.resources)
}

// ReleaseAll releases every tracked resource, newest first.
func (rt *ResourceTracker) ReleaseAll() {
	rt.mu.Lock()
	resources := rt.resources
	rt.resources = nil
	rt.mu.Unlock()

	for i := len(resources) - 1; i >= 0; i-- {
		resources[i].Release()
	}
}

// EstimateRecord returns the number of buffer bytes referenced by rec.
// Buffers shared between columns are counted once per reference.
func EstimateRecord(rec arrow.Record) int64 {
	if rec == nil {
		return 0
	}
	var total int64
	for _, col := range rec.Columns() {
		total += EstimateArray(col)
	}
	return total
}

// EstimateArray returns the number of buffer bytes referenced by arr,
// including children and dictionaries.
func EstimateArray(arr arrow.Array) int64 {
	if arr == nil {
		return 0
	}
	return estimateData(arr.Data())
}

func estimateData(data arrow.ArrayData) int64 {
	if data == nil {
		return 0
	}
	// Dictionary() hands back a typed nil for plain arrays.
	if d, ok := data.(*array.Data); ok && d == nil {
		return 0
	}
	var total int64
	for _, buf := range data.Buffers() {
		if buf != nil {
			total += int64(buf.Len())
		}
	}
	for _, child := range data.Children() {
		total += estimateData(child)
	}
	if dict := data.Dictionary(); dict != nil {
		total += estimateData(dict)
	}
	return total
}
