package explorer

import (
	"sync"
)

// Releasable represents any resource that can be released to free memory.
//
// DataFrame and Series hold reference-counted Arrow buffers. Always call
// Release when done with one; the recommended pattern is defer:
//
//	df, err := explorer.NewDataFrame(ctx, ids, names)
//	if err != nil {
//		return err
//	}
//	defer df.Release()
type Releasable interface {
	Release()
}

// MemoryManager releases many resources at once.
//
// It suits pipelines creating many intermediate frames, where a defer per
// value is impractical. Resources are released in reverse order of
// tracking. A MemoryManager is safe for concurrent use.
//
// Example:
//
//	err := explorer.WithMemoryManager(func(m *explorer.MemoryManager) error {
//		filtered, err := explorer.Tracked(m)(df.Filter(ctx, explorer.Col("age").Gt(30)))
//		if err != nil {
//			return err
//		}
//		out, err := explorer.Tracked(m)(filtered.Select(ctx, "name"))
//		...
//	})
//	// every tracked frame is released here
type MemoryManager struct {
	mu        sync.Mutex
	resources []Releasable
}

// NewMemoryManager creates an empty memory manager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{}
}

// Track adds a resource to be released by ReleaseAll. Nil resources are
// ignored.
func (m *MemoryManager) Track(resource Releasable) {
	if resource == nil {
		return
	}
	m.mu.Lock()
	m.resources = append(m.resources, resource)
	m.mu.Unlock()
}

// Count returns the number of tracked resources.
func (m *MemoryManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resources)
}

// ReleaseAll releases every tracked resource, newest first, and forgets
// them.
func (m *MemoryManager) ReleaseAll() {
	m.mu.Lock()
	resources := m.resources
	m.resources = nil
	m.mu.Unlock()

	for i := len(resources) - 1; i >= 0; i-- {
		resources[i].Release()
	}
}

// Tracked returns a function that tracks the result of an operation
// returning a resource and an error:
//
//	df, err := explorer.Tracked(m)(df.Select(ctx, "a"))
func Tracked(m *MemoryManager) func(*DataFrame, error) (*DataFrame, error) {
	return func(df *DataFrame, err error) (*DataFrame, error) {
		if err != nil {
			return nil, err
		}
		m.Track(df)
		return df, nil
	}
}

// TrackedSeries is Tracked for operations returning a series.
func TrackedSeries(m *MemoryManager) func(*Series, error) (*Series, error) {
	return func(s *Series, err error) (*Series, error) {
		if err != nil {
			return nil, err
		}
		m.Track(s)
		return s, nil
	}
}

// WithDataFrame creates a DataFrame with factory, passes it to fn and
// releases it afterwards.
func WithDataFrame(factory func() (*DataFrame, error), fn func(*DataFrame) error) error {
	df, err := factory()
	if err != nil {
		return err
	}
	defer df.Release()
	return fn(df)
}

// WithSeries creates a Series with factory, passes it to fn and releases it
// afterwards.
func WithSeries(factory func() (*Series, error), fn func(*Series) error) error {
	s, err := factory()
	if err != nil {
		return err
	}
	defer s.Release()
	return fn(s)
}

// WithMemoryManager runs fn with a new memory manager and releases every
// resource it tracked afterwards.
func WithMemoryManager(fn func(*MemoryManager) error) error {
	manager := NewMemoryManager()
	defer manager.ReleaseAll()
	return fn(manager)
}
