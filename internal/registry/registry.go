// Package registry maps backend names to factories and holds the process
// configuration: the active backend name, the config and the logger.
//
// The configuration lives in a versioned snapshot behind an atomic pointer,
// so reads never take a lock; writers serialize on a mutex and publish a new
// snapshot. Backend instances are created lazily on first use, with the
// configuration current at that moment, and cached by name so every value
// created through the same name shares one handle.
//
// The backend used by an operation is chosen, in decreasing precedence, by
// an explicit argument, by WithBackend on the context, and by the active
// snapshot (see Use for scoped process-wide overrides).
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/backend/native"
	"github.com/vishal-h/explorer/internal/config"
	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// Snapshot is one immutable version of the process configuration.
type Snapshot struct {
	Version   uint64
	Backend   string
	Config    config.Config
	Logger    *slog.Logger
	Allocator memory.Allocator
}

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]backend.Factory)

	instancesMu sync.Mutex
	instances   = make(map[string]backend.Backend)

	writeMu sync.Mutex
	current atomic.Pointer[Snapshot]
)

func init() {
	Register(native.Name, native.Factory)
	cfg := config.NewConfig()
	current.Store(&Snapshot{
		Version:   1,
		Backend:   cfg.DefaultBackend,
		Config:    cfg,
		Logger:    discard(),
		Allocator: memory.DefaultAllocator,
	})
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Register adds a backend factory. Registering a name again replaces the
// factory; instances already created are kept.
func Register(name string, factory backend.Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// IsRegistered checks if a backend name is registered.
func IsRegistered(name string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// List returns all registered backend names (sorted).
func List() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownBackendError is returned when an unregistered name is requested.
type UnknownBackendError struct {
	Name      string
	Available []string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown backend %q, available backends: %v", e.Name, e.Available)
}

// Is makes UnknownBackendError match the invalid input sentinel.
func (e *UnknownBackendError) Is(target error) bool {
	return target == dferrors.ErrInvalidInput
}

// Current returns the active snapshot.
func Current() *Snapshot {
	return current.Load()
}

// Logger returns the process logger.
func Logger() *slog.Logger {
	return Current().Logger
}

// update publishes a snapshot derived from the current one.
func update(fn func(*Snapshot)) *Snapshot {
	writeMu.Lock()
	defer writeMu.Unlock()
	prev := current.Load()
	next := *prev
	fn(&next)
	next.Version = prev.Version + 1
	current.Store(&next)
	return prev
}

// Configure replaces the process configuration. A nil logger discards
// output. The active backend becomes cfg.DefaultBackend.
func Configure(cfg config.Config, logger *slog.Logger) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return dferrors.NewInvalidInputError("Configure", err.Error())
	}
	if !IsRegistered(cfg.DefaultBackend) {
		return &UnknownBackendError{Name: cfg.DefaultBackend, Available: List()}
	}
	if logger == nil {
		logger = discard()
	}
	update(func(s *Snapshot) {
		s.Config = cfg
		s.Backend = cfg.DefaultBackend
		s.Logger = logger
	})
	logger.Debug("configuration updated", "backend", cfg.DefaultBackend)
	return nil
}

// SetAllocator sets the allocator new backend instances build with.
func SetAllocator(mem memory.Allocator) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	update(func(s *Snapshot) { s.Allocator = mem })
}

// SetDefault makes name the active backend.
func SetDefault(name string) error {
	if !IsRegistered(name) {
		return &UnknownBackendError{Name: name, Available: List()}
	}
	update(func(s *Snapshot) { s.Backend = name })
	return nil
}

// Use runs fn with name as the active backend and restores the previous
// backend afterwards, even if fn panics. Configuration and allocator changes
// made inside fn are kept. Concurrent callers see the override for its
// duration.
func Use(name string, fn func() error) error {
	if !IsRegistered(name) {
		return &UnknownBackendError{Name: name, Available: List()}
	}
	prev := update(func(s *Snapshot) { s.Backend = name })
	prev.Logger.Debug("backend override", "backend", name)
	defer update(func(s *Snapshot) { s.Backend = prev.Backend })
	return fn()
}

// Get returns the cached instance of the named backend, creating it with
// the current configuration on first use.
func Get(name string) (backend.Backend, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, &UnknownBackendError{Name: name, Available: List()}
	}

	instancesMu.Lock()
	defer instancesMu.Unlock()
	if b, ok := instances[name]; ok {
		return b, nil
	}
	snap := Current()
	b, err := factory(backend.Options{Config: snap.Config, Logger: snap.Logger, Allocator: snap.Allocator})
	if err != nil {
		return nil, fmt.Errorf("creating backend %s: %w", name, err)
	}
	instances[name] = b
	snap.Logger.Debug("backend instantiated", "backend", b.Handle().String())
	return b, nil
}

// New creates a fresh, uncached instance of the named backend.
func New(name string) (backend.Backend, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, &UnknownBackendError{Name: name, Available: List()}
	}
	snap := Current()
	return factory(backend.Options{Config: snap.Config, Logger: snap.Logger, Allocator: snap.Allocator})
}

// Reset drops every cached instance so the next Get creates new ones.
func Reset() {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	instances = make(map[string]backend.Backend)
}

type ctxKey struct{}

// WithBackend returns a context under which Resolve selects b.
func WithBackend(ctx context.Context, b backend.Backend) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// FromContext returns the backend set with WithBackend.
func FromContext(ctx context.Context) (backend.Backend, bool) {
	b, ok := ctx.Value(ctxKey{}).(backend.Backend)
	return b, ok && b != nil
}

// Resolve picks the backend for an operation: explicit when non-nil, else
// the one carried by ctx, else the active backend.
func Resolve(ctx context.Context, explicit backend.Backend) (backend.Backend, error) {
	if explicit != nil {
		return explicit, nil
	}
	if ctx != nil {
		if b, ok := FromContext(ctx); ok {
			return b, nil
		}
	}
	return Get(Current().Backend)
}
