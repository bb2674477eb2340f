// Package explorer provides series and dataframes whose operations run on a
// pluggable backend, either eagerly or lazily.
// This package is the sole public API for the library.
//
// Every value belongs to the backend that created it. Operations combining
// values of two backends fail with ErrBackendMismatch; Transfer copies a
// frame to another backend explicitly. The backend of a new value is chosen,
// in decreasing precedence, by an OnBackend or WithBackend option, by
// ContextWithBackend on the context, and by the active backend (see
// UseBackend and SetDefaultBackend).
//
// Eager operations run immediately. Lazy() records the same operations as a
// plan that is optimized and executed on Collect:
//
//	df, _ := explorer.ReadCSV(ctx, explorer.File("sales.csv"))
//	defer df.Release()
//	out, err := df.Lazy().
//		Filter(explorer.Col("amount").Gt(100)).
//		GroupBy("region").
//		Agg(explorer.Col("amount").Sum().As("total")).
//		Collect(ctx)
package explorer

import (
	"context"
	"log/slog"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/config"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/io"
	"github.com/vishal-h/explorer/internal/plan"
	"github.com/vishal-h/explorer/internal/registry"
)

// Types shared with the internal packages.
type (
	// DType is the element type of a series.
	DType = dtype.DType
	// Field is a named type.
	Field = dtype.Field
	// Schema is an ordered list of uniquely named fields.
	Schema = dtype.Schema
	// Backend executes operations. See internal/backend for the contract.
	Backend = backend.Backend
	// Config is the process configuration.
	Config = config.Config
	// SortKey orders rows by one column.
	SortKey = plan.SortKey
	// JoinSpec describes a join.
	JoinSpec = plan.JoinSpec
	// JoinHow selects the join semantics.
	JoinHow = plan.JoinHow
	// ConcatHow selects row-wise or column-wise concatenation.
	ConcatHow = plan.ConcatHow
	// RenamePair renames one column.
	RenamePair = plan.RenamePair
	// PivotSpec describes a long-to-wide reshape.
	PivotSpec = backend.PivotSpec
	// Error is the error type returned by every operation.
	Error = dferrors.DataFrameError
)

// Element types.
var (
	Null        = dtype.Null
	Boolean     = dtype.Boolean
	Int8        = dtype.Int8
	Int16       = dtype.Int16
	Int32       = dtype.Int32
	Int64       = dtype.Int64
	UInt8       = dtype.UInt8
	UInt16      = dtype.UInt16
	UInt32      = dtype.UInt32
	UInt64      = dtype.UInt64
	Float32     = dtype.Float32
	Float64     = dtype.Float64
	String      = dtype.String
	Binary      = dtype.Binary
	Date        = dtype.Date
	Time        = dtype.Time
	Categorical = dtype.Categorical
)

// ParseDType parses a dtype string such as "i64", "datetime[us]" or
// "list[str]".
func ParseDType(s string) (DType, error) { return dtype.Parse(s) }

const (
	InnerJoin = plan.JoinInner
	LeftJoin  = plan.JoinLeft
	RightJoin = plan.JoinRight
	OuterJoin = plan.JoinOuter
	CrossJoin = plan.JoinCross

	ConcatRows    = plan.ConcatRows
	ConcatColumns = plan.ConcatColumns
)

// Error categories, matched with errors.Is.
var (
	ErrInvalidInput    = dferrors.ErrInvalidInput
	ErrColumnNotFound  = dferrors.ErrColumnNotFound
	ErrType            = dferrors.ErrType
	ErrShape           = dferrors.ErrShape
	ErrExecution       = dferrors.ErrExecution
	ErrCancelled       = dferrors.ErrCancelled
	ErrBackendMismatch = dferrors.ErrBackendMismatch
	ErrInternal        = dferrors.ErrInternal
)

// Option configures an operation: the backend it runs on and, for reads
// and writes, the format options.
type Option func(*options)

type options struct {
	backend   Backend
	name      string
	ioOptions *io.Options
}

// WithBackend runs the operation on b.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

// OnBackend runs the operation on the registered backend called name.
func OnBackend(name string) Option {
	return func(o *options) { o.name = name }
}

// resolve picks the backend for a new value.
func resolve(ctx context.Context, opts []Option) (Backend, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.backend == nil && o.name != "" {
		b, err := registry.Get(o.name)
		if err != nil {
			return nil, err
		}
		o.backend = b
	}
	return registry.Resolve(ctx, o.backend)
}

// GetBackend returns the shared instance of the registered backend name.
func GetBackend(name string) (Backend, error) { return registry.Get(name) }

// NewBackend returns a fresh instance of the registered backend name. Its
// values do not mix with those of any other instance.
func NewBackend(name string) (Backend, error) { return registry.New(name) }

// Backends lists the registered backend names.
func Backends() []string { return registry.List() }

// RegisterBackend adds a backend factory under name.
func RegisterBackend(name string, factory backend.Factory) { registry.Register(name, factory) }

// SetDefaultBackend makes name the active backend of the process.
func SetDefaultBackend(name string) error { return registry.SetDefault(name) }

// UseBackend runs fn with name as the active backend and restores the
// previous one afterwards.
func UseBackend(name string, fn func() error) error { return registry.Use(name, fn) }

// ContextWithBackend returns a context under which new values are created
// on b.
func ContextWithBackend(ctx context.Context, b Backend) context.Context {
	return registry.WithBackend(ctx, b)
}

// NewConfig returns the default configuration.
func NewConfig() Config { return config.NewConfig() }

// LoadConfig reads a YAML or JSON configuration file, applying EXPLORER_*
// environment overrides. An empty path reads the environment only.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Configure replaces the process configuration and logger. Backends already
// instantiated keep the configuration they were created with.
func Configure(cfg Config, logger *slog.Logger) error { return registry.Configure(cfg, logger) }
