package plan

import (
	"fmt"
	"strings"

	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// DefaultJoinSuffix is appended to right-hand columns whose names collide
// with a left-hand column.
const DefaultJoinSuffix = "_right"

// JoinHow selects the join semantics.
type JoinHow int

const (
	JoinInner JoinHow = iota
	JoinLeft
	JoinRight
	JoinOuter
	JoinCross
)

func (h JoinHow) String() string {
	switch h {
	case JoinInner:
		return "inner"
	case JoinLeft:
		return "left"
	case JoinRight:
		return "right"
	case JoinOuter:
		return "outer"
	case JoinCross:
		return "cross"
	default:
		return fmt.Sprintf("join(%d)", int(h))
	}
}

// ParseJoinHow maps a join name to its JoinHow.
func ParseJoinHow(s string) (JoinHow, error) {
	switch strings.ToLower(s) {
	case "inner":
		return JoinInner, nil
	case "left":
		return JoinLeft, nil
	case "right":
		return JoinRight, nil
	case "outer", "full":
		return JoinOuter, nil
	case "cross":
		return JoinCross, nil
	default:
		return 0, dferrors.NewInvalidInputError("Join", fmt.Sprintf("unknown join type %q", s))
	}
}

// JoinSpec describes a join. RightRename is filled in by ResolveJoin with
// the output name of every right-hand column that had to be renamed; once
// set it fixes the output names even if the inputs are later narrowed.
type JoinSpec struct {
	How         JoinHow
	LeftOn      []string
	RightOn     []string
	Suffix      string
	RightRename map[string]string
}

func (s JoinSpec) String() string {
	if s.How == JoinCross {
		return "cross"
	}
	return fmt.Sprintf("%s on %s = %s", s.How, bracket(s.LeftOn), bracket(s.RightOn))
}

// IsRightKey reports whether name is one of the right-hand key columns.
func (s JoinSpec) IsRightKey(name string) bool {
	for _, k := range s.RightOn {
		if k == name {
			return true
		}
	}
	return false
}

// RightOutputName is the output name of the right-hand column name.
func (s JoinSpec) RightOutputName(name string) string {
	if to, ok := s.RightRename[name]; ok {
		return to
	}
	return name
}

// ResolveJoin validates a join of inputs with the given schemas and derives
// its output schema.
//
// The output holds every left column followed by the right non-key columns.
// Key columns appear once, under their left names: inner and left joins
// take the key values from the left, right joins from the right and outer
// joins coalesce both. A cross join keeps every column of both sides. A right
// column whose name is already taken gets Suffix appended; if that name is
// taken too the join fails and asks for an explicit rename.
func ResolveJoin(left, right *dtype.Schema, spec JoinSpec) (JoinSpec, *dtype.Schema, error) {
	out := spec
	out.LeftOn = append([]string(nil), spec.LeftOn...)
	out.RightOn = append([]string(nil), spec.RightOn...)
	if out.Suffix == "" {
		out.Suffix = DefaultJoinSuffix
	}

	if spec.How == JoinCross {
		if len(spec.LeftOn) > 0 || len(spec.RightOn) > 0 {
			return JoinSpec{}, nil, dferrors.NewInvalidInputError("Join", "cross joins take no key columns")
		}
	} else {
		if len(spec.LeftOn) == 0 || len(spec.LeftOn) != len(spec.RightOn) {
			return JoinSpec{}, nil, dferrors.NewInvalidInputError("Join",
				fmt.Sprintf("join needs the same non-zero number of left and right keys, got %d and %d",
					len(spec.LeftOn), len(spec.RightOn)))
		}
		if err := left.Require("Join", spec.LeftOn...); err != nil {
			return JoinSpec{}, nil, err
		}
		if err := right.Require("Join", spec.RightOn...); err != nil {
			return JoinSpec{}, nil, err
		}
		for i := range spec.LeftOn {
			lt, _ := left.Lookup(spec.LeftOn[i])
			rt, _ := right.Lookup(spec.RightOn[i])
			if !lt.Equal(rt) {
				return JoinSpec{}, nil, dferrors.NewTypeError("Join", spec.LeftOn[i],
					fmt.Sprintf("join keys %s (%s) and %s (%s) have different types",
						spec.LeftOn[i], lt, spec.RightOn[i], rt))
			}
			if lt.Kind == dtype.KindList || lt.Kind == dtype.KindStruct {
				return JoinSpec{}, nil, dferrors.NewTypeError("Join", spec.LeftOn[i],
					fmt.Sprintf("cannot join on %s", lt))
			}
		}
	}

	fields := left.Fields()
	taken := make(map[string]bool, left.Len()+right.Len())
	for _, f := range fields {
		taken[f.Name] = true
	}

	resolved := spec.RightRename != nil
	rename := make(map[string]string)
	for _, f := range right.Fields() {
		if out.How != JoinCross && out.IsRightKey(f.Name) {
			continue
		}
		name := f.Name
		switch {
		case resolved:
			name = spec.RightOutputName(f.Name)
		case taken[name]:
			name += out.Suffix
		}
		if taken[name] {
			return JoinSpec{}, nil, dferrors.NewValidationError("Join", f.Name,
				fmt.Sprintf("output column %q is already taken; rename the column explicitly", name))
		}
		taken[name] = true
		if name != f.Name {
			rename[f.Name] = name
		}
		fields = append(fields, dtype.Field{Name: name, Type: f.Type})
	}
	out.RightRename = rename

	schema, err := dtype.NewSchema(fields...)
	if err != nil {
		return JoinSpec{}, nil, dferrors.Reframe(err, "Join", "")
	}
	return out, schema, nil
}
