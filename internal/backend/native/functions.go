package native

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/expr"
)

func (ev *evaluator) call(c *expr.Call) (arrow.Array, error) {
	switch c.Fn {
	case expr.FnUpcase, expr.FnDowncase, expr.FnStrip:
		return ev.mapStrings(c.Args[0], stringTransforms[c.Fn])
	case expr.FnLength:
		return ev.stringLength(c.Args[0])
	case expr.FnContains, expr.FnStartsWith, expr.FnEndsWith:
		return ev.matchStrings(c)
	case expr.FnConcat:
		return ev.concatStrings(c.Args)
	case expr.FnYear, expr.FnMonth, expr.FnDay, expr.FnWeekday,
		expr.FnHour, expr.FnMinute, expr.FnSecond:
		return ev.datetimePart(c.Fn, c.Args[0])
	default:
		return nil, dferrors.NewInternalError("Evaluate", fmt.Errorf("unknown function %q", c.Fn))
	}
}

var stringTransforms = map[expr.Function]func(string) string{
	expr.FnUpcase:   strings.ToUpper,
	expr.FnDowncase: strings.ToLower,
	expr.FnStrip:    strings.TrimSpace,
}

func (ev *evaluator) stringArg(e expr.Expr) (*array.String, error) {
	arr, err := ev.eval(e)
	if err != nil {
		return nil, err
	}
	s, ok := arr.(*array.String)
	if !ok {
		arr.Release()
		return nil, dferrors.NewTypeError("Evaluate", expr.OutputName(e),
			fmt.Sprintf("expected a string column, got %s", arr.DataType()))
	}
	return s, nil
}

func (ev *evaluator) mapStrings(arg expr.Expr, fn func(string) string) (arrow.Array, error) {
	s, err := ev.stringArg(arg)
	if err != nil {
		return nil, err
	}
	defer s.Release()

	bld := array.NewStringBuilder(ev.b.mem)
	defer bld.Release()
	bld.Reserve(s.Len())
	for i := 0; i < s.Len(); i++ {
		if s.IsNull(i) {
			bld.AppendNull()
			continue
		}
		bld.Append(fn(s.Value(i)))
	}
	return bld.NewArray(), nil
}

// stringLength counts characters, not bytes.
func (ev *evaluator) stringLength(arg expr.Expr) (arrow.Array, error) {
	s, err := ev.stringArg(arg)
	if err != nil {
		return nil, err
	}
	defer s.Release()

	bld := array.NewUint32Builder(ev.b.mem)
	defer bld.Release()
	bld.Reserve(s.Len())
	for i := 0; i < s.Len(); i++ {
		if s.IsNull(i) {
			bld.AppendNull()
			continue
		}
		bld.Append(uint32(utf8.RuneCountInString(s.Value(i))))
	}
	return bld.NewArray(), nil
}

func (ev *evaluator) matchStrings(c *expr.Call) (arrow.Array, error) {
	s, err := ev.stringArg(c.Args[0])
	if err != nil {
		return nil, err
	}
	defer s.Release()

	lit, ok := c.Args[1].(*expr.Literal)
	if !ok {
		return nil, dferrors.NewTypeError("Evaluate", expr.OutputName(c), "pattern must be a literal")
	}
	if lit.Value == nil {
		return column.Repeat(ev.b.mem, dtype.Boolean, nil, s.Len())
	}
	pattern := lit.Value.(string)
	match := strings.Contains
	switch c.Fn {
	case expr.FnStartsWith:
		match = strings.HasPrefix
	case expr.FnEndsWith:
		match = strings.HasSuffix
	}

	bld := array.NewBooleanBuilder(ev.b.mem)
	defer bld.Release()
	bld.Reserve(s.Len())
	for i := 0; i < s.Len(); i++ {
		if s.IsNull(i) {
			bld.AppendNull()
			continue
		}
		bld.Append(match(s.Value(i), pattern))
	}
	return bld.NewArray(), nil
}

// concatStrings joins its arguments row by row; a missing argument makes
// the row missing.
func (ev *evaluator) concatStrings(args []expr.Expr) (arrow.Array, error) {
	parts := make([]*array.String, 0, len(args))
	defer func() {
		for _, p := range parts {
			p.Release()
		}
	}()
	for _, a := range args {
		s, err := ev.stringArg(a)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}

	bld := array.NewStringBuilder(ev.b.mem)
	defer bld.Release()
	bld.Reserve(ev.n)
	var sb strings.Builder
rows:
	for i := 0; i < ev.n; i++ {
		sb.Reset()
		for _, p := range parts {
			if p.IsNull(i) {
				bld.AppendNull()
				continue rows
			}
			sb.WriteString(p.Value(i))
		}
		bld.Append(sb.String())
	}
	return bld.NewArray(), nil
}

// datetimePart extracts a calendar or clock field. Datetimes with a time
// zone are read in that zone; weekday follows ISO 8601 (Monday is 1).
func (ev *evaluator) datetimePart(fn expr.Function, arg expr.Expr) (arrow.Array, error) {
	arr, err := ev.eval(arg)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	var loc *time.Location
	if ts, ok := arr.DataType().(*arrow.TimestampType); ok && ts.TimeZone != "" {
		if loc, err = time.LoadLocation(ts.TimeZone); err != nil {
			return nil, err
		}
	}

	out := dtype.Int8
	if fn == expr.FnYear {
		out = dtype.Int32
	}
	values := make([]any, arr.Len())
	for i := range values {
		switch v := column.Value(arr, i).(type) {
		case time.Time:
			if loc != nil {
				v = v.In(loc)
			}
			values[i] = calendarField(fn, v)
		case time.Duration:
			values[i] = clockField(fn, v)
		}
	}
	return column.Build(ev.b.mem, out, values)
}

func calendarField(fn expr.Function, t time.Time) any {
	switch fn {
	case expr.FnYear:
		return int64(t.Year())
	case expr.FnMonth:
		return int64(t.Month())
	case expr.FnDay:
		return int64(t.Day())
	case expr.FnWeekday:
		wd := int64(t.Weekday())
		if wd == 0 {
			wd = 7
		}
		return wd
	case expr.FnHour:
		return int64(t.Hour())
	case expr.FnMinute:
		return int64(t.Minute())
	default:
		return int64(t.Second())
	}
}

// clockField reads a field of a time of day.
func clockField(fn expr.Function, d time.Duration) any {
	switch fn {
	case expr.FnHour:
		return int64(d / time.Hour)
	case expr.FnMinute:
		return int64(d % time.Hour / time.Minute)
	case expr.FnSecond:
		return int64(d % time.Minute / time.Second)
	default:
		return nil
	}
}
