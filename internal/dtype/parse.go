package dtype

import (
	"fmt"
	"strings"

	dferrors "github.com/vishal-h/explorer/internal/errors"
)

var namedKinds = map[string]DType{
	"null":        Null,
	"bool":        Boolean,
	"boolean":     Boolean,
	"i8":          Int8,
	"i16":         Int16,
	"i32":         Int32,
	"i64":         Int64,
	"u8":          UInt8,
	"u16":         UInt16,
	"u32":         UInt32,
	"u64":         UInt64,
	"f32":         Float32,
	"f64":         Float64,
	"str":         String,
	"string":      String,
	"binary":      Binary,
	"date":        Date,
	"time":        Time,
	"cat":         Categorical,
	"categorical": Categorical,
}

// Parse reads the textual form produced by DType.String. It also accepts
// "μs" as a microsecond unit and a bare "datetime" (microseconds).
func Parse(s string) (DType, error) {
	p := &typeParser{src: strings.TrimSpace(s)}
	dt, err := p.parse()
	if err != nil {
		return DType{}, err
	}
	if p.pos != len(p.src) {
		return DType{}, p.fail("unexpected trailing input")
	}
	return dt, nil
}

// MustParse is Parse for statically known type strings.
func MustParse(s string) DType {
	dt, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return dt
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) fail(msg string) error {
	return dferrors.NewInvalidInputError("ParseDType", fmt.Sprintf("%s at offset %d in %q", msg, p.pos, p.src))
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '[' || c == ']' || c == '{' || c == '}' || c == ',' || c == ':' || c == ' ' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return p.fail(fmt.Sprintf("expected %q", c))
	}
	p.pos++
	return nil
}

func (p *typeParser) peek(c byte) bool {
	p.skipSpace()
	return p.pos < len(p.src) && p.src[p.pos] == c
}

func (p *typeParser) parse() (DType, error) {
	name := p.ident()
	switch name {
	case "datetime":
		unit := Microsecond
		zone := ""
		if p.peek('[') {
			p.pos++
			u, err := p.unit()
			if err != nil {
				return DType{}, err
			}
			unit = u
			if p.peek(',') {
				p.pos++
				zone = p.ident()
			}
			if err := p.expect(']'); err != nil {
				return DType{}, err
			}
		}
		return Datetime(unit, zone), nil
	case "duration":
		if err := p.expect('['); err != nil {
			return DType{}, err
		}
		unit, err := p.unit()
		if err != nil {
			return DType{}, err
		}
		if err := p.expect(']'); err != nil {
			return DType{}, err
		}
		return Duration(unit), nil
	case "list":
		if err := p.expect('['); err != nil {
			return DType{}, err
		}
		elem, err := p.parse()
		if err != nil {
			return DType{}, err
		}
		if err := p.expect(']'); err != nil {
			return DType{}, err
		}
		return List(elem), nil
	case "struct":
		return p.structFields()
	}

	if dt, ok := namedKinds[name]; ok {
		return dt, nil
	}
	return DType{}, p.fail(fmt.Sprintf("unknown dtype %q", name))
}

func (p *typeParser) unit() (TimeUnit, error) {
	switch u := p.ident(); u {
	case "ms", "millisecond":
		return Millisecond, nil
	case "us", "μs", "microsecond":
		return Microsecond, nil
	case "ns", "nanosecond":
		return Nanosecond, nil
	default:
		return 0, p.fail(fmt.Sprintf("unknown time unit %q", u))
	}
}

func (p *typeParser) structFields() (DType, error) {
	if err := p.expect('{'); err != nil {
		return DType{}, err
	}
	var fields []Field
	for !p.peek('}') {
		if len(fields) > 0 {
			if err := p.expect(','); err != nil {
				return DType{}, err
			}
		}
		name := p.ident()
		if name == "" {
			return DType{}, p.fail("expected field name")
		}
		if err := p.expect(':'); err != nil {
			return DType{}, err
		}
		ft, err := p.parse()
		if err != nil {
			return DType{}, err
		}
		fields = append(fields, Field{Name: name, Type: ft})
	}
	p.pos++
	return Struct(fields...), nil
}
