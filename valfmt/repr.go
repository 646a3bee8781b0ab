// Copyright © 2018 The ELPS authors

package valfmt

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Limits applied while building a representation. Containers nested deeper
// than MaxReprDepth collapse to "...", containers longer than MaxReprItems
// stop after that many elements and the whole string is cut at MaxReprSize
// bytes.
const (
	MaxReprDepth = 6
	MaxReprItems = 100
	MaxReprSize  = 1000
)

// Formatter is implemented by values that render their own representation.
type Formatter interface {
	FormatValue(f Format) string
}

// Labeler is implemented by values that supply their own type label.
type Labeler interface {
	TypeLabel() string
}

// TypeName returns the type label displayed for v.
func TypeName(v any) (name string) {
	if v == nil {
		return "nil"
	}
	t := reflect.TypeOf(v)
	if l, ok := v.(Labeler); ok {
		defer func() {
			if r := recover(); r != nil {
				name = goTypeName(t)
			}
		}()
		return l.TypeLabel()
	}
	return goTypeName(t)
}

func goTypeName(t reflect.Type) string {
	return strings.ReplaceAll(t.String(), "interface {}", "any")
}

// Repr returns the literal representation of v. Integers at any depth are
// written in hexadecimal when f.Hex is set. A panic raised by a String, Error
// or FormatValue method is recovered and reported as an error.
func Repr(v any, f Format) (s string, err error) {
	p := &printer{f: f}
	defer func() {
		if r := recover(); r != nil {
			s = ""
			err = fmt.Errorf("cannot render %s: %v", goTypeName(reflect.TypeOf(v)), r)
		}
	}()
	p.value(reflect.ValueOf(v), 0)
	return p.b.String(), nil
}

// KeyName renders a map key or set element for use as a child name.
func KeyName(key any, f Format) string {
	s, err := Repr(key, f)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return s
}

// IsSetType reports whether t is a map used as a set, i.e. its element type
// is the empty struct.
func IsSetType(t reflect.Type) bool {
	return t.Kind() == reflect.Map && t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0
}

type printer struct {
	f    Format
	b    strings.Builder
	full bool
}

func (p *printer) write(s string) {
	if p.full {
		return
	}
	if p.b.Len()+len(s) > MaxReprSize {
		// Cut on a rune boundary.
		cut := MaxReprSize - p.b.Len()
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		p.b.WriteString(s[:cut])
		p.b.WriteString("...")
		p.full = true
		return
	}
	p.b.WriteString(s)
}

func (p *printer) value(v reflect.Value, depth int) {
	if p.full {
		return
	}
	if !v.IsValid() {
		p.write("nil")
		return
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Chan, reflect.Func:
		if v.IsNil() {
			p.write("nil")
			return
		}
	}
	if v.CanInterface() && v.Kind() != reflect.Interface {
		switch x := v.Interface().(type) {
		case Formatter:
			p.write(x.FormatValue(p.f))
			return
		case error:
			p.write(x.Error())
			return
		case fmt.Stringer:
			p.write(x.String())
			return
		}
	}
	switch v.Kind() {
	case reflect.Bool:
		p.write(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		p.write(formatInt(v.Int(), p.f))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		p.write(formatUint(v.Uint(), p.f))
	case reflect.Float32:
		p.write(strconv.FormatFloat(v.Float(), 'g', -1, 32))
	case reflect.Float64:
		p.write(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	case reflect.Complex64:
		p.write(strconv.FormatComplex(v.Complex(), 'g', -1, 64))
	case reflect.Complex128:
		p.write(strconv.FormatComplex(v.Complex(), 'g', -1, 128))
	case reflect.String:
		p.write(strconv.Quote(v.String()))
	case reflect.Interface:
		p.value(v.Elem(), depth)
	case reflect.Pointer:
		p.write("&")
		p.value(v.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		p.list(v, depth)
	case reflect.Map:
		p.mapping(v, depth)
	case reflect.Struct:
		p.record(v, depth)
	default:
		p.write(fmt.Sprintf("%s(%#x)", goTypeName(v.Type()), v.Pointer()))
	}
}

func (p *printer) list(v reflect.Value, depth int) {
	if depth >= MaxReprDepth {
		p.write("[...]")
		return
	}
	p.write("[")
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			p.write(", ")
		}
		if i == MaxReprItems {
			p.write("...")
			break
		}
		p.value(v.Index(i), depth+1)
	}
	p.write("]")
}

func (p *printer) mapping(v reflect.Value, depth int) {
	if depth >= MaxReprDepth {
		p.write("{...}")
		return
	}
	set := IsSetType(v.Type())
	p.write("{")
	for i, e := range SortedEntries(v) {
		if i > 0 {
			p.write(", ")
		}
		if i == MaxReprItems {
			p.write("...")
			break
		}
		p.value(e.Key, depth+1)
		if set {
			continue
		}
		p.write(": ")
		p.value(e.Value, depth+1)
	}
	p.write("}")
}

func (p *printer) record(v reflect.Value, depth int) {
	if depth >= MaxReprDepth {
		p.write("{...}")
		return
	}
	t := v.Type()
	p.write("{")
	for i := 0; i < v.NumField(); i++ {
		if i > 0 {
			p.write(", ")
		}
		if i == MaxReprItems {
			p.write("...")
			break
		}
		p.write(t.Field(i).Name)
		p.write(": ")
		p.value(v.Field(i), depth+1)
	}
	p.write("}")
}
