// Copyright © 2018 The ELPS authors

package resolver

import (
	"errors"
	"reflect"
	"strconv"

	"github.com/luthersystems/framevars/valfmt"
)

// maxIndirections bounds pointer chasing so self referencing interface
// values cannot loop forever.
const maxIndirections = 32

var errUnexported = errors.New("value is not accessible")

// indirect follows pointers and interfaces to the underlying value. It
// returns the zero Value when a nil is reached.
func indirect(v any) reflect.Value {
	rv := reflect.ValueOf(v)
	for i := 0; i < maxIndirections && rv.IsValid(); i++ {
		if rv.Kind() != reflect.Pointer && rv.Kind() != reflect.Interface {
			return rv
		}
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return reflect.Value{}
}

func entryValue(name string, rv reflect.Value, access Access, key any) Entry {
	e := Entry{Name: name, Access: access, Key: key}
	if !rv.IsValid() {
		return e
	}
	if !rv.CanInterface() {
		e.Err = errUnexported
		return e
	}
	e.Value = rv.Interface()
	return e
}

type sequenceResolver struct{}

func (sequenceResolver) Kind() Kind { return Sequence }

func (sequenceResolver) Len(v any) (int, bool) {
	return indirect(v).Len(), true
}

func (sequenceResolver) Walk(v any, f valfmt.Format, fn func(Entry) bool) {
	rv := indirect(v)
	for i := 0; i < rv.Len(); i++ {
		if !fn(entryValue(strconv.Itoa(i), rv.Index(i), AccessIndex, i)) {
			return
		}
	}
}

func (sequenceResolver) Lookup(v any, name string, f valfmt.Format) (Entry, bool) {
	rv := indirect(v)
	i, err := strconv.Atoi(name)
	if err != nil || i < 0 || i >= rv.Len() || strconv.Itoa(i) != name {
		return Entry{}, false
	}
	return entryValue(name, rv.Index(i), AccessIndex, i), true
}

type mappingResolver struct{}

func (mappingResolver) Kind() Kind { return Mapping }

func (mappingResolver) Len(v any) (int, bool) {
	return indirect(v).Len(), true
}

func (mappingResolver) Walk(v any, f valfmt.Format, fn func(Entry) bool) {
	for _, e := range valfmt.SortedEntries(indirect(v)) {
		key := e.Key.Interface()
		if !fn(entryValue(valfmt.KeyName(key, f), e.Value, AccessKey, key)) {
			return
		}
	}
}

type setResolver struct{}

func (setResolver) Kind() Kind { return Set }

func (setResolver) Len(v any) (int, bool) {
	return indirect(v).Len(), true
}

func (setResolver) Walk(v any, f valfmt.Format, fn func(Entry) bool) {
	rv := indirect(v)
	for i, k := range valfmt.SortedKeys(rv) {
		if !fn(entryValue(strconv.Itoa(i), k, AccessNone, nil)) {
			return
		}
	}
}

type attributeResolver struct{}

func (attributeResolver) Kind() Kind { return Attributes }

func (attributeResolver) Len(v any) (int, bool) { return 0, false }

func (attributeResolver) Walk(v any, f valfmt.Format, fn func(Entry) bool) {
	rv := indirect(v)
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if !fn(entryValue(field.Name, rv.Field(i), AccessField, field.Name)) {
			return
		}
	}
}

func (attributeResolver) Lookup(v any, name string, f valfmt.Format) (Entry, bool) {
	rv := indirect(v)
	field, ok := rv.Type().FieldByName(name)
	if !ok || !field.IsExported() || len(field.Index) != 1 {
		return Entry{}, false
	}
	return entryValue(name, rv.FieldByIndex(field.Index), AccessField, name), true
}

func hasExportedFields(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			return true
		}
	}
	return false
}
