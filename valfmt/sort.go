// Copyright © 2018 The ELPS authors

package valfmt

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

type keyRank int

const (
	rankNil keyRank = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

// SortedKeys returns the keys of map m in a stable order: nil first, then
// booleans, numbers in numeric order, strings in lexical order and anything
// else ordered by type and printed form.
func SortedKeys(m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	slices.SortStableFunc(keys, Compare)
	return keys
}

// MapEntry is one key/value pair of a map.
type MapEntry struct {
	Key   reflect.Value
	Value reflect.Value
}

// SortedEntries returns the entries of map m ordered like SortedKeys. Keys
// that cannot be looked up again, such as NaN, keep their values.
func SortedEntries(m reflect.Value) []MapEntry {
	entries := make([]MapEntry, 0, m.Len())
	iter := m.MapRange()
	for iter.Next() {
		entries = append(entries, MapEntry{Key: iter.Key(), Value: iter.Value()})
	}
	slices.SortStableFunc(entries, func(a, b MapEntry) int {
		return Compare(a.Key, b.Key)
	})
	return entries
}

// Compare orders two map keys. See SortedKeys.
func Compare(a, b reflect.Value) int {
	a, b = unwrap(a), unwrap(b)
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankBool:
		return cmp.Compare(boolInt(a.Bool()), boolInt(b.Bool()))
	case rankNumber:
		return compareNumbers(a, b)
	case rankString:
		return strings.Compare(a.String(), b.String())
	case rankOther:
		if c := strings.Compare(a.Type().String(), b.Type().String()); c != 0 {
			return c
		}
		return strings.Compare(sortString(a), sortString(b))
	}
	return 0
}

func unwrap(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	return v
}

func rank(v reflect.Value) keyRank {
	if !v.IsValid() {
		return rankNil
	}
	switch v.Kind() {
	case reflect.Bool:
		return rankBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return rankNumber
	case reflect.String:
		return rankString
	}
	return rankOther
}

func compareNumbers(a, b reflect.Value) int {
	ka, kb := numberClass(a), numberClass(b)
	switch {
	case ka == 'i' && kb == 'i':
		return cmp.Compare(a.Int(), b.Int())
	case ka == 'u' && kb == 'u':
		return cmp.Compare(a.Uint(), b.Uint())
	case ka == 'i' && kb == 'u':
		if a.Int() < 0 {
			return -1
		}
		return cmp.Compare(uint64(a.Int()), b.Uint())
	case ka == 'u' && kb == 'i':
		return -compareNumbers(b, a)
	}
	return cmp.Compare(asFloat(a), asFloat(b))
}

func numberClass(v reflect.Value) byte {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return 'i'
	case reflect.Float32, reflect.Float64:
		return 'f'
	}
	return 'u'
}

func asFloat(v reflect.Value) float64 {
	switch numberClass(v) {
	case 'i':
		return float64(v.Int())
	case 'u':
		return float64(v.Uint())
	}
	return v.Float()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sortString(v reflect.Value) string {
	if s, err := Repr(valueInterface(v), Decimal); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

func valueInterface(v reflect.Value) any {
	if v.CanInterface() {
		return v.Interface()
	}
	return fmt.Sprint(v)
}
