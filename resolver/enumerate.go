// Copyright © 2018 The ELPS authors

package resolver

import (
	"errors"
	"fmt"

	"github.com/luthersystems/framevars/valfmt"
)

// ChildKind distinguishes real entries from the synthetic children added by
// Enumerate.
type ChildKind int

const (
	ChildValue ChildKind = iota
	ChildLen
	ChildTooLarge
	ChildError
)

// Child is one enumerated child of a value.
type Child struct {
	Entry
	Kind ChildKind
}

// ReadOnly reports whether the child is synthetic and cannot be assigned.
func (c Child) ReadOnly() bool {
	return c.Kind == ChildLen || c.Kind == ChildTooLarge
}

// ResolutionError is the error carried by a ChildError child.
type ResolutionError struct {
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Enumerate returns the ordered children of v: the resolver's entries, a
// TooLargeAttr sentinel in place of the remaining entries when v holds more
// than MaxItems of them, and a LenAttr entry whenever v exposes a size. When
// truncation happens the total number of children is exactly MaxItems.
//
// An entry that fails, or a resolver that panics part way, yields a
// ChildError child; the siblings already produced are kept.
func Enumerate(r Resolver, v any, f valfmt.Format) (children []Child, truncated bool) {
	n, hasLen := r.Len(v)
	keep := MaxItems - 1
	if hasLen {
		keep--
	}
	limit := MaxItems + 1
	if hasLen && n > MaxItems {
		limit = keep
	}
	walk(r, v, f, func(e Entry) bool {
		children = append(children, toChild(e))
		return len(children) < limit
	})
	truncated = (hasLen && n > MaxItems) || (!hasLen && len(children) > MaxItems)
	if truncated {
		if len(children) > keep {
			children = children[:keep]
		}
		children = append(children, Child{
			Kind:  ChildTooLarge,
			Entry: Entry{Name: TooLargeAttr, Value: TooLargeMsg},
		})
	}
	if hasLen {
		children = append(children, lenChild(n))
	}
	return children, truncated
}

// Lookup fetches the child of v called name without enumerating the others
// when the resolver supports it.
func Lookup(r Resolver, v any, name string, f valfmt.Format) (Child, bool) {
	if name == LenAttr {
		if n, ok := r.Len(v); ok {
			return lenChild(n), true
		}
		return Child{}, false
	}
	if l, ok := r.(Lookuper); ok {
		e, ok := l.Lookup(v, name, f)
		if !ok {
			return Child{}, false
		}
		return toChild(e), true
	}
	var found Child
	ok := false
	walk(r, v, f, func(e Entry) bool {
		if e.Name != name {
			return true
		}
		found, ok = toChild(e), true
		return false
	})
	return found, ok
}

func lenChild(n int) Child {
	return Child{Kind: ChildLen, Entry: Entry{Name: LenAttr, Value: n}}
}

func toChild(e Entry) Child {
	if e.Err == nil {
		return Child{Kind: ChildValue, Entry: e}
	}
	var rerr *ResolutionError
	if !errors.As(e.Err, &rerr) {
		e.Err = &ResolutionError{Name: e.Name, Err: e.Err}
	}
	return Child{Kind: ChildError, Entry: e}
}

// walk runs r.Walk, converting a panic into a trailing error entry.
func walk(r Resolver, v any, f valfmt.Format, fn func(Entry) bool) {
	defer func() {
		if rec := recover(); rec != nil {
			fn(Entry{Name: "<error>", Err: fmt.Errorf("%v", rec)})
		}
	}()
	r.Walk(v, f, fn)
}
