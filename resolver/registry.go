// Copyright © 2018 The ELPS authors

package resolver

import (
	"reflect"
	"sync"

	"github.com/luthersystems/framevars/valfmt"
)

// Registry selects the Resolver for a value. Resolvers registered for a type
// take precedence over the built-in ones, which cover Go maps (mappings, or
// sets when the element type is struct{}), slices and arrays (sequences) and
// structs with exported fields (attributes). Pointers and interfaces are
// followed before selecting. A value implementing valfmt.Formatter has no
// built-in resolver and is a leaf unless a resolver is registered for it.
//
// Registration is expected at startup; lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]Resolver
}

// NewRegistry returns a registry holding only the built-in resolvers.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[reflect.Type]Resolver)}
}

// Register installs res for values whose dynamic type is t. Pointers to t
// use res as well.
func (r *Registry) Register(t reflect.Type, res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = res
}

// For returns the resolver for v, or nil when v is an opaque leaf.
func (r *Registry) For(v any) Resolver {
	if v == nil {
		return nil
	}
	t := reflect.TypeOf(v)
	if res := r.registered(t); res != nil {
		return res
	}
	rv := indirect(v)
	if !rv.IsValid() {
		return nil
	}
	if rv.Type() != t {
		if res := r.registered(rv.Type()); res != nil {
			return derefResolver{res}
		}
	}
	// Values that render themselves are leaves unless registered.
	if _, ok := v.(valfmt.Formatter); ok {
		return nil
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return sequenceResolver{}
	case reflect.Map:
		if valfmt.IsSetType(rv.Type()) {
			return setResolver{}
		}
		return mappingResolver{}
	case reflect.Struct:
		if hasExportedFields(rv.Type()) {
			return attributeResolver{}
		}
	}
	return nil
}

func (r *Registry) registered(t reflect.Type) Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[t]
}

// derefResolver hands the pointed-to value to a resolver registered for the
// element type.
type derefResolver struct {
	Resolver
}

func (d derefResolver) Len(v any) (int, bool) {
	return d.Resolver.Len(indirect(v).Interface())
}

func (d derefResolver) Walk(v any, f valfmt.Format, fn func(Entry) bool) {
	d.Resolver.Walk(indirect(v).Interface(), f, fn)
}

func (d derefResolver) Lookup(v any, name string, f valfmt.Format) (Entry, bool) {
	c, ok := Lookup(d.Resolver, indirect(v).Interface(), name, f)
	return c.Entry, ok
}
