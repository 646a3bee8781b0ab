// Copyright © 2018 The ELPS authors

// Package resolver enumerates the children of composite values. A Resolver
// is selected once per value shape (mapping, sequence, set or plain object)
// and Enumerate applies the shared rules on top of it: the large collection
// guard and the synthetic length entry.
package resolver

import (
	"fmt"
	"strconv"

	"github.com/luthersystems/framevars/valfmt"
)

// MaxItems is the largest number of children returned for one value. Clients
// may rely on this value.
const MaxItems = 300

// Synthetic child names. Clients pattern match on these strings.
const (
	LenAttr      = "__len__"
	TooLargeAttr = "Unable to handle:"
)

// TooLargeMsg is the display value of the TooLargeAttr sentinel.
var TooLargeMsg = "Too large to show contents. Max items to show: " + strconv.Itoa(MaxItems)

// Kind identifies the container shape a resolver handles.
type Kind int

const (
	// Opaque values have no children.
	Opaque Kind = iota
	// Mapping children are named by their stringified keys.
	Mapping
	// Sequence children are named by their index.
	Sequence
	// Set children are named by their position in a sorted enumeration.
	Set
	// Attributes children are the named attributes of an object.
	Attributes
)

var kindStrings = []string{
	Opaque:     "opaque",
	Mapping:    "mapping",
	Sequence:   "sequence",
	Set:        "set",
	Attributes: "attributes",
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindStrings) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindStrings[k]
}

// Access describes how a child is reached from its parent expression.
type Access int

const (
	// AccessNone marks children that cannot be addressed by an expression.
	AccessNone Access = iota
	// AccessIndex is a sequence subscript, parent[0].
	AccessIndex
	// AccessKey is a map subscript, parent[key].
	AccessKey
	// AccessField is attribute access, parent.name.
	AccessField
)

// Entry is one raw child produced by a Resolver walk.
type Entry struct {
	Name   string
	Value  any
	Access Access
	// Key is the index, map key or attribute name used to build the child
	// expression.
	Key any
	// Err is set when the entry could not be produced. The entry is shown as
	// an error leaf.
	Err error
}

// Resolver enumerates the children of the values it was selected for.
type Resolver interface {
	// Kind returns the container shape.
	Kind() Kind
	// Len returns the number of entries. ok is false when the value does not
	// expose a size; such values get no LenAttr child.
	Len(v any) (n int, ok bool)
	// Walk calls fn for each entry in natural order until fn returns false.
	Walk(v any, f valfmt.Format, fn func(Entry) bool)
}

// Lookuper is implemented by resolvers that can fetch a single entry without
// walking the value.
type Lookuper interface {
	Lookup(v any, name string, f valfmt.Format) (Entry, bool)
}
