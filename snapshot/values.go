// Copyright © 2018 The ELPS authors

package snapshot

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/luthersystems/framevars/resolver"
	"github.com/luthersystems/framevars/suspended"
	"github.com/luthersystems/framevars/valfmt"
	"gopkg.in/yaml.v3"
)

const maxDepth = 64

// Attr is a named attribute of an Object.
type Attr struct {
	Name  string
	Value any
}

// Object is a value captured with a type name, written in a snapshot as a
// mapping with a local tag.
type Object struct {
	Type  string
	Attrs []Attr
}

// Scalar is an opaque value written as a scalar with a local tag, such as
// !Duration 5s.
type Scalar struct {
	Type string
	Text string
}

// TypeLabel implements valfmt.Labeler.
func (s *Scalar) TypeLabel() string {
	return s.Type
}

// FormatValue implements valfmt.Formatter.
func (s *Scalar) FormatValue(valfmt.Format) string {
	return s.Type + "(" + s.Text + ")"
}

// TypeLabel implements valfmt.Labeler.
func (o *Object) TypeLabel() string {
	return o.Type
}

// FormatValue implements valfmt.Formatter.
func (o *Object) FormatValue(f valfmt.Format) string {
	var b strings.Builder
	b.WriteString(o.Type)
	b.WriteString("{")
	for i, a := range o.Attrs {
		if i > 0 {
			b.WriteString(", ")
		}
		if i >= valfmt.MaxReprItems {
			b.WriteString("...")
			break
		}
		s, err := valfmt.Repr(a.Value, f)
		if err != nil {
			s = "<" + err.Error() + ">"
		}
		b.WriteString(a.Name)
		b.WriteString(": ")
		b.WriteString(s)
	}
	b.WriteString("}")
	return b.String()
}

// Attr returns the attribute called name.
func (o *Object) Attr(name string) (any, bool) {
	for _, a := range o.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

type objectResolver struct{}

func (objectResolver) Kind() resolver.Kind { return resolver.Attributes }

func (objectResolver) Len(v any) (int, bool) { return 0, false }

func (objectResolver) Walk(v any, f valfmt.Format, fn func(resolver.Entry) bool) {
	for _, a := range v.(*Object).Attrs {
		if !fn(resolver.Entry{Name: a.Name, Value: a.Value, Access: resolver.AccessField, Key: a.Name}) {
			return
		}
	}
}

func (objectResolver) Lookup(v any, name string, f valfmt.Format) (resolver.Entry, bool) {
	val, ok := v.(*Object).Attr(name)
	if !ok {
		return resolver.Entry{}, false
	}
	return resolver.Entry{Name: name, Value: val, Access: resolver.AccessField, Key: name}, true
}

// RegisterResolvers installs the resolvers for snapshot values in reg.
func RegisterResolvers(reg *resolver.Registry) {
	reg.Register(reflect.TypeOf(&Object{}), objectResolver{})
}

func decodeLocals(n *yaml.Node) ([]suspended.Local, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: locals must be a mapping", n.Line)
	}
	c := &converter{anchors: make(map[*yaml.Node]any)}
	locals := make([]suspended.Local, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: local names must be scalars", k.Line)
		}
		val, err := c.convert(v, 0)
		if err != nil {
			return nil, err
		}
		locals = append(locals, suspended.Local{Name: k.Value, Value: val})
	}
	return locals, nil
}

func localTag(n *yaml.Node) (string, bool) {
	tag := n.Tag
	if strings.HasPrefix(tag, "!") && !strings.HasPrefix(tag, "!!") && len(tag) > 1 {
		return tag[1:], true
	}
	return "", false
}

// converter turns yaml nodes into local values. Anchored nodes are
// converted once and every alias of them shares the result.
type converter struct {
	anchors map[*yaml.Node]any
}

func (c *converter) convert(n *yaml.Node, depth int) (any, error) {
	if n.Kind == yaml.AliasNode {
		n, depth = n.Alias, depth+1
	}
	if n.Anchor == "" {
		return c.convertNode(n, depth)
	}
	if v, ok := c.anchors[n]; ok {
		return v, nil
	}
	v, err := c.convertNode(n, depth)
	if err != nil {
		return nil, err
	}
	c.anchors[n] = v
	return v, nil
}

func (c *converter) convertNode(n *yaml.Node, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("line %d: values nested too deeply", n.Line)
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return c.convert(n.Content[0], depth+1)
	case yaml.ScalarNode:
		if typ, ok := localTag(n); ok {
			return &Scalar{Type: typ, Text: n.Value}, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, item := range n.Content {
			v, err := c.convert(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case yaml.MappingNode:
		if typ, ok := localTag(n); ok {
			return c.convertObject(n, typ, depth)
		}
		if n.ShortTag() == "!!set" {
			return c.convertSet(n, depth)
		}
		return c.convertMap(n, depth)
	}
	return nil, fmt.Errorf("line %d: unsupported node", n.Line)
}

func (c *converter) convertObject(n *yaml.Node, typ string, depth int) (*Object, error) {
	obj := &Object{Type: typ, Attrs: make([]Attr, 0, len(n.Content)/2)}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: attribute names must be scalars", k.Line)
		}
		val, err := c.convert(v, depth+1)
		if err != nil {
			return nil, err
		}
		obj.Attrs = append(obj.Attrs, Attr{Name: k.Value, Value: val})
	}
	return obj, nil
}

func (c *converter) convertKey(n *yaml.Node, depth int) (any, error) {
	k, err := c.convert(n, depth+1)
	if err != nil {
		return nil, err
	}
	if k != nil && !reflect.TypeOf(k).Comparable() {
		return nil, fmt.Errorf("line %d: mapping keys must be scalars", n.Line)
	}
	return k, nil
}

func (c *converter) convertSet(n *yaml.Node, depth int) (map[any]struct{}, error) {
	set := make(map[any]struct{}, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, err := c.convertKey(n.Content[i], depth)
		if err != nil {
			return nil, err
		}
		set[k] = struct{}{}
	}
	return set, nil
}

// convertMap returns a map[string]any when every key is a string and a
// map[any]any otherwise.
func (c *converter) convertMap(n *yaml.Node, depth int) (any, error) {
	keys := make([]any, 0, len(n.Content)/2)
	vals := make([]any, 0, len(n.Content)/2)
	allStrings := true
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, err := c.convertKey(n.Content[i], depth)
		if err != nil {
			return nil, err
		}
		v, err := c.convert(n.Content[i+1], depth+1)
		if err != nil {
			return nil, err
		}
		if _, ok := k.(string); !ok {
			allStrings = false
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	if allStrings {
		m := make(map[string]any, len(keys))
		for i, k := range keys {
			m[k.(string)] = vals[i]
		}
		return m, nil
	}
	m := make(map[any]any, len(keys))
	for i, k := range keys {
		m[k] = vals[i]
	}
	return m, nil
}
