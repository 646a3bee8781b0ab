// Copyright © 2018 The ELPS authors

package suspended

import (
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/luthersystems/framevars/resolver"
	"github.com/luthersystems/framevars/valfmt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType is the type label of a child that failed to resolve or render.
const ErrorType = "<error>"

// AttrReadOnly marks synthetic children in Data.PresentationHint.
const AttrReadOnly = "readOnly"

type varKind int

const (
	kindValue varKind = iota
	kindFrame
	kindLen
	kindTooLarge
	kindError
)

// Variable is a node in the tree of values visible from a suspended frame.
// Frame nodes have the frame's locals as children. Value nodes have the
// children chosen by their resolver. Synthetic nodes (the length entry, the
// too-large sentinel and error leaves) never have children.
//
// A Variable mints its variables reference the first time Data is asked for
// it and reuses it afterwards. Each call to Children builds new nodes, so a
// second fetch of the same parent yields fresh references.
type Variable struct {
	tracker  *Tracker
	thread   ThreadID
	kind     varKind
	name     string
	evalName string
	value    any
	res      resolver.Resolver
	frame    *TrackedFrame
	err      error

	mu  sync.Mutex
	ref int
}

// PresentationHint carries display attributes for a variable.
type PresentationHint struct {
	Attributes []string `json:"attributes,omitempty"`
}

// Data is the client facing description of a variable.
type Data struct {
	Name               string            `json:"name"`
	Value              string            `json:"value"`
	Type               string            `json:"type"`
	EvaluateName       string            `json:"evaluateName,omitempty"`
	VariablesReference int               `json:"variablesReference"`
	NamedVariables     int               `json:"namedVariables,omitempty"`
	PresentationHint   *PresentationHint `json:"presentationHint,omitempty"`
}

func newValueVariable(t *Tracker, thread ThreadID, name, evalName string, value any) *Variable {
	return &Variable{
		tracker:  t,
		thread:   thread,
		kind:     kindValue,
		name:     name,
		evalName: evalName,
		value:    value,
		res:      t.manager.registry.For(value),
	}
}

// Name returns the display name of the variable.
func (v *Variable) Name() string {
	return v.name
}

// EvaluateName returns an expression that reaches the variable from the
// frame, or an empty string when there is none.
func (v *Variable) EvaluateName() string {
	return v.evalName
}

// Thread returns the thread the variable was captured on.
func (v *Variable) Thread() ThreadID {
	return v.thread
}

// Value returns the underlying value. It is nil for frame nodes.
func (v *Variable) Value() any {
	return v.value
}

// Frame returns the tracked frame for frame nodes and nil otherwise.
func (v *Variable) Frame() *TrackedFrame {
	return v.frame
}

// HasChildren reports whether the variable can be expanded.
func (v *Variable) HasChildren() bool {
	switch v.kind {
	case kindFrame:
		return true
	case kindValue:
		return v.res != nil
	}
	return false
}

// Reference returns the variables reference of v, minting it if needed. It
// is 0 for leaves and once the thread of v is untracked or its tracker is
// closed.
func (v *Variable) Reference() int {
	if !v.HasChildren() {
		return 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ref == 0 {
		v.ref = v.tracker.mint(v)
		return v.ref
	}
	if !v.tracker.holds(v.thread, v.ref) {
		return 0
	}
	return v.ref
}

// Data describes v for a client using format f.
func (v *Variable) Data(f valfmt.Format) Data {
	d := Data{Name: v.name, EvaluateName: v.evalName}
	switch v.kind {
	case kindFrame:
		d.Value = fmt.Sprintf("%s:%d", v.frame.Frame.File, v.frame.Line)
		d.Type = "frame"
		d.VariablesReference = v.Reference()
	case kindLen:
		d.Value, _ = valfmt.Repr(v.value, f)
		d.Type = valfmt.TypeName(v.value)
		d.PresentationHint = &PresentationHint{Attributes: []string{AttrReadOnly}}
	case kindTooLarge:
		d.Value = resolver.TooLargeMsg
		d.Type = valfmt.TypeName(resolver.TooLargeMsg)
		d.PresentationHint = &PresentationHint{Attributes: []string{AttrReadOnly}}
	case kindError:
		d.Value = v.err.Error()
		d.Type = ErrorType
	default:
		s, err := valfmt.Repr(v.value, f)
		if err != nil {
			d.Value = err.Error()
			d.Type = ErrorType
			return d
		}
		d.Value = s
		d.Type = valfmt.TypeName(v.value)
		d.VariablesReference = v.Reference()
		if v.res != nil {
			if n, ok := v.res.Len(v.value); ok {
				d.NamedVariables = min(n, resolver.MaxItems)
			}
		}
	}
	return d
}

// Children returns the children of v in display order. Frame nodes yield
// their visible locals sorted by name; value nodes yield what their resolver
// enumerates. Format f controls how mapping keys are named.
func (v *Variable) Children(f valfmt.Format) []*Variable {
	switch v.kind {
	case kindFrame:
		locals := userLocals(v.frame.Frame)
		out := make([]*Variable, len(locals))
		for i, l := range locals {
			out[i] = newValueVariable(v.tracker, v.thread, l.Name, l.Name, l.Value)
		}
		return out
	case kindValue:
		if v.res == nil {
			return nil
		}
	default:
		return nil
	}

	_, span := v.tracker.manager.tracer.Start(v.tracker.ctx, "suspended.children",
		trace.WithAttributes(
			attribute.String("variable.name", v.name),
			attribute.String("variable.kind", v.res.Kind().String()),
		))
	defer span.End()

	children, truncated := resolver.Enumerate(v.res, v.value, f)
	span.SetAttributes(
		attribute.Int("children.count", len(children)),
		attribute.Bool("children.truncated", truncated),
	)
	if truncated {
		v.tracker.manager.logger.WithField("variable", v.name).
			Debugf("children truncated to %d items", resolver.MaxItems)
	}
	out := make([]*Variable, len(children))
	for i, c := range children {
		out[i] = v.child(c)
	}
	return out
}

// ChildNamed returns the child of v called name, or an error wrapping
// ErrNoSuchChild.
func (v *Variable) ChildNamed(name string, f valfmt.Format) (*Variable, error) {
	switch v.kind {
	case kindFrame:
		for _, l := range userLocals(v.frame.Frame) {
			if l.Name == name {
				return newValueVariable(v.tracker, v.thread, l.Name, l.Name, l.Value), nil
			}
		}
	case kindValue:
		if v.res == nil {
			break
		}
		c, ok := resolver.Lookup(v.res, v.value, name, f)
		if ok {
			return v.child(c), nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no child %q", ErrNoSuchChild, v.name, name)
}

func (v *Variable) child(c resolver.Child) *Variable {
	switch c.Kind {
	case resolver.ChildLen:
		return &Variable{
			tracker:  v.tracker,
			thread:   v.thread,
			kind:     kindLen,
			name:     c.Name,
			evalName: lenExpr(v.evalName),
			value:    c.Value,
		}
	case resolver.ChildTooLarge:
		return &Variable{
			tracker: v.tracker,
			thread:  v.thread,
			kind:    kindTooLarge,
			name:    c.Name,
			value:   c.Value,
		}
	case resolver.ChildError:
		return &Variable{
			tracker: v.tracker,
			thread:  v.thread,
			kind:    kindError,
			name:    c.Name,
			err:     c.Err,
		}
	}
	return newValueVariable(v.tracker, v.thread, c.Name, childExpr(v.evalName, c.Entry), c.Value)
}

// childExpr builds the Go expression for a child from its parent's.
func childExpr(parent string, e resolver.Entry) string {
	if parent == "" {
		return ""
	}
	switch e.Access {
	case resolver.AccessIndex:
		return fmt.Sprintf("%s[%d]", parent, e.Key)
	case resolver.AccessKey:
		key, ok := keyLiteral(e.Key)
		if !ok {
			return ""
		}
		return fmt.Sprintf("%s[%s]", parent, key)
	case resolver.AccessField:
		return fmt.Sprintf("%s.%v", parent, e.Key)
	}
	return ""
}

// keyLiteral renders map keys that the expression parser can read back.
func keyLiteral(key any) (string, bool) {
	rv := reflect.ValueOf(key)
	switch rv.Kind() {
	case reflect.String:
		return strconv.Quote(rv.String()), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	}
	return "", false
}

func lenExpr(parent string) string {
	if parent == "" {
		return ""
	}
	return "len(" + parent + ")"
}
