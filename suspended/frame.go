// Copyright © 2018 The ELPS authors

package suspended

import (
	"sort"
	"strings"
)

// ThreadID identifies a suspended thread. It is unique among the threads
// currently suspended.
type ThreadID int

// Local is a named local variable of a frame.
type Local struct {
	Name  string
	Value any
}

// Frame is an execution frame captured when the debuggee suspended. Frames
// are read only to this package. Caller links the frame to the one that
// called it, so tracking a frame tracks the rest of its stack.
type Frame struct {
	Name   string
	File   string
	Line   int
	Locals []Local
	Caller *Frame
}

// ThreadStack is one suspended thread as reported by the frame capture
// side: the innermost frame and optional line overrides per frame.
type ThreadStack struct {
	ID        ThreadID
	Name      string
	Top       *Frame
	LineHints map[*Frame]int
}

// TrackedFrame is a frame registered with a Tracker. Ref is both the frame
// id and the variables reference of the frame's locals.
type TrackedFrame struct {
	Ref    int
	Thread ThreadID
	Frame  *Frame
	Line   int

	variable *Variable
}

// Variable returns the node whose children are the frame's locals.
func (tf *TrackedFrame) Variable() *Variable {
	return tf.variable
}

// hiddenLocal reports locals that users never care about: the blank
// identifier and compiler generated names such as ~r0.
func hiddenLocal(name string) bool {
	return name == "" || name == "_" || strings.HasPrefix(name, "~") || strings.HasPrefix(name, ".")
}

// userLocals returns the visible locals of f sorted by name. When a name is
// declared more than once (shadowing) the last declaration wins.
func userLocals(f *Frame) []Local {
	index := make(map[string]int, len(f.Locals))
	locals := make([]Local, 0, len(f.Locals))
	for _, l := range f.Locals {
		if hiddenLocal(l.Name) {
			continue
		}
		if i, ok := index[l.Name]; ok {
			locals[i] = l
			continue
		}
		index[l.Name] = len(locals)
		locals = append(locals, l)
	}
	sort.SliceStable(locals, func(i, j int) bool {
		return locals[i].Name < locals[j].Name
	})
	return locals
}

// Stop is one suspension of the program: why it stopped and the stacks of
// its threads.
type Stop struct {
	Reason  string
	Threads []ThreadStack
}
