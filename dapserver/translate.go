// Copyright © 2018 The ELPS authors

package dapserver

import (
	"path/filepath"

	"github.com/google/go-dap"
	"github.com/luthersystems/framevars/suspended"
	"github.com/luthersystems/framevars/valfmt"
)

// translateStackFrames converts tracked frames (innermost first) to DAP
// stack frames. The frame id is the frame's reference, which is also the
// reference of its locals scope. If sourceRoot is non-empty, relative
// Source.Path values are resolved against it.
func translateStackFrames(frames []*suspended.TrackedFrame, sourceRoot string) []dap.StackFrame {
	out := make([]dap.StackFrame, 0, len(frames))
	for _, tf := range frames {
		sf := dap.StackFrame{
			Id:   tf.Ref,
			Name: tf.Frame.Name,
			Line: tf.Line,
		}
		if tf.Frame.File != "" {
			sf.Source = &dap.Source{
				Name: filepath.Base(tf.Frame.File),
				Path: resolveSourcePath(tf.Frame.File, sourceRoot),
			}
		}
		out = append(out, sf)
	}
	return out
}

// resolveSourcePath returns an absolute path for DAP clients. If path is
// already absolute, it is returned as-is. Otherwise, if sourceRoot is set,
// the path is joined with sourceRoot.
func resolveSourcePath(path, sourceRoot string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if sourceRoot != "" {
		return filepath.Join(sourceRoot, path)
	}
	return path
}

func translateScope(tf *suspended.TrackedFrame) dap.Scope {
	return dap.Scope{
		Name:               "Locals",
		PresentationHint:   "locals",
		VariablesReference: tf.Ref,
		NamedVariables:     len(tf.Variable().Children(valfmt.Decimal)),
	}
}

func translateVariable(d suspended.Data) dap.Variable {
	v := dap.Variable{
		Name:               d.Name,
		Value:              d.Value,
		Type:               d.Type,
		EvaluateName:       d.EvaluateName,
		VariablesReference: d.VariablesReference,
		NamedVariables:     d.NamedVariables,
	}
	if d.PresentationHint != nil {
		v.PresentationHint = &dap.VariablePresentationHint{Attributes: d.PresentationHint.Attributes}
	}
	return v
}

func translateFormat(f *dap.ValueFormat) valfmt.Format {
	if f == nil {
		return valfmt.Decimal
	}
	return valfmt.Format{Hex: f.Hex}
}

// page returns the bounds of the window [start, start+count) clamped to n.
// A count of zero means everything from start.
func page(n, start, count int) (int, int) {
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if count > 0 && start+count < end {
		end = start + count
	}
	return start, end
}
