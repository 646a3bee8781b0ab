// Copyright © 2018 The ELPS authors

package suspended

import (
	"context"

	"github.com/luthersystems/framevars/accessexpr"
	"github.com/luthersystems/framevars/resolver"
	"github.com/luthersystems/framevars/valfmt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Evaluate resolves an access expression, such as the evaluate name of a
// variable, against the locals of the frame frameRef. Only local names,
// field selection, subscripts and len() are understood.
func (m *Manager) Evaluate(ctx context.Context, frameRef int, expr string) (*Variable, error) {
	_, span := m.tracer.Start(ctx, "suspended.evaluate",
		trace.WithAttributes(
			attribute.Int("frame.ref", frameRef),
			attribute.String("expression", expr),
		))
	defer span.End()

	v, err := m.evaluate(frameRef, expr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return v, nil
}

func (m *Manager) evaluate(frameRef int, expr string) (*Variable, error) {
	tf, err := m.Frame(frameRef)
	if err != nil {
		return nil, err
	}
	path, err := accessexpr.Parse(expr)
	if err != nil {
		return nil, err
	}
	// Children are looked up by their decimal names, which is what the
	// parsed subscripts render to.
	v, err := tf.Variable().ChildNamed(path.Root, valfmt.Decimal)
	if err != nil {
		return nil, err
	}
	for _, step := range path.Steps {
		v, err = v.ChildNamed(step.ChildName(), valfmt.Decimal)
		if err != nil {
			return nil, err
		}
	}
	if path.Len {
		return v.ChildNamed(resolver.LenAttr, valfmt.Decimal)
	}
	return v, nil
}
