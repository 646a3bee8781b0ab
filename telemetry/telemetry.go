// Copyright © 2018 The ELPS authors

// Package telemetry exports the spans recorded while inspecting suspended
// programs to a logrus logger.
package telemetry

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ServiceName identifies framevars in exported spans.
const ServiceName = "framevars"

// LogExporter is a sdktrace.SpanExporter that writes each finished span as
// a structured log entry.
type LogExporter struct {
	logger logrus.FieldLogger
	level  logrus.Level

	mu      sync.Mutex
	stopped bool
}

var _ sdktrace.SpanExporter = &LogExporter{}

// NewLogExporter returns an exporter writing to logger at level.
func NewLogExporter(logger logrus.FieldLogger, level logrus.Level) *LogExporter {
	return &LogExporter{logger: logger, level: level}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}
	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields := logrus.Fields{
			"span":     s.Name(),
			"trace_id": s.SpanContext().TraceID().String(),
			"span_id":  s.SpanContext().SpanID().String(),
			"duration": s.EndTime().Sub(s.StartTime()).String(),
		}
		if s.Parent().IsValid() {
			fields["parent_id"] = s.Parent().SpanID().String()
		}
		for _, kv := range s.Attributes() {
			fields[string(kv.Key)] = kv.Value.AsInterface()
		}
		if st := s.Status(); st.Description != "" {
			fields["status"] = st.Description
		}
		if len(s.Events()) > 0 {
			fields["events"] = len(s.Events())
		}
		entry := e.logger.WithFields(fields)
		switch e.level {
		case logrus.TraceLevel:
			entry.Trace("span")
		case logrus.DebugLevel:
			entry.Debug("span")
		case logrus.WarnLevel:
			entry.Warn("span")
		default:
			entry.Info("span")
		}
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter. Spans exported afterwards are
// dropped.
func (e *LogExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return ctx.Err()
}

// NewTracerProvider returns a provider that exports spans synchronously to
// logger. Callers must Shutdown the provider when done.
func NewTracerProvider(logger logrus.FieldLogger, level logrus.Level) *sdktrace.TracerProvider {
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(ServiceName))
	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(NewLogExporter(logger, level)),
		sdktrace.WithResource(res),
	)
}
