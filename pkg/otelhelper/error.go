package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError records err on span and marks the span failed.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// SetFailure marks a step span failed with a classified reason instead of a Go error.
func SetFailure(span trace.Span, failure, message string) {
	span.SetAttributes(attribute.String(FailureKey, failure))
	span.SetStatus(codes.Error, message)
}
