// Package testing installs an in memory tracer for tests that assert on spans.
package testing

import (
	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
)

// SetupInMemoryTracing sets the global tracer to an in memory Jaeger instance.
// Finished spans can be read back from the returned reporter. The returned
// function restores the previous tracer and should be deferred.
func SetupInMemoryTracing(name string) (*jaeger.InMemoryReporter, func()) {
	var (
		old            = opentracing.GlobalTracer()
		reporter       = jaeger.NewInMemoryReporter()
		tracer, closer = jaeger.NewTracer(name,
			jaeger.NewConstSampler(true),
			reporter,
		)
	)

	opentracing.SetGlobalTracer(tracer)
	return reporter, func() {
		_ = closer.Close()
		opentracing.SetGlobalTracer(old)
	}
}

// OperationNames returns the operation names of the spans the reporter saw,
// in the order they finished.
func OperationNames(reporter *jaeger.InMemoryReporter) []string {
	spans := reporter.GetSpans()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		if js, ok := s.(*jaeger.Span); ok {
			names = append(names, js.OperationName())
		}
	}
	return names
}
