package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const squadTracerName = "squad-bridge-cli"

// TraceCommand starts a span for one invocation of an external command.
// subcommand is the first argument ("create", "list", ...) or empty.
func TraceCommand(ctx context.Context, binary, subcommand, dir string) (context.Context, trace.Span) {
	name := "squad.command"
	if subcommand != "" {
		name = "squad." + subcommand
	}
	ctx, span := Tracer(squadTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("process.executable", binary),
		attribute.String("squad.subcommand", subcommand),
		attribute.String("process.working_directory", dir),
	)
	return ctx, span
}

// TraceCommandResult records the outcome of a command on its span.
func TraceCommandResult(span trace.Span, exitCode int, err error) {
	span.SetAttributes(attribute.Int("process.exit_code", exitCode))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if exitCode != 0 {
		span.SetStatus(codes.Error, "non-zero exit")
	}
}
