package obs

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ctxSpanKey struct{}

// PGXTracer implements pgx.QueryTracer to create spans for database interactions.
type PGXTracer struct {
	// MaxStatementLen truncates the recorded SQL; zero means 300 characters.
	MaxStatementLen int
}

// TraceQueryStart starts a span for the SQL statement.
func (t PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := "query"
	if fields := strings.Fields(data.SQL); len(fields) > 0 {
		op = strings.ToLower(fields[0])
	}
	ctx, span := otel.Tracer("db.pgx").Start(ctx, "pgx."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", t.truncate(data.SQL)),
		attribute.Int("db.args", len(data.Args)),
	)
	return context.WithValue(ctx, ctxSpanKey{}, span)
}

// TraceQueryEnd ends the span and records any error.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(ctxSpanKey{}).(trace.Span)
	if !ok {
		return
	}
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	span.End()
}

func (t PGXTracer) truncate(sql string) string {
	limit := t.MaxStatementLen
	if limit <= 0 {
		limit = 300
	}
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > limit {
		return trimmed[:limit] + "..."
	}
	return trimmed
}
