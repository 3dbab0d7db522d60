package db

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

const maxSpanDescription = 512

type querySpanKey struct{}

// queryTracer records each query as a sentry span when the context already
// carries a transaction.
type queryTracer struct{}

func newQueryTracer() *queryTracer {
	return &queryTracer{}
}

func (queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	query := compactQuery(data.SQL)
	span := sentry.StartSpan(ctx, "db.query",
		sentry.WithDescription(query),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	if op, _, ok := strings.Cut(query, " "); ok {
		span.SetData("db.operation", strings.ToUpper(op))
	}

	return context.WithValue(span.Context(), querySpanKey{}, span)
}

func (queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(querySpanKey{}).(*sentry.Span)
	if !ok {
		return
	}

	span.Status = sentry.SpanStatusOK
	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	}
	span.SetData("db.rows_affected", data.CommandTag.RowsAffected())
	span.Finish()
}

// compactQuery collapses whitespace and truncates long statements.
func compactQuery(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return "sql.query"
	}
	if len(query) > maxSpanDescription {
		return query[:maxSpanDescription]
	}
	return query
}
