package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
const (
	AttrRecordID = "srmgate.record.id"
	AttrCodec    = "srmgate.identity.codec"
	AttrOrigin   = "srmgate.client.origin"
)

// SpanAuthorize starts a span for an authorization.
func (p *Provider) SpanAuthorize(ctx context.Context, codec, origin string) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, "srmgate.identity.authorize", trace.WithAttributes(
		attribute.String(AttrCodec, codec),
		attribute.String(AttrOrigin, origin),
	))
}

// SpanFind starts a span for an identity restore.
func (p *Provider) SpanFind(ctx context.Context, id int64) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, "srmgate.identity.find", trace.WithAttributes(
		attribute.Int64(AttrRecordID, id),
	))
}

// EndSpan ends span, recording err when it is not nil.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
