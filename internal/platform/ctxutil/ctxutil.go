// Package ctxutil carries request-scoped tracing identifiers through
// context.Context, so the HTTP middleware chain can correlate log lines
// without threading extra parameters.
package ctxutil

import "context"

type ctxKey int

const traceDataKey ctxKey = iota

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context) context.Context {
	if GetTraceData(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, traceDataKey, &TraceData{})
}

func GetTraceData(ctx context.Context) *TraceData {
	td, _ := ctx.Value(traceDataKey).(*TraceData)
	return td
}

func SetRequestID(ctx context.Context, id string) {
	if td := GetTraceData(ctx); td != nil {
		td.RequestID = id
	}
}

func SetTraceID(ctx context.Context, id string) {
	if td := GetTraceData(ctx); td != nil {
		td.TraceID = id
	}
}
