package middleware

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ratelimit-demo-go/internal/identity"
)

// HeaderRequestID carries the request correlation ID in both directions.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 128

type requestMetaKey struct{}

// RequestMeta holds request information used in logs and decision events.
type RequestMeta struct {
	RequestID string
	ClientIP  string
	UserAgent string
}

// ContextWithRequestMeta returns a new context carrying meta.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext returns the meta stored in ctx, if any.
func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)

	return meta, ok
}

// RequestMetaMiddleware is a middleware that assigns a request ID and resolves the client
// identity once per request. An incoming X-Request-ID is reused when present.
func RequestMetaMiddleware(
	extractor identity.Extractor, newID func() string,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		requestID := ctx.Header(HeaderRequestID)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = newID()
		}

		ctx.SetHeader(HeaderRequestID, requestID)

		meta := RequestMeta{
			RequestID: requestID,
			ClientIP:  extractor.Extract(ctx.Header(identity.HeaderForwardedFor), ctx.RemoteAddr()),
			UserAgent: ctx.Header("User-Agent"),
		}

		next(huma.WithContext(ctx, ContextWithRequestMeta(ctx.Context(), meta)))
	}
}
