package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ratelimit-demo-go/internal/analytics"
	"github.com/serroba/ratelimit-demo-go/internal/identity"
	"github.com/serroba/ratelimit-demo-go/internal/messaging"
	"github.com/serroba/ratelimit-demo-go/internal/metrics"
	"github.com/serroba/ratelimit-demo-go/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Response headers describing the client's quota.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Problem details returned to clients.
const (
	msgRateLimited = "Rate limit exceeded"
	msgUnavailable = "rate limiter unavailable"
	msgInternal    = "internal server error"
)

// DecisionRecorder receives one observation per limiter call.
type DecisionRecorder interface {
	RecordDecision(outcome string, took time.Duration)
	RecordPublish(err error)
}

// RateLimitOptions configures the RateLimiter middleware.
type RateLimitOptions struct {
	// KeyPrefix namespaces counter keys, e.g. "rate:".
	KeyPrefix string
	// Extractor resolves the client identity when RequestMeta did not run.
	Extractor identity.Extractor
	// FailOpen lets requests through when the counter store is unreachable.
	FailOpen bool
	// Publish, when set, receives every decision. It must not block; failures
	// are logged and counted only.
	Publish messaging.Publish[analytics.DecisionEvent]
	// Metrics, when set, records decision outcomes.
	Metrics DecisionRecorder
	// DenialLogInterval throttles denial warnings. Zero means one per second.
	DenialLogInterval time.Duration
}

// RateLimiter returns a Huma middleware that applies the fixed-window limiter
// to every operation not marked with ratelimit.Exempt.
func RateLimiter(
	api huma.API,
	limiter ratelimit.Limiter,
	logger *zap.Logger,
	opts RateLimitOptions,
) func(ctx huma.Context, next func(huma.Context)) {
	interval := opts.DenialLogInterval
	if interval <= 0 {
		interval = time.Second
	}

	denials := &rate.Sometimes{Interval: interval}

	return func(ctx huma.Context, next func(huma.Context)) {
		if cfg := ratelimit.GetEndpointConfig(ctx); cfg != nil && cfg.Disabled {
			next(ctx)

			return
		}

		meta, ok := RequestMetaFromContext(ctx.Context())
		if !ok {
			meta.ClientIP = opts.Extractor.Extract(ctx.Header(identity.HeaderForwardedFor), ctx.RemoteAddr())
		}

		key := ratelimit.Key(opts.KeyPrefix, meta.ClientIP)
		path := ctx.URL().Path

		start := time.Now()
		decision, err := limiter.Allow(ctx.Context(), key)
		took := time.Since(start)

		if err != nil {
			handleLimiterError(api, ctx, err, opts, logger, key, path, took, next)

			return
		}

		setQuotaHeaders(ctx, decision)
		publishDecision(opts, logger, meta, ctx.Method(), path, key, decision)

		if !decision.Allowed {
			record(opts.Metrics, metrics.OutcomeDenied, took)
			denials.Do(func() {
				logger.Warn("rate limit exceeded",
					zap.String("key", key),
					zap.String("path", path),
					zap.Int64("count", decision.Count),
					zap.Int64("limit", decision.Limit),
					zap.String("request_id", meta.RequestID),
				)
			})

			ctx.SetHeader(HeaderRetryAfter, strconv.FormatInt(retryAfterSeconds(decision.ResetAfter), 10))
			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, msgRateLimited)

			return
		}

		record(opts.Metrics, metrics.OutcomeAllowed, took)
		next(ctx)
	}
}

func handleLimiterError(
	api huma.API,
	ctx huma.Context,
	err error,
	opts RateLimitOptions,
	logger *zap.Logger,
	key, path string,
	took time.Duration,
	next func(huma.Context),
) {
	if errors.Is(err, ratelimit.ErrStoreUnavailable) {
		if opts.FailOpen {
			record(opts.Metrics, metrics.OutcomeFailedOpen, took)
			logger.Warn("rate limiter unavailable, failing open",
				zap.String("key", key), zap.String("path", path), zap.Error(err))
			next(ctx)

			return
		}

		record(opts.Metrics, metrics.OutcomeError, took)
		logger.Error("rate limiter unavailable",
			zap.String("key", key), zap.String("path", path), zap.Error(err))
		_ = huma.WriteErr(api, ctx, http.StatusServiceUnavailable, msgUnavailable)

		return
	}

	record(opts.Metrics, metrics.OutcomeError, took)
	logger.Error("rate limit check failed",
		zap.String("key", key), zap.String("path", path), zap.Error(err))
	_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, msgInternal)
}

func setQuotaHeaders(ctx huma.Context, d ratelimit.Decision) {
	ctx.SetHeader(HeaderLimit, strconv.FormatInt(d.Limit, 10))
	ctx.SetHeader(HeaderRemaining, strconv.FormatInt(d.Remaining, 10))
	ctx.SetHeader(HeaderReset, strconv.FormatInt(ceilSeconds(d.ResetAfter), 10))
}

func publishDecision(
	opts RateLimitOptions,
	logger *zap.Logger,
	meta RequestMeta,
	method, path, key string,
	d ratelimit.Decision,
) {
	if opts.Publish == nil {
		return
	}

	err := opts.Publish(&analytics.DecisionEvent{
		Key:       key,
		ClientIP:  meta.ClientIP,
		Allowed:   d.Allowed,
		Count:     d.Count,
		Limit:     d.Limit,
		Method:    method,
		Path:      path,
		RequestID: meta.RequestID,
		DecidedAt: time.Now().UTC(),
	})
	switch {
	case errors.Is(err, messaging.ErrBufferFull):
		logger.Debug("decision event dropped", zap.String("key", key))
	case err != nil:
		logger.Error("failed to publish decision event", zap.String("key", key), zap.Error(err))
	}

	if opts.Metrics != nil {
		opts.Metrics.RecordPublish(err)
	}
}

func record(rec DecisionRecorder, outcome string, took time.Duration) {
	if rec != nil {
		rec.RecordDecision(outcome, took)
	}
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}

	return int64(math.Ceil(d.Seconds()))
}

// retryAfterSeconds is never below one second so clients do not retry in a tight loop.
func retryAfterSeconds(d time.Duration) int64 {
	return max(ceilSeconds(d), 1)
}
