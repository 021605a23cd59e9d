package store

import (
	"context"

	"github.com/serroba/ratelimit-demo-go/internal/analytics"
	"go.uber.org/zap"
)

// Noop is a no-op implementation of analytics.Store that logs events.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new no-op analytics store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveDecision(_ context.Context, event *analytics.DecisionEvent) error {
	n.logger.Info("rate limit decision received",
		zap.String("key", event.Key),
		zap.Bool("allowed", event.Allowed),
		zap.Int64("count", event.Count),
		zap.Int64("limit", event.Limit),
		zap.String("path", event.Path),
		zap.Time("decidedAt", event.DecidedAt),
	)

	return nil
}

// Compile-time check.
var _ analytics.Store = (*Noop)(nil)
