package analytics

import (
	"context"

	"github.com/serroba/ratelimit-demo-go/internal/messaging"
)

// Store defines the interface for persisting analytics events.
type Store interface {
	SaveDecision(ctx context.Context, event *DecisionEvent) error
}

// NewDecisionHandler returns a consumer handler that persists decisions to store.
func NewDecisionHandler(store Store) messaging.Handler[DecisionEvent] {
	return func(ctx context.Context, event *DecisionEvent) error {
		return store.SaveDecision(ctx, event)
	}
}
