package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/serroba/ratelimit-demo-go/internal/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	events []*analytics.DecisionEvent
	err    error
}

func (m *mockStore) SaveDecision(_ context.Context, event *analytics.DecisionEvent) error {
	if m.err != nil {
		return m.err
	}

	m.events = append(m.events, event)

	return nil
}

func TestNewDecisionHandler(t *testing.T) {
	t.Run("saves event to store", func(t *testing.T) {
		store := &mockStore{}
		handler := analytics.NewDecisionHandler(store)

		event := &analytics.DecisionEvent{
			Key:       "rate:1.2.3.4",
			ClientIP:  "1.2.3.4",
			Allowed:   false,
			Count:     5,
			Limit:     5,
			DecidedAt: time.Now(),
		}

		err := handler(context.Background(), event)

		require.NoError(t, err)
		require.Len(t, store.events, 1)
		assert.Equal(t, "rate:1.2.3.4", store.events[0].Key)
	})

	t.Run("returns store error", func(t *testing.T) {
		store := &mockStore{err: errors.New("store error")}
		handler := analytics.NewDecisionHandler(store)

		err := handler(context.Background(), &analytics.DecisionEvent{})

		assert.Error(t, err)
	})
}
