package container

import (
	"context"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jaevor/go-nanoid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/ratelimit-demo-go/internal/analytics"
	analyticsstore "github.com/serroba/ratelimit-demo-go/internal/analytics/store"
	"github.com/serroba/ratelimit-demo-go/internal/handlers"
	"github.com/serroba/ratelimit-demo-go/internal/health"
	"github.com/serroba/ratelimit-demo-go/internal/identity"
	"github.com/serroba/ratelimit-demo-go/internal/messaging"
	"github.com/serroba/ratelimit-demo-go/internal/metrics"
	"github.com/serroba/ratelimit-demo-go/internal/middleware"
	"github.com/serroba/ratelimit-demo-go/internal/ratelimit"
	"github.com/serroba/ratelimit-demo-go/internal/store"
	"go.uber.org/zap"
)

// Store backends selectable with --store.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

const (
	requestIDLength  = 21
	consumerGroup    = "ratelimit-analytics"
	publishBuffer    = 1024
	janitorInterval  = time.Minute
	migrationTimeout = 10 * time.Second
)

// Options is read once at startup from flags or SERVICE_* environment variables.
type Options struct {
	Port              int    `default:"8888"           help:"Port to listen on"                                  short:"p"`
	RedisAddr         string `default:"localhost:6379" help:"Redis server address"                               short:"r"`
	RateLimit         int    `default:"5"              help:"Requests allowed per client per window"`
	RateWindow        int    `default:"60"             help:"Window length in seconds"`
	KeyPrefix         string `default:"rate:"          help:"Prefix for counter keys"`
	Store             string `default:"redis"          help:"Counter store backend (redis or memory)"`
	TrustForwardedFor bool   `default:"true"           help:"Use X-Forwarded-For as client identity"`
	FailOpen          bool   `default:"false"          help:"Allow requests when the counter store is unreachable"`
	PublishDecisions  bool   `default:"false"          help:"Publish every decision to the analytics stream"`
	DatabaseURL       string `default:""               help:"PostgreSQL URL for decision analytics (consumer)"`
	LogFormat         string `default:"console"        help:"Log format (console or json)"`
}

// Policy converts the options into a validated policy.
func (o *Options) Policy() (ratelimit.Policy, error) {
	return ratelimit.NewPolicy(int64(o.RateLimit), time.Duration(o.RateWindow)*time.Second)
}

// CounterStore is a ratelimit.Store whose backend can be health checked.
type CounterStore interface {
	ratelimit.Store
	health.Checker
}

// StreamClient is the Redis client shared by the analytics publisher,
// subscriber and health check. The counter store holds its own connection.
type StreamClient struct {
	redis.UniversalClient
}

// Shutdown closes the client.
func (c *StreamClient) Shutdown() error {
	return c.Close()
}

type memoryCounterStore struct {
	*store.RateLimitMemoryStore
	stop context.CancelFunc
}

// Shutdown stops the janitor.
func (m *memoryCounterStore) Shutdown() error {
	m.stop()

	return nil
}

// LoggerPackage provides the zap logger.
func LoggerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "json" {
			return zap.NewProduction()
		}

		return zap.NewDevelopment()
	})
}

// RedisPackage provides the Redis client used for decision event streams.
func RedisPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*StreamClient, error) {
		opts := do.MustInvoke[*Options](i)

		return &StreamClient{UniversalClient: redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

// RateLimitPackage provides the policy, the counter store and the limiter.
func RateLimitPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (ratelimit.Policy, error) {
		return do.MustInvoke[*Options](i).Policy()
	})

	do.Provide(injector, func(i *do.Injector) (CounterStore, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		switch opts.Store {
		case StoreMemory:
			ctx, cancel := context.WithCancel(context.Background())
			s := store.NewRateLimitMemoryStore()
			s.StartJanitor(ctx, janitorInterval)

			logger.Info("using in-memory counter store")

			return &memoryCounterStore{RateLimitMemoryStore: s, stop: cancel}, nil
		case StoreRedis:
			logger.Info("using redis counter store", zap.String("addr", opts.RedisAddr))

			return store.NewRedisCounterStore(store.RedisConnector(&redis.Options{Addr: opts.RedisAddr})), nil
		default:
			return nil, fmt.Errorf("unknown store %q: want %s or %s", opts.Store, StoreRedis, StoreMemory)
		}
	})

	do.Provide(injector, func(i *do.Injector) (*ratelimit.FixedWindowLimiter, error) {
		policy := do.MustInvoke[ratelimit.Policy](i)
		counters := do.MustInvoke[CounterStore](i)

		return ratelimit.NewFixedWindowLimiter(counters, policy), nil
	})
}

// MetricsPackage provides the Prometheus registry and collectors.
func MetricsPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*metrics.Metrics, error) {
		return metrics.New(), nil
	})
}

// PublisherGroupPackage provides the decision publisher. When publishing is
// disabled the publish function is nil and no stream connection is made.
func PublisherGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		client := do.MustInvoke[*StreamClient](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := messaging.NewRedisPublisher(client.UniversalClient, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(injector, func(i *do.Injector) (*messaging.AsyncPublisher[analytics.DecisionEvent], error) {
		group := do.MustInvoke[*messaging.PublisherGroup](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publish := messaging.NewPublishFunc[analytics.DecisionEvent](group.Publisher(), analytics.TopicDecision)

		return messaging.NewAsyncPublisher(publish, publishBuffer, logger), nil
	})

	// Requests never wait on the stream: decisions are queued and dropped
	// when the queue is full.
	do.Provide(injector, func(i *do.Injector) (messaging.Publish[analytics.DecisionEvent], error) {
		if !do.MustInvoke[*Options](i).PublishDecisions {
			return nil, nil
		}

		return do.MustInvoke[*messaging.AsyncPublisher[analytics.DecisionEvent]](i).Publish, nil
	})
}

// PostgresPackage provides the analytics store: PostgreSQL when a database
// URL is configured, otherwise a store that only logs.
func PostgresPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (analytics.Store, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if opts.DatabaseURL == "" {
			logger.Info("no database configured, decisions will be logged only")

			return analyticsstore.NewNoop(logger), nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}

		pg := analyticsstore.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()

			return nil, fmt.Errorf("migrating analytics schema: %w", err)
		}

		return pg, nil
	})
}

// ConsumerGroupPackage provides the consumers persisting decision events.
func ConsumerGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		client := do.MustInvoke[*StreamClient](i)
		logger := do.MustInvoke[*zap.Logger](i)
		sink := do.MustInvoke[analytics.Store](i)

		subscriber, err := messaging.NewRedisSubscriber(client.UniversalClient, consumerGroup, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating subscriber: %w", err)
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer(
			subscriber,
			analytics.TopicDecision,
			analytics.NewDecisionHandler(sink),
			logger,
		))

		return group, nil
	})
}

// HTTPPackage provides the router and the Huma API with middleware and routes.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*chi.Mux, error) {
		m := do.MustInvoke[*metrics.Metrics](i)

		router := chi.NewMux()
		router.Use(chimw.Recoverer)
		router.Handle("/metrics", m.Handler())

		return router, nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)
		limiter := do.MustInvoke[*ratelimit.FixedWindowLimiter](i)
		counters := do.MustInvoke[CounterStore](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		publish := do.MustInvoke[messaging.Publish[analytics.DecisionEvent]](i)

		newID, err := nanoid.Standard(requestIDLength)
		if err != nil {
			return nil, fmt.Errorf("creating request id generator: %w", err)
		}

		extractor := identity.Extractor{TrustForwardedFor: opts.TrustForwardedFor}

		api := humachi.New(router, huma.DefaultConfig("Rate Limited API", "1.0.0"))
		api.UseMiddleware(middleware.RequestMetaMiddleware(extractor, newID))
		api.UseMiddleware(middleware.RateLimiter(api, limiter, logger, middleware.RateLimitOptions{
			KeyPrefix: opts.KeyPrefix,
			Extractor: extractor,
			FailOpen:  opts.FailOpen,
			Publish:   publish,
			Metrics:   m,
		}))

		checks := map[string]health.Checker{"store": counters}
		if opts.PublishDecisions {
			checks["events"] = health.NewRedisChecker(do.MustInvoke[*StreamClient](i).UniversalClient)
		}

		handlers.RegisterRoutes(api, handlers.NewLimitedHandler(logger))
		health.RegisterRoutes(api, health.NewHandler(limiter.Policy(), checks))

		logger.Info("rate limiter configured",
			zap.String("policy", limiter.Policy().String()),
			zap.String("store", opts.Store),
			zap.Bool("fail_open", opts.FailOpen),
		)

		return api, nil
	})
}
