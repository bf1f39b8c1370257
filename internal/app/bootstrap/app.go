package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/messaging"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/observability/tracing"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Runtime is everything a binary needs after startup: the domain stack,
// its backing connections and the outbound transport.
type Runtime struct {
	Config    *appconfig.Config
	Logger    *logging.Logger
	Redis     *redis.Client
	Pool      *pgxpool.Pool
	Domain    *Domain
	Messenger conversation.ReplyMessenger
	Transport string

	shutdownTracing tracing.Shutdown
}

// Start connects Postgres and Redis, installs tracing and builds the
// domain. Metrics register with reg, or the default registry when nil.
func Start(ctx context.Context, cfg *appconfig.Config, service string, reg prometheus.Registerer) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting "+service, "env", cfg.Env)

	rt := &Runtime{
		Config: cfg,
		Logger: logger,
		shutdownTracing: tracing.Setup(ctx, tracing.Config{
			ServiceName: service,
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    cfg.OTLPInsecure,
			Environment: cfg.Env,
		}, logger),
	}

	pool, err := BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.Pool = pool
	rt.Redis = BuildRedisClient(ctx, cfg, logger, true)

	var seed *Seed
	if pool == nil && strings.TrimSpace(cfg.DevSeedFile) != "" {
		if seed, err = LoadSeed(cfg.DevSeedFile); err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}

	rt.Domain, err = BuildDomain(cfg, DomainDeps{
		Pool:       pool,
		Sessions:   BuildSessionStore(rt.Redis, cfg.SessionTTL, logger),
		Registerer: reg,
		Seed:       seed,
	}, logger)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	rt.Messenger, rt.Transport = messaging.BuildReplyMessenger(messaging.TransportConfig{
		WebhookURL:      cfg.OutboundWebhookURL,
		SupportsChoices: cfg.OutboundSupportsChoices,
	}, logger, metrics.NewMessagingMetrics(reg))
	logger.Info("outbound transport selected", "transport", rt.Transport)
	return rt, nil
}

// ReadinessChecks pings whichever backing stores are connected.
func (rt *Runtime) ReadinessChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if rt.Pool != nil {
		checks["postgres"] = rt.Pool.Ping
	}
	if rt.Redis != nil {
		client := rt.Redis
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

// Close releases connections and flushes traces.
func (rt *Runtime) Close(ctx context.Context) {
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.Logger.Warn("failed to close redis", "error", err)
		}
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
	if rt.shutdownTracing != nil {
		if err := rt.shutdownTracing(ctx); err != nil {
			rt.Logger.Warn("failed to flush traces", "error", err)
		}
	}
}
