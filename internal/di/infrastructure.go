package di

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/gateway"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/repository"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/config"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/database"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/kafka"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/redis"
)

// Build connects the configured infrastructure and wires the container.
// MongoDB is required; Redis, Kafka and Supabase are connected only when
// enabled, and a failed optional connection is logged and skipped.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	mongoCfg := database.DefaultMongoConfig()
	mongoCfg.URI = cfg.MongoDB.URI
	mongoCfg.Database = cfg.MongoDB.Database
	mongoCfg.AppName = cfg.App.Name
	if cfg.MongoDB.MaxPoolSize > 0 {
		mongoCfg.MaxPoolSize = cfg.MongoDB.MaxPoolSize
	}
	if cfg.MongoDB.ConnectTimeout > 0 {
		mongoCfg.ConnectTimeout = cfg.MongoDB.ConnectTimeout
	}
	if cfg.MongoDB.MaxRetries > 0 {
		mongoCfg.MaxRetries = cfg.MongoDB.MaxRetries
	}

	mongo, err := database.NewMongo(ctx, mongoCfg, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	cc := &ContainerConfig{
		Store:     repository.NewMongoDocumentStore(mongo, log.Logger),
		Mongo:     mongo,
		Reconcile: &cfg.Reconcile,
		Kafka:     &cfg.Kafka,
		Logger:    log,
	}

	if cfg.Redis.Enabled {
		cc.Redis, err = redis.NewClient(ctx, &redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.App.Name + ":",
		})
		if err != nil {
			log.Warn("Redis unavailable, running without run lock and payment cache", zap.Error(err))
			cc.Redis = nil
		}
	}

	if cfg.Kafka.Enabled {
		cc.Producer, err = kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			log.Warn("Kafka unavailable, corrections are only logged", zap.Error(err))
			cc.Producer = nil
		}
	}

	if cfg.Supabase.Enabled {
		if err := cfg.ValidateSupabase(); err != nil {
			log.Warn("Supabase disabled", zap.Error(err))
		} else {
			pgCfg := database.DefaultPostgresConfig()
			pgCfg.URL = cfg.Supabase.DBURL
			pgCfg.Host = cfg.Supabase.Host
			pgCfg.Port = cfg.Supabase.Port
			pgCfg.User = cfg.Supabase.User
			pgCfg.Password = cfg.Supabase.Password
			pgCfg.Database = cfg.Supabase.DBName
			pgCfg.SSLMode = cfg.Supabase.SSLMode
			pgCfg.EnableTracing = cfg.OTel.Enabled
			cc.Supabase, err = database.NewPostgres(ctx, pgCfg, log.Logger)
			if err != nil {
				log.Warn("Supabase unavailable, audit-source disabled", zap.Error(err))
				cc.Supabase = nil
			}
		}
	}

	cc.Gateways, err = BuildGateways(cfg, cc.Redis, log)
	if err != nil {
		log.Warn("Payment verification disabled", zap.Error(err))
	}

	return NewContainer(cc), nil
}

// BuildGateways creates one gateway per provider that has credentials.
// With RECONCILE_PAYMENT_GATEWAY=mock both providers are served by empty
// mock gateways. The named provider must be configured.
func BuildGateways(cfg *config.Config, rdb *redis.Client, log *logger.Logger) (gateway.Gateways, error) {
	gateways := gateway.Gateways{}
	if cfg.Reconcile.PaymentGateway == string(domain.ProviderMock) {
		gateways[domain.ProviderStripe] = gateway.NewMockGateway(string(domain.ProviderStripe))
		gateways[domain.ProviderSquare] = gateway.NewMockGateway(string(domain.ProviderSquare))
		return gateways, nil
	}

	cacheCfg := &gateway.CachedGatewayConfig{TTL: cfg.Reconcile.PaymentCacheTTL}

	if cfg.Stripe.SecretKey != "" {
		stripeGw, err := gateway.NewStripeGateway(&gateway.StripeGatewayConfig{SecretKey: cfg.Stripe.SecretKey})
		if err != nil {
			return nil, fmt.Errorf("failed to create stripe gateway: %w", err)
		}
		gateways[domain.ProviderStripe] = gateway.NewCachedGateway(stripeGw, rdb, cacheCfg, log)
	}
	if cfg.Square.AccessToken != "" {
		squareGw, err := gateway.NewSquareGateway(&gateway.SquareGatewayConfig{
			AccessToken: cfg.Square.AccessToken,
			Environment: cfg.Square.Environment,
			APIVersion:  cfg.Square.APIVersion,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create square gateway: %w", err)
		}
		gateways[domain.ProviderSquare] = gateway.NewCachedGateway(squareGw, rdb, cacheCfg, log)
	}

	if _, ok := gateways[domain.PaymentProvider(cfg.Reconcile.PaymentGateway)]; !ok {
		return gateways, fmt.Errorf("no credentials for payment gateway %s", cfg.Reconcile.PaymentGateway)
	}
	return gateways, nil
}

// Close releases every connection the container owns
func (c *Container) Close(ctx context.Context) {
	if c.Producer != nil {
		c.Producer.Close()
	}
	if c.Supabase != nil {
		c.Supabase.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("Failed to close Redis", zap.Error(err))
		}
	}
	if c.Mongo != nil {
		if err := c.Mongo.Close(ctx); err != nil {
			c.Logger.Warn("Failed to close MongoDB", zap.Error(err))
		}
	}
}
