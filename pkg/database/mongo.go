package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI                    string
	Database               string
	AppName                string
	MaxPoolSize            uint64
	MinPoolSize            uint64
	MaxConnIdleTime        time.Duration
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	SocketTimeout          time.Duration

	// Retry configuration
	MaxRetries    int
	RetryInterval time.Duration

	// Circuit breaker configuration
	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold uint32
}

// DefaultMongoConfig returns default configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:                     "mongodb://localhost:27017",
		Database:                "lodgetix",
		AppName:                 "lodgetix-reconcile",
		MaxPoolSize:             10,
		MinPoolSize:             0,
		MaxConnIdleTime:         5 * time.Minute,
		ConnectTimeout:          10 * time.Second,
		ServerSelectionTimeout:  10 * time.Second,
		SocketTimeout:           60 * time.Second,
		MaxRetries:              3,
		RetryInterval:           2 * time.Second,
		BreakerMaxRequests:      1,
		BreakerInterval:         time.Minute,
		BreakerTimeout:          30 * time.Second,
		BreakerFailureThreshold: 5,
	}
}

// MongoDB owns one mongo.Client and the circuit breaker shared by every
// collection handle opened from it.
type MongoDB struct {
	client  *mongo.Client
	db      *mongo.Database
	config  *MongoConfig
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewMongo connects to MongoDB with retry logic
func NewMongo(ctx context.Context, cfg *MongoConfig, log *zap.Logger) (*MongoDB, error) {
	if cfg == nil {
		cfg = DefaultMongoConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	opts := options.Client().ApplyURI(cfg.URI)
	opts.SetAppName(cfg.AppName)
	opts.SetMaxPoolSize(cfg.MaxPoolSize)
	opts.SetMinPoolSize(cfg.MinPoolSize)
	opts.SetMaxConnIdleTime(cfg.MaxConnIdleTime)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetServerSelectionTimeout(cfg.ServerSelectionTimeout)
	opts.SetSocketTimeout(cfg.SocketTimeout)
	opts.SetReadPreference(readpref.Primary())

	var client *mongo.Client
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(cfg.RetryInterval)
		}

		client, lastErr = mongo.Connect(ctx, opts)
		if lastErr != nil {
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		lastErr = client.Ping(pingCtx, readpref.Primary())
		cancel()
		if lastErr != nil {
			_ = client.Disconnect(ctx)
			continue
		}

		m := &MongoDB{
			client: client,
			db:     client.Database(cfg.Database),
			config: cfg,
			log:    log,
		}
		m.breaker = newBreaker("mongodb-"+cfg.Database, cfg, log)

		log.Info("MongoDB connected", zap.String("database", cfg.Database), zap.Int("attempts", attempt+1))
		return m, nil
	}

	return nil, fmt.Errorf("failed to connect to mongodb after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

func newBreaker(name string, cfg *MongoConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// a missing document is an answer, not a failing server
			return err == nil || err == mongo.ErrNoDocuments
		},
	})
}

// Database returns the configured database handle
func (m *MongoDB) Database() *mongo.Database {
	return m.db
}

// Collection returns a collection handle from the configured database
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Breaker returns the circuit breaker guarding this connection
func (m *MongoDB) Breaker() *gobreaker.CircuitBreaker {
	return m.breaker
}

// Ping checks if the connection is alive
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (m *MongoDB) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// HealthCheck pings with a short timeout
func (m *MongoDB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := m.Ping(ctx); err != nil {
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}
