package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/redis"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/retry"
)

// CachedGateway is a read-through Redis cache in front of a gateway.
// Concurrent lookups of one id share a single provider call, and provider
// calls are retried with backoff. Not-found results are never cached.
type CachedGateway struct {
	next    PaymentGateway
	redis   *redis.Client
	ttl     time.Duration
	retrier *retry.Retrier
	sfGroup singleflight.Group
	log     *logger.Logger
}

// CachedGatewayConfig configures the cache decorator
type CachedGatewayConfig struct {
	TTL   time.Duration
	Retry *retry.Config
}

// NewCachedGateway wraps next. A nil Redis client disables caching but
// keeps retries.
func NewCachedGateway(next PaymentGateway, rdb *redis.Client, cfg *CachedGatewayConfig, log *logger.Logger) *CachedGateway {
	if cfg == nil {
		cfg = &CachedGatewayConfig{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	rc := retry.DefaultConfig()
	if cfg.Retry != nil {
		c := *cfg.Retry
		rc = &c
	}
	rc.RetryIf = func(err error) bool {
		return !errors.Is(err, domain.ErrPaymentNotFound)
	}
	if log == nil {
		log = logger.Nop()
	}

	return &CachedGateway{
		next:    next,
		redis:   rdb,
		ttl:     cfg.TTL,
		retrier: retry.New(rc),
		log:     log,
	}
}

// GetPayment returns the cached payment or fetches it
func (g *CachedGateway) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	key := ""
	if g.redis != nil {
		key = g.redis.Key("payment", g.next.Name(), paymentID)
		if p, ok := g.fromCache(ctx, key); ok {
			return p, nil
		}
	}

	v, err, _ := g.sfGroup.Do(paymentID, func() (interface{}, error) {
		var p *domain.Payment
		result := g.retrier.DoWithCallback(ctx, func(ctx context.Context) error {
			var err error
			p, err = g.next.GetPayment(ctx, paymentID)
			return err
		}, func(attempt int, err error, next time.Duration) {
			g.log.Warn("payment lookup failed, retrying",
				zap.String("gateway", g.next.Name()),
				zap.String("payment_id", paymentID),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err),
			)
		})
		if result.Err != nil {
			return nil, result.Unwrap()
		}
		if key != "" {
			g.store(ctx, key, p)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*domain.Payment)
	return &p, nil
}

// Name returns the wrapped gateway name
func (g *CachedGateway) Name() string {
	return g.next.Name()
}

func (g *CachedGateway) fromCache(ctx context.Context, key string) (*domain.Payment, bool) {
	data, err := g.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			g.log.Warn("payment cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var p domain.Payment
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (g *CachedGateway) store(ctx context.Context, key string, p *domain.Payment) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := g.redis.Set(ctx, key, data, g.ttl).Err(); err != nil {
		g.log.Warn("payment cache write failed", zap.String("key", key), zap.Error(err))
	}
}
