package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/redis"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/retry"
)

func TestSquareGateway_GetPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.Equal(t, "2024-10-17", r.Header.Get("Square-Version"))

		switch r.URL.Path {
		case "/v2/payments/sq_ok":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"payment":{"id":"sq_ok","status":"COMPLETED","amount_money":{"amount":12050,"currency":"aud"},"buyer_email_address":"Booker@Example.com","created_at":"2025-06-01T10:00:00Z","reference_id":"REG-1","note":"Grand Proclamation"}}`))
		case "/v2/payments/sq_missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"NOT_FOUND","detail":"Could not find payment"}]}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"errors":[{"category":"RATE_LIMIT_ERROR","code":"RATE_LIMITED","detail":"slow down"}]}`))
		}
	}))
	defer server.Close()

	gw, err := NewSquareGateway(&SquareGatewayConfig{AccessToken: "token-123", BaseURL: server.URL})
	require.NoError(t, err)

	p, err := gw.GetPayment(context.Background(), "sq_ok")
	require.NoError(t, err)
	assert.Equal(t, "sq_ok", p.ID)
	assert.Equal(t, domain.ProviderSquare, p.Provider)
	assert.Equal(t, int64(12050), p.AmountMinorUnits)
	assert.Equal(t, "AUD", p.Currency)
	assert.Equal(t, "booker@example.com", p.BuyerEmail)
	assert.Equal(t, "REG-1", p.RegistrationReference())
	assert.True(t, p.Succeeded())
	assert.Equal(t, 2025, p.CreatedAt.Year())

	_, err = gw.GetPayment(context.Background(), "sq_missing")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	_, err = gw.GetPayment(context.Background(), "sq_limited")
	assert.ErrorIs(t, err, domain.ErrExternalAPI)
	var apiErr *domain.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestNewSquareGateway_Validation(t *testing.T) {
	_, err := NewSquareGateway(nil)
	assert.Error(t, err)

	_, err = NewSquareGateway(&SquareGatewayConfig{})
	assert.Error(t, err)

	gw, err := NewSquareGateway(&SquareGatewayConfig{AccessToken: "x", Environment: "sandbox"})
	require.NoError(t, err)
	assert.Equal(t, SquareSandboxURL, gw.config.BaseURL)
}

func TestNewStripeGateway_Validation(t *testing.T) {
	_, err := NewStripeGateway(nil)
	assert.Error(t, err)

	_, err = NewStripeGateway(&StripeGatewayConfig{})
	assert.Error(t, err)
}

func TestMockGateway(t *testing.T) {
	gw := NewMockGateway("")
	gw.Add(&domain.Payment{ID: "pi_1", AmountMinorUnits: 5000, Status: "succeeded"})
	gw.FailWith("pi_err", &domain.ExternalAPIError{Provider: "mock", PaymentID: "pi_err", Err: errors.New("boom")})

	p, err := gw.GetPayment(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(5000), p.Amount())

	_, err = gw.GetPayment(context.Background(), "pi_none")
	assert.True(t, domain.IsNotFoundError(err))

	_, err = gw.GetPayment(context.Background(), "pi_err")
	assert.ErrorIs(t, err, domain.ErrExternalAPI)

	assert.Equal(t, int64(3), gw.Calls())
	assert.Equal(t, "mock", gw.Name())
}

func TestGateways_For(t *testing.T) {
	gws := Gateways{domain.ProviderMock: NewMockGateway("")}

	gw, err := gws.For(domain.ProviderMock)
	require.NoError(t, err)
	assert.Equal(t, "mock", gw.Name())

	_, err = gws.For(domain.ProviderSquare)
	assert.Error(t, err)
}

// flakyGateway fails a fixed number of times before succeeding
type flakyGateway struct {
	failures int32
	calls    atomic.Int32
}

func (g *flakyGateway) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	n := g.calls.Add(1)
	if n <= g.failures {
		return nil, &domain.ExternalAPIError{Provider: "flaky", PaymentID: id, StatusCode: 503, Err: errors.New("unavailable")}
	}
	return &domain.Payment{ID: id, AmountMinorUnits: 100}, nil
}

func (g *flakyGateway) Name() string { return "flaky" }

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestCachedGateway_RetriesTransientErrors(t *testing.T) {
	next := &flakyGateway{failures: 2}
	gw := NewCachedGateway(next, nil, &CachedGatewayConfig{Retry: fastRetry()}, nil)

	p, err := gw.GetPayment(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", p.ID)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestCachedGateway_DoesNotRetryNotFound(t *testing.T) {
	next := NewMockGateway("")
	gw := NewCachedGateway(next, nil, &CachedGatewayConfig{Retry: fastRetry()}, nil)

	_, err := gw.GetPayment(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	assert.Equal(t, int64(1), next.Calls())
}

func TestCachedGateway_SharesConcurrentLookups(t *testing.T) {
	next := NewMockGateway("").WithDelay(50 * time.Millisecond)
	next.Add(&domain.Payment{ID: "pi_1", AmountMinorUnits: 100})
	gw := NewCachedGateway(next, nil, &CachedGatewayConfig{Retry: fastRetry()}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := gw.GetPayment(context.Background(), "pi_1")
			assert.NoError(t, err)
			assert.Equal(t, int64(100), p.AmountMinorUnits)
		}()
	}
	wg.Wait()

	if calls := next.Calls(); calls >= 10 {
		t.Errorf("provider calls = %d, want fewer than 10", calls)
	}
}

func TestCachedGateway_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := redis.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.KeyPrefix = fmt.Sprintf("gateway-test-%d:", time.Now().UnixNano())
	rdb, err := redis.NewClient(ctx, cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer rdb.Close()

	next := NewMockGateway("")
	next.Add(&domain.Payment{ID: "pi_cached", AmountMinorUnits: 4200, Status: "succeeded"})
	gw := NewCachedGateway(next, rdb, &CachedGatewayConfig{TTL: time.Minute, Retry: fastRetry()}, nil)

	for i := 0; i < 3; i++ {
		p, err := gw.GetPayment(ctx, "pi_cached")
		require.NoError(t, err)
		assert.Equal(t, int64(4200), p.AmountMinorUnits)
	}
	assert.Equal(t, int64(1), next.Calls())

	rdb.Del(ctx, rdb.Key("payment", "mock", "pi_cached"))
}
