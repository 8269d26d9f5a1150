package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// MockGateway implements PaymentGateway for tests and offline runs
type MockGateway struct {
	name     string
	payments sync.Map
	errors   sync.Map
	calls    atomic.Int64
	delay    time.Duration
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(name string) *MockGateway {
	if name == "" {
		name = string(domain.ProviderMock)
	}
	return &MockGateway{name: name}
}

// WithDelay simulates provider latency
func (g *MockGateway) WithDelay(d time.Duration) *MockGateway {
	g.delay = d
	return g
}

// Add registers a payment
func (g *MockGateway) Add(payments ...*domain.Payment) {
	for _, p := range payments {
		g.payments.Store(p.ID, p)
	}
}

// FailWith makes lookups of paymentID return err
func (g *MockGateway) FailWith(paymentID string, err error) {
	g.errors.Store(paymentID, err)
}

// Calls returns the number of GetPayment calls
func (g *MockGateway) Calls() int64 {
	return g.calls.Load()
}

// GetPayment returns a registered payment
func (g *MockGateway) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if v, ok := g.errors.Load(paymentID); ok {
		return nil, v.(error)
	}
	v, ok := g.payments.Load(paymentID)
	if !ok {
		return nil, fmt.Errorf("%s payment %s: %w", g.name, paymentID, domain.ErrPaymentNotFound)
	}
	p := *v.(*domain.Payment)
	return &p, nil
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return g.name
}
