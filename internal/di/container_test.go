package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/gateway"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/repository"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/service"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/config"
)

type emptySource struct{}

func (emptySource) ListRegistrations(ctx context.Context, fn func(r *repository.SourceRegistration) error) error {
	return nil
}

func TestNewContainer_MemoryStore(t *testing.T) {
	store := repository.NewMemoryDocumentStore()
	store.Insert("registrations", bson.M{
		"registrationId":   "reg-1",
		"registrationType": "individuals",
		"tickets":          bson.A{},
	})

	c := NewContainer(&ContainerConfig{Store: store})

	require.NotNil(t, c.Pipeline)
	require.NotNil(t, c.Reports)
	require.NotNil(t, c.Matcher)
	assert.Nil(t, c.Auditor, "no source configured")
	assert.NotNil(t, c.HealthHandler)
	assert.NotNil(t, c.ReportHandler)
	assert.NotNil(t, c.RunHandler)

	summary, err := c.Pipeline.Run(context.Background(), service.RunOptions{DryRun: true})
	require.NoError(t, err)
	if summary.Processed != 1 {
		t.Errorf("Processed = %v, want %v", summary.Processed, 1)
	}

	_, err = c.Reports.VerifyPayments(context.Background(), nil)
	assert.Error(t, err, "verification needs gateways")
}

func TestNewContainer_WithSourceAndGateways(t *testing.T) {
	c := NewContainer(&ContainerConfig{
		Store:    repository.NewMemoryDocumentStore(),
		Source:   emptySource{},
		Gateways: gateway.Gateways{domain.ProviderStripe: gateway.NewMockGateway("stripe")},
	})
	require.NotNil(t, c.Auditor)

	result, err := c.Auditor.Audit(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.SourceRows)

	verification, err := c.Reports.VerifyPayments(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, verification.Checked)
}

func TestBuildGateways(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.Config
		providers []domain.PaymentProvider
		wantErr   bool
	}{
		{
			name:      "mock serves both providers",
			cfg:       config.Config{Reconcile: config.ReconcileConfig{PaymentGateway: "mock"}},
			providers: []domain.PaymentProvider{domain.ProviderStripe, domain.ProviderSquare},
		},
		{
			name: "square only",
			cfg: config.Config{
				Reconcile: config.ReconcileConfig{PaymentGateway: "square"},
				Square:    config.SquareConfig{AccessToken: "sq-token", Environment: "sandbox"},
			},
			providers: []domain.PaymentProvider{domain.ProviderSquare},
		},
		{
			name:    "named provider without credentials",
			cfg:     config.Config{Reconcile: config.ReconcileConfig{PaymentGateway: "stripe"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateways, err := BuildGateways(&tt.cfg, nil, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, gateways, len(tt.providers))
			for _, p := range tt.providers {
				_, err := gateways.For(p)
				assert.NoError(t, err, p)
			}
		})
	}
}
