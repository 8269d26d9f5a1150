package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/gateway"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/repository"
)

func newTestGateways() (gateway.Gateways, *gateway.MockGateway) {
	mock := gateway.NewMockGateway("stripe")
	return gateway.Gateways{domain.ProviderStripe: mock}, mock
}

func TestPaymentVerifier_Verify(t *testing.T) {
	gws, mock := newTestGateways()
	mock.Add(
		&domain.Payment{ID: "pi_ok", Status: "succeeded", AmountMinorUnits: 15000, BuyerEmail: "ada@example.com"},
		&domain.Payment{ID: "pi_bad", Status: "requires_payment_method", AmountMinorUnits: 12000, BuyerEmail: "other@example.com"},
	)
	mock.FailWith("pi_down", &domain.ExternalAPIError{Provider: "stripe", StatusCode: 503, Err: errors.New("unavailable")})
	v := NewPaymentVerifier(gws, nil)
	ctx := context.Background()

	reg := func(paymentID string) *domain.Registration {
		return &domain.Registration{
			RegistrationID:        "reg-" + paymentID,
			PaymentStatus:         "completed",
			TotalAmountPaid:       15000,
			HasTotal:              true,
			CustomerEmail:         "ada@example.com",
			StripePaymentIntentID: paymentID,
		}
	}

	ds, err := v.Verify(ctx, reg("pi_ok"))
	require.NoError(t, err)
	assert.Empty(t, ds)

	ds, err = v.Verify(ctx, reg("pi_bad"))
	require.NoError(t, err)
	fields := make([]string, 0, len(ds))
	for _, d := range ds {
		assert.Equal(t, domain.DiscrepancyPayment, d.Kind)
		fields = append(fields, d.Field)
	}
	assert.Equal(t, []string{"totalAmountPaid", "paymentStatus", "customerEmail"}, fields)
	assert.Equal(t, "150.00", ds[0].CurrentValue)
	assert.Equal(t, "120.00", ds[0].CorrectValue)

	ds, err = v.Verify(ctx, reg("pi_missing"))
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "paymentId", ds[0].Field)

	_, err = v.Verify(ctx, reg("pi_down"))
	assert.True(t, errors.Is(err, domain.ErrExternalAPI))

	ds, err = v.Verify(ctx, &domain.Registration{RegistrationID: "no-payment"})
	require.NoError(t, err)
	assert.Nil(t, ds)

	_, err = v.Verify(ctx, &domain.Registration{RegistrationID: "sq", SquarePaymentID: "sq_1"})
	assert.True(t, errors.Is(err, domain.ErrExternalAPI), "unconfigured provider")
}

func TestPaymentMatcher_Match(t *testing.T) {
	created := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	store, repo := newStoreWith(
		bson.M{"registrationId": "reg-id", "confirmationNumber": "IND-1", "square_payment_id": "sq_1",
			"totalAmountPaid": 150.0, "createdAt": created},
		bson.M{"registrationId": "reg-meta", "totalAmountPaid": 80.0, "createdAt": created.Add(-48 * time.Hour)},
		bson.M{"registrationId": "reg-time", "totalAmountPaid": 42.5, "createdAt": created.Add(2 * time.Minute)},
		bson.M{"registrationId": "reg-email", "totalAmountPaid": 33.0, "customerEmail": "buyer@example.com",
			"createdAt": created.Add(-72 * time.Hour)},
	)
	_ = store
	m := NewPaymentMatcher(repo, nil)
	ctx := context.Background()

	tests := []struct {
		name       string
		payment    *domain.Payment
		wantID     string
		wantMethod domain.MatchMethod
		wantConf   int
	}{
		{
			name:       "payment id",
			payment:    &domain.Payment{ID: "sq_1", Provider: domain.ProviderSquare, AmountMinorUnits: 15000, CreatedAt: created},
			wantID:     "reg-id",
			wantMethod: domain.MatchByPaymentID,
			wantConf:   100,
		},
		{
			name:       "payment id with amount mismatch",
			payment:    &domain.Payment{ID: "sq_1", Provider: domain.ProviderSquare, AmountMinorUnits: 14000, CreatedAt: created},
			wantID:     "reg-id",
			wantMethod: domain.MatchByPaymentID,
			wantConf:   80,
		},
		{
			name: "metadata",
			payment: &domain.Payment{ID: "sq_2", Provider: domain.ProviderSquare, AmountMinorUnits: 8000,
				Metadata: map[string]string{"registrationId": "reg-meta"}},
			wantID:     "reg-meta",
			wantMethod: domain.MatchByMetadata,
			wantConf:   90,
		},
		{
			name:       "amount and time",
			payment:    &domain.Payment{ID: "sq_3", Provider: domain.ProviderSquare, AmountMinorUnits: 4250, CreatedAt: created},
			wantID:     "reg-time",
			wantMethod: domain.MatchByAmountTime,
			wantConf:   60,
		},
		{
			name:       "email and amount",
			payment:    &domain.Payment{ID: "sq_4", Provider: domain.ProviderSquare, AmountMinorUnits: 3300, BuyerEmail: "buyer@example.com"},
			wantID:     "reg-email",
			wantMethod: domain.MatchByEmailAmount,
			wantConf:   50,
		},
		{
			name:       "none",
			payment:    &domain.Payment{ID: "sq_5", Provider: domain.ProviderSquare, AmountMinorUnits: 999},
			wantMethod: domain.MatchNone,
			wantConf:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Match(ctx, tt.payment)
			require.NoError(t, err)
			if got.Method != tt.wantMethod || got.Confidence != tt.wantConf || got.RegistrationID != tt.wantID {
				t.Errorf("Match() = %v/%d/%q, want %v/%d/%q",
					got.Method, got.Confidence, got.RegistrationID, tt.wantMethod, tt.wantConf, tt.wantID)
			}
		})
	}
}

func TestPaymentMatcher_MatchUnmatched(t *testing.T) {
	store, repo := newStoreWith(bson.M{"registrationId": "reg-1", "squarePaymentId": "sq_1", "totalAmountPaid": 10.0})
	store.Insert("payments",
		bson.M{"paymentId": "sq_1", "source": "square", "amount": 10.0, "timestamp": time.Now()},
		bson.M{"paymentId": "sq_2", "source": "square", "amount": 20.0, "timestamp": time.Now(), "invoiceCreated": true},
		bson.M{"paymentId": "sq_3", "source": "square", "amount": 30.0, "timestamp": time.Now().Add(time.Minute)},
		bson.M{"amount": 1.0},
	)

	report, err := NewPaymentMatcher(repo, nil).MatchUnmatched(context.Background(), repository.NewPaymentRecordRepository(store, "payments"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Matches, 2)
	assert.Equal(t, "sq_1", report.Matches[0].PaymentID)
	assert.Equal(t, 1, report.Statistics.Matched)
	assert.Equal(t, 1, report.Statistics.Unmatched)
}

type fakeSource struct {
	rows []*repository.SourceRegistration
}

func (s *fakeSource) ListRegistrations(ctx context.Context, fn func(r *repository.SourceRegistration) error) error {
	for _, r := range s.rows {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func TestSourceAuditor_Audit(t *testing.T) {
	_, repo := newStoreWith(
		bson.M{"registrationId": "reg-1", "confirmationNumber": "IND-1", "paymentStatus": "completed", "totalAmountPaid": 100.0},
		bson.M{"registrationId": "reg-2", "confirmationNumber": "IND-2", "paymentStatus": "pending", "totalAmountPaid": 50.0},
	)
	source := &fakeSource{rows: []*repository.SourceRegistration{
		{RegistrationID: "reg-1", ConfirmationNumber: "IND-1", PaymentStatus: "Completed", TotalAmountPaid: 10000, HasTotal: true},
		{RegistrationID: "reg-2", ConfirmationNumber: "IND-2", PaymentStatus: "completed", TotalAmountPaid: 6000, HasTotal: true},
		{RegistrationID: "reg-3", ConfirmationNumber: "IND-3"},
	}}

	result, err := NewSourceAuditor(source, repo, NewNormalizer(nil)).Audit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.SourceRows)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Mismatched)
	assert.Equal(t, 1, result.Missing)
	require.Len(t, result.Discrepancies, 3)
	assert.Equal(t, "paymentStatus", result.Discrepancies[0].Field)
	assert.Equal(t, "totalAmountPaid", result.Discrepancies[1].Field)
	assert.Equal(t, "registration", result.Discrepancies[2].Field)
}
