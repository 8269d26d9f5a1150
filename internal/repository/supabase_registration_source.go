package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/database"
)

// SourceRegistration is one row of the Supabase registrations table
type SourceRegistration struct {
	RegistrationID     string
	ConfirmationNumber string
	RegistrationType   string
	PaymentStatus      string
	TotalAmountPaid    domain.Money
	HasTotal           bool
	StripePaymentID    string
	SquarePaymentID    string
	CreatedAt          time.Time
}

// RegistrationSource yields the rows the Mongo copy was imported from
type RegistrationSource interface {
	ListRegistrations(ctx context.Context, fn func(r *SourceRegistration) error) error
}

// SupabaseRegistrationSource reads registrations from Supabase Postgres
type SupabaseRegistrationSource struct {
	db *database.PostgresDB
}

// NewSupabaseRegistrationSource creates a source over an open pool
func NewSupabaseRegistrationSource(db *database.PostgresDB) *SupabaseRegistrationSource {
	return &SupabaseRegistrationSource{db: db}
}

const listRegistrationsSQL = `
	SELECT registration_id::text,
	       COALESCE(confirmation_number, ''),
	       COALESCE(registration_type::text, ''),
	       COALESCE(payment_status::text, ''),
	       total_amount_paid::text,
	       COALESCE(stripe_payment_intent_id, ''),
	       COALESCE(square_payment_id, ''),
	       created_at
	FROM registrations
	ORDER BY created_at
`

// ListRegistrations streams every registration row
func (s *SupabaseRegistrationSource) ListRegistrations(ctx context.Context, fn func(r *SourceRegistration) error) error {
	rows, err := s.db.Query(ctx, listRegistrationsSQL)
	if err != nil {
		return fmt.Errorf("failed to query supabase registrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r     SourceRegistration
			total *string
		)
		if err := rows.Scan(
			&r.RegistrationID,
			&r.ConfirmationNumber,
			&r.RegistrationType,
			&r.PaymentStatus,
			&total,
			&r.StripePaymentID,
			&r.SquarePaymentID,
			&r.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan registration row: %w", err)
		}
		if total != nil {
			r.TotalAmountPaid, r.HasTotal = domain.ParseMoney(*total)
		}
		if err := fn(&r); err != nil {
			return err
		}
	}
	return rows.Err()
}

