package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/repository"
)

// RegistrationLookup resolves a registration by any of its ids
type RegistrationLookup interface {
	Lookup(ctx context.Context, id string) (domain.LookupResult, error)
}

// AuditResult compares the Mongo copy with the Supabase source
type AuditResult struct {
	SourceRows    int                  `json:"sourceRows"`
	Matched       int                  `json:"matched"`
	Missing       int                  `json:"missing"`
	Mismatched    int                  `json:"mismatched"`
	Discrepancies []domain.Discrepancy `json:"discrepancies"`
}

// SourceAuditor checks that every source registration exists in Mongo with
// the same payment status and total
type SourceAuditor struct {
	source     repository.RegistrationSource
	lookup     RegistrationLookup
	normalizer *Normalizer
}

// NewSourceAuditor creates an auditor
func NewSourceAuditor(source repository.RegistrationSource, lookup RegistrationLookup, normalizer *Normalizer) *SourceAuditor {
	return &SourceAuditor{source: source, lookup: lookup, normalizer: normalizer}
}

// Audit walks the source table
func (a *SourceAuditor) Audit(ctx context.Context) (*AuditResult, error) {
	result := &AuditResult{Discrepancies: []domain.Discrepancy{}}

	err := a.source.ListRegistrations(ctx, func(row *repository.SourceRegistration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		result.SourceRows++

		found, err := a.lookup.Lookup(ctx, row.RegistrationID)
		if err != nil {
			return err
		}
		base := domain.Discrepancy{
			Kind:               domain.DiscrepancySourceMismatch,
			RegistrationID:     row.RegistrationID,
			ConfirmationNumber: row.ConfirmationNumber,
		}
		if found.Status != domain.LookupFound {
			result.Missing++
			d := base
			d.Field = "registration"
			d.Reason = fmt.Sprintf("source registration %s in mongo", found.Status)
			result.Discrepancies = append(result.Discrepancies, d)
			return nil
		}

		_, reg, _, err := a.normalizer.NormalizeDocument(found.Document)
		if err != nil {
			result.Mismatched++
			d := base
			d.Field = "registration"
			d.Reason = err.Error()
			result.Discrepancies = append(result.Discrepancies, d)
			return nil
		}

		diffs := compareWithSource(base, row, reg)
		if len(diffs) > 0 {
			result.Mismatched++
			result.Discrepancies = append(result.Discrepancies, diffs...)
		} else {
			result.Matched++
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to audit source registrations: %w", err)
	}
	return result, nil
}

func compareWithSource(base domain.Discrepancy, row *repository.SourceRegistration, reg *domain.Registration) []domain.Discrepancy {
	var out []domain.Discrepancy
	if row.PaymentStatus != "" && !strings.EqualFold(row.PaymentStatus, reg.PaymentStatus) {
		d := base
		d.Field = "paymentStatus"
		d.CurrentValue = reg.PaymentStatus
		d.CorrectValue = row.PaymentStatus
		out = append(out, d)
	}
	if row.HasTotal && (!reg.HasTotal || row.TotalAmountPaid != reg.TotalAmountPaid) {
		d := base
		d.Field = "totalAmountPaid"
		if reg.HasTotal {
			d.CurrentValue = reg.TotalAmountPaid.String()
		}
		d.CorrectValue = row.TotalAmountPaid.String()
		out = append(out, d)
	}
	if row.ConfirmationNumber != "" && reg.ConfirmationNumber != "" && row.ConfirmationNumber != reg.ConfirmationNumber {
		d := base
		d.Field = "confirmationNumber"
		d.CurrentValue = reg.ConfirmationNumber
		d.CorrectValue = row.ConfirmationNumber
		out = append(out, d)
	}
	return out
}
