package service

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/metrics"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/telemetry"
)

// RegistrationStreamer streams registrations in cursor order
type RegistrationStreamer interface {
	Stream(ctx context.Context, filter bson.M, fn func(doc bson.M) error) error
}

// TicketCountReport pairs live counts with stale cached fields
type TicketCountReport struct {
	Counts       []domain.ComputedTicketCounts `json:"counts"`
	CachedFields []domain.Discrepancy          `json:"cachedFields"`
}

// PaymentVerification is the outcome of a verify-payments pass
type PaymentVerification struct {
	Checked       int                  `json:"checked"`
	Skipped       int                  `json:"skipped"`
	Discrepancies []domain.Discrepancy `json:"discrepancies"`
}

// ReportService runs the read-only passes. None of them writes.
type ReportService struct {
	registrations RegistrationStreamer
	references    ReferenceLoader
	reporter      *Reporter
	normalizer    *Normalizer
	verifier      *PaymentVerifier
	log           *logger.Logger
}

// NewReportService creates a report service. verifier may be nil when no
// payment provider is configured.
func NewReportService(
	registrations RegistrationStreamer,
	references ReferenceLoader,
	reporter *Reporter,
	normalizer *Normalizer,
	verifier *PaymentVerifier,
	log *logger.Logger,
) *ReportService {
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReportService{
		registrations: registrations,
		references:    references,
		reporter:      reporter,
		normalizer:    normalizer,
		verifier:      verifier,
		log:           log,
	}
}

// each normalizes every registration and calls fn; unnormalizable documents
// are logged and skipped
func (s *ReportService) each(ctx context.Context, filter bson.M, fn func(reg *domain.Registration) error) error {
	if filter == nil {
		filter = bson.M{}
	}
	return s.registrations.Stream(ctx, filter, func(doc bson.M) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, reg, _, err := s.normalizer.NormalizeDocument(doc)
		if err != nil {
			s.log.Debug("registration skipped", zap.Error(err))
			return nil
		}
		return fn(reg)
	})
}

// Summary counts registrations by type and payment status
func (s *ReportService) Summary(ctx context.Context, filter bson.M) (*RegistrationSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "report.summary")
	defer span.End()
	return s.reporter.Summary(ctx, filter)
}

// Duplicates groups registrations by duplicate signature
func (s *ReportService) Duplicates(ctx context.Context, filter bson.M) (*domain.DuplicateReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "report.duplicates")
	defer span.End()

	detector := NewDuplicateDetector()
	err := s.each(ctx, filter, func(reg *domain.Registration) error {
		detector.Add(reg)
		return nil
	})
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, fmt.Errorf("failed to scan registrations: %w", err)
	}
	return detector.Report(), nil
}

// Discrepancies detects ticket discrepancies without staging updates
func (s *ReportService) Discrepancies(ctx context.Context, filter bson.M) ([]domain.Discrepancy, error) {
	ctx, span := telemetry.StartSpan(ctx, "report.discrepancies")
	defer span.End()

	refs, err := s.references.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	detector := NewDiscrepancyDetector(NewResolver(refs))

	out := []domain.Discrepancy{}
	err = s.each(ctx, filter, func(reg *domain.Registration) error {
		out = append(out, detector.Detect(reg)...)
		return nil
	})
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, fmt.Errorf("failed to scan registrations: %w", err)
	}
	return out, nil
}

// TicketCounts computes live counts and lists cached count fields
func (s *ReportService) TicketCounts(ctx context.Context) (*TicketCountReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "report.ticket_counts")
	defer span.End()

	refs, err := s.references.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	counts, err := s.reporter.TicketCounts(ctx, refs)
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, err
	}
	cached := CachedCountDiscrepancies(refs)
	if cached == nil {
		cached = []domain.Discrepancy{}
	}
	return &TicketCountReport{Counts: counts, CachedFields: cached}, nil
}

// VerifyPayments checks every registration carrying a provider payment id.
// Provider failures skip that lookup only.
func (s *ReportService) VerifyPayments(ctx context.Context, filter bson.M) (*PaymentVerification, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("no payment gateway configured")
	}
	ctx, span := telemetry.StartSpan(ctx, "report.verify_payments")
	defer span.End()

	result := &PaymentVerification{Discrepancies: []domain.Discrepancy{}}
	err := s.each(ctx, filter, func(reg *domain.Registration) error {
		provider, _, ok := PaymentReference(reg)
		if !ok {
			return nil
		}
		ds, err := s.verifier.Verify(ctx, reg)
		if err != nil {
			if errors.Is(err, domain.ErrExternalAPI) {
				result.Skipped++
				metrics.RecordPaymentLookup(string(provider), "error")
				return nil
			}
			return err
		}
		result.Checked++
		metrics.RecordPaymentLookup(string(provider), "ok")
		result.Discrepancies = append(result.Discrepancies, ds...)
		return nil
	})
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return result, fmt.Errorf("failed to verify payments: %w", err)
	}
	metrics.RecordDiscrepancies(result.Discrepancies)
	return result, nil
}
