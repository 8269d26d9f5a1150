package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/metrics"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/retry"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/telemetry"
)

// Outcome reasons recorded on the run summary
const (
	ReasonEmptyDocument = "empty_document"
	ReasonNormalization = "normalization"
	ReasonUpdateFailed  = "update_failed"
	ReasonNotFound      = "not_found"
)

// RunLock serialises mutating runs
type RunLock interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// ReferenceLoader loads the read-only reference collections
type ReferenceLoader interface {
	Load(ctx context.Context) (*domain.ReferenceSet, error)
}

// RegistrationStore is what the pipeline needs from the registrations
// repository
type RegistrationStore interface {
	RegistrationWriter
	RegistrationLookup
	Stream(ctx context.Context, filter bson.M, fn func(doc bson.M) error) error
}

// PipelineConfig wires the pipeline's collaborators. Publisher, DLQ and
// Lock are optional.
type PipelineConfig struct {
	Registrations  RegistrationStore
	References     ReferenceLoader
	Normalizer     *Normalizer
	ExpandPackages bool
	Publisher      CorrectionPublisher
	DLQ            *retry.DLQHandler
	Lock           RunLock
	Logger         *logger.Logger
}

// RunOptions select the documents and mode of one run
type RunOptions struct {
	RunID  string
	DryRun bool
	Filter bson.M
	// CorrectTickets replaces cached ticket names and prices that are
	// missing or differ from their event ticket definition
	CorrectTickets bool
}

// Pipeline runs normalize, resolve, detect and update over registrations
type Pipeline struct {
	cfg PipelineConfig
	log *logger.Logger
}

// NewPipeline creates a pipeline
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Normalizer == nil {
		cfg.Normalizer = NewNormalizer(nil)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{cfg: cfg, log: log}
}

// runState carries the per-run collaborators
type runState struct {
	opts     RunOptions
	summary  *domain.RunSummary
	resolver *Resolver
	expander *PackageExpander
	detector *DiscrepancyDetector
	updater  *Updater
}

// Run reconciles every registration matching opts.Filter in cursor order.
// Per-document errors are recorded and the run continues; a store failure
// or cancellation stops it at a document boundary and is returned together
// with the partial summary.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*domain.RunSummary, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	if opts.Filter == nil {
		opts.Filter = bson.M{}
	}

	ctx, span := telemetry.StartSpan(ctx, "reconcile.run")
	defer span.End()
	telemetry.SetSpanAttributes(ctx, telemetry.RunAttributes(opts.RunID, opts.DryRun)...)

	summary := domain.NewRunSummary(opts.RunID, opts.DryRun)
	defer func() { summary.FinishedAt = time.Now() }()

	release, err := p.lock(ctx, opts)
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return summary, err
	}
	defer release()

	state, err := p.newRunState(ctx, opts, summary)
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return summary, err
	}

	p.log.Info("reconcile run started",
		zap.String("run_id", opts.RunID),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("event_tickets", len(state.resolver.References().Definitions)),
		zap.Int("packages", len(state.resolver.References().Packages)),
	)

	err = p.cfg.Registrations.Stream(ctx, opts.Filter, func(doc bson.M) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return p.process(ctx, state, doc)
	})

	p.log.Info("reconcile run finished",
		zap.String("run_id", opts.RunID),
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errored", summary.Errored),
		zap.Int("staged_operations", summary.StagedOperations),
		zap.Int("discrepancies", len(summary.Discrepancies)),
	)

	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return summary, fmt.Errorf("reconcile run %s aborted: %w", opts.RunID, err)
	}
	return summary, nil
}

// ReconcileOne runs the pipeline for a single registration id. A mutating
// call holds the run lock like Run does.
func (p *Pipeline) ReconcileOne(ctx context.Context, id string, opts RunOptions) (*domain.RunSummary, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	summary := domain.NewRunSummary(opts.RunID, opts.DryRun)
	defer func() { summary.FinishedAt = time.Now() }()

	release, err := p.lock(ctx, opts)
	if err != nil {
		return summary, err
	}
	defer release()

	found, err := p.cfg.Registrations.Lookup(ctx, id)
	if err != nil {
		return summary, err
	}
	switch found.Status {
	case domain.LookupFound:
	case domain.LookupMalformed:
		p.record(summary, domain.DocumentOutcome{RegistrationID: id, Status: domain.OutcomeSkipped, Reason: found.Reason})
		return summary, nil
	default:
		p.record(summary, domain.DocumentOutcome{RegistrationID: id, Status: domain.OutcomeSkipped, Reason: ReasonNotFound})
		return summary, nil
	}

	state, err := p.newRunState(ctx, opts, summary)
	if err != nil {
		return summary, err
	}
	return summary, p.process(ctx, state, found.Document)
}

// lock takes the run lock unless opts is a dry run. release is never nil.
func (p *Pipeline) lock(ctx context.Context, opts RunOptions) (release func(), err error) {
	release = func() {}
	if p.cfg.Lock == nil || opts.DryRun {
		return release, nil
	}
	if err := p.cfg.Lock.Acquire(ctx); err != nil {
		return release, fmt.Errorf("%w: %w", domain.ErrRunLocked, err)
	}
	return func() {
		if err := p.cfg.Lock.Release(context.WithoutCancel(ctx)); err != nil {
			p.log.Warn("failed to release run lock", zap.Error(err))
		}
	}, nil
}

func (p *Pipeline) newRunState(ctx context.Context, opts RunOptions, summary *domain.RunSummary) (*runState, error) {
	ctx, span := telemetry.StartSpan(ctx, "reconcile.load_references")
	defer span.End()

	refs, err := p.cfg.References.Load(ctx)
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	if refs.Malformed > 0 {
		p.log.Warn("reference documents without identifier", zap.Int("count", refs.Malformed))
	}

	resolver := NewResolver(refs)
	return &runState{
		opts:     opts,
		summary:  summary,
		resolver: resolver,
		expander: NewPackageExpander(resolver),
		detector: NewDiscrepancyDetector(resolver),
		updater:  NewUpdater(p.cfg.Registrations, opts.DryRun, p.log),
	}, nil
}

// process handles one document. Only fatal errors are returned.
func (p *Pipeline) process(ctx context.Context, state *runState, doc bson.M) error {
	raw, err := domain.ParseRawRegistration(doc)
	if err != nil {
		p.record(state.summary, domain.DocumentOutcome{
			RegistrationID: domain.StringValue(doc["_id"]),
			Status:         domain.OutcomeSkipped,
			Reason:         ReasonEmptyDocument,
		})
		return nil
	}

	reg, report, err := p.cfg.Normalizer.Normalize(raw)
	if err != nil {
		p.log.Warn("registration skipped", zap.Error(err))
		p.record(state.summary, domain.DocumentOutcome{
			RegistrationID: domain.StringValue(doc["_id"]),
			Status:         domain.OutcomeErrored,
			Reason:         ReasonNormalization,
		})
		return nil
	}

	for _, e := range reg.Errors {
		var nerr *domain.NormalizationError
		if errors.As(e, &nerr) && nerr.Kept {
			state.summary.TicketErrors++
			p.log.Warn("ticket value kept unchanged", zap.String("registration_id", reg.RegistrationID), zap.Error(e))
			continue
		}
		p.log.Warn("ticket dropped", zap.String("registration_id", reg.RegistrationID), zap.Error(e))
	}
	state.summary.TicketErrors += report.DroppedTickets
	for _, c := range reg.Conflicts {
		p.log.Info("legacy shape superseded", zap.String("registration_id", reg.RegistrationID), zap.String("conflict", c.Error()))
	}

	if p.cfg.ExpandPackages {
		expanded := state.expander.Expand(reg)
		state.summary.PackagesExpanded += len(expanded.Expanded)
	}

	discrepancies := state.detector.Detect(reg)
	state.summary.Discrepancies = append(state.summary.Discrepancies, discrepancies...)
	metrics.RecordDiscrepancies(discrepancies)
	if state.opts.CorrectTickets {
		state.summary.TicketsCorrected += p.correctTickets(state, reg)
	}

	set, unset := CanonicalFields(raw, reg)
	changes := Diff(doc, set, unset)

	outcome, err := p.apply(ctx, state, reg, changes)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return err
		}
		p.log.Error("registration update failed", zap.String("registration_id", reg.RegistrationID), zap.Error(err))
		outcome.RegistrationID = reg.RegistrationID
		outcome.Status = domain.OutcomeErrored
		outcome.Reason = ReasonUpdateFailed
		p.record(state.summary, outcome)
		return nil
	}

	if changes.Len() > 0 {
		state.summary.StagedOperations += changes.Len()
		state.summary.Corrections += changes.Len()
		metrics.RecordOperations(len(changes.Set), len(changes.Unset), state.opts.DryRun)
		p.publish(ctx, state, outcome, changes)
	}
	p.record(state.summary, outcome)
	return nil
}

// apply writes through the DLQ handler when one is configured. Store
// outages are not retried.
func (p *Pipeline) apply(ctx context.Context, state *runState, reg *domain.Registration, changes *Changeset) (domain.DocumentOutcome, error) {
	if p.cfg.DLQ == nil || state.opts.DryRun || changes.Len() == 0 {
		return state.updater.Apply(ctx, reg, changes)
	}

	payload, err := json.Marshal(changes)
	if err != nil {
		return domain.DocumentOutcome{}, fmt.Errorf("failed to encode changes for %s: %w", reg.RegistrationID, err)
	}
	var outcome domain.DocumentOutcome
	err = p.cfg.DLQ.ProcessWithDLQ(ctx, &retry.MessageContext{
		ID:        uuid.New().String(),
		Key:       reg.RegistrationID,
		Operation: "registration.update",
		Payload:   payload,
		Metadata:  map[string]interface{}{"run_id": state.opts.RunID},
	}, func(ctx context.Context) error {
		var err error
		outcome, err = state.updater.Apply(ctx, reg, changes)
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return retry.Permanent(err)
		}
		return err
	})
	return outcome, err
}

func (p *Pipeline) publish(ctx context.Context, state *runState, outcome domain.DocumentOutcome, changes *Changeset) {
	if p.cfg.Publisher == nil {
		return
	}
	event := newCorrectionEvent(state.opts.RunID, outcome, changes, state.opts.DryRun)
	if err := p.cfg.Publisher.PublishCorrection(ctx, event); err != nil {
		p.log.Warn("failed to publish correction",
			zap.String("registration_id", outcome.RegistrationID),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) record(summary *domain.RunSummary, o domain.DocumentOutcome) {
	summary.Record(o)
	metrics.RecordOutcome(o)
}
