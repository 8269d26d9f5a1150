package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/repository"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/telemetry"
)

// RegistrationWriter persists one registration update
type RegistrationWriter interface {
	Update(ctx context.Context, id interface{}, update repository.Update) (int64, error)
}

// Updater writes staged changesets. In dry-run mode nothing is written.
type Updater struct {
	writer RegistrationWriter
	dryRun bool
	log    *logger.Logger
}

// NewUpdater creates an updater
func NewUpdater(writer RegistrationWriter, dryRun bool, log *logger.Logger) *Updater {
	if log == nil {
		log = logger.Nop()
	}
	return &Updater{writer: writer, dryRun: dryRun, log: log}
}

// DryRun reports whether writes are suppressed
func (u *Updater) DryRun() bool {
	return u.dryRun
}

// Apply writes the changeset as a single updateOne. A failed write leaves
// the stored document unchanged.
func (u *Updater) Apply(ctx context.Context, reg *domain.Registration, changes *Changeset) (domain.DocumentOutcome, error) {
	outcome := domain.DocumentOutcome{
		RegistrationID: reg.RegistrationID,
		Set:            changes.SetPaths(),
		Unset:          changes.UnsetPaths(),
	}
	if changes.Len() == 0 {
		outcome.Status = domain.OutcomeUnchanged
		return outcome, nil
	}

	for _, f := range changes.Set {
		u.log.Info("correction",
			zap.String("registration_id", reg.RegistrationID),
			zap.String("op", "set"),
			zap.String("path", f.Path),
			zap.Any("before", f.Before),
			zap.Any("after", f.After),
			zap.Bool("dry_run", u.dryRun),
		)
	}
	for _, f := range changes.Unset {
		u.log.Info("correction",
			zap.String("registration_id", reg.RegistrationID),
			zap.String("op", "unset"),
			zap.String("path", f.Path),
			zap.Any("before", f.Before),
			zap.Bool("dry_run", u.dryRun),
		)
	}

	telemetry.AddEvent(ctx, "corrections.staged",
		telemetry.RegistrationIDKey.String(reg.RegistrationID),
		attribute.Int("set", len(changes.Set)),
		attribute.Int("unset", len(changes.Unset)),
	)

	if u.dryRun {
		outcome.Status = domain.OutcomeStaged
		return outcome, nil
	}

	modified, err := u.writer.Update(ctx, reg.ID, changes.Update())
	if err != nil {
		return outcome, fmt.Errorf("failed to update registration %s: %w", reg.RegistrationID, err)
	}
	if modified == 0 {
		outcome.Status = domain.OutcomeUnchanged
		return outcome, nil
	}
	outcome.Status = domain.OutcomeUpdated
	return outcome, nil
}
