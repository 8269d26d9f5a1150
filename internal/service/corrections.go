package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// CorrectionEvent is the audit record of one document's staged changes
type CorrectionEvent struct {
	EventID        string        `json:"eventId"`
	RunID          string        `json:"runId"`
	RegistrationID string        `json:"registrationId"`
	DryRun         bool          `json:"dryRun"`
	Status         string        `json:"status"`
	Set            []FieldChange `json:"set"`
	Unset          []FieldChange `json:"unset"`
	OccurredAt     time.Time     `json:"occurredAt"`
}

// CorrectionPublisher records corrections outside the log
type CorrectionPublisher interface {
	PublishCorrection(ctx context.Context, event *CorrectionEvent) error
}

// JSONProducer is satisfied by *kafka.Producer
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic string, key string, data interface{}, headers map[string]string) error
}

// KafkaCorrectionPublisher publishes corrections keyed by registration id
type KafkaCorrectionPublisher struct {
	producer JSONProducer
	topic    string
}

// NewKafkaCorrectionPublisher creates a publisher for topic
func NewKafkaCorrectionPublisher(producer JSONProducer, topic string) *KafkaCorrectionPublisher {
	if topic == "" {
		topic = "reconcile.corrections"
	}
	return &KafkaCorrectionPublisher{producer: producer, topic: topic}
}

// PublishCorrection sends one event
func (p *KafkaCorrectionPublisher) PublishCorrection(ctx context.Context, event *CorrectionEvent) error {
	return p.producer.ProduceJSON(ctx, p.topic, event.RegistrationID, event, map[string]string{
		"event_type": "registration.corrected",
		"run_id":     event.RunID,
	})
}

func newCorrectionEvent(runID string, outcome domain.DocumentOutcome, changes *Changeset, dryRun bool) *CorrectionEvent {
	return &CorrectionEvent{
		EventID:        uuid.New().String(),
		RunID:          runID,
		RegistrationID: outcome.RegistrationID,
		DryRun:         dryRun,
		Status:         string(outcome.Status),
		Set:            changes.Set,
		Unset:          changes.Unset,
		OccurredAt:     time.Now().UTC(),
	}
}

// correctTickets copies the definition's name and price onto resolved
// tickets whose cached values are missing or differ. Every replaced value is
// logged with its before and after. It returns the number of tickets changed.
func (p *Pipeline) correctTickets(state *runState, reg *domain.Registration) int {
	corrected := 0
	for _, rt := range state.resolver.ResolveAll(reg) {
		if rt.Result.Status != domain.LookupFound {
			continue
		}
		t, def := rt.Ticket, rt.Result.Definition
		changed := false

		if def.Name != "" && !NameMatches(t, def) {
			p.log.Info("ticket name corrected",
				zap.String("registration_id", reg.RegistrationID),
				zap.String("ticket", t.Key()),
				zap.String("before", t.Name),
				zap.String("after", def.Name),
			)
			t.Name = def.Name
			changed = true
		}

		if !t.HasPrice || !PriceMatches(t, def) {
			var before interface{} = t.Price.String()
			if !t.HasPrice {
				before, _, _ = domain.FirstValue(t.Extra, ticketPriceAliases...)
			}
			p.log.Info("ticket price corrected",
				zap.String("registration_id", reg.RegistrationID),
				zap.String("ticket", t.Key()),
				zap.Any("before", before),
				zap.String("after", def.Price.String()),
			)
			t.Price, t.HasPrice = def.Price, true
			for _, k := range ticketPriceAliases {
				delete(t.Extra, k)
			}
			changed = true
		}

		if changed {
			corrected++
		}
	}
	return corrected
}
