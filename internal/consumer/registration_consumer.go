package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/service"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/kafka"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/retry"
)

// RecordSource is the part of *kafka.Consumer the worker uses
type RecordSource interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
	CommitRecords(ctx context.Context, records []*kafka.Record) error
	Close()
}

// Reconciler reconciles a single registration
type Reconciler interface {
	ReconcileOne(ctx context.Context, id string, opts service.RunOptions) (*domain.RunSummary, error)
}

// RegistrationConsumerConfig contains configuration for the consumer
type RegistrationConsumerConfig struct {
	Brokers        []string
	GroupID        string
	Topic          string
	MaxRetries     int
	RetryInterval  time.Duration
	ProcessTimeout time.Duration
	DryRun         bool
}

// DefaultRegistrationConsumerConfig returns default configuration
func DefaultRegistrationConsumerConfig() *RegistrationConsumerConfig {
	return &RegistrationConsumerConfig{
		Brokers:        []string{"localhost:9092"},
		GroupID:        "reconcile-worker",
		Topic:          "registration.changed",
		MaxRetries:     3,
		RetryInterval:  2 * time.Second,
		ProcessTimeout: 30 * time.Second,
	}
}

// RegistrationConsumer reconciles registrations as their change events
// arrive. Records are handled one at a time in partition order.
type RegistrationConsumer struct {
	source     RecordSource
	reconciler Reconciler
	dlq        *retry.DLQHandler
	logger     *logger.Logger
	config     *RegistrationConsumerConfig

	wg      sync.WaitGroup
	stopCh  chan struct{}
	mu      sync.RWMutex
	running bool
}

// NewRegistrationConsumer joins the consumer group on cfg.Topic
func NewRegistrationConsumer(
	ctx context.Context,
	cfg *RegistrationConsumerConfig,
	reconciler Reconciler,
	dlq *retry.DLQHandler,
	log *logger.Logger,
) (*RegistrationConsumer, error) {
	if cfg == nil {
		cfg = DefaultRegistrationConsumerConfig()
	}

	source, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:       cfg.Brokers,
		GroupID:       cfg.GroupID,
		Topics:        []string{cfg.Topic},
		ClientID:      "reconcile-worker",
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: cfg.RetryInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return NewRegistrationConsumerWithSource(source, cfg, reconciler, dlq, log), nil
}

// NewRegistrationConsumerWithSource builds a consumer over an existing
// record source
func NewRegistrationConsumerWithSource(
	source RecordSource,
	cfg *RegistrationConsumerConfig,
	reconciler Reconciler,
	dlq *retry.DLQHandler,
	log *logger.Logger,
) *RegistrationConsumer {
	if cfg == nil {
		cfg = DefaultRegistrationConsumerConfig()
	}
	if dlq == nil {
		dlq = retry.NewDLQHandler(nil, nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RegistrationConsumer{
		source:     source,
		reconciler: reconciler,
		dlq:        dlq,
		logger:     log,
		config:     cfg,
		stopCh:     make(chan struct{}),
	}
}

// Start starts polling in the background
func (c *RegistrationConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer is already running")
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info("Starting registration consumer", zap.String("topic", c.config.Topic), zap.Bool("dry_run", c.config.DryRun))

	c.wg.Add(1)
	go c.poll(ctx)
	return nil
}

func (c *RegistrationConsumer) poll(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer context cancelled, stopping poll")
			return
		case <-c.stopCh:
			c.logger.Info("Consumer stop signal received, stopping poll")
			return
		default:
		}

		records, err := c.source.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrClientClosed) {
				return
			}
			c.logger.Error("Failed to poll records", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
			continue
		}

		for _, record := range records {
			if err := c.processRecord(ctx, record); err != nil {
				c.logger.Error("Failed to process record", zap.Error(err))
			}
		}
	}
}

// processRecord reconciles the registration named by one record. Invalid
// records and records parked on the DLQ are committed so they are not
// redelivered.
func (c *RegistrationConsumer) processRecord(ctx context.Context, record *kafka.Record) error {
	var event RegistrationEvent
	if err := json.Unmarshal(record.Value, &event); err != nil || event.Data == nil || event.Data.LookupID() == "" {
		c.logger.Warn("Skipping malformed registration event",
			zap.String("key", string(record.Key)),
			zap.Int64("offset", record.Offset),
		)
		return c.commit(ctx, record)
	}

	if event.EventType == RegistrationEventDeleted {
		c.logger.Info("Skipping deleted registration", zap.String("registration_id", event.Data.LookupID()))
		return c.commit(ctx, record)
	}

	id := event.Data.LookupID()
	msgCtx := &retry.MessageContext{
		ID:        event.EventID,
		Topic:     record.Topic,
		Key:       id,
		Operation: "reconcile_registration",
		Payload:   json.RawMessage(record.Value),
		Metadata:  map[string]interface{}{"event_type": string(event.EventType)},
	}

	err := c.dlq.ProcessWithDLQ(ctx, msgCtx, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, c.config.ProcessTimeout)
		defer cancel()

		summary, err := c.reconciler.ReconcileOne(opCtx, id, service.RunOptions{
			RunID:  event.EventID,
			DryRun: c.config.DryRun,
		})
		if err != nil {
			if errors.Is(err, domain.ErrRunLocked) || errors.Is(err, domain.ErrStoreUnavailable) {
				return retry.Retryable(err)
			}
			return err
		}
		c.logger.Info("Reconciled registration",
			zap.String("registration_id", id),
			zap.String("event_type", string(event.EventType)),
			zap.Int("updated", summary.Updated),
			zap.Int("skipped", summary.Skipped),
			zap.Int("errored", summary.Errored),
			zap.Int("discrepancies", len(summary.Discrepancies)),
		)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			// not committed; redelivered after restart
			return err
		}
		c.logger.Error("Registration parked on DLQ", zap.String("registration_id", id), zap.Error(err))
	}
	return c.commit(ctx, record)
}

func (c *RegistrationConsumer) commit(ctx context.Context, record *kafka.Record) error {
	return c.source.CommitRecords(ctx, []*kafka.Record{record})
}

// Stop stops polling, waits for the in-flight record and closes the source
func (c *RegistrationConsumer) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	c.logger.Info("Stopping registration consumer")
	close(c.stopCh)
	c.wg.Wait()
	c.source.Close()
	c.logger.Info("Registration consumer stopped")
	return nil
}

// IsRunning returns whether the consumer is running
func (c *RegistrationConsumer) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}
