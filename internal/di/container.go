package di

import (
	"time"

	"github.com/google/uuid"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/gateway"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/handler"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/repository"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/service"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/config"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/database"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/kafka"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/redis"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/retry"
)

// Container holds all dependencies of the reconcile binaries
type Container struct {
	// Infrastructure
	Mongo    *database.MongoDB
	Supabase *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer

	// Repositories
	Store         repository.DocumentStore
	Registrations *repository.RegistrationRepository
	References    *repository.ReferenceRepository
	Payments      *repository.PaymentRecordRepository
	Source        repository.RegistrationSource

	// Services
	Normalizer *service.Normalizer
	Gateways   gateway.Gateways
	DLQ        *retry.DLQHandler
	Pipeline   *service.Pipeline
	Reports    *service.ReportService
	Matcher    *service.PaymentMatcher
	// Auditor is nil without a Supabase source
	Auditor *service.SourceAuditor

	// Handlers
	HealthHandler *handler.HealthHandler
	ReportHandler *handler.ReportHandler
	RunHandler    *handler.RunHandler

	Logger *logger.Logger
}

// ContainerConfig contains configuration for building the container. Store
// is required; every infrastructure handle is optional.
type ContainerConfig struct {
	Store    repository.DocumentStore
	Mongo    *database.MongoDB
	Supabase *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer
	// Source overrides the Supabase registration source
	Source    repository.RegistrationSource
	Gateways  gateway.Gateways
	Reconcile *config.ReconcileConfig
	Kafka     *config.KafkaConfig
	Logger    *logger.Logger
}

// NewContainer wires repositories, services and handlers
func NewContainer(cfg *ContainerConfig) *Container {
	rc := cfg.Reconcile
	if rc == nil {
		rc = DefaultReconcileConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	c := &Container{
		Mongo:    cfg.Mongo,
		Supabase: cfg.Supabase,
		Redis:    cfg.Redis,
		Producer: cfg.Producer,
		Store:    cfg.Store,
		Source:   cfg.Source,
		Gateways: cfg.Gateways,
		Logger:   log,
	}

	// Initialize repositories
	c.Registrations = repository.NewRegistrationRepository(c.Store, rc.RegistrationsCollection, rc.BatchSize)
	c.References = repository.NewReferenceRepository(c.Store, rc.EventTicketsCollection, rc.PackagesCollection)
	c.Payments = repository.NewPaymentRecordRepository(c.Store, rc.PaymentsCollection)
	if c.Source == nil && c.Supabase != nil {
		c.Source = repository.NewSupabaseRegistrationSource(c.Supabase)
	}

	// Initialize services
	c.Normalizer = service.NewNormalizer(&service.NormalizerConfig{
		AttendeeTypes:       rc.AttendeeTypes,
		AttendeeTypeAliases: rc.AttendeeTypeAliases,
	})

	pipelineCfg := service.PipelineConfig{
		Registrations:  c.Registrations,
		References:     c.References,
		Normalizer:     c.Normalizer,
		ExpandPackages: rc.ExpandPackages,
		Logger:         log.Named("pipeline"),
	}

	var dlqPublisher retry.DLQPublisher
	if c.Producer != nil {
		topic := ""
		if cfg.Kafka != nil {
			topic = cfg.Kafka.CorrectionsTopic
		}
		if topic == "" {
			topic = "reconcile.corrections"
		}
		pipelineCfg.Publisher = service.NewKafkaCorrectionPublisher(c.Producer, topic)
		dlqPublisher = retry.NewKafkaDLQPublisher(c.Producer, retry.DefaultDLQConfig())
	}
	c.DLQ = retry.NewDLQHandler(dlqPublisher, retry.DefaultDLQHandlerConfig())
	pipelineCfg.DLQ = c.DLQ

	if c.Redis != nil {
		ttl := rc.LockTTL
		if ttl <= 0 {
			ttl = 30 * time.Minute
		}
		pipelineCfg.Lock = c.Redis.NewLock("reconcile-run", uuid.New().String(), ttl)
	}
	c.Pipeline = service.NewPipeline(pipelineCfg)

	var verifier *service.PaymentVerifier
	if len(c.Gateways) > 0 {
		verifier = service.NewPaymentVerifier(c.Gateways, log.Named("payments"))
	}
	c.Reports = service.NewReportService(
		c.Registrations,
		c.References,
		service.NewReporter(c.Store, rc.RegistrationsCollection),
		c.Normalizer,
		verifier,
		log.Named("reports"),
	)
	c.Matcher = service.NewPaymentMatcher(c.Registrations, nil)
	if c.Source != nil {
		c.Auditor = service.NewSourceAuditor(c.Source, c.Registrations, c.Normalizer)
	}

	// Initialize handlers
	checks := map[string]handler.HealthChecker{"mongodb": nil}
	if c.Mongo != nil {
		checks["mongodb"] = c.Mongo
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	if c.Supabase != nil {
		checks["supabase"] = c.Supabase
	}
	c.HealthHandler = handler.NewHealthHandler(checks)
	c.ReportHandler = handler.NewReportHandler(c.Reports)
	c.RunHandler = handler.NewRunHandler(c.Pipeline, log.Named("runs"))

	return c
}

// DefaultReconcileConfig returns the collection names and limits used when
// no configuration is loaded
func DefaultReconcileConfig() *config.ReconcileConfig {
	return &config.ReconcileConfig{
		RegistrationsCollection: "registrations",
		EventTicketsCollection:  "eventTickets",
		PackagesCollection:      "packages",
		PaymentsCollection:      "payments",
		BatchSize:               100,
		AttendeeTypes:           []string{"mason", "guest", "member"},
		ExpandPackages:          true,
		LockTTL:                 30 * time.Minute,
		PaymentCacheTTL:         time.Hour,
		PaymentGateway:          "stripe",
		OutputDir:               "reports",
	}
}
