package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	MongoDB   MongoDBConfig   `mapstructure:"mongodb"`
	Supabase  SupabaseConfig  `mapstructure:"supabase"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Square    SquareConfig    `mapstructure:"square"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	OTel      OTelConfig      `mapstructure:"otel"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings for the report API
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// SupabaseConfig holds the Postgres connection of the Supabase project
type SupabaseConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// DBURL is the project's connection string and overrides the discrete fields
	DBURL    string `mapstructure:"db_url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Brokers          []string `mapstructure:"brokers"`
	ConsumerGroup    string   `mapstructure:"consumer_group"`
	ClientID         string   `mapstructure:"client_id"`
	CorrectionsTopic string   `mapstructure:"corrections_topic"`
	ChangesTopic     string   `mapstructure:"changes_topic"`
}

// StripeConfig holds Stripe API settings
type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// SquareConfig holds Square API settings
type SquareConfig struct {
	AccessToken string `mapstructure:"access_token"`
	Environment string `mapstructure:"environment"` // sandbox, production
	APIVersion  string `mapstructure:"api_version"`
}

// JWTConfig holds JWT settings for the report API
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// ReconcileConfig holds pipeline settings
type ReconcileConfig struct {
	RegistrationsCollection string            `mapstructure:"registrations_collection"`
	EventTicketsCollection  string            `mapstructure:"event_tickets_collection"`
	PackagesCollection      string            `mapstructure:"packages_collection"`
	PaymentsCollection      string            `mapstructure:"payments_collection"`
	BatchSize               int32             `mapstructure:"batch_size"`
	AttendeeTypes           []string          `mapstructure:"attendee_types"`
	AttendeeTypeAliases     map[string]string `mapstructure:"attendee_type_aliases"`
	ExpandPackages          bool              `mapstructure:"expand_packages"`
	LockTTL                 time.Duration     `mapstructure:"lock_ttl"`
	PaymentCacheTTL         time.Duration     `mapstructure:"payment_cache_ttl"`
	PaymentGateway          string            `mapstructure:"payment_gateway"` // stripe, square, mock
	OutputDir               string            `mapstructure:"output_dir"`
	// WorkerDryRun makes reconcile-worker stage changes without writing
	WorkerDryRun bool `mapstructure:"worker_dry_run"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// .env.local carries developer secrets; values already in the
	// environment win because godotenv never overrides them
	_ = godotenv.Load(".env.local")

	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional, environment variables are enough
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "lodgetix-reconcile")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", false)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8090)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "120s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// MongoDB defaults
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "lodgetix")
	v.SetDefault("MONGODB_MAX_POOL_SIZE", 10)
	v.SetDefault("MONGODB_CONNECT_TIMEOUT", "10s")
	v.SetDefault("MONGODB_MAX_RETRIES", 3)

	// Supabase defaults
	v.SetDefault("SUPABASE_ENABLED", false)
	v.SetDefault("SUPABASE_DB_URL", "")
	v.SetDefault("SUPABASE_HOST", "localhost")
	v.SetDefault("SUPABASE_PORT", 5432)
	v.SetDefault("SUPABASE_USER", "postgres")
	v.SetDefault("SUPABASE_PASSWORD", "")
	v.SetDefault("SUPABASE_DBNAME", "postgres")
	v.SetDefault("SUPABASE_SSLMODE", "require")

	// Redis defaults
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "lodgetix-reconcile")
	v.SetDefault("KAFKA_CLIENT_ID", "lodgetix-reconcile")
	v.SetDefault("KAFKA_CORRECTIONS_TOPIC", "reconcile.corrections")
	v.SetDefault("KAFKA_CHANGES_TOPIC", "registration.changed")

	// Payment providers
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("SQUARE_ACCESS_TOKEN", "")
	v.SetDefault("SQUARE_ENVIRONMENT", "production")
	v.SetDefault("SQUARE_API_VERSION", "2024-10-17")

	// JWT defaults
	v.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	v.SetDefault("JWT_ISSUER", "lodgetix")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "lodgetix-reconcile")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Metrics defaults
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_PUSHGATEWAY_URL", "")
	v.SetDefault("METRICS_JOB_NAME", "lodgetix_reconcile")

	// Reconcile defaults
	v.SetDefault("RECONCILE_REGISTRATIONS_COLLECTION", "registrations")
	v.SetDefault("RECONCILE_EVENT_TICKETS_COLLECTION", "eventTickets")
	v.SetDefault("RECONCILE_PACKAGES_COLLECTION", "packages")
	v.SetDefault("RECONCILE_PAYMENTS_COLLECTION", "payments")
	v.SetDefault("RECONCILE_BATCH_SIZE", 100)
	v.SetDefault("RECONCILE_ATTENDEE_TYPES", "mason,guest,member")
	v.SetDefault("RECONCILE_ATTENDEE_TYPE_ALIASES", "")
	v.SetDefault("RECONCILE_EXPAND_PACKAGES", true)
	v.SetDefault("RECONCILE_LOCK_TTL", "30m")
	v.SetDefault("RECONCILE_PAYMENT_CACHE_TTL", "1h")
	v.SetDefault("RECONCILE_PAYMENT_GATEWAY", "stripe")
	v.SetDefault("RECONCILE_OUTPUT_DIR", "reports")
	v.SetDefault("RECONCILE_WORKER_DRY_RUN", false)
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// MongoDB
	cfg.MongoDB.URI = v.GetString("MONGODB_URI")
	cfg.MongoDB.Database = v.GetString("MONGODB_DATABASE")
	cfg.MongoDB.MaxPoolSize = v.GetUint64("MONGODB_MAX_POOL_SIZE")
	cfg.MongoDB.ConnectTimeout = v.GetDuration("MONGODB_CONNECT_TIMEOUT")
	cfg.MongoDB.MaxRetries = v.GetInt("MONGODB_MAX_RETRIES")

	// Supabase
	cfg.Supabase.Enabled = v.GetBool("SUPABASE_ENABLED")
	cfg.Supabase.DBURL = v.GetString("SUPABASE_DB_URL")
	cfg.Supabase.Host = v.GetString("SUPABASE_HOST")
	cfg.Supabase.Port = v.GetInt("SUPABASE_PORT")
	cfg.Supabase.User = v.GetString("SUPABASE_USER")
	cfg.Supabase.Password = v.GetString("SUPABASE_PASSWORD")
	cfg.Supabase.DBName = v.GetString("SUPABASE_DBNAME")
	cfg.Supabase.SSLMode = v.GetString("SUPABASE_SSLMODE")

	// Redis
	cfg.Redis.Enabled = v.GetBool("REDIS_ENABLED")
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ConsumerGroup = v.GetString("KAFKA_CONSUMER_GROUP")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.CorrectionsTopic = v.GetString("KAFKA_CORRECTIONS_TOPIC")
	cfg.Kafka.ChangesTopic = v.GetString("KAFKA_CHANGES_TOPIC")

	// Payment providers
	cfg.Stripe.SecretKey = v.GetString("STRIPE_SECRET_KEY")
	cfg.Square.AccessToken = v.GetString("SQUARE_ACCESS_TOKEN")
	cfg.Square.Environment = v.GetString("SQUARE_ENVIRONMENT")
	cfg.Square.APIVersion = v.GetString("SQUARE_API_VERSION")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Metrics
	cfg.Metrics.Enabled = v.GetBool("METRICS_ENABLED")
	cfg.Metrics.PushgatewayURL = v.GetString("METRICS_PUSHGATEWAY_URL")
	cfg.Metrics.JobName = v.GetString("METRICS_JOB_NAME")

	// Reconcile
	cfg.Reconcile.RegistrationsCollection = v.GetString("RECONCILE_REGISTRATIONS_COLLECTION")
	cfg.Reconcile.EventTicketsCollection = v.GetString("RECONCILE_EVENT_TICKETS_COLLECTION")
	cfg.Reconcile.PackagesCollection = v.GetString("RECONCILE_PACKAGES_COLLECTION")
	cfg.Reconcile.PaymentsCollection = v.GetString("RECONCILE_PAYMENTS_COLLECTION")
	cfg.Reconcile.BatchSize = v.GetInt32("RECONCILE_BATCH_SIZE")
	cfg.Reconcile.AttendeeTypes = splitList(v.GetString("RECONCILE_ATTENDEE_TYPES"))
	aliases, err := parseAliases(v.GetString("RECONCILE_ATTENDEE_TYPE_ALIASES"))
	if err != nil {
		return fmt.Errorf("invalid RECONCILE_ATTENDEE_TYPE_ALIASES: %w", err)
	}
	cfg.Reconcile.AttendeeTypeAliases = aliases
	cfg.Reconcile.ExpandPackages = v.GetBool("RECONCILE_EXPAND_PACKAGES")
	cfg.Reconcile.LockTTL = v.GetDuration("RECONCILE_LOCK_TTL")
	cfg.Reconcile.PaymentCacheTTL = v.GetDuration("RECONCILE_PAYMENT_CACHE_TTL")
	cfg.Reconcile.PaymentGateway = strings.ToLower(v.GetString("RECONCILE_PAYMENT_GATEWAY"))
	cfg.Reconcile.OutputDir = v.GetString("RECONCILE_OUTPUT_DIR")
	cfg.Reconcile.WorkerDryRun = v.GetBool("RECONCILE_WORKER_DRY_RUN")

	return nil
}

// splitList splits a comma separated value and drops empty entries
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseAliases parses "partner=guest,lewis=mason"
func parseAliases(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(s) {
		from, to, ok := strings.Cut(pair, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("alias %q is not in from=to form", pair)
		}
		out[from] = to
	}
	return out, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.MongoDB.URI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	if c.MongoDB.Database == "" {
		return fmt.Errorf("MONGODB_DATABASE is required")
	}

	if c.Reconcile.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size: %d", c.Reconcile.BatchSize)
	}

	if len(c.Reconcile.AttendeeTypes) == 0 {
		return fmt.Errorf("at least one attendee type is required")
	}
	for from, to := range c.Reconcile.AttendeeTypeAliases {
		if !contains(c.Reconcile.AttendeeTypes, to) {
			return fmt.Errorf("attendee type alias %s=%s targets an unknown type", from, to)
		}
	}

	switch c.Reconcile.PaymentGateway {
	case "stripe", "square", "mock":
	default:
		return fmt.Errorf("unknown payment gateway: %s", c.Reconcile.PaymentGateway)
	}

	if c.App.Environment == "production" && c.JWT.Secret == "your-secret-key-change-in-production" {
		return fmt.Errorf("JWT secret must be changed in production")
	}

	return nil
}

// ValidateSupabase validates the Supabase connection settings
func (c *Config) ValidateSupabase() error {
	if !c.Supabase.Enabled {
		return fmt.Errorf("SUPABASE_ENABLED is false")
	}
	if c.Supabase.DBURL != "" {
		return nil
	}
	if c.Supabase.Host == "" {
		return fmt.Errorf("SUPABASE_HOST is required")
	}
	if c.Supabase.Password == "" {
		return fmt.Errorf("SUPABASE_PASSWORD is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
