package database

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresConfig describes the Supabase Postgres connection used by
// audit-source. Sessions are opened read-only.
type PostgresConfig struct {
	// URL is a full connection string; when set the discrete fields are ignored
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	ApplicationName  string
	StatementTimeout time.Duration
	MaxConns         int32
	ConnectTimeout   time.Duration
	MaxConnIdleTime  time.Duration

	MaxRetries    int
	RetryInterval time.Duration

	EnableTracing bool
}

// DefaultPostgresConfig returns settings suited to a Supabase pooler
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:             "localhost",
		Port:             5432,
		User:             "postgres",
		Database:         "postgres",
		SSLMode:          "require",
		ApplicationName:  "lodgetix-reconcile",
		StatementTimeout: 30 * time.Second,
		MaxConns:         4,
		ConnectTimeout:   10 * time.Second,
		MaxConnIdleTime:  5 * time.Minute,
		MaxRetries:       3,
		RetryInterval:    2 * time.Second,
	}
}

// ConnString returns URL when set, otherwise a postgres:// URL built from the
// discrete fields with the password escaped
func (c *PostgresConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *PostgresConfig) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse supabase connection string: %w", err)
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	pc.MaxConnIdleTime = c.MaxConnIdleTime
	pc.ConnConfig.ConnectTimeout = c.ConnectTimeout

	params := pc.ConnConfig.RuntimeParams
	params["default_transaction_read_only"] = "on"
	if c.ApplicationName != "" {
		params["application_name"] = c.ApplicationName
	}
	if c.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(c.StatementTimeout.Milliseconds(), 10)
	}

	if c.EnableTracing {
		pc.ConnConfig.Tracer = otelpgx.NewTracer()
	}
	return pc, nil
}

// PostgresDB is a read-only pgx pool
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to Supabase, retrying until MaxRetries is exhausted or
// ctx is done
func NewPostgres(ctx context.Context, cfg *PostgresConfig, log *zap.Logger) (*PostgresDB, error) {
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn("supabase connect failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryInterval):
			}
		}

		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			lastErr = err
			continue
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			lastErr = err
			continue
		}
		return &PostgresDB{pool: pool}, nil
	}

	return nil, fmt.Errorf("failed to connect to supabase after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// Close releases the pool
func (db *PostgresDB) Close() {
	if db != nil && db.pool != nil {
		db.pool.Close()
	}
}

// HealthCheck confirms the registrations table is reachable
func (db *PostgresDB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var exists bool
	err := db.pool.QueryRow(ctx, "SELECT to_regclass('public.registrations') IS NOT NULL").Scan(&exists)
	if err != nil {
		return fmt.Errorf("supabase health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("supabase health check: registrations table missing")
	}
	return nil
}

// Query runs a read query
func (db *PostgresDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}
