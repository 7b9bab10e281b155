package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "PAYHOOK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "PAYHOOK_APP_ENV"
	EnvPort     = "PAYHOOK_APP_PORT"
	EnvLogLevel = "PAYHOOK_LOG_LEVEL"

	EnvDBDSN      = "PAYHOOK_DB_DSN"
	EnvDBDriver   = "PAYHOOK_DB_DRIVER"
	EnvDBHost     = "PAYHOOK_DB_HOST"
	EnvDBPort     = "PAYHOOK_DB_PORT"
	EnvDBUser     = "PAYHOOK_DB_USER"
	EnvDBPassword = "PAYHOOK_DB_PASSWORD"
	EnvDBName     = "PAYHOOK_DB_NAME"

	EnvRedisURL = "PAYHOOK_REDIS_URL"

	EnvDispatchBackend   = "PAYHOOK_DISPATCH_BACKEND"
	EnvDispatchWorkers   = "PAYHOOK_DISPATCH_WORKERS"
	EnvDispatchMaxRetry  = "PAYHOOK_DISPATCH_MAX_RETRIES"
	EnvDispatchMonotonic = "PAYHOOK_DISPATCH_MONOTONIC_STATUS"

	EnvAccountingURL     = "PAYHOOK_ACCOUNTING_BASE_URL"
	EnvAccountingKey     = "PAYHOOK_ACCOUNTING_WEBHOOK_KEY"
	EnvAccountingEnabled = "PAYHOOK_ACCOUNTING_ENABLED"

	EnvGCPProjectID  = "PAYHOOK_GCP_PROJECT_ID"
	EnvPubSubTopic   = "PAYHOOK_PUBSUB_WEBHOOK_TOPIC"
	EnvPubSubSub     = "PAYHOOK_PUBSUB_WEBHOOK_SUBSCRIPTION"
	EnvSweepInterval = "PAYHOOK_SWEEP_INTERVAL"
	EnvSweepIdleAge  = "PAYHOOK_SWEEP_REDISPATCH_AGE"
	EnvMaxBackoff    = "PAYHOOK_DISPATCH_MAX_BACKOFF"

	BackendMemory = "memory"
	BackendPubSub = "pubsub"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Dispatch     DispatchConfig
	Sweep        SweepConfig
	Accounting   AccountingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Dispatch.Backend) {
	case BackendMemory:
	case BackendPubSub:
		if c.GCP.ProjectID == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvGCPProjectID, EnvDispatchBackend, BackendPubSub)
		}
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvDispatchBackend, BackendMemory, BackendPubSub, c.Dispatch.Backend)
	}
	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("%s must be positive", EnvDispatchWorkers)
	}
	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("%s must not be negative", EnvDispatchMaxRetry)
	}
	if c.Sweep.Enabled && c.Sweep.RedispatchAge <= c.Dispatch.MaxBackoff {
		return fmt.Errorf("%s must exceed %s so pending retries are not redispatched", EnvSweepIdleAge, EnvMaxBackoff)
	}
	if c.Accounting.Enabled && (c.Accounting.BaseURL == "" || c.Accounting.WebhookKey == "") {
		return fmt.Errorf("%s and %s are required when %s=true", EnvAccountingURL, EnvAccountingKey, EnvAccountingEnabled)
	}
	return nil
}

type AppConfig struct {
	Env          string        `envconfig:"PAYHOOK_APP_ENV" required:"true"`
	Port         string        `envconfig:"PAYHOOK_APP_PORT" default:"8080"`
	LogLevel     string        `envconfig:"PAYHOOK_LOG_LEVEL" default:"info"`
	LogWarnStack bool          `envconfig:"PAYHOOK_LOG_WARN_STACK" default:"false"`
	DrainTimeout time.Duration `envconfig:"PAYHOOK_SHUTDOWN_DRAIN_TIMEOUT" default:"30s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PAYHOOK_DB_DSN"`
	Driver string `envconfig:"PAYHOOK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAYHOOK_DB_HOST"`
	LegacyPort     int    `envconfig:"PAYHOOK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAYHOOK_DB_USER"`
	LegacyPassword string `envconfig:"PAYHOOK_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAYHOOK_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAYHOOK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAYHOOK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAYHOOK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAYHOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAYHOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAYHOOK_REDIS_URL"`
	Address      string        `envconfig:"PAYHOOK_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"PAYHOOK_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYHOOK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYHOOK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYHOOK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYHOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYHOOK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYHOOK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// DispatchConfig tunes the async pipeline between intake and reconciliation.
type DispatchConfig struct {
	Backend          string        `envconfig:"PAYHOOK_DISPATCH_BACKEND" default:"memory"`
	Workers          int           `envconfig:"PAYHOOK_DISPATCH_WORKERS" default:"4"`
	QueueSize        int           `envconfig:"PAYHOOK_DISPATCH_QUEUE_SIZE" default:"256"`
	EnqueueTimeout   time.Duration `envconfig:"PAYHOOK_DISPATCH_ENQUEUE_TIMEOUT" default:"250ms"`
	MaxRetries       int           `envconfig:"PAYHOOK_DISPATCH_MAX_RETRIES" default:"5"`
	BaseBackoff      time.Duration `envconfig:"PAYHOOK_DISPATCH_BASE_BACKOFF" default:"1s"`
	MaxBackoff       time.Duration `envconfig:"PAYHOOK_DISPATCH_MAX_BACKOFF" default:"1m"`
	MonotonicStatus  bool          `envconfig:"PAYHOOK_DISPATCH_MONOTONIC_STATUS" default:"false"`
	RetryAfterSecond int           `envconfig:"PAYHOOK_DISPATCH_RETRY_AFTER_SECONDS" default:"5"`
}

type SweepConfig struct {
	Enabled           bool          `envconfig:"PAYHOOK_SWEEP_ENABLED" default:"true"`
	Interval          time.Duration `envconfig:"PAYHOOK_SWEEP_INTERVAL" default:"1m"`
	StaleClaimTimeout time.Duration `envconfig:"PAYHOOK_SWEEP_STALE_CLAIM_TIMEOUT" default:"5m"`
	RedispatchAge     time.Duration `envconfig:"PAYHOOK_SWEEP_REDISPATCH_AGE" default:"2m"`
	BatchSize         int           `envconfig:"PAYHOOK_SWEEP_BATCH_SIZE" default:"100"`
	LockTTL           time.Duration `envconfig:"PAYHOOK_SWEEP_LOCK_TTL" default:"2m"`
}

// AccountingConfig points at the Odoo payment webhook.
type AccountingConfig struct {
	Enabled         bool          `envconfig:"PAYHOOK_ACCOUNTING_ENABLED" default:"false"`
	BaseURL         string        `envconfig:"PAYHOOK_ACCOUNTING_BASE_URL"`
	WebhookKey      string        `envconfig:"PAYHOOK_ACCOUNTING_WEBHOOK_KEY"`
	CurrencyID      int           `envconfig:"PAYHOOK_ACCOUNTING_CURRENCY_ID" default:"1"`
	JournalID       int           `envconfig:"PAYHOOK_ACCOUNTING_JOURNAL_ID" default:"1"`
	PaymentMethodID int           `envconfig:"PAYHOOK_ACCOUNTING_PAYMENT_METHOD_ID" default:"1"`
	Timeout         time.Duration `envconfig:"PAYHOOK_ACCOUNTING_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PAYHOOK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PAYHOOK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PAYHOOK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	WebhookTopic        string `envconfig:"PAYHOOK_PUBSUB_WEBHOOK_TOPIC" default:"payhook-webhooks"`
	WebhookSubscription string `envconfig:"PAYHOOK_PUBSUB_WEBHOOK_SUBSCRIPTION" default:"payhook-webhooks-sub"`
	MaxOutstanding      int    `envconfig:"PAYHOOK_PUBSUB_MAX_OUTSTANDING" default:"16"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PAYHOOK_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
