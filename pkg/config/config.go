package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Orders       OrdersConfig
	Settlement   SettlementConfig
	Payouts      PayoutsConfig
	Webhooks     WebhooksConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
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
	if _, err := enums.ParseAllocationPolicy(c.Orders.AllocateOn); err != nil {
		return fmt.Errorf("%s: %w", EnvOrdersAllocateOn, err)
	}
	if _, err := enums.ParseLotStrategy(c.Orders.LotStrategy); err != nil {
		return fmt.Errorf("%s: %w", EnvOrdersLotStrategy, err)
	}
	if _, err := enums.ParseCurrency(c.Orders.Currency); err != nil {
		return fmt.Errorf("%s: %w", EnvOrdersCurrency, err)
	}
	rate := c.Settlement.CommissionRate
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1), got %s", EnvSettlementCommission, rate)
	}
	if c.Settlement.HoldPeriod < 0 {
		return fmt.Errorf("%s must not be negative", EnvSettlementHoldPeriod)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETLEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MARKETLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETLEDGER_LOG_WARN_STACK" default:"false"`

	// CORSOrigins extends the localhost default.
	CORSOrigins []string `envconfig:"MARKETLEDGER_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETLEDGER_DB_DSN"`
	Driver string `envconfig:"MARKETLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"MARKETLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARKETLEDGER_AUTO_MIGRATE" default:"false"`
	// StripePayouts routes cashouts through Stripe; when off the payouts
	// service only records them for manual bank transfer.
	StripePayouts bool `envconfig:"MARKETLEDGER_FEATURE_STRIPE_PAYOUTS" default:"false"`
}

type OrdersConfig struct {
	AllocateOn  string `envconfig:"MARKETLEDGER_ORDERS_ALLOCATE_ON" default:"confirmation"`
	LotStrategy string `envconfig:"MARKETLEDGER_ORDERS_LOT_STRATEGY" default:"fifo"`
	Currency    string `envconfig:"MARKETLEDGER_ORDERS_CURRENCY" default:"USD"`
}

// AllocationPolicy returns the parsed allocation policy; Load already validated it.
func (o OrdersConfig) AllocationPolicy() enums.AllocationPolicy {
	policy, err := enums.ParseAllocationPolicy(o.AllocateOn)
	if err != nil {
		return enums.AllocateOnConfirmation
	}
	return policy
}

// Strategy returns the parsed lot selection strategy.
func (o OrdersConfig) Strategy() enums.LotStrategy {
	strategy, err := enums.ParseLotStrategy(o.LotStrategy)
	if err != nil {
		return enums.LotStrategyFIFO
	}
	return strategy
}

// DefaultCurrency returns the parsed order currency.
func (o OrdersConfig) DefaultCurrency() enums.Currency {
	currency, err := enums.ParseCurrency(o.Currency)
	if err != nil {
		return enums.CurrencyUSD
	}
	return currency
}

type SettlementConfig struct {
	HoldPeriod        time.Duration   `envconfig:"MARKETLEDGER_SETTLEMENT_HOLD_PERIOD" default:"168h"`
	CommissionRate    decimal.Decimal `envconfig:"MARKETLEDGER_SETTLEMENT_COMMISSION_RATE" default:"0.10"`
	Interval          time.Duration   `envconfig:"MARKETLEDGER_SETTLEMENT_INTERVAL" default:"1h"`
	VendorConcurrency int             `envconfig:"MARKETLEDGER_SETTLEMENT_VENDOR_CONCURRENCY" default:"4"`
	LockTTL           time.Duration   `envconfig:"MARKETLEDGER_SETTLEMENT_LOCK_TTL" default:"5m"`
}

type PayoutsConfig struct {
	MinAmount decimal.Decimal `envconfig:"MARKETLEDGER_PAYOUTS_MIN_AMOUNT" default:"1"`
}

type WebhooksConfig struct {
	IdempotencyTTL time.Duration `envconfig:"MARKETLEDGER_WEBHOOKS_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MARKETLEDGER_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	EventsTopic string `envconfig:"MARKETLEDGER_PUBSUB_EVENTS_TOPIC" default:"marketledger-domain-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`

	Retention      time.Duration `envconfig:"MARKETLEDGER_OUTBOX_RETENTION" default:"720h"`
	RetentionEvery time.Duration `envconfig:"MARKETLEDGER_OUTBOX_RETENTION_EVERY" default:"24h"`
}

type StripeConfig struct {
	APIKey string `envconfig:"MARKETLEDGER_STRIPE_API_KEY"`
	Secret string `envconfig:"MARKETLEDGER_STRIPE_SECRET"`
	Env    string `envconfig:"MARKETLEDGER_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether Stripe credentials were supplied.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Secret) != ""
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
