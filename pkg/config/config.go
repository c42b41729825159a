package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Pricing      PricingConfig
	Orders       OrdersConfig
	Webhook      WebhookConfig
	Realtime     RealtimeConfig
	Cron         CronConfig
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
	if _, err := cfg.Pricing.Rate(); err != nil {
		return nil, err
	}
	if cfg.Pricing.MaxTotalMinor <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvMaxOrderTotal)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PICKUP_APP_ENV" required:"true"`
	Port         string `envconfig:"PICKUP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PICKUP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PICKUP_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"PICKUP_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"PICKUP_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PICKUP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PICKUP_DB_DSN"`
	Driver string `envconfig:"PICKUP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PICKUP_DB_HOST"`
	LegacyPort     int    `envconfig:"PICKUP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PICKUP_DB_USER"`
	LegacyPassword string `envconfig:"PICKUP_DB_PASSWORD"`
	LegacyName     string `envconfig:"PICKUP_DB_NAME"`
	LegacySSLMode  string `envconfig:"PICKUP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PICKUP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PICKUP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PICKUP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PICKUP_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"PICKUP_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite one.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), "sqlite")
}

type RedisConfig struct {
	URL          string        `envconfig:"PICKUP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PICKUP_REDIS_ADDR"`
	Password     string        `envconfig:"PICKUP_REDIS_PASSWORD"`
	DB           int           `envconfig:"PICKUP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PICKUP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PICKUP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PICKUP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PICKUP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PICKUP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PICKUP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PICKUP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PICKUP_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig holds the payment gateway credentials. Credentials are not
// required at boot so cash-on-pickup keeps working; the broker reports a
// configuration error when a gateway payment is attempted without them.
type GatewayConfig struct {
	BaseURL       string        `envconfig:"PICKUP_GATEWAY_BASE_URL" default:"https://api.razorpay.com"`
	KeyID         string        `envconfig:"PICKUP_GATEWAY_KEY_ID"`
	KeySecret     string        `envconfig:"PICKUP_GATEWAY_KEY_SECRET"`
	WebhookSecret string        `envconfig:"PICKUP_GATEWAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"PICKUP_GATEWAY_TIMEOUT" default:"10s"`
	Currency      string        `envconfig:"PICKUP_GATEWAY_CURRENCY" default:"INR"`
}

type PricingConfig struct {
	TaxRate       string `envconfig:"PICKUP_TAX_RATE" default:"0.05"`
	MaxTotalMinor int64  `envconfig:"PICKUP_MAX_ORDER_TOTAL_MINOR" default:"1000000000"`
}

// Rate parses the configured tax rate.
func (p PricingConfig) Rate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(p.TaxRate)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%s is required", EnvTaxRate)
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvTaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be in [0, 1), got %s", EnvTaxRate, raw)
	}
	return rate, nil
}

type OrdersConfig struct {
	CancellationGrace   time.Duration `envconfig:"PICKUP_CANCELLATION_GRACE" default:"60s"`
	PaymentWindow       time.Duration `envconfig:"PICKUP_PAYMENT_WINDOW" default:"30m"`
	PickupFallback      time.Duration `envconfig:"PICKUP_PICKUP_FALLBACK" default:"30m"`
	AmountEpsilonMinor  int64         `envconfig:"PICKUP_AMOUNT_EPSILON_MINOR" default:"1"`
	PlaceIdempotencyTTL time.Duration `envconfig:"PICKUP_PLACE_IDEMPOTENCY_TTL" default:"24h"`

	// PlaceRateLimit caps placements per user per PlaceRateWindow; zero disables it.
	PlaceRateLimit  int           `envconfig:"PICKUP_PLACE_RATE_LIMIT" default:"20"`
	PlaceRateWindow time.Duration `envconfig:"PICKUP_PLACE_RATE_WINDOW" default:"1m"`
}

type WebhookConfig struct {
	ReplayTTL time.Duration `envconfig:"PICKUP_WEBHOOK_REPLAY_TTL" default:"24h"`
}

type RealtimeConfig struct {
	PollInterval time.Duration `envconfig:"PICKUP_REALTIME_POLL_INTERVAL" default:"500ms"`
	BatchSize    int           `envconfig:"PICKUP_REALTIME_BATCH_SIZE" default:"50"`
	// Channel is the redis pub/sub channel replicas share for order updates.
	Channel string `envconfig:"PICKUP_REALTIME_CHANNEL" default:"order-updates"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"PICKUP_CRON_INTERVAL" default:"5m"`
	OutboxRetentionDays int           `envconfig:"PICKUP_OUTBOX_RETENTION_DAYS" default:"7"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PICKUP_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
