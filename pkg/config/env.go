package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "PICKUP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "PICKUP_APP_ENV"
	EnvPort     = "PICKUP_APP_PORT"
	EnvLogLevel = "PICKUP_LOG_LEVEL"

	EnvDBDSN    = "PICKUP_DB_DSN"
	EnvDBDriver = "PICKUP_DB_DRIVER"
	EnvDBHost   = "PICKUP_DB_HOST"
	EnvDBUser   = "PICKUP_DB_USER"
	EnvDBName   = "PICKUP_DB_NAME"

	EnvRedisURL = "PICKUP_REDIS_URL"

	EnvJWTSecret = "PICKUP_JWT_SECRET"
	EnvJWTIssuer = "PICKUP_JWT_ISSUER"

	EnvGatewayBaseURL       = "PICKUP_GATEWAY_BASE_URL"
	EnvGatewayKeyID         = "PICKUP_GATEWAY_KEY_ID"
	EnvGatewayKeySecret     = "PICKUP_GATEWAY_KEY_SECRET"
	EnvGatewayWebhookSecret = "PICKUP_GATEWAY_WEBHOOK_SECRET"
	EnvGatewayTimeout       = "PICKUP_GATEWAY_TIMEOUT"

	EnvTaxRate           = "PICKUP_TAX_RATE"
	EnvMaxOrderTotal     = "PICKUP_MAX_ORDER_TOTAL_MINOR"
	EnvCancellationGrace = "PICKUP_CANCELLATION_GRACE"
	EnvPaymentWindow     = "PICKUP_PAYMENT_WINDOW"
	EnvPickupFallback    = "PICKUP_PICKUP_FALLBACK"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
