package config

const EnvPrefix = "STKPUSH"

const (
	AppEnvDev        = "dev"
	AppEnvProd       = "prod"
	AppEnvProduction = "production"
)

const (
	EnvAppEnv                  = "STKPUSH_APP_ENV"
	EnvPort                    = "STKPUSH_APP_PORT"
	EnvDBDSN                   = "STKPUSH_DB_DSN"
	EnvDBHost                  = "STKPUSH_DB_HOST"
	EnvDBUser                  = "STKPUSH_DB_USER"
	EnvDBName                  = "STKPUSH_DB_NAME"
	EnvDBPassword              = "STKPUSH_DB_PASSWORD"
	EnvRedisURL                = "STKPUSH_REDIS_URL"
	EnvJWTSecret               = "STKPUSH_JWT_SECRET"
	EnvJWTIssuer               = "STKPUSH_JWT_ISSUER"
	EnvUseSQLite               = "STKPUSH_USE_SQLITE"
	EnvMPesaShortCode          = "STKPUSH_MPESA_SHORTCODE"
	EnvMPesaCallbackToken      = "STKPUSH_MPESA_CALLBACK_TOKEN"
	EnvPaymentsProcessingAfter = "STKPUSH_PAYMENTS_PROCESSING_AFTER"
	EnvSimulatorEnabled        = "STKPUSH_SIMULATOR_ENABLED"
	EnvSimulatorConfirmAfter   = "STKPUSH_SIMULATOR_CONFIRM_AFTER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
