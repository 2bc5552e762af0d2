package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	MPesa        MPesaConfig
	Payments     PaymentsConfig
	Simulator    SimulatorConfig
	Cron         CronConfig
	OTel         OTelConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate enforces cross-section rules that envconfig tags cannot express.
func (c *Config) validate() error {
	if c.App.IsProd() && c.Simulator.Enabled {
		return fmt.Errorf("%s must not be enabled when %s is %q", EnvSimulatorEnabled, EnvAppEnv, c.App.Env)
	}
	if c.App.IsProd() && c.FeatureFlags.UseSQLite {
		return fmt.Errorf("%s is not supported in production", EnvUseSQLite)
	}
	if c.Payments.ProcessingAfter <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentsProcessingAfter)
	}
	if c.Simulator.Enabled && c.Simulator.ConfirmAfter <= 0 {
		return fmt.Errorf("%s must be positive", EnvSimulatorConfirmAfter)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"STKPUSH_APP_ENV" required:"true"`
	Port         string `envconfig:"STKPUSH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STKPUSH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STKPUSH_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"STKPUSH_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, AppEnvProduction)
}

type ServiceConfig struct {
	Kind string `envconfig:"STKPUSH_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STKPUSH_DB_DSN"`
	Driver string `envconfig:"STKPUSH_DB_DRIVER" default:"postgres"`

	SQLitePath string `envconfig:"STKPUSH_SQLITE_PATH" default:"stkpush.db"`

	LegacyHost     string `envconfig:"STKPUSH_DB_HOST"`
	LegacyPort     int    `envconfig:"STKPUSH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STKPUSH_DB_USER"`
	LegacyPassword string `envconfig:"STKPUSH_DB_PASSWORD"`
	LegacyName     string `envconfig:"STKPUSH_DB_NAME"`
	LegacySSLMode  string `envconfig:"STKPUSH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STKPUSH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STKPUSH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STKPUSH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STKPUSH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STKPUSH_REDIS_URL"`
	Address      string        `envconfig:"STKPUSH_REDIS_ADDR"`
	Password     string        `envconfig:"STKPUSH_REDIS_PASSWORD"`
	DB           int           `envconfig:"STKPUSH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STKPUSH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STKPUSH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STKPUSH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STKPUSH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STKPUSH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies bearer tokens minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"STKPUSH_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STKPUSH_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STKPUSH_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STKPUSH_AUTO_MIGRATE" default:"false"`
}

// MPesaConfig carries the Daraja credentials. It is read once at startup and
// injected into the gateway client and the callback controller.
type MPesaConfig struct {
	Env            string        `envconfig:"STKPUSH_MPESA_ENV" default:"sandbox"`
	BaseURL        string        `envconfig:"STKPUSH_MPESA_BASE_URL"`
	ConsumerKey    string        `envconfig:"STKPUSH_MPESA_CONSUMER_KEY"`
	ConsumerSecret string        `envconfig:"STKPUSH_MPESA_CONSUMER_SECRET"`
	ShortCode      string        `envconfig:"STKPUSH_MPESA_SHORTCODE"`
	TillNumber     string        `envconfig:"STKPUSH_MPESA_TILL_NUMBER"`
	PassKey        string        `envconfig:"STKPUSH_MPESA_PASSKEY"`
	CallbackURL    string        `envconfig:"STKPUSH_MPESA_CALLBACK_URL"`
	CallbackToken  string        `envconfig:"STKPUSH_MPESA_CALLBACK_TOKEN"`
	Timeout        time.Duration `envconfig:"STKPUSH_MPESA_TIMEOUT" default:"30s"`
	MaxAmount      int64         `envconfig:"STKPUSH_MPESA_MAX_AMOUNT" default:"250000"`
}

const (
	mpesaSandboxURL    = "https://sandbox.safaricom.co.ke"
	mpesaProductionURL = "https://api.safaricom.co.ke"
)

// Environment returns the normalized Daraja environment (sandbox/production).
func (m MPesaConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(m.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// ResolvedBaseURL returns the explicit base URL or the default for the environment.
func (m MPesaConfig) ResolvedBaseURL() string {
	if base := strings.TrimRight(strings.TrimSpace(m.BaseURL), "/"); base != "" {
		return base
	}
	if m.Environment() == "production" {
		return mpesaProductionURL
	}
	return mpesaSandboxURL
}

type PaymentsConfig struct {
	ProcessingAfter    time.Duration `envconfig:"STKPUSH_PAYMENTS_PROCESSING_AFTER" default:"15s"`
	CallbackReplayTTL  time.Duration `envconfig:"STKPUSH_PAYMENTS_CALLBACK_REPLAY_TTL" default:"24h"`
	InitiateRateWindow time.Duration `envconfig:"STKPUSH_PAYMENTS_INITIATE_RATE_WINDOW" default:"1m"`
	InitiateIPLimit    int           `envconfig:"STKPUSH_PAYMENTS_INITIATE_IP_LIMIT" default:"30"`
	InitiatePhoneLimit int           `envconfig:"STKPUSH_PAYMENTS_INITIATE_PHONE_LIMIT" default:"3"`
}

// SimulatorConfig controls the dev-only callback simulator. Load rejects it in production.
type SimulatorConfig struct {
	Enabled      bool          `envconfig:"STKPUSH_SIMULATOR_ENABLED" default:"false"`
	ConfirmAfter time.Duration `envconfig:"STKPUSH_SIMULATOR_CONFIRM_AFTER" default:"30s"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"STKPUSH_CRON_INTERVAL" default:"5m"`
	RegrantBatch      int           `envconfig:"STKPUSH_CRON_REGRANT_BATCH" default:"100"`
	PendingQueryAfter time.Duration `envconfig:"STKPUSH_CRON_PENDING_QUERY_AFTER" default:"2m"`
	PendingQueryBatch int           `envconfig:"STKPUSH_CRON_PENDING_QUERY_BATCH" default:"50"`
	CallbackRetention time.Duration `envconfig:"STKPUSH_CRON_CALLBACK_RETENTION" default:"720h"`
}

type OTelConfig struct {
	Enabled     bool    `envconfig:"STKPUSH_OTEL_ENABLED" default:"false"`
	Endpoint    string  `envconfig:"STKPUSH_OTEL_ENDPOINT" default:"localhost:4317"`
	Insecure    bool    `envconfig:"STKPUSH_OTEL_INSECURE" default:"true"`
	SampleRatio float64 `envconfig:"STKPUSH_OTEL_SAMPLE_RATIO" default:"1"`
	ServiceName string  `envconfig:"STKPUSH_OTEL_SERVICE_NAME" default:"stkpush"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
