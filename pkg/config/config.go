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
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cloudinary   CloudinaryConfig
	CORS         CORSConfig
	Ledger       LedgerConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ONEMAN_APP_ENV" required:"true"`
	Port         string `envconfig:"ONEMAN_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ONEMAN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ONEMAN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// CheckAPIDependencies rejects a production API without Redis. Idempotency
// keys on material submits and the rate limits are only enforced with it.
func (c Config) CheckAPIDependencies() error {
	if c.App.IsProd() && !c.Redis.Enabled() {
		return fmt.Errorf("%s or %s is required when %s is %q", EnvRedisURL, EnvRedisAddr, EnvAppEnv, c.App.Env)
	}
	return nil
}

type ServiceConfig struct {
	Kind string `envconfig:"ONEMAN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ONEMAN_DB_DSN"`
	Driver string `envconfig:"ONEMAN_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"ONEMAN_DB_HOST"`
	Port     int    `envconfig:"ONEMAN_DB_PORT" default:"5432"`
	User     string `envconfig:"ONEMAN_DB_USER"`
	Password string `envconfig:"ONEMAN_DB_PASSWORD"`
	Name     string `envconfig:"ONEMAN_DB_NAME"`
	SSLMode  string `envconfig:"ONEMAN_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"ONEMAN_SQLITE_PATH" default:"oneman.db"`

	MaxOpenConns    int           `envconfig:"ONEMAN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ONEMAN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ONEMAN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ONEMAN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ONEMAN_REDIS_URL"`
	Address      string        `envconfig:"ONEMAN_REDIS_ADDR"`
	Password     string        `envconfig:"ONEMAN_REDIS_PASSWORD"`
	DB           int           `envconfig:"ONEMAN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ONEMAN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ONEMAN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ONEMAN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ONEMAN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ONEMAN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// JWTConfig describes how identity-provider tokens are verified.
type JWTConfig struct {
	Secret            string `envconfig:"ONEMAN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ONEMAN_JWT_ISSUER" required:"true"`
	Audience          string `envconfig:"ONEMAN_JWT_AUDIENCE"`
	ExpirationMinutes int    `envconfig:"ONEMAN_JWT_EXPIRATION_MINUTES" default:"60"`
}

type RateLimitConfig struct {
	SearchWindow time.Duration `envconfig:"ONEMAN_RATE_LIMIT_SEARCH_WINDOW" default:"1m"`
	SearchLimit  int           `envconfig:"ONEMAN_RATE_LIMIT_SEARCH_LIMIT" default:"30"`
	SignWindow   time.Duration `envconfig:"ONEMAN_RATE_LIMIT_SIGN_WINDOW" default:"1m"`
	SignLimit    int           `envconfig:"ONEMAN_RATE_LIMIT_SIGN_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ONEMAN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ONEMAN_AUTO_MIGRATE" default:"false"`
	LiveStream  bool `envconfig:"ONEMAN_FEATURE_LIVE_STREAM" default:"true"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"ONEMAN_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"ONEMAN_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	GroupEventsTopic string `envconfig:"ONEMAN_PUBSUB_GROUP_EVENTS_TOPIC" default:"oneman-group-events"`
	LedgerTopic      string `envconfig:"ONEMAN_PUBSUB_LEDGER_TOPIC" default:"oneman-ledger-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ONEMAN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ONEMAN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ONEMAN_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CloudinaryConfig holds the credentials used to sign direct uploads.
type CloudinaryConfig struct {
	CloudName     string `envconfig:"ONEMAN_CLOUDINARY_CLOUD_NAME"`
	APIKey        string `envconfig:"ONEMAN_CLOUDINARY_API_KEY"`
	APISecret     string `envconfig:"ONEMAN_CLOUDINARY_API_SECRET"`
	DefaultFolder string `envconfig:"ONEMAN_CLOUDINARY_FOLDER"`
}

// Configured reports whether all signing credentials are present.
func (c CloudinaryConfig) Configured() bool {
	return strings.TrimSpace(c.CloudName) != "" &&
		strings.TrimSpace(c.APIKey) != "" &&
		strings.TrimSpace(c.APISecret) != ""
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"ONEMAN_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type LedgerConfig struct {
	MaxConflictRetries int `envconfig:"ONEMAN_LEDGER_MAX_CONFLICT_RETRIES" default:"3"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"ONEMAN_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"ONEMAN_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	StaleTransferAfter  time.Duration `envconfig:"ONEMAN_CRON_STALE_TRANSFER_AFTER" default:"15m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range hostDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
