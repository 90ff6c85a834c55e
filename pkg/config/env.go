package config

// EnvPrefix is passed to envconfig; every field carries an explicit tag so the
// prefix only matters for fields without one.
const EnvPrefix = "ONEMAN"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv    = "ONEMAN_APP_ENV"
	EnvPort      = "ONEMAN_APP_PORT"
	EnvDBDSN     = "ONEMAN_DB_DSN"
	EnvDBHost    = "ONEMAN_DB_HOST"
	EnvDBUser    = "ONEMAN_DB_USER"
	EnvDBName    = "ONEMAN_DB_NAME"
	EnvUseSQLite = "ONEMAN_USE_SQLITE"
	EnvRedisURL  = "ONEMAN_REDIS_URL"
	EnvRedisAddr = "ONEMAN_REDIS_ADDR"
	EnvJWTSecret = "ONEMAN_JWT_SECRET"
	EnvJWTIssuer = "ONEMAN_JWT_ISSUER"

	EnvCloudinaryCloudName = "ONEMAN_CLOUDINARY_CLOUD_NAME"
	EnvCloudinaryAPIKey    = "ONEMAN_CLOUDINARY_API_KEY"
	EnvCloudinarySecret    = "ONEMAN_CLOUDINARY_API_SECRET"
	EnvCORSAllowedOrigins  = "ONEMAN_CORS_ALLOWED_ORIGINS"
)

var hostDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
