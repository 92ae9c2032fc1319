package config

// EnvPrefix is passed to envconfig; individual fields carry fully-qualified names.
const EnvPrefix = "libris"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "LIBRIS_APP_ENV"
	EnvDBDSN  = "LIBRIS_DB_DSN"
	EnvDBHost = "LIBRIS_DB_HOST"
	EnvDBUser = "LIBRIS_DB_USER"
	EnvDBName = "LIBRIS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
