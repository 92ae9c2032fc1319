package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config aggregates every runtime setting the binaries consume.
type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

// Load reads the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LIBRIS_APP_ENV" required:"true"`
	Port         string `envconfig:"LIBRIS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LIBRIS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LIBRIS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LIBRIS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LIBRIS_DB_DSN"`
	Driver string `envconfig:"LIBRIS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LIBRIS_DB_HOST"`
	LegacyPort     int    `envconfig:"LIBRIS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LIBRIS_DB_USER"`
	LegacyPassword string `envconfig:"LIBRIS_DB_PASSWORD"`
	LegacyName     string `envconfig:"LIBRIS_DB_NAME"`
	LegacySSLMode  string `envconfig:"LIBRIS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LIBRIS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LIBRIS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LIBRIS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LIBRIS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LIBRIS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LIBRIS_REDIS_ADDR"`
	Password     string        `envconfig:"LIBRIS_REDIS_PASSWORD"`
	DB           int           `envconfig:"LIBRIS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LIBRIS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LIBRIS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LIBRIS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LIBRIS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LIBRIS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LIBRIS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LIBRIS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LIBRIS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LIBRIS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LIBRIS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"LIBRIS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LIBRIS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"LIBRIS_PUBSUB_NOTIFICATION_TOPIC" default:"libris-notification-events"`
	NotificationSubscription string `envconfig:"LIBRIS_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LIBRIS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LIBRIS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LIBRIS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LIBRIS_CRON_INTERVAL" default:"1h"`
	LockKey  string        `envconfig:"LIBRIS_CRON_LOCK_KEY" default:"libris:cron:leader"`
	LockTTL  time.Duration `envconfig:"LIBRIS_CRON_LOCK_TTL" default:"2h"`
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
