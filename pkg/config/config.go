package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "ACTIVITYSYNC_DB_DSN"
	EnvDBHost = "ACTIVITYSYNC_DB_HOST"
	EnvDBUser = "ACTIVITYSYNC_DB_USER"
	EnvDBName = "ACTIVITYSYNC_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Sync          SyncConfig
	Webhook       WebhookConfig
	Notifications NotificationsConfig
	FeatureFlags  FeatureFlagsConfig
}

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
	Env          string `envconfig:"ACTIVITYSYNC_APP_ENV" required:"true"`
	Port         string `envconfig:"ACTIVITYSYNC_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ACTIVITYSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ACTIVITYSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ACTIVITYSYNC_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ACTIVITYSYNC_DB_DSN"`
	Driver string `envconfig:"ACTIVITYSYNC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ACTIVITYSYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"ACTIVITYSYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ACTIVITYSYNC_DB_USER"`
	LegacyPassword string `envconfig:"ACTIVITYSYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"ACTIVITYSYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"ACTIVITYSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ACTIVITYSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ACTIVITYSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ACTIVITYSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ACTIVITYSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ACTIVITYSYNC_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ACTIVITYSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"ACTIVITYSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"ACTIVITYSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ACTIVITYSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ACTIVITYSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ACTIVITYSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ACTIVITYSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ACTIVITYSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ACTIVITYSYNC_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ACTIVITYSYNC_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ACTIVITYSYNC_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"ACTIVITYSYNC_PUBSUB_NOTIFICATION_TOPIC" default:"as-notification-events"`
	NotificationSubscription string `envconfig:"ACTIVITYSYNC_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

// SyncConfig tunes the synchronization engine. Per-call timeout and max
// attempts live on the integration configuration row, not here; these knobs
// control the sweep cadence and the token cache.
type SyncConfig struct {
	SweepInterval      time.Duration `envconfig:"ACTIVITYSYNC_SYNC_SWEEP_INTERVAL" default:"5m"`
	SweepPageSize      int           `envconfig:"ACTIVITYSYNC_SYNC_SWEEP_PAGE_SIZE" default:"100"`
	SweepStaleAfter    time.Duration `envconfig:"ACTIVITYSYNC_SYNC_SWEEP_STALE_AFTER" default:"15m"`
	BatchItemDelay     time.Duration `envconfig:"ACTIVITYSYNC_SYNC_BATCH_ITEM_DELAY" default:"250ms"`
	TokenSafetyMargin  time.Duration `envconfig:"ACTIVITYSYNC_SYNC_TOKEN_SAFETY_MARGIN" default:"5m"`
	SchedulerQueueSize int           `envconfig:"ACTIVITYSYNC_SYNC_SCHEDULER_QUEUE_SIZE" default:"256"`
}

type WebhookConfig struct {
	SigningSecret string `envconfig:"ACTIVITYSYNC_WEBHOOK_SIGNING_SECRET" required:"true"`
}

type NotificationsConfig struct {
	DefaultRecipient string `envconfig:"ACTIVITYSYNC_NOTIFICATIONS_DEFAULT_RECIPIENT"`
	FromAddress      string `envconfig:"ACTIVITYSYNC_NOTIFICATIONS_FROM_ADDRESS" default:"sync@brightpath.io"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ACTIVITYSYNC_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ACTIVITYSYNC_AUTO_MIGRATE" default:"false"`
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
