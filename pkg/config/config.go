package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix scopes every environment variable the service reads.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Square       SquareConfig
	PubNub       PubNubConfig
	Fees         FeesConfig
	Referral     ReferralConfig
	Offers       OffersConfig
	Proximity    ProximityConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STAGEDOOR_APP_ENV" required:"true"`
	Port         string `envconfig:"STAGEDOOR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STAGEDOOR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STAGEDOOR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STAGEDOOR_DB_DSN"`
	Driver string `envconfig:"STAGEDOOR_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STAGEDOOR_DB_HOST"`
	Port     int    `envconfig:"STAGEDOOR_DB_PORT" default:"5432"`
	User     string `envconfig:"STAGEDOOR_DB_USER"`
	Password string `envconfig:"STAGEDOOR_DB_PASSWORD"`
	Name     string `envconfig:"STAGEDOOR_DB_NAME"`
	SSLMode  string `envconfig:"STAGEDOOR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STAGEDOOR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STAGEDOOR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STAGEDOOR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STAGEDOOR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either STAGEDOOR_DB_DSN or host/user/name settings are required")
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	d.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"STAGEDOOR_REDIS_URL"`
	Host         string        `envconfig:"STAGEDOOR_REDIS_HOST" default:"localhost"`
	Port         int           `envconfig:"STAGEDOOR_REDIS_PORT" default:"6379"`
	Password     string        `envconfig:"STAGEDOOR_REDIS_PASSWORD"`
	DB           int           `envconfig:"STAGEDOOR_REDIS_DB" default:"0"`
	DialTimeout  time.Duration `envconfig:"STAGEDOOR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STAGEDOOR_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"STAGEDOOR_REDIS_WRITE_TIMEOUT" default:"3s"`
	PoolSize     int           `envconfig:"STAGEDOOR_REDIS_POOL_SIZE" default:"10"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STAGEDOOR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STAGEDOOR_JWT_ISSUER" default:"stagedoor-identity"`
	ExpirationMinutes int    `envconfig:"STAGEDOOR_JWT_EXPIRATION_MINUTES" default:"60"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"STAGEDOOR_SQUARE_ACCESS_TOKEN"`
	Env           string `envconfig:"STAGEDOOR_SQUARE_ENV" default:"sandbox"`
	LocationID    string `envconfig:"STAGEDOOR_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"STAGEDOOR_SQUARE_WEBHOOK_SECRET"`
}

func (s SquareConfig) Environment() string {
	return strings.ToLower(strings.TrimSpace(s.Env))
}

type PubNubConfig struct {
	PublishKey   string `envconfig:"STAGEDOOR_PUBNUB_PUBLISH_KEY"`
	SubscribeKey string `envconfig:"STAGEDOOR_PUBNUB_SUBSCRIBE_KEY"`
	SecretKey    string `envconfig:"STAGEDOOR_PUBNUB_SECRET_KEY"`
	UserID       string `envconfig:"STAGEDOOR_PUBNUB_USER_ID" default:"stagedoor-server"`
}

// FeesConfig controls the platform fee schedule. Percentages are expressed
// as decimal strings ("0.10" = 10%) so the math stays exact.
type FeesConfig struct {
	ServiceFeePercent  string `envconfig:"STAGEDOOR_FEES_SERVICE_PERCENT" default:"0.10"`
	ResaleFeePercent   string `envconfig:"STAGEDOOR_FEES_RESALE_PERCENT" default:"0.05"`
	CashFeePercent     string `envconfig:"STAGEDOOR_FEES_CASH_PERCENT" default:"0.05"`
	PublicMintFeeCents int    `envconfig:"STAGEDOOR_FEES_PUBLIC_MINT_CENTS" default:"200"`
	Currency           string `envconfig:"STAGEDOOR_FEES_CURRENCY" default:"USD"`
}

// ReferralConfig is read once per transaction and snapshotted into
// ReferralEarning rows; it is never consulted retroactively.
type ReferralConfig struct {
	Enabled             bool   `envconfig:"STAGEDOOR_REFERRAL_ENABLED" default:"true"`
	DiscountPercent     string `envconfig:"STAGEDOOR_REFERRAL_DISCOUNT_PERCENT" default:"0.10"`
	RevenueSharePercent string `envconfig:"STAGEDOOR_REFERRAL_REVSHARE_PERCENT" default:"0.10"`
	BenefitDurationDays int    `envconfig:"STAGEDOOR_REFERRAL_BENEFIT_DAYS" default:"90"`
}

type OffersConfig struct {
	ExpiryDays int `envconfig:"STAGEDOOR_OFFERS_EXPIRY_DAYS" default:"7"`
}

type ProximityConfig struct {
	ExpiryMinutes int `envconfig:"STAGEDOOR_PROXIMITY_EXPIRY_MINUTES" default:"5"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STAGEDOOR_CRON_INTERVAL" default:"1m"`
	LockKey  string        `envconfig:"STAGEDOOR_CRON_LOCK_KEY" default:"stagedoor:cron:lock"`
	LockTTL  time.Duration `envconfig:"STAGEDOOR_CRON_LOCK_TTL" default:"5m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STAGEDOOR_FEATURE_AUTO_MIGRATE" default:"false"`
}
