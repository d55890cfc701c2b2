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
	DB           DBConfig
	Redis        RedisConfig
	Shopify      ShopifyConfig
	Exchange     ExchangeConfig
	Royalty      RoyaltyConfig
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
	Env          string `envconfig:"ROYALTYHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"ROYALTYHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ROYALTYHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ROYALTYHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ROYALTYHUB_DB_DSN"`
	Driver string `envconfig:"ROYALTYHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ROYALTYHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"ROYALTYHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ROYALTYHUB_DB_USER"`
	LegacyPassword string `envconfig:"ROYALTYHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"ROYALTYHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"ROYALTYHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ROYALTYHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ROYALTYHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ROYALTYHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ROYALTYHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ROYALTYHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ROYALTYHUB_REDIS_ADDR"`
	Password     string        `envconfig:"ROYALTYHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"ROYALTYHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ROYALTYHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ROYALTYHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ROYALTYHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ROYALTYHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ROYALTYHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type ShopifyConfig struct {
	APIVersion    string        `envconfig:"ROYALTYHUB_SHOPIFY_API_VERSION" default:"2025-07"`
	AccessToken   string        `envconfig:"ROYALTYHUB_SHOPIFY_ACCESS_TOKEN"`
	WebhookSecret string        `envconfig:"ROYALTYHUB_SHOPIFY_WEBHOOK_SECRET" required:"true"`
	Timeout       time.Duration `envconfig:"ROYALTYHUB_SHOPIFY_TIMEOUT" default:"15s"`
}

type ExchangeConfig struct {
	BaseURL  string        `envconfig:"ROYALTYHUB_EXCHANGE_BASE_URL" default:"https://api.frankfurter.app"`
	Timeout  time.Duration `envconfig:"ROYALTYHUB_EXCHANGE_TIMEOUT" default:"10s"`
	CacheTTL time.Duration `envconfig:"ROYALTYHUB_EXCHANGE_CACHE_TTL" default:"1h"`
}

type RoyaltyConfig struct {
	BaseCappedAmount  float64       `envconfig:"ROYALTYHUB_ROYALTY_BASE_CAPPED_AMOUNT" default:"350"`
	BillingCurrency   string        `envconfig:"ROYALTYHUB_ROYALTY_BILLING_CURRENCY" default:"USD"`
	OrderTxTimeout    time.Duration `envconfig:"ROYALTYHUB_ROYALTY_ORDER_TX_TIMEOUT" default:"20s"`
	CapWarningPercent float64       `envconfig:"ROYALTYHUB_ROYALTY_CAP_WARNING_PERCENT" default:"80"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ROYALTYHUB_AUTO_MIGRATE" default:"false"`
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
