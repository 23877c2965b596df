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
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Stripe       StripeConfig
	SMTP         SMTPConfig
	Sweeper      SweeperConfig
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
	Env          string `envconfig:"CASIER_APP_ENV" required:"true"`
	Port         string `envconfig:"CASIER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CASIER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CASIER_LOG_WARN_STACK" default:"false"`
	FrontendURL  string `envconfig:"CASIER_FRONTEND_URL" default:"http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"CASIER_DB_DSN"`

	Host     string `envconfig:"CASIER_DB_HOST"`
	Port     int    `envconfig:"CASIER_DB_PORT" default:"5432"`
	User     string `envconfig:"CASIER_DB_USER"`
	Password string `envconfig:"CASIER_DB_PASSWORD"`
	Name     string `envconfig:"CASIER_DB_NAME"`
	SSLMode  string `envconfig:"CASIER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CASIER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CASIER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CASIER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CASIER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CASIER_REDIS_URL"`
	Address      string        `envconfig:"CASIER_REDIS_ADDR"`
	Password     string        `envconfig:"CASIER_REDIS_PASSWORD"`
	DB           int           `envconfig:"CASIER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CASIER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CASIER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CASIER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CASIER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CASIER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CASIER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CASIER_JWT_ISSUER" default:"casier"`
	ExpirationMinutes int    `envconfig:"CASIER_JWT_EXPIRATION_MINUTES" default:"1440"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CASIER_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CASIER_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CASIER_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CASIER_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CASIER_ARGON_KEY_LEN" default:"32"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"CASIER_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"CASIER_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"CASIER_STRIPE_ENV" default:"test"`
	Currency      string `envconfig:"CASIER_STRIPE_CURRENCY" default:"eur"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SMTPConfig struct {
	Host     string `envconfig:"CASIER_SMTP_HOST"`
	Port     int    `envconfig:"CASIER_SMTP_PORT" default:"2525"`
	User     string `envconfig:"CASIER_SMTP_USER"`
	Password string `envconfig:"CASIER_SMTP_PASSWORD"`
	From     string `envconfig:"CASIER_SMTP_FROM" default:"noreply@casier.app"`
}

type SweeperConfig struct {
	Interval          time.Duration `envconfig:"CASIER_SWEEP_INTERVAL" default:"1m"`
	ReminderLookahead time.Duration `envconfig:"CASIER_SWEEP_REMINDER_LOOKAHEAD" default:"15m"`
	PendingTTL        time.Duration `envconfig:"CASIER_SWEEP_PENDING_TTL" default:"30m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CASIER_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for env, value := range map[string]string{
		"CASIER_DB_HOST": db.Host,
		"CASIER_DB_USER": db.User,
		"CASIER_DB_NAME": db.Name,
	} {
		if value == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either CASIER_DB_DSN or %s are required", strings.Join(missing, ", "))
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
