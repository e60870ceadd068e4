// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`

	DBDriver    string `mapstructure:"DB_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBUser      string `mapstructure:"DB_USER"`
	DBPassword  string `mapstructure:"DB_PASSWORD"`
	DBHost      string `mapstructure:"DB_HOST"`
	DBPort      string `mapstructure:"DB_PORT"`
	DBName      string `mapstructure:"DB_NAME"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	RedisAddr    string `mapstructure:"REDIS_ADDR"`
	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	MatchBudgetTolerance  float64       `mapstructure:"MATCH_BUDGET_TOLERANCE"`
	RequestDefaultHorizon time.Duration `mapstructure:"REQUEST_DEFAULT_HORIZON"`
	SweepInterval         time.Duration `mapstructure:"SWEEP_INTERVAL"`
	WSTicketTTL           time.Duration `mapstructure:"WS_TICKET_TTL"`

	AppURL       string `mapstructure:"APP_URL"`
	MailProvider string `mapstructure:"MAIL_PROVIDER"`
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	MailReplyTo  string `mapstructure:"MAIL_REPLY_TO"`
	PlunkAPIKey  string `mapstructure:"PLUNK_API_KEY"`
	PlunkFrom    string `mapstructure:"PLUNK_FROM"`
	PlunkAPIURL  string `mapstructure:"PLUNK_API_URL"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var defaults = map[string]any{
	"PORT":                    "8080",
	"DB_DRIVER":               "postgres",
	"DATABASE_URL":            "",
	"DB_USER":                 "",
	"DB_PASSWORD":             "",
	"DB_HOST":                 "localhost",
	"DB_PORT":                 "5432",
	"DB_NAME":                 "handyhub",
	"SQLITE_PATH":             "data/handyhub.db",
	"JWT_SECRET":              "",
	"REDIS_ADDR":              "",
	"AMQP_URL":                "",
	"AMQP_EXCHANGE":           "handyhub.events",
	"MATCH_BUDGET_TOLERANCE":  200.0,
	"REQUEST_DEFAULT_HORIZON": "24h",
	"SWEEP_INTERVAL":          "1m",
	"WS_TICKET_TTL":           "60s",
	"APP_URL":                 "http://localhost:3000",
	"MAIL_PROVIDER":           "",
	"SMTP_HOST":               "",
	"SMTP_PORT":               "",
	"SMTP_USERNAME":           "",
	"SMTP_PASSWORD":           "",
	"SMTP_FROM":               "",
	"MAIL_REPLY_TO":           "",
	"PLUNK_API_KEY":           "",
	"PLUNK_FROM":              "",
	"PLUNK_API_URL":           "https://api.useplunk.com/v1/send",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "json",
}

// Load reads envFiles (missing files are ignored) and then the process
// environment. Values already in the environment win over .env entries.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.MatchBudgetTolerance < 0 {
		return fmt.Errorf("MATCH_BUDGET_TOLERANCE must not be negative")
	}
	if c.RequestDefaultHorizon <= 0 {
		return fmt.Errorf("REQUEST_DEFAULT_HORIZON must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.WSTicketTTL <= 0 {
		return fmt.Errorf("WS_TICKET_TTL must be positive")
	}
	return nil
}

// PostgresDSN returns DATABASE_URL, or builds one from the DB_* parts.
func (c Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   c.DBHost + ":" + c.DBPort,
		Path:   "/" + c.DBName,
	}
	return u.String()
}
