// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED"`
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

type Config struct {
	DBDriver    string `env:"DB_DRIVER"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBUser      string `env:"DB_USER"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBHost      string `env:"DB_HOST"`
	DBPort      string `env:"DB_PORT"`
	DBName      string `env:"DB_NAME"`
	SQLitePath  string `env:"SQLITE_PATH"`

	HTTPAddr string `env:"HTTP_ADDR"`
	AMQPURL  string `env:"AMQP_URL"`

	SweepInterval    time.Duration `env:"SWEEP_INTERVAL"`
	SweepDeadline    time.Duration `env:"SWEEP_DEADLINE"`
	DispatchWorkers  int           `env:"DISPATCH_WORKERS"`
	MaxStepsCap      int           `env:"MAX_STEPS_CAP"`
	FailureThreshold int           `env:"FAILURE_THRESHOLD"`

	Redis RedisConfig

	SentryDSN string `env:"SENTRY_DSN"`
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DBDriver:         "sqlite",
		DBHost:           "localhost",
		DBPort:           "5432",
		DBName:           "drip",
		SQLitePath:       "data/drip.db",
		HTTPAddr:         ":8080",
		SweepInterval:    30 * time.Second,
		SweepDeadline:    20 * time.Second,
		DispatchWorkers:  4,
		MaxStepsCap:      10,
		FailureThreshold: 3,
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load builds the configuration from defaults, then iniPath (if it exists),
// then the environment (.env included). Later sources win.
func Load(iniPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, relying on OS environment variables")
	}

	cfg := Defaults()
	if iniPath != "" {
		if err := loadFromINI(&cfg, iniPath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", iniPath, err)
			}
			logrus.WithField("path", iniPath).Debug("config file not found, using environment variables or defaults")
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFromINI(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	file, err := ini.Load(path)
	if err != nil {
		return err
	}

	db := file.Section("database")
	setString(&cfg.DBDriver, db.Key("driver").String())
	setString(&cfg.DatabaseURL, db.Key("url").String())
	setString(&cfg.DBUser, db.Key("user").String())
	setString(&cfg.DBPassword, db.Key("password").String())
	setString(&cfg.DBHost, db.Key("host").String())
	setString(&cfg.DBPort, db.Key("port").String())
	setString(&cfg.DBName, db.Key("name").String())
	setString(&cfg.SQLitePath, db.Key("sqlite_path").String())

	setString(&cfg.HTTPAddr, file.Section("api").Key("addr").String())
	setString(&cfg.AMQPURL, file.Section("amqp").Key("url").String())

	worker := file.Section("worker")
	if worker.HasKey("sweep_interval") {
		cfg.SweepInterval = worker.Key("sweep_interval").MustDuration(cfg.SweepInterval)
	}
	if worker.HasKey("sweep_deadline") {
		cfg.SweepDeadline = worker.Key("sweep_deadline").MustDuration(cfg.SweepDeadline)
	}
	if worker.HasKey("dispatch_workers") {
		cfg.DispatchWorkers = worker.Key("dispatch_workers").MustInt(cfg.DispatchWorkers)
	}
	if worker.HasKey("max_steps_cap") {
		cfg.MaxStepsCap = worker.Key("max_steps_cap").MustInt(cfg.MaxStepsCap)
	}
	if worker.HasKey("failure_threshold") {
		cfg.FailureThreshold = worker.Key("failure_threshold").MustInt(cfg.FailureThreshold)
	}

	redis := file.Section("redis")
	if redis.HasKey("enabled") {
		cfg.Redis.Enabled = redis.Key("enabled").MustBool(false)
	}
	setString(&cfg.Redis.Addr, redis.Key("addr").String())
	setString(&cfg.Redis.Password, redis.Key("password").String())
	if redis.HasKey("db") {
		cfg.Redis.DB = redis.Key("db").MustInt(cfg.Redis.DB)
	}

	setString(&cfg.SentryDSN, file.Section("sentry").Key("dsn").String())
	setString(&cfg.LogLevel, file.Section("log").Key("level").String())
	setString(&cfg.LogFormat, file.Section("log").Key("format").String())
	return nil
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.DBDriver == "sqlite" && strings.TrimSpace(c.SQLitePath) == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.SweepDeadline <= 0 || c.SweepDeadline >= c.SweepInterval {
		return fmt.Errorf("SWEEP_DEADLINE must be positive and shorter than SWEEP_INTERVAL")
	}
	if c.DispatchWorkers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be at least 1")
	}
	if c.MaxStepsCap < 1 {
		return fmt.Errorf("MAX_STEPS_CAP must be at least 1")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("FAILURE_THRESHOLD must be at least 1")
	}
	return nil
}

// DSN returns the driver-specific data source name.
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Fields is a loggable view of the configuration with secrets left out.
func (c *Config) Fields() logrus.Fields {
	return logrus.Fields{
		"db_driver":         c.DBDriver,
		"db_host":           c.DBHost,
		"db_name":           c.DBName,
		"http_addr":         c.HTTPAddr,
		"amqp":              c.AMQPURL != "",
		"sweep_interval":    c.SweepInterval.String(),
		"sweep_deadline":    c.SweepDeadline.String(),
		"dispatch_workers":  c.DispatchWorkers,
		"max_steps_cap":     c.MaxStepsCap,
		"failure_threshold": c.FailureThreshold,
		"redis":             c.Redis.Enabled,
		"sentry":            c.SentryDSN != "",
	}
}
