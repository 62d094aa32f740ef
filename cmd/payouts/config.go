package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/washpay/internal/logger"
)

const (
	defaultListenAddr        = "localhost:8000"
	defaultMetricsAddr       = "localhost:9100"
	defaultLoggingLevel      = logger.LevelInfo
	defaultEnvironment       = logger.EnvProduction
	defaultMinimumPayout     = "10.00"
	defaultCurrency          = "USD"
	defaultKafkaTopic        = "washpay.withdrawals"
	defaultRedisChannel      = "washpay:withdrawals"
	defaultReconcileInterval = time.Minute
	defaultReconcileAfter    = 5 * time.Minute
	defaultRateLimit         = 30
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment (dev, prod)
	Environment string

	// Address on which the payout API is served
	ListenAddr string

	// Address of /metrics and /healthz
	MetricsAddr string

	// Database to connect to
	DatabaseDSN string

	// Key to sign and verify access tokens
	SecretKey string

	// Shared secret the settlement processor signs webhooks with
	WebhookSecret string

	// Settlement processor API
	SettlementURL    string
	SettlementAPIKey string

	// Floor used until an admin stores one. Kept as string until validated
	MinimumPayout string

	DefaultCurrency string

	// Lifecycle notifications. Publisher disabled when its address is empty
	KafkaBrokers string
	KafkaTopic   string
	RedisAddr    string
	RedisChannel string

	// Sweeper settings
	ReconcileInterval time.Duration
	ReconcileAfter    time.Duration

	// Requests per minute for a washer
	RateLimit int64
}

func NewConfig() *Config {
	return &Config{
		LogLevel:          defaultLoggingLevel,
		Environment:       defaultEnvironment,
		ListenAddr:        defaultListenAddr,
		MetricsAddr:       defaultMetricsAddr,
		MinimumPayout:     defaultMinimumPayout,
		DefaultCurrency:   defaultCurrency,
		KafkaTopic:        defaultKafkaTopic,
		RedisChannel:      defaultRedisChannel,
		ReconcileInterval: defaultReconcileInterval,
		ReconcileAfter:    defaultReconcileAfter,
		RateLimit:         defaultRateLimit,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int64) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"METRICS_ADDRESS":    setString(&c.MetricsAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"WEBHOOK_SECRET":     setString(&c.WebhookSecret),
		"SETTLEMENT_API_URL": setString(&c.SettlementURL),
		"SETTLEMENT_API_KEY": setString(&c.SettlementAPIKey),
		"MINIMUM_PAYOUT":     setString(&c.MinimumPayout),
		"DEFAULT_CURRENCY":   setString(&c.DefaultCurrency),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
		"KAFKA_BROKERS":      setString(&c.KafkaBrokers),
		"KAFKA_TOPIC":        setString(&c.KafkaTopic),
		"REDIS_ADDR":         setString(&c.RedisAddr),
		"REDIS_CHANNEL":      setString(&c.RedisChannel),
		"RECONCILE_INTERVAL": setDuration(&c.ReconcileInterval),
		"RECONCILE_AFTER":    setDuration(&c.ReconcileAfter),
		"RATE_LIMIT":         setInt(&c.RateLimit),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("payouts", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.MetricsAddr, "metrics-address", "M", c.MetricsAddr, "Metrics and health listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Access token signing key")
	fs.StringVarP(&c.WebhookSecret, "webhook-secret", "w", c.WebhookSecret, "Settlement webhook signing secret")
	fs.StringVarP(&c.SettlementURL, "settlement-url", "p", c.SettlementURL, "Settlement processor API base URL")
	fs.StringVarP(&c.SettlementAPIKey, "settlement-key", "k", c.SettlementAPIKey, "Settlement processor API key")
	fs.StringVarP(&c.MinimumPayout, "minimum-payout", "m", c.MinimumPayout, "Default minimum payout")
	fs.StringVarP(&c.DefaultCurrency, "currency", "c", c.DefaultCurrency, "Default withdrawal currency")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", c.KafkaBrokers, "Comma separated kafka brokers")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", c.KafkaTopic, "Kafka topic for withdrawal events")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address")
	fs.StringVar(&c.RedisChannel, "redis-channel", c.RedisChannel, "Redis channel for withdrawal events")
	fs.DurationVar(&c.ReconcileInterval, "reconcile-interval", c.ReconcileInterval, "How often stuck withdrawals are swept")
	fs.DurationVar(&c.ReconcileAfter, "reconcile-after", c.ReconcileAfter, "Processing time after which a withdrawal counts as stuck")
	fs.Int64Var(&c.RateLimit, "rate-limit", c.RateLimit, "Washer requests per minute")

	return fs.Parse(args)
}

// Check required options and return parsed default floor
func (c *Config) Validate() (decimal.Decimal, error) {
	var errs []error

	required := map[string]string{
		"database dsn":       c.DatabaseDSN,
		"secret key":         c.SecretKey,
		"webhook secret":     c.WebhookSecret,
		"settlement api url": c.SettlementURL,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	floor, err := decimal.NewFromString(c.MinimumPayout)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("minimum payout: %w", err))
	case floor.IsNegative():
		errs = append(errs, errors.New("minimum payout must not be negative"))
	}

	if c.ReconcileInterval <= 0 || c.ReconcileAfter <= 0 {
		errs = append(errs, errors.New("reconcile interval and delay must be positive"))
	}

	return floor, errors.Join(errs...)
}
