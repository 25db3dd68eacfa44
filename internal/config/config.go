package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
)

type Config struct {
	Primary  Primary        `koanf:"primary"`
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Bank     BankConfig     `koanf:"bank"`
	Worker   WorkerConfig   `koanf:"worker"`
	Logger   LoggerConfig   `koanf:"logger"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

// BankConfig drives the outbound transfer client: endpoint, retry schedule,
// throttling and the reconciliation status endpoint. HonorsIdempotency states
// whether the bank deduplicates on our idempotency key; it changes how stale
// PROCESSING withdrawals are recovered, so set it to match the real contract.
type BankConfig struct {
	BaseURL           string        `koanf:"base_url" validate:"required"`
	Timeout           time.Duration `koanf:"timeout" validate:"required"`
	MaxRetries        int           `koanf:"max_retries" validate:"min=1"`
	RetryBaseDelay    time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay     time.Duration `koanf:"retry_max_delay"`
	MaxRPS            float64       `koanf:"max_rps"`
	RateLimitKey      string        `koanf:"rate_limit_key"`
	RateLimitRedisURL string        `koanf:"rate_limit_redis_url"`
	StatusURLTemplate string        `koanf:"status_url_template"`
	HonorsIdempotency bool          `koanf:"honors_idempotency"`
}

type WorkerConfig struct {
	StaleAfter        time.Duration `koanf:"stale_after" validate:"required"`
	ProcessingTimeout time.Duration `koanf:"processing_timeout" validate:"required"`
	LoopInterval      time.Duration `koanf:"loop_interval"`
	StartupJitterMax  time.Duration `koanf:"startup_jitter_max"`
	LoopJitterMax     time.Duration `koanf:"loop_jitter_max"`
	LockRetryMax      int           `koanf:"lock_retry_max" validate:"min=1"`
	LockRetryBackoff  time.Duration `koanf:"lock_retry_backoff"`
}

type LoggerConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaults are applied before environment variables so any WALLET_* value
// overrides them.
var defaults = map[string]any{
	"primary.env":               "development",
	"server.port":               "8080",
	"server.read_timeout":       "10s",
	"server.write_timeout":      "10s",
	"server.idle_timeout":       "60s",
	"bank.max_retries":          5,
	"bank.retry_base_delay":     "500ms",
	"bank.retry_max_delay":      "10s",
	"bank.rate_limit_key":       "bank-transfer",
	"worker.stale_after":        "10m",
	"worker.processing_timeout": "15m",
	"worker.loop_interval":      "5s",
	"worker.loop_jitter_max":    "1s",
	"worker.lock_retry_max":     3,
	"worker.lock_retry_backoff": "100ms",
	"logger.level":              "info",
	"logger.format":             "text",
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		logger.Error("failed to load default config", "error", err)
		return nil, err
	}

	err := k.Load(env.Provider("WALLET_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "WALLET_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}
