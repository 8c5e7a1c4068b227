// Package config loads the application configuration from JSON with
// environment overrides for secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/smaller-world/happytown.life/internal/constants"
	"github.com/smaller-world/happytown.life/internal/models"

	"github.com/joho/godotenv"
)

// Environment variables that carry secrets and deployment overrides.
const (
	EnvWebhookSecret   = "HAPPYTOWN_WEBHOOK_SECRET"
	EnvWASenderAPIKey  = "WASENDER_API_KEY"
	EnvAgentAPIKey     = "OPENROUTER_API_KEY"
	EnvDatabasePath    = "HAPPYTOWN_DB_PATH"
	EnvServerPort      = "HAPPYTOWN_PORT"
	EnvDeliveryEnabled = "HAPPYTOWN_DELIVERY_ENABLED"
)

// Load reads the configuration file, applies defaults and environment
// overrides, and validates the result. A .env file next to the process is
// honored when present.
func Load(path string) (*models.Config, error) {
	// missing .env is fine
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg models.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = constants.DefaultServerPort
	}
	if cfg.Database.MaxEventLogLength == 0 {
		cfg.Database.MaxEventLogLength = constants.DefaultMaxEventLogLength
	}
	if cfg.WASender.TimeoutSec == 0 {
		cfg.WASender.TimeoutSec = constants.DefaultGatewayTimeoutSec
	}
	if cfg.WASender.ProtectionIntervalSec == 0 {
		cfg.WASender.ProtectionIntervalSec = constants.DefaultProtectionIntervalSec
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = constants.DefaultAgentModel
	}
	if cfg.Agent.MaxToolRounds == 0 {
		cfg.Agent.MaxToolRounds = constants.DefaultMaxToolRounds
	}
	if cfg.Retry.InitialBackoffMs == 0 {
		cfg.Retry.InitialBackoffMs = constants.DefaultInitialBackoffMs
	}
	if cfg.Retry.MaxBackoffMs == 0 {
		cfg.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = constants.DefaultRetryMaxAttempts
	}
	if cfg.Dispatcher.Workers == 0 {
		cfg.Dispatcher.Workers = constants.DefaultDispatcherWorkers
	}
	if cfg.Dispatcher.QueueSize == 0 {
		cfg.Dispatcher.QueueSize = constants.DefaultDispatcherQueueSize
	}
	if cfg.Reconcile.IntervalHours == 0 {
		cfg.Reconcile.IntervalHours = constants.DefaultReconcileIntervalHours
	}
	if cfg.Reconcile.StaleAfterHours == 0 {
		cfg.Reconcile.StaleAfterHours = int(constants.SyncStaleAfter.Hours())
	}
}

func applyEnvOverrides(cfg *models.Config) {
	if v := os.Getenv(EnvWebhookSecret); v != "" {
		cfg.Server.WebhookSecret = v
	}
	if v := os.Getenv(EnvWASenderAPIKey); v != "" {
		cfg.WASender.APIKey = v
	}
	if v := os.Getenv(EnvAgentAPIKey); v != "" {
		cfg.Agent.APIKey = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv(EnvDeliveryEnabled); v != "" {
		cfg.WASender.DeliveryEnabled = v == "true" || v == "1"
	}
}

func validate(cfg *models.Config) error {
	if cfg.Database.Path == "" {
		return models.ConfigError{Message: "database path is required"}
	}
	if cfg.WASender.APIBaseURL == "" {
		return models.ConfigError{Message: "wasender api_base_url is required"}
	}
	if cfg.WASender.APIKey == "" {
		return models.ConfigError{Message: EnvWASenderAPIKey + " is required"}
	}
	if cfg.WASender.SelfLID == "" {
		return models.ConfigError{Message: "wasender self_lid is required"}
	}
	if cfg.Server.WebhookSecret == "" {
		return models.ConfigError{Message: EnvWebhookSecret + " is required"}
	}
	if cfg.Agent.APIKey == "" {
		return models.ConfigError{Message: EnvAgentAPIKey + " is required"}
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port %d", cfg.Server.Port)}
	}
	return nil
}
