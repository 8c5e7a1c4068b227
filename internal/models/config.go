package models

// Config is the root application configuration, loaded from JSON with
// environment overrides for secrets.
type Config struct {
	LogLevel      string          `json:"log_level"`
	Server        ServerConfig    `json:"server"`
	Database      DatabaseConfig  `json:"database"`
	WASender      WASenderConfig  `json:"wasender"`
	Agent         AgentConfig     `json:"agent"`
	Retry         RetryConfig     `json:"retry"`
	Dispatcher    DispatchConfig  `json:"dispatcher"`
	Reconcile     ReconcileConfig `json:"reconcile"`
	Tracing       TracingConfig   `json:"tracing"`
	PublicBaseURL string          `json:"public_base_url"`
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	Port          int    `json:"port"`
	WebhookSecret string `json:"-"` // env only, never serialized
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path              string `json:"path"`
	MaxEventLogLength int    `json:"max_event_log_length"`
}

// WASenderConfig configures the outbound gateway client.
type WASenderConfig struct {
	APIBaseURL            string `json:"api_base_url"`
	APIKey                string `json:"-"` // env only
	SelfLID               string `json:"self_lid"`
	SelfPhoneJID          string `json:"self_phone_jid"`
	TimeoutSec            int    `json:"timeout_sec"`
	ProtectionIntervalSec int    `json:"protection_interval_sec"`
	DeliveryEnabled       bool   `json:"delivery_enabled"`
}

// AgentConfig configures the tool-calling agent.
type AgentConfig struct {
	BaseURL       string `json:"base_url"`
	APIKey        string `json:"-"` // env only
	Model         string `json:"model"`
	AgentName     string `json:"agent_name"`
	MaxToolRounds int    `json:"max_tool_rounds"`
}

// RetryConfig configures the dispatcher's backoff policy.
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts"`
}

// DispatchConfig configures the background job dispatcher.
type DispatchConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queue_size"`
}

// ReconcileConfig configures the periodic reconciliation sweeps.
type ReconcileConfig struct {
	IntervalHours   int `json:"interval_hours"`
	StaleAfterHours int `json:"stale_after_hours"`
}

// TracingConfig contains OpenTelemetry configuration.
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

// ConfigError reports an invalid or incomplete configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
