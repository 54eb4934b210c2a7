package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Providers ProvidersConfig `mapstructure:"providers" validate:"required"`
	Invoker   InvokerConfig   `mapstructure:"invoker" validate:"required"`
	Store     StoreConfig     `mapstructure:"store" validate:"required"`
	Fetch     FetchConfig     `mapstructure:"fetch" validate:"required"`
	Callback  CallbackConfig  `mapstructure:"callback"`
	HTTP      HTTPConfig      `mapstructure:"http" validate:"required"`
	Monitor   MonitorConfig   `mapstructure:"monitor" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// SyncTimeout bounds how long the blocking endpoint waits for a task.
	SyncTimeout     time.Duration `mapstructure:"sync_timeout" validate:"required,gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// ProvidersConfig names the upstream endpoints for each provider family.
type ProvidersConfig struct {
	ChatURL   string `mapstructure:"chat_url" validate:"required,url"`
	GeminiURL string `mapstructure:"gemini_url" validate:"required,url"`
	// SoraModel is the wire model sent for the sora family tags.
	SoraModel string `mapstructure:"sora_model" validate:"required"`
}

// InvokerConfig controls the retrying provider invoker.
type InvokerConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts" validate:"required,gte=1,lte=10"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout" validate:"required,gt=0"`
	BaseDelay        time.Duration `mapstructure:"base_delay" validate:"required,gt=0"`
	MaxDelay         time.Duration `mapstructure:"max_delay" validate:"required,gtefield=BaseDelay"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes" validate:"required,gt=0"`
}

// StoreConfig controls task retention.
type StoreConfig struct {
	TTL           time.Duration `mapstructure:"ttl" validate:"required,gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required,gt=0"`
	// MaxEntries caps the number of live records; zero means no cap.
	MaxEntries int `mapstructure:"max_entries" validate:"gte=0"`
}

// FetchConfig controls how reference images are downloaded for inline encoding.
type FetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	MaxBytes int64         `mapstructure:"max_bytes" validate:"required,gt=0"`
	// AllowPrivate disables the private-network guard. Only meant for tests and local setups.
	AllowPrivate bool `mapstructure:"allow_private"`
}

// CallbackConfig controls completion notifications.
type CallbackConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	// SigningSecret enables HS256-signed callbacks when set.
	SigningSecret string `mapstructure:"signing_secret" validate:"omitempty,min=32"`
}

// HTTPConfig sizes the shared outbound HTTP client.
type HTTPConfig struct {
	MaxIdleConns        int `mapstructure:"max_idle_conns" validate:"required,gt=0"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_conns_per_host" validate:"required,gt=0"`
	// DNSServer, when set, routes name resolution through this host:port.
	DNSServer string `mapstructure:"dns_server" validate:"omitempty,hostname_port"`
}

// MonitorConfig configures resource reporting.
type MonitorConfig struct {
	MemoryLimitMB int `mapstructure:"memory_limit_mb" validate:"required,gt=0"`
}
