package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "RELAY"

// Default endpoints of the upstream gateway.
const (
	DefaultChatURL   = "https://yunwu.zeabur.app/v1/chat/completions"
	DefaultGeminiURL = "https://yunwu.zeabur.app/v1beta/models/gemini-2.5-flash-image-preview:generateContent"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	return load(v)
}

// LoadFile is like Load but reads the given config file instead of searching for one.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Hosting platforms hand out the listen port as a bare PORT variable
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind port environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.sync_timeout", 4*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("providers.chat_url", DefaultChatURL)
	v.SetDefault("providers.gemini_url", DefaultGeminiURL)
	v.SetDefault("providers.sora_model", "sora_image")

	v.SetDefault("invoker.max_attempts", 3)
	v.SetDefault("invoker.attempt_timeout", 4*time.Minute)
	v.SetDefault("invoker.base_delay", time.Second)
	v.SetDefault("invoker.max_delay", 10*time.Second)
	v.SetDefault("invoker.max_response_bytes", 64<<20)

	v.SetDefault("store.ttl", 30*time.Minute)
	v.SetDefault("store.sweep_interval", time.Minute)
	v.SetDefault("store.max_entries", 0)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_bytes", 20<<20)
	v.SetDefault("fetch.allow_private", false)

	v.SetDefault("callback.timeout", 10*time.Second)
	v.SetDefault("callback.signing_secret", "")

	v.SetDefault("http.max_idle_conns", 200)
	v.SetDefault("http.max_idle_conns_per_host", 100)
	v.SetDefault("http.dns_server", "")

	v.SetDefault("monitor.memory_limit_mb", 512)
}
