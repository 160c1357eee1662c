package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"ipmon/internal/logger"
	"ipmon/internal/validator"
)

// AppName is the application name used for config search paths
const AppName = "ipmon"

// Config represents the full monitor configuration
type Config struct {
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Registrar RegistrarConfig `mapstructure:"registrar"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Log       logger.Config   `mapstructure:"log"`
}

// MonitorConfig represents monitor loop configuration
type MonitorConfig struct {
	InstanceID string        `mapstructure:"instance_id"`
	Interval   time.Duration `mapstructure:"interval"`
	StateFile  string        `mapstructure:"state_file"`
}

// ResolverConfig represents public IP resolution configuration
type ResolverConfig struct {
	TestMode bool           `mapstructure:"test_mode"`
	TestIP   string         `mapstructure:"test_ip" validate:"omitempty,ipv4_strict"`
	Sources  []SourceConfig `mapstructure:"sources" validate:"dive"`
}

// SourceConfig describes one external IP echo source
type SourceConfig struct {
	Name    string        `mapstructure:"name"`
	URL     string        `mapstructure:"url" validate:"required,url"`
	JSONKey string        `mapstructure:"json_key"` // empty means plaintext body
	Timeout time.Duration `mapstructure:"timeout"`
}

// RegistrarConfig represents DNS registrar configuration
type RegistrarConfig struct {
	APIKey     string        `mapstructure:"api_key" validate:"required"`
	Domain     string        `mapstructure:"domain" validate:"required"`
	BaseURL    string        `mapstructure:"base_url"`
	RecordName string        `mapstructure:"record_name" validate:"record_name"`
	TTL        int           `mapstructure:"ttl" validate:"min=0"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Dokploy    DokployConfig `mapstructure:"dokploy"`
}

// DokployConfig represents the optional secondary maintained record
type DokployConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	RecordName string `mapstructure:"record_name" validate:"record_name"`
}

// NotifyConfig represents Discord notification configuration
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url" validate:"omitempty,url"`
	Username   string        `mapstructure:"username"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// envBindings maps config keys to the environment variables the
// original deployment uses. Environment values win over the file.
var envBindings = map[string]string{
	"notify.webhook_url":            "DISCORD_WEBHOOK_URL",
	"monitor.interval":              "CHECK_INTERVAL",
	"monitor.state_file":            "IP_STATE_FILE",
	"registrar.api_key":             "HOSTINGER_API_KEY",
	"registrar.domain":              "HOSTINGER_DOMAIN",
	"registrar.record_name":         "HOSTINGER_RECORD_NAME",
	"registrar.dokploy.enabled":     "DOKPLOY",
	"registrar.dokploy.record_name": "DOKPLOY_RECORD_NAME",
	"resolver.test_mode":            "TEST_MODE",
	"resolver.test_ip":              "TEST_IP",
}

// Load loads the monitor configuration from an optional file plus the
// environment
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/" + AppName)
		if err := v.ReadInConfig(); err != nil {
			// The file is optional when no explicit path was given
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	normalizeInterval(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set defaults if not specified
	setDefaults(&config)

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// normalizeInterval rewrites a bare integer interval as seconds so the
// CHECK_INTERVAL contract ("seconds, default 300") survives the duration
// decode hook.
func normalizeInterval(v *viper.Viper) {
	s := v.GetString("monitor.interval")
	if s == "" {
		return
	}
	if secs, err := strconv.Atoi(s); err == nil {
		v.Set("monitor.interval", (time.Duration(secs) * time.Second).String())
	}
}

// setDefaults sets default values if not specified
func setDefaults(config *Config) {
	if config.Monitor.InstanceID == "" {
		config.Monitor.InstanceID = uuid.New().String()
	}

	if config.Monitor.Interval == 0 {
		config.Monitor.Interval = 300 * time.Second
	}

	if config.Monitor.StateFile == "" {
		config.Monitor.StateFile = "/data/last_ip.json"
	}

	if len(config.Resolver.Sources) == 0 {
		config.Resolver.Sources = DefaultSources()
	}
	for i := range config.Resolver.Sources {
		if config.Resolver.Sources[i].Timeout == 0 {
			config.Resolver.Sources[i].Timeout = 10 * time.Second
		}
	}

	if config.Registrar.BaseURL == "" {
		config.Registrar.BaseURL = "https://developers.hostinger.com/api/dns/v1"
	}

	if config.Registrar.RecordName == "" {
		config.Registrar.RecordName = "@"
	}

	if config.Registrar.TTL == 0 {
		config.Registrar.TTL = 300
	}

	if config.Registrar.Timeout == 0 {
		config.Registrar.Timeout = 30 * time.Second
	}

	if config.Registrar.Dokploy.RecordName == "" {
		config.Registrar.Dokploy.RecordName = "dokploy"
	}

	if config.Notify.Username == "" {
		config.Notify.Username = "IP Monitor"
	}

	if config.Notify.Timeout == 0 {
		config.Notify.Timeout = 10 * time.Second
	}
}

// DefaultSources returns the built-in IP echo sources in failover order
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Name:    "ipify",
			URL:     "https://api.ipify.org?format=json",
			JSONKey: "ip",
			Timeout: 10 * time.Second,
		},
		{
			Name:    "amazonaws",
			URL:     "http://checkip.amazonaws.com/",
			Timeout: 10 * time.Second,
		},
		{
			Name:    "whatismyip",
			URL:     "https://whatismyip.akamai.com/",
			Timeout: 10 * time.Second,
		},
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}

	if config.Resolver.TestMode && config.Resolver.TestIP == "" {
		return fmt.Errorf("resolver.test_ip is required when test_mode is enabled")
	}

	if config.Monitor.Interval < time.Second {
		return fmt.Errorf("monitor.interval must be at least one second")
	}

	return nil
}
