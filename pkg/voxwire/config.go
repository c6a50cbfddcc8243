package voxwire

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/voxwire/voxwire/pkg/configutil"
	"github.com/voxwire/voxwire/pkg/provision"
)

// Config is the explicit configuration of a session. Base URLs are always
// threaded through here, never read from ambient process state, so the core
// stays testable without environment mutation.
type Config struct {
	APIBaseURL         string         `mapstructure:"api_base_url"`
	WSBaseURL          string         `mapstructure:"ws_base_url"`
	LogLevel           string         `mapstructure:"log_level"`
	LogFormat          string         `mapstructure:"log_format"`
	HandshakeTimeoutMS int            `mapstructure:"handshake_timeout_ms"`
	RequestTimeoutMS   int            `mapstructure:"request_timeout_ms"`
	CallDefaults       map[string]any `mapstructure:"call_defaults"`
}

// LoadConfig reads a config file with VOXWIRE_-prefixed env overrides.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("handshake_timeout_ms", 10000)
	v.SetDefault("request_timeout_ms", 15000)
	v.SetEnvPrefix("VOXWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := configutil.RequireString(c.APIBaseURL, "api_base_url"); err != nil {
		return err
	}
	return configutil.RequireString(c.WSBaseURL, "ws_base_url")
}

// CallOptions decodes the free-form call_defaults map into typed options.
func (c Config) CallOptions() (provision.Options, error) {
	var opts provision.Options
	if err := configutil.DecodeSettings(c.CallDefaults, &opts); err != nil {
		return provision.Options{}, fmt.Errorf("decode call_defaults: %w", err)
	}
	return opts, nil
}

func (c Config) handshakeTimeout() time.Duration {
	if c.HandshakeTimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HandshakeTimeoutMS) * time.Millisecond
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeoutMS <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}
