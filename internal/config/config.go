// Package config provides Viper-based configuration loading for the radar relay.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// PublisherConfig holds settings for the raw TCP acceptor that publishers connect to.
type PublisherConfig struct {
	// Host is the bind address for the publisher listener.
	Host string `mapstructure:"host" yaml:"host"`
	// Port is the TCP port for the publisher listener.
	Port int `mapstructure:"port" yaml:"port"`
	// ReadTimeout is the per-frame read timeout. Zero disables it.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	// WriteTimeout is the per-frame write timeout. Zero disables it.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// MaxFrameSize is the largest accepted frame payload in bytes.
	MaxFrameSize int `mapstructure:"max_frame_size" yaml:"max_frame_size"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (p PublisherConfig) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// SubscriberConfig holds settings for the HTTP/WebSocket endpoint viewers connect to.
type SubscriberConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host" yaml:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port" yaml:"port"`
	// Path is the URL path that upgrades to a WebSocket.
	Path string `mapstructure:"path" yaml:"path"`
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// PongTimeout is how long to wait for a pong before the peer is considered gone.
	// Zero disables the ping/pong keepalive.
	PongTimeout time.Duration `mapstructure:"pong_timeout" yaml:"pong_timeout"`
	// MaxMessageSize is the read limit for a single inbound frame.
	MaxMessageSize int64 `mapstructure:"max_message_size" yaml:"max_message_size"`
	// AllowedOrigins restricts the Origin header on upgrade. Empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s SubscriberConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RelayConfig holds Session Registry queue sizing.
type RelayConfig struct {
	// OutboundQueue is the capacity of each client's server→client queue.
	OutboundQueue int `mapstructure:"outbound_queue" yaml:"outbound_queue"`
	// InboundQueue is the capacity of each client's decoded event channel.
	InboundQueue int `mapstructure:"inbound_queue" yaml:"inbound_queue"`
}

// AdminConfig holds the gRPC health endpoint settings.
type AdminConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	GRPCPort int    `mapstructure:"grpc_port" yaml:"grpc_port"`
}

// Addr returns the "host:port" gRPC address.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.GRPCPort)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level" yaml:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Publisher  PublisherConfig  `mapstructure:"publisher" yaml:"publisher"`
	Subscriber SubscriberConfig `mapstructure:"subscriber" yaml:"subscriber"`
	Relay      RelayConfig      `mapstructure:"relay" yaml:"relay"`
	Admin      AdminConfig      `mapstructure:"admin" yaml:"admin"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validatePublisher(c.Publisher); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSubscriber(c.Subscriber); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateRelay(c.Relay); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAdmin(c.Admin); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func validatePublisher(p PublisherConfig) error {
	var errs []string
	if !validPort(p.Port) {
		errs = append(errs, fmt.Sprintf("publisher.port must be 1-65535, got %d", p.Port))
	}
	if p.ReadTimeout < 0 {
		errs = append(errs, "publisher.read_timeout must not be negative")
	}
	if p.WriteTimeout < 0 {
		errs = append(errs, "publisher.write_timeout must not be negative")
	}
	if p.MaxFrameSize < 1 {
		errs = append(errs, fmt.Sprintf("publisher.max_frame_size must be >= 1, got %d", p.MaxFrameSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSubscriber(s SubscriberConfig) error {
	var errs []string
	if !validPort(s.Port) {
		errs = append(errs, fmt.Sprintf("subscriber.port must be 1-65535, got %d", s.Port))
	}
	if !strings.HasPrefix(s.Path, "/") {
		errs = append(errs, fmt.Sprintf("subscriber.path must start with '/', got %q", s.Path))
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "subscriber.write_timeout must not be negative")
	}
	if s.PongTimeout < 0 {
		errs = append(errs, "subscriber.pong_timeout must not be negative")
	}
	if s.MaxMessageSize < 1 {
		errs = append(errs, fmt.Sprintf("subscriber.max_message_size must be >= 1, got %d", s.MaxMessageSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRelay(r RelayConfig) error {
	var errs []string
	if r.OutboundQueue < 1 {
		errs = append(errs, fmt.Sprintf("relay.outbound_queue must be >= 1, got %d", r.OutboundQueue))
	}
	if r.InboundQueue < 1 {
		errs = append(errs, fmt.Sprintf("relay.inbound_queue must be >= 1, got %d", r.InboundQueue))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAdmin(a AdminConfig) error {
	if !a.Enabled {
		return nil
	}
	var errs []string
	if a.Host == "" {
		errs = append(errs, "admin.host must not be empty")
	}
	if !validPort(a.GRPCPort) {
		errs = append(errs, fmt.Sprintf("admin.grpc_port must be 1-65535, got %d", a.GRPCPort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path loads defaults and environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with RADAR_ prefix
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	if v == nil {
		return Config{}, errors.New("viper instance must not be nil")
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Dump writes cfg to w as YAML.
//
// Postcondition: w receives a YAML document that Load accepts.
func Dump(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("publisher.host", "0.0.0.0")
	v.SetDefault("publisher.port", 7229)
	v.SetDefault("publisher.read_timeout", "0s")
	v.SetDefault("publisher.write_timeout", "10s")
	v.SetDefault("publisher.max_frame_size", 1<<20)

	v.SetDefault("subscriber.host", "0.0.0.0")
	v.SetDefault("subscriber.port", 7230)
	v.SetDefault("subscriber.path", "/subscribe")
	v.SetDefault("subscriber.write_timeout", "10s")
	v.SetDefault("subscriber.pong_timeout", "60s")
	v.SetDefault("subscriber.max_message_size", 64<<10)
	v.SetDefault("subscriber.allowed_origins", []string{})

	v.SetDefault("relay.outbound_queue", 16)
	v.SetDefault("relay.inbound_queue", 16)

	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.grpc_port", 7231)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
