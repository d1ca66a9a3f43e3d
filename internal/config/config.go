// Package config provides Viper-based configuration loading for the bridge.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ArchipelagoConfig holds coordination-server connection settings.
type ArchipelagoConfig struct {
	// Host is the coordination server hostname.
	Host string `mapstructure:"host"`
	// Port is the coordination server port.
	Port int `mapstructure:"port"`
	// Slot is the slot (player) name used during the session handshake.
	Slot string `mapstructure:"slot"`
	// Password is the optional room password.
	Password string `mapstructure:"password"`
}

// Addr returns the "host:port" server address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (a ArchipelagoConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// TitsConfig holds overlay application connection settings.
type TitsConfig struct {
	// Port is the local port the overlay application's websocket API listens on.
	Port int `mapstructure:"port"`
	// Alias is the correlation token sent as requestID with every overlay
	// request. Only matters when several bridge instances share one machine.
	Alias string `mapstructure:"alias"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Archipelago ArchipelagoConfig `mapstructure:"archipelago"`
	Tits        TitsConfig        `mapstructure:"tits"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateArchipelago(c.Archipelago); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTits(c.Tits); err != nil {
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

func validateArchipelago(a ArchipelagoConfig) error {
	var errs []string
	if a.Host == "" {
		errs = append(errs, "archipelago.host must not be empty")
	}
	if a.Port < 1 || a.Port > 65535 {
		errs = append(errs, fmt.Sprintf("archipelago.port must be 1-65535, got %d", a.Port))
	}
	if a.Slot == "" {
		errs = append(errs, "archipelago.slot must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTits(t TitsConfig) error {
	var errs []string
	if t.Port < 1 || t.Port > 65535 {
		errs = append(errs, fmt.Sprintf("tits.port must be 1-65535, got %d", t.Port))
	}
	if t.Alias == "" {
		errs = append(errs, "tits.alias must not be empty")
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
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with TITSBRIDGE_ prefix
	v.SetEnvPrefix("TITSBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("archipelago.host", "archipelago.gg")
	v.SetDefault("archipelago.port", 38281)

	v.SetDefault("tits.port", 42069)
	v.SetDefault("tits.alias", "AP Tits Client")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
