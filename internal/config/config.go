// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

package config

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	resonaerr "github.com/resona-dev/resona/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level Resona configuration.
type Config struct {
	Networking NetworkingConfig `mapstructure:"networking" yaml:"networking"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Extractor  ExtractorConfig  `mapstructure:"extractor" yaml:"extractor"`
	Scoring    ScoringConfig    `mapstructure:"scoring" yaml:"scoring"`
}

// NetworkingConfig controls how Resona listens for connections.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen" yaml:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// StorageConfig selects the storage backend and its location.
type StorageConfig struct {
	Backend          string `mapstructure:"backend" yaml:"backend"`
	Path             string `mapstructure:"path" yaml:"path"`
	VectorDimensions int    `mapstructure:"vector_dimensions" yaml:"vector_dimensions"`
}

// ExtractorConfig points at the audio feature extraction sidecar.
type ExtractorConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ScoringConfig tunes the feedback-blended ranking.
type ScoringConfig struct {
	Sensitivity float64 `mapstructure:"sensitivity" yaml:"sensitivity"`
	Overfetch   int     `mapstructure:"overfetch" yaml:"overfetch"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix RESONA_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("networking.listen", "127.0.0.1:8780")
	v.SetDefault("networking.cors_origins", []string{})
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.vector_dimensions", 27)
	v.SetDefault("extractor.endpoint", "http://127.0.0.1:8100")
	v.SetDefault("extractor.timeout", 120*time.Second)
	v.SetDefault("scoring.sensitivity", 0.1)
	v.SetDefault("scoring.overfetch", 5)

	// Environment
	v.SetEnvPrefix("RESONA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, resonaerr.Errorf(resonaerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns a slice
// of all validation errors found, collecting all issues rather than stopping
// at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateExtractor()...)
	errs = append(errs, c.validateScoring()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, resonaerr.New(resonaerr.CodeConfigValidateInvalidValue, "config: networking.listen must not be empty"))
	} else {
		host, portStr, err := net.SplitHostPort(c.Networking.Listen)
		if err != nil {
			errs = append(errs, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue,
				"config: networking.listen must be a valid host:port address, got %q: %w",
				c.Networking.Listen, err,
			))
		} else {
			_ = host // host can be empty (e.g., ":8080"), which is valid
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue,
					"config: networking.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue,
					"config: networking.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q",
			c.Storage.Backend,
		))
	}

	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		errs = append(errs, resonaerr.New(resonaerr.CodeConfigValidateInvalidValue,
			"config: storage.path must not be empty for the sqlite backend"))
	}

	if c.Storage.VectorDimensions <= 0 {
		errs = append(errs, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue,
			"config: storage.vector_dimensions must be greater than 0, got %d",
			c.Storage.VectorDimensions,
		))
	}

	return errs
}

func (c *Config) validateExtractor() []error {
	var errs []error

	if c.Extractor.Endpoint == "" {
		errs = append(errs, resonaerr.New(resonaerr.CodeConfigValidateInvalidValue, "config: extractor.endpoint must not be empty"))
	} else {
		u, err := url.Parse(c.Extractor.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue,
				"config: extractor.endpoint must be an absolute URL, got %q",
				c.Extractor.Endpoint,
			))
		}
	}

	if c.Extractor.Timeout <= 0 {
		errs = append(errs, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue,
			"config: extractor.timeout must be greater than 0, got %s",
			c.Extractor.Timeout,
		))
	}

	return errs
}

func (c *Config) validateScoring() []error {
	var errs []error

	if c.Scoring.Sensitivity <= 0 {
		errs = append(errs, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue,
			"config: scoring.sensitivity must be greater than 0, got %g",
			c.Scoring.Sensitivity,
		))
	}

	if c.Scoring.Overfetch < 0 {
		errs = append(errs, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue,
			"config: scoring.overfetch must not be negative, got %d",
			c.Scoring.Overfetch,
		))
	}

	return errs
}
