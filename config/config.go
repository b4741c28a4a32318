// Package config loads the turnstyled configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quintans/go-turnstyle/trigger"
)

var ErrInvalid = errors.New("invalid configuration")

const defaultShutdownTimeout = 30 * time.Second

// Config is the daemon configuration.
//
//	listen:
//	  - 127.0.0.1:8080
//	metrics: 127.0.0.1:9090
//	shutdownTimeout: 10s
//	admission:
//	  every: 100ms
type Config struct {
	Listen          []string      `yaml:"listen"`
	Metrics         string        `yaml:"metrics"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	Admission       Admission     `yaml:"admission"`
}

// Admission paces the requests let through. Exactly one of Every and Cron
// may be set; when neither is, requests are not gated.
type Admission struct {
	Every time.Duration `yaml:"every"`
	Cron  string        `yaml:"cron"`
}

// Enabled reports whether requests go through the admission gate.
func (a Admission) Enabled() bool {
	return a.Every > 0 || a.Cron != ""
}

// Trigger returns the trigger pacing the admissions.
func (a Admission) Trigger() (trigger.Trigger, error) {
	switch {
	case a.Every > 0:
		return trigger.NewSimpleTrigger(a.Every), nil
	case a.Cron != "":
		return trigger.NewCronTrigger(a.Cron)
	default:
		return nil, fmt.Errorf("admission is not paced: %w", ErrInvalid)
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config '%s': %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config '%s': %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML configuration. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		ShutdownTimeout: defaultShutdownTimeout,
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Listen) == 0 {
		return fmt.Errorf("at least one listen address is required: %w", ErrInvalid)
	}
	for _, addr := range c.Listen {
		if addr == "" {
			return fmt.Errorf("empty listen address: %w", ErrInvalid)
		}
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdownTimeout must be positive: %w", ErrInvalid)
	}
	if c.Admission.Every < 0 {
		return fmt.Errorf("admission.every must not be negative: %w", ErrInvalid)
	}
	if c.Admission.Every > 0 && c.Admission.Cron != "" {
		return fmt.Errorf("admission.every and admission.cron are exclusive: %w", ErrInvalid)
	}
	if c.Admission.Cron != "" {
		if _, err := c.Admission.Trigger(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return nil
}
