package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/GESkunkworks/snapkeeper/retention"
)

type Config struct {
	Marker        MarkerConfig       `yaml:"marker"`
	RetentionDays int                `yaml:"retentionDays"`
	Schedule      string             `yaml:"schedule"` // optional cron expression, empty = run once
	Notification  NotificationConfig `yaml:"notification"`
	AWS           AWSConfig          `yaml:"aws"`
	DryRun        bool               `yaml:"dryRun"`
	Logging       LoggingConfig      `yaml:"logging"`
}

type MarkerConfig struct {
	Key        string   `yaml:"key"`
	Values     []string `yaml:"values"`
	IgnoreCase bool     `yaml:"ignoreCase"`
}

type NotificationConfig struct {
	SNSTopic string `yaml:"snsTopic"` // topic ARN, empty disables notification
}

type AWSConfig struct {
	Region string `yaml:"region"` // empty defers to the SDK's usual chain
}

type LoggingConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}

// Default returns the embedded defaults used when no config file is
// present: snapshot volumes tagged Snapshot=Yes, keep snapshots 7 days,
// no notification.
func Default() *Config {
	return &Config{
		Marker: MarkerConfig{
			Key:    "Snapshot",
			Values: []string{"Yes"},
		},
		RetentionDays: 7,
		Logging:       LoggingConfig{Level: "info"},
	}
}

// Validate checks the config before any AWS call is made. A retention of
// zero or fewer days is rejected here rather than treated as "delete
// everything now".
func (c *Config) Validate() error {
	if c.Marker.Key == "" {
		return fmt.Errorf("marker.key must not be empty")
	}
	if len(c.Marker.Values) == 0 {
		return fmt.Errorf("marker.values must list at least one accepted value")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retentionDays must be greater than zero, got %d", c.RetentionDays)
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}
	return nil
}

// RetentionPolicy converts the configured whole-day retention into the
// evaluator's policy.
func (c *Config) RetentionPolicy() retention.Policy {
	return retention.Policy{MaxAge: time.Duration(c.RetentionDays) * 24 * time.Hour}
}

// RetentionMarker converts the marker section into the evaluator's
// predicate.
func (c *Config) RetentionMarker() retention.Marker {
	return retention.Marker{
		Key:        c.Marker.Key,
		Values:     c.Marker.Values,
		IgnoreCase: c.Marker.IgnoreCase,
	}
}
