// Package config provides configuration loading and management for compmap.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sgcx/compmap/org"
)

// Config represents the complete compmap configuration
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	NATS      NATSConfig      `yaml:"nats"`
	Events    EventsConfig    `yaml:"events"`
	Notify    NotifyConfig    `yaml:"notify"`
	Hierarchy HierarchyConfig `yaml:"hierarchy"`
}

// StorageConfig configures the record store
type StorageConfig struct {
	// Path is the sqlite database path (":memory:" keeps everything in RAM)
	Path string `yaml:"path"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
}

// EventsConfig configures domain event publication
type EventsConfig struct {
	// SubjectPrefix prefixes every event subject
	SubjectPrefix string `yaml:"subject_prefix"`
}

// NotifyConfig configures notification dispatch
type NotifyConfig struct {
	// Subject is the subject notification requests are published to
	Subject string `yaml:"subject"`
}

// HierarchyConfig configures unit hierarchy traversal
type HierarchyConfig struct {
	// DepthLimit bounds the superior-chain walk
	DepthLimit int `yaml:"depth_limit"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path: "", // resolved by the loader
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Events: EventsConfig{
			SubjectPrefix: "compmap.subprocess",
		},
		Notify: NotifyConfig{
			Subject: "compmap.notifications",
		},
		Hierarchy: HierarchyConfig{
			DepthLimit: org.MaxHierarchyDepth,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Events.SubjectPrefix == "" {
		return fmt.Errorf("events.subject_prefix is required")
	}
	if c.Notify.Subject == "" {
		return fmt.Errorf("notify.subject is required")
	}
	if c.Hierarchy.DepthLimit <= 0 {
		return fmt.Errorf("hierarchy.depth_limit must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Storage.Path != "" {
		c.Storage.Path = other.Storage.Path
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	if other.Events.SubjectPrefix != "" {
		c.Events.SubjectPrefix = other.Events.SubjectPrefix
	}

	if other.Notify.Subject != "" {
		c.Notify.Subject = other.Notify.Subject
	}

	if other.Hierarchy.DepthLimit != 0 {
		c.Hierarchy.DepthLimit = other.Hierarchy.DepthLimit
	}
}
