package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Events.SubjectPrefix != "compmap.subprocess" {
		t.Errorf("expected default event prefix compmap.subprocess, got %s", cfg.Events.SubjectPrefix)
	}
	if cfg.Notify.Subject != "compmap.notifications" {
		t.Errorf("expected default notify subject compmap.notifications, got %s", cfg.Notify.Subject)
	}
	if cfg.Hierarchy.DepthLimit <= 0 {
		t.Errorf("expected positive default depth limit, got %d", cfg.Hierarchy.DepthLimit)
	}
	if !cfg.NATS.Embedded {
		t.Error("expected embedded NATS by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) { c.Storage.Path = "/tmp/compmap.db" },
			wantErr: false,
		},
		{
			name:    "missing storage path",
			modify:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "missing event prefix",
			modify: func(c *Config) {
				c.Storage.Path = "/tmp/compmap.db"
				c.Events.SubjectPrefix = ""
			},
			wantErr: true,
		},
		{
			name: "missing notify subject",
			modify: func(c *Config) {
				c.Storage.Path = "/tmp/compmap.db"
				c.Notify.Subject = ""
			},
			wantErr: true,
		},
		{
			name: "non-positive depth limit",
			modify: func(c *Config) {
				c.Storage.Path = "/tmp/compmap.db"
				c.Hierarchy.DepthLimit = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
storage:
  path: "/test/compmap.db"
nats:
  url: "nats://test:4222"
events:
  subject_prefix: "test.subprocess"
notify:
  subject: "test.notifications"
hierarchy:
  depth_limit: 8
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Storage.Path != "/test/compmap.db" {
		t.Errorf("expected storage path /test/compmap.db, got %s", cfg.Storage.Path)
	}
	if cfg.NATS.URL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.NATS.URL)
	}
	if cfg.Events.SubjectPrefix != "test.subprocess" {
		t.Errorf("expected event prefix test.subprocess, got %s", cfg.Events.SubjectPrefix)
	}
	if cfg.Notify.Subject != "test.notifications" {
		t.Errorf("expected notify subject test.notifications, got %s", cfg.Notify.Subject)
	}
	if cfg.Hierarchy.DepthLimit != 8 {
		t.Errorf("expected depth limit 8, got %d", cfg.Hierarchy.DepthLimit)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Storage: StorageConfig{Path: "/override/compmap.db"},
		NATS:    NATSConfig{URL: "nats://override:4222"},
	}

	base.Merge(override)

	if base.Storage.Path != "/override/compmap.db" {
		t.Errorf("expected storage path /override/compmap.db, got %s", base.Storage.Path)
	}
	if base.NATS.URL != "nats://override:4222" {
		t.Errorf("expected NATS URL nats://override:4222, got %s", base.NATS.URL)
	}
	// Setting an external URL disables the embedded broker.
	if base.NATS.Embedded {
		t.Error("expected embedded NATS to be disabled by URL override")
	}
	// Subjects remain from base since override didn't set them.
	if base.Events.SubjectPrefix != "compmap.subprocess" {
		t.Errorf("expected event prefix to remain default, got %s", base.Events.SubjectPrefix)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Storage.Path = "/saved/compmap.db"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Storage.Path != "/saved/compmap.db" {
		t.Errorf("expected storage path /saved/compmap.db, got %s", loaded.Storage.Path)
	}
}
