package config

import (
	"os"
	"path/filepath"
	"testing"
)

// chdir switches the working directory for the duration of the test,
// restoring the original directory on cleanup. (testing.T.Chdir needs a
// newer Go toolchain than this build uses.)
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir to %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(orig); err != nil {
			t.Errorf("failed to restore working directory: %v", err)
		}
	})
}

// setTestHome points the loader's user config at a fresh directory and
// returns the path that directory's config file would have.
func setTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return filepath.Join(home, ".config", "compmap")
}

func TestLoaderLayerPrecedence(t *testing.T) {
	userDir := setTestHome(t)
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatalf("failed to create user config dir: %v", err)
	}
	userConfig := "events:\n  subject_prefix: \"user.subprocess\"\nnotify:\n  subject: \"user.notifications\"\n"
	if err := os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte(userConfig), 0644); err != nil {
		t.Fatalf("failed to write user config: %v", err)
	}

	project := t.TempDir()
	projectConfig := "notify:\n  subject: \"project.notifications\"\n"
	if err := os.WriteFile(filepath.Join(project, ProjectConfigFile), []byte(projectConfig), 0644); err != nil {
		t.Fatalf("failed to write project config: %v", err)
	}
	chdir(t, project)

	cfg, err := NewLoader(nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// The user layer applies where the project layer is silent.
	if cfg.Events.SubjectPrefix != "user.subprocess" {
		t.Errorf("expected event prefix user.subprocess, got %s", cfg.Events.SubjectPrefix)
	}
	// The project layer wins where both set a value.
	if cfg.Notify.Subject != "project.notifications" {
		t.Errorf("expected notify subject project.notifications, got %s", cfg.Notify.Subject)
	}
	// No layer set a storage path, so the database lands next to the user
	// config.
	if cfg.Storage.Path != filepath.Join(userDir, DefaultDatabaseFile) {
		t.Errorf("unexpected storage path %s", cfg.Storage.Path)
	}
}

func TestLoaderFindsProjectConfigInParent(t *testing.T) {
	setTestHome(t)

	project := t.TempDir()
	content := "storage:\n  path: \"/from-parent/compmap.db\"\n"
	if err := os.WriteFile(filepath.Join(project, ProjectConfigFile), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write project config: %v", err)
	}
	child := filepath.Join(project, "sub", "dir")
	if err := os.MkdirAll(child, 0755); err != nil {
		t.Fatalf("failed to create child dir: %v", err)
	}
	chdir(t, child)

	cfg, err := NewLoader(nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Path != "/from-parent/compmap.db" {
		t.Errorf("expected storage path /from-parent/compmap.db, got %s", cfg.Storage.Path)
	}
}

func TestEnsureUserConfig(t *testing.T) {
	userDir := setTestHome(t)
	chdir(t, t.TempDir())

	loader := NewLoader(nil)
	if err := loader.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	path := filepath.Join(userDir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("user config not created: %v", err)
	}

	// Idempotent: a second call leaves the existing file alone.
	if err := os.WriteFile(path, []byte("notify:\n  subject: \"kept\"\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite user config: %v", err)
	}
	if err := loader.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() second call error = %v", err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load user config: %v", err)
	}
	if cfg.Notify.Subject != "kept" {
		t.Errorf("expected existing config to be kept, got subject %s", cfg.Notify.Subject)
	}
}
