package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Pipeline.DedupWindow = Duration{45 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Pipeline.DedupWindow.Duration != 45*time.Second {
		t.Errorf("DedupWindow = %v, want 45s", loaded.Pipeline.DedupWindow.Duration)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg := LoadOrDefault("/nonexistent/config.toml")
	if cfg.Pipeline.DedupWindow.Duration != 30*time.Second {
		t.Errorf("DedupWindow = %v, want default 30s", cfg.Pipeline.DedupWindow.Duration)
	}
	if cfg.Pipeline.HistoryMaxAge.Duration != 5*time.Minute {
		t.Errorf("HistoryMaxAge = %v, want default 5m", cfg.Pipeline.HistoryMaxAge.Duration)
	}
	if cfg.Pipeline.SubscriberGrace.Duration != 5*time.Second {
		t.Errorf("SubscriberGrace = %v, want default 5s", cfg.Pipeline.SubscriberGrace.Duration)
	}
}

func TestPartialConfigGetsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(path, []byte("default_session = \"x\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Listen == "" {
		t.Error("listen default not applied")
	}
	if cfg.Pipeline.DedupWindow.Duration != 30*time.Second {
		t.Errorf("DedupWindow = %v, want default", cfg.Pipeline.DedupWindow.Duration)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
