package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("No path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg != NewDefault() {
			t.Errorf("expected defaults, got %+v", cfg)
		}
	})

	t.Run("Missing explicit path is an error", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Fatal("expected an error for a missing config file, got nil")
		}
	})

	t.Run("Partial file keeps defaults for omitted fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "replica.config.json")
		if err := os.WriteFile(path, []byte(`{"maxRetries": 9, "verbose": true}`), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxRetries != 9 {
			t.Errorf("expected maxRetries 9, got %d", cfg.MaxRetries)
		}
		if !cfg.Verbose {
			t.Error("expected verbose to be set")
		}
		if cfg.BufferSizeKB != NewDefault().BufferSizeKB {
			t.Errorf("expected default buffer size, got %d", cfg.BufferSizeKB)
		}
	})

	t.Run("Malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.json")
		if err := os.WriteFile(path, []byte(`{"maxRetries": `), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Fatal("expected a parse error, got nil")
		}
	})
}

func TestMergeWithFlags(t *testing.T) {
	base := NewDefault()
	base.MaxRetries = 7

	merged := MergeWithFlags(base, map[string]any{
		"source":  "/data/src",
		"replica": "/data/dst",
		"verbose": true,
	})

	if merged.Source != "/data/src" || merged.Replica != "/data/dst" {
		t.Errorf("expected flag paths to be applied, got %+v", merged)
	}
	if !merged.Verbose {
		t.Error("expected verbose flag to be applied")
	}
	if merged.MaxRetries != 7 {
		t.Errorf("unset flags must not touch base values, got retries %d", merged.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := NewDefault()
		cfg.Source = "src"
		cfg.Replica = "dst"
		return cfg
	}

	t.Run("Valid config normalizes paths", func(t *testing.T) {
		cfg := valid()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !filepath.IsAbs(cfg.Source) || !filepath.IsAbs(cfg.Replica) {
			t.Errorf("expected absolute paths after validation, got %q and %q", cfg.Source, cfg.Replica)
		}
	})

	t.Run("Tilde paths expand to the home directory", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("home directory lookup is driven by HOME on unix only")
		}
		home := t.TempDir()
		t.Setenv("HOME", home)

		cfg := valid()
		cfg.Source = "~/src"
		cfg.Replica = "~/dst"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Source != filepath.Join(home, "src") {
			t.Errorf("expected source under home directory, got %q", cfg.Source)
		}
		if cfg.Replica != filepath.Join(home, "dst") {
			t.Errorf("expected replica under home directory, got %q", cfg.Replica)
		}
	})

	t.Run("Missing source", func(t *testing.T) {
		cfg := valid()
		cfg.Source = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})

	t.Run("Missing replica", func(t *testing.T) {
		cfg := valid()
		cfg.Replica = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})

	t.Run("Non-positive retries", func(t *testing.T) {
		cfg := valid()
		cfg.MaxRetries = 0
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})

	t.Run("Non-positive buffer size", func(t *testing.T) {
		cfg := valid()
		cfg.BufferSizeKB = -1
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})
}
