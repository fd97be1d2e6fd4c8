package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func noEnvFile(t *testing.T) string {
	t.Helper()
	return "--env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestDefaults(t *testing.T) {
	cfg, err := Load([]string{noEnvFile(t)})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 5 || cfg.MinDelay != time.Second || cfg.MaxDelay != 2*time.Second {
		t.Errorf("pool defaults = %d %s %s", cfg.Workers, cfg.MinDelay, cfg.MaxDelay)
	}
	if cfg.Platform != "instagram" || cfg.Format != "txt" || cfg.Input != "accounts.txt" {
		t.Errorf("defaults = %+v", cfg)
	}
	if !cfg.StreamResults || cfg.FoldUnknown {
		t.Errorf("bool defaults = %+v", cfg)
	}
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "checker.yaml")
	content := "workers: 3\nplatform: tiktok\nformat: csv\nmin_delay: 200ms\nmax_delay: 400ms\n"
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CHECKER_WORKERS", "7")
	t.Setenv("CHECKER_FOLD_UNKNOWN", "true")

	cfg, err := Load([]string{noEnvFile(t), "--config", file, "--platform", "twitter", "names.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 7 {
		t.Errorf("env did not override file: workers = %d", cfg.Workers)
	}
	if cfg.Platform != "twitter" {
		t.Errorf("flag did not override file: platform = %s", cfg.Platform)
	}
	if cfg.Format != "csv" || cfg.MinDelay != 200*time.Millisecond {
		t.Errorf("file values lost: %+v", cfg)
	}
	if !cfg.FoldUnknown {
		t.Error("CHECKER_FOLD_UNKNOWN ignored")
	}
	if cfg.Input != "names.txt" {
		t.Errorf("input = %s", cfg.Input)
	}
}

func TestEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("CHECKER_LISTEN=127.0.0.1:9999\nCHECKER_API_TOKEN=secret\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("CHECKER_LISTEN")
		os.Unsetenv("CHECKER_API_TOKEN")
	})

	cfg, err := Load([]string{"--env-file", path, "--serve"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != "127.0.0.1:9999" || cfg.APIToken != "secret" || !cfg.Serve {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero workers", []string{"--workers", "0"}},
		{"reversed delays", []string{"--min-delay", "3s", "--max-delay", "1s"}},
		{"bad format", []string{"--format", "xlsx"}},
		{"telegram without chat", []string{"--telegram-token", "123:abc"}},
		{"unknown flag", []string{"--threads", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(append([]string{noEnvFile(t)}, tt.args...)); err == nil {
				t.Error("Load() succeeded")
			}
		})
	}
}
