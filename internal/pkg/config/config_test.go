package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Calendar.Timezone != "Asia/Tokyo" {
		t.Fatalf("timezone=%q", cfg.Calendar.Timezone)
	}
	if cfg.Progression.AutoConfirmDays != 7 || cfg.Progression.AutoConfirmConcurrency != 4 {
		t.Fatalf("progression=%+v", cfg.Progression)
	}
	if cfg.Storage.TxMaxAttempts != 3 || cfg.Storage.BusyTimeoutMs != 5000 {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
}

func TestWriteThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config", "config.yaml")

	cfg := Default()
	cfg.Storage.DBPath = filepath.Join(dir, "quest.db")
	cfg.Calendar.Timezone = "UTC"
	cfg.Progression.AutoConfirmDays = 3
	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Storage.DBPath != cfg.Storage.DBPath {
		t.Fatalf("db_path=%q, want %q", got.Storage.DBPath, cfg.Storage.DBPath)
	}
	if got.Calendar.Timezone != "UTC" || got.Progression.AutoConfirmDays != 3 {
		t.Fatalf("got=%+v", got)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := Default()
	cfg.Storage.DBPath = filepath.Join(dir, "quest.db")
	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("QUEST_PROGRESSION_AUTO_CONFIRM_CONCURRENCY", "9")

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Progression.AutoConfirmConcurrency != 9 {
		t.Fatalf("concurrency=%d, want 9", got.Progression.AutoConfirmConcurrency)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("QUEST_TEST_DB", "/tmp/q.db")
	if got := expandEnv("${QUEST_TEST_DB}"); got != "/tmp/q.db" {
		t.Fatalf("got=%q", got)
	}
	if got := expandEnv("plain"); got != "plain" {
		t.Fatalf("got=%q", got)
	}
}

func TestResolvePathKeepsSpecialPaths(t *testing.T) {
	for _, p := range []string{"", ":memory:", "file::memory:?cache=shared", "/abs/q.db"} {
		if got := resolvePath(p); got != p {
			t.Fatalf("resolvePath(%q)=%q", p, got)
		}
	}
	if got := resolvePath("data/q.db"); !filepath.IsAbs(got) {
		t.Fatalf("relative path should become absolute, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Progression.AutoConfirmConcurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero concurrency")
	}
	cfg = Default()
	cfg.Storage.TxMaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero attempts")
	}
	cfg = Default()
	cfg.Progression.AutoConfirmDays = 366
	if err := cfg.Validate(); err != nil {
		t.Fatalf("366 days should be accepted: %v", err)
	}
	cfg.Progression.AutoConfirmDays = 367
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for auto_confirm_days above one year")
	}
}

func TestSetLogLevel(t *testing.T) {
	closer, err := SetupLogger(LoggerOptions{Level: "warn", Path: filepath.Join(t.TempDir(), "logs", "q.log"), Component: "test"})
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	if closer == nil {
		t.Fatalf("expected closer for log file")
	}
	defer closer.Close()

	if CurrentLogLevel() != slog.LevelWarn {
		t.Fatalf("level=%v", CurrentLogLevel())
	}
	SetLogLevel("debug")
	if CurrentLogLevel() != slog.LevelDebug {
		t.Fatalf("level=%v", CurrentLogLevel())
	}
	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Fatalf("unknown level should map to info")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := Default()
	cfg.Storage.DBPath = filepath.Join(dir, "quest.db")
	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	changed := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(c *Config) { changed <- c })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	cfg.App.LogLevel = "debug"
	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case got := <-changed:
		if got.App.LogLevel != "debug" {
			t.Fatalf("log_level=%q", got.App.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload observed")
	}
}
