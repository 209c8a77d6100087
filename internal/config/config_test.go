package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesChatDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"basic_config": {"server_address": ":8080"},
		"databases": {"sqlite3": {"dsn": "data/app.db"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chat.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("MaxAttempts = %d", cfg.Chat.MaxAttempts)
	}
	if cfg.Chat.RequestTimeoutSeconds != DefaultRequestTimeoutSeconds {
		t.Fatalf("RequestTimeoutSeconds = %d", cfg.Chat.RequestTimeoutSeconds)
	}
	if cfg.Chat.DailyMessageLimit != DefaultDailyMessageLimit {
		t.Fatalf("DailyMessageLimit = %d", cfg.Chat.DailyMessageLimit)
	}
}

func TestLoadResolvesRelativeSqliteDSN(t *testing.T) {
	path := writeConfig(t, `{
		"databases": {
			"sqlite3": {"dsn": "data/app.db"},
			"mysql": {"dsn": "ignored", "host": "localhost"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "data", "app.db")
	if got := cfg.Databases["sqlite3"].DSN; got != want {
		t.Fatalf("sqlite dsn = %q, want %q", got, want)
	}
	// mysql DSNs are connection params, never file paths
	if got := cfg.Databases["mysql"].DSN; got != "ignored" {
		t.Fatalf("mysql dsn rewritten: %q", got)
	}
}

func TestLoadKeepsExplicitChatSettings(t *testing.T) {
	path := writeConfig(t, `{
		"databases": {"sqlite3": {"dsn": "/tmp/app.db"}},
		"chat": {"max_attempts": 3, "request_timeout_seconds": 30, "daily_message_limit": 10}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chat.MaxAttempts != 3 || cfg.Chat.RequestTimeoutSeconds != 30 || cfg.Chat.DailyMessageLimit != 10 {
		t.Fatalf("explicit chat settings lost: %#v", cfg.Chat)
	}
	if got := cfg.Databases["sqlite3"].DSN; got != "/tmp/app.db" {
		t.Fatalf("absolute dsn rewritten: %q", got)
	}
}

func TestLoadRejectsMissingDatabases(t *testing.T) {
	path := writeConfig(t, `{"basic_config": {"server_address": ":8080"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for config without databases")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
