package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "ENVIRONMENT", "JWT_SECRET", "DB_PATH",
		"PRAGMA_JOURNAL_MODE", "PRAGMA_SYNCHRONOUS",
		"ALLOW_IN_MEMORY", "STRICT", "TEST_MODE",
		"REDIS_URL", "GC_SCHEDULE_ENABLED", "GC_SCHEDULE_CRON", "GC_RETENTION_SECONDS",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoad_RequiresDBPathWithoutInMemoryOverride(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail without DB_PATH or ALLOW_IN_MEMORY")
	}
}

func TestLoad_AllowsInMemoryWhenOptedIn(t *testing.T) {
	clearEnv(t)
	os.Setenv("ALLOW_IN_MEMORY", "true")
	defer os.Unsetenv("ALLOW_IN_MEMORY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != ":memory:" {
		t.Fatalf("expected in-memory db path, got %q", cfg.DBPath)
	}
}

func TestLoad_StrictForbidsInMemory(t *testing.T) {
	clearEnv(t)
	os.Setenv("ALLOW_IN_MEMORY", "true")
	os.Setenv("STRICT", "true")
	defer os.Unsetenv("ALLOW_IN_MEMORY")
	defer os.Unsetenv("STRICT")

	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail when STRICT forbids in-memory storage")
	}
}

func TestLoad_ExplicitDBPathIsRespected(t *testing.T) {
	clearEnv(t)
	os.Setenv("DB_PATH", "/tmp/sync-gateway-test.db")
	defer os.Unsetenv("DB_PATH")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/sync-gateway-test.db" {
		t.Fatalf("expected explicit db path to be respected, got %q", cfg.DBPath)
	}
}
