package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	ServiceName string
	JWTSecret   string

	DBPath             string
	PragmaJournalMode  string
	PragmaSynchronous  string
	AllowInMemory      bool
	Strict             bool
	TestMode           bool

	RedisURL    string
	GCEnabled   bool
	GCCron      string
	GCRetentionSeconds int
}

// Load reads configuration from the environment (after a best-effort
// .env load) and validates the startup rules from §6.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "3002"),
		Environment: getEnv("ENVIRONMENT", "development"),
		ServiceName: "sync-gateway",
		JWTSecret:   getEnv("JWT_SECRET", "your-secret-key"),

		DBPath:            getEnv("DB_PATH", ""),
		PragmaJournalMode: getEnv("PRAGMA_JOURNAL_MODE", "WAL"),
		PragmaSynchronous: getEnv("PRAGMA_SYNCHRONOUS", "NORMAL"),
		AllowInMemory:     getBool("ALLOW_IN_MEMORY", false),
		Strict:            getBool("STRICT", false),
		TestMode:          getBool("TEST_MODE", false),

		RedisURL:  getEnv("REDIS_URL", ""),
		GCEnabled: getBool("GC_SCHEDULE_ENABLED", false),
		GCCron:    getEnv("GC_SCHEDULE_CRON", "0 */6 * * *"),
		GCRetentionSeconds: getIntEnv("GC_RETENTION_SECONDS", 7*24*3600),
	}

	if err := cfg.validateStartup(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateStartup enforces §6's startup rules.
func (c *Config) validateStartup() error {
	if c.DBPath == "" {
		if c.TestMode || c.AllowInMemory {
			c.DBPath = ":memory:"
		} else {
			return fmt.Errorf("config: DB_PATH is required (set ALLOW_IN_MEMORY=true to permit an ephemeral store)")
		}
	}

	inMemory := c.DBPath == ":memory:" || c.DBPath == "" || c.DBPath == "file::memory:"
	if c.Strict && inMemory {
		return fmt.Errorf("config: STRICT forbids in-memory storage, but resolved DB_PATH is in-memory")
	}
	if !c.TestMode && inMemory && c.AllowInMemory {
		fmt.Fprintln(os.Stderr, "warning: running with an in-memory, ephemeral database; all data is lost on restart")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "TRUE" || value == "yes"
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return defaultValue
	}
	return n
}
