package config

import (
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("DB_DSN", "")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.DBDriver != "memory" {
		t.Fatalf("unexpected defaults: addr=%s driver=%s", cfg.HTTPAddr, cfg.DBDriver)
	}
	if cfg.TopZonesCacheTTL != time.Minute {
		t.Fatalf("expected 1m cache ttl, got %s", cfg.TopZonesCacheTTL)
	}
	if len(cfg.CORSOrigins) != 3 {
		t.Fatalf("expected 3 default origins, got %v", cfg.CORSOrigins)
	}
}

func TestLoadServerConfigPGDSNImpliesPostgres(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("PG_DSN", "postgres://taxi@localhost/taxi")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBDriver != "postgres" || cfg.DBDSN != "postgres://taxi@localhost/taxi" {
		t.Fatalf("got driver=%s dsn=%s", cfg.DBDriver, cfg.DBDSN)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("brokers not trimmed: %v", cfg.KafkaBrokers)
	}
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_DSN", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected error for missing DSN and bad duration")
	}
}

func TestLoadDashboardConfig(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://api.local:8080/api/")
	cfg, err := LoadDashboardConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIBaseURL != "http://api.local:8080/api" {
		t.Fatalf("trailing slash not trimmed: %s", cfg.APIBaseURL)
	}
	if cfg.APITimeout != 0 {
		t.Fatalf("expected no api timeout by default, got %s", cfg.APITimeout)
	}

	t.Setenv("API_BASE_URL", "localhost:8080")
	if _, err := LoadDashboardConfig(); err == nil {
		t.Fatal("expected error for non-http base url")
	}
}

func TestLoadConsumerConfigRetry(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("INGEST_RETRY_ATTEMPTS", "0")
	if _, err := LoadConsumerConfig(); err == nil {
		t.Fatal("expected error for zero retry attempts")
	}
}
