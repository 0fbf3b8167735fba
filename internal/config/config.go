package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig captures all tunable parameters for the trip API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	DBDriver string
	DBDSN    string

	RedisAddr        string
	RedisPassword    string
	TopZonesCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	ZonesCSV string
	TripsCSV string

	CORSOrigins []string

	LogLevel      string
	RunMigrations bool
}

// DashboardConfig configures the dashboard process that renders the views.
type DashboardConfig struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	APIBaseURL      string
	APITimeout      time.Duration
	LogLevel        string
}

// ConsumerConfig configures the Kafka trip ingestion process.
type ConsumerConfig struct {
	MetricsAddr string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	DBDriver string
	DBDSN    string

	RetryAttempts int
	RetryDelay    time.Duration

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:         ":8080",
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     10 * time.Second,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		DBDriver:         "memory",
		TopZonesCacheTTL: time.Minute,
		KafkaTopic:       "taxi-trips",
		ZonesCSV:         "data/taxi_zone_lookup.csv",
		TripsCSV:         "data/yellow_tripdata.csv",
		CORSOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://localhost:5176",
		},
		LogLevel: "info",
	}
}

func defaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		HTTPAddr:        ":3000",
		ShutdownTimeout: 10 * time.Second,
		APIBaseURL:      "http://localhost:8080/api",
		LogLevel:        "info",
	}
}

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MetricsAddr:   ":2112",
		KafkaBrokers:  []string{"localhost:9092"},
		KafkaTopic:    "taxi-trips",
		KafkaGroup:    "taxi-trip-consumer",
		DBDriver:      "memory",
		RetryAttempts: 3,
		RetryDelay:    200 * time.Millisecond,
		LogLevel:      "info",
	}
}

// loadDotEnv preloads a .env file when present; a missing file is not an error.
func loadDotEnv() {
	_ = godotenv.Load()
}

func LoadServerConfig() (ServerConfig, error) {
	loadDotEnv()
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	loadDatabase(&cfg.DBDriver, &cfg.DBDSN, &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setDurationFromEnv(&cfg.TopZonesCacheTTL, "TOP_ZONES_CACHE_TTL", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setStringFromEnv(&cfg.ZonesCSV, "ZONES_CSV")
	setStringFromEnv(&cfg.TripsCSV, "TRIPS_CSV")

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitAndTrim(origins)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.TopZonesCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("TOP_ZONES_CACHE_TTL must be >= 0"))
	}

	return cfg, errors.Join(errs...)
}

func LoadDashboardConfig() (DashboardConfig, error) {
	loadDotEnv()
	cfg := defaultDashboardConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "DASHBOARD_ADDR")
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)
	setStringFromEnv(&cfg.APIBaseURL, "API_BASE_URL")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	setDurationFromEnv(&cfg.APITimeout, "API_TIMEOUT", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if !strings.HasPrefix(cfg.APIBaseURL, "http://") && !strings.HasPrefix(cfg.APIBaseURL, "https://") {
		errs = append(errs, fmt.Errorf("API_BASE_URL must be an http(s) URL, got %q", cfg.APIBaseURL))
	}

	return cfg, errors.Join(errs...)
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	loadDotEnv()
	cfg := defaultConsumerConfig()
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	if brokersEnv == "" {
		brokersEnv = os.Getenv("KAFKA_BROKER")
	}
	if brokersEnv != "" {
		cfg.KafkaBrokers = splitAndTrim(brokersEnv)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	loadDatabase(&cfg.DBDriver, &cfg.DBDSN, &errs)

	setIntFromEnv(&cfg.RetryAttempts, "INGEST_RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "INGEST_RETRY_DELAY", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	if cfg.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_RETRY_ATTEMPTS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// loadDatabase reads DB_DRIVER and DB_DSN. PG_DSN alone implies postgres.
func loadDatabase(driver, dsn *string, errs *[]error) {
	*dsn = strings.TrimSpace(os.Getenv("DB_DSN"))
	if pg := strings.TrimSpace(os.Getenv("PG_DSN")); pg != "" && *dsn == "" {
		*dsn = pg
		*driver = "postgres"
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		*driver = strings.ToLower(strings.TrimSpace(v))
	}
	switch *driver {
	case "memory":
	case "postgres", "sqlite3":
		if *dsn == "" {
			*errs = append(*errs, fmt.Errorf("DB_DSN is required for DB_DRIVER=%s", *driver))
		}
	default:
		*errs = append(*errs, fmt.Errorf("unsupported DB_DRIVER %q", *driver))
	}
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
