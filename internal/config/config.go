package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pharmapos/m/internal/sales"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds application configuration values.
type Config struct {
	Secret         string
	HTTPPort       string
	StoreBackend   string
	DatabaseDSN    string
	LogLevel       string
	NumberAttempts int
	StockAttempts  int
	ReceiptProfile sales.ReceiptProfile
	CORSOrigins    []string
	CatalogCSV     string
	ReportTimezone string
	// Warnings lists values that were ignored in favour of a default.
	Warnings []string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() (Config, error) {
	cfg := Config{
		Secret:         env("SECRET", "dev_secret"),
		HTTPPort:       env("HTTP_PORT", "8080"),
		StoreBackend:   strings.ToLower(env("STORE_BACKEND", BackendSQLite)),
		LogLevel:       env("LOG_LEVEL", "info"),
		CatalogCSV:     os.Getenv("CATALOG_CSV"),
		ReportTimezone: env("REPORT_TIMEZONE", "UTC"),
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		cfg.warn("invalid HTTP_PORT value %q, defaulting to 8080", cfg.HTTPPort)
		cfg.HTTPPort = "8080"
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendSQLite, BackendPostgres:
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = defaultDSN(cfg.StoreBackend)
	}

	cfg.NumberAttempts = cfg.positiveInt("TXN_NUMBER_ATTEMPTS", 5)
	cfg.StockAttempts = cfg.positiveInt("STOCK_CAS_ATTEMPTS", 3)

	for _, o := range strings.Split(env("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	if path := os.Getenv("RECEIPT_PROFILE"); path != "" {
		p, err := LoadReceiptProfile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.ReceiptProfile = p
	} else {
		cfg.ReceiptProfile = sales.ReceiptProfile{StoreName: "PharmaPOS", Footer: "Thank you for your purchase"}
	}
	return cfg, nil
}

// LoadReceiptProfile reads the receipt header and footer from a YAML file.
func LoadReceiptProfile(path string) (sales.ReceiptProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sales.ReceiptProfile{}, fmt.Errorf("read receipt profile: %w", err)
	}
	var p sales.ReceiptProfile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return sales.ReceiptProfile{}, fmt.Errorf("parse receipt profile %s: %w", path, err)
	}
	if strings.TrimSpace(p.StoreName) == "" {
		return sales.ReceiptProfile{}, fmt.Errorf("receipt profile %s: store_name is required", path)
	}
	return p, nil
}

func defaultDSN(backend string) string {
	switch backend {
	case BackendSQLite:
		return "file:pharmapos.db?_pragma=busy_timeout(5000)"
	case BackendPostgres:
		host := env("HOST", "localhost")
		user := env("USER", "postgres")
		dbPort := env("PORT", "5432")
		name := env("NAME", "pharmapos")
		password := os.Getenv("PASSWORD")
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, dbPort, name)
	}
	return ""
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c *Config) positiveInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.warn("invalid %s value %q, defaulting to %d", key, raw, def)
		return def
	}
	return n
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}
