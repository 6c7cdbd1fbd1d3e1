package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "MINICART"

type Config struct {
	App       AppConfig
	Inventory InventoryConfig
	Storage   StorageConfig
	Metrics   MetricsConfig
	Tracing   TracingConfig
	Catalog   CatalogConfig
}

type AppConfig struct {
	Port     string `envconfig:"MINICART_PORT" default:"8080"`
	LogLevel string `envconfig:"MINICART_LOG_LEVEL" default:"info"`
}

// InventoryConfig points the cart at the remote inventory API.
type InventoryConfig struct {
	URL     string        `envconfig:"MINICART_INVENTORY_URL" default:"http://localhost:3333"`
	Timeout time.Duration `envconfig:"MINICART_INVENTORY_TIMEOUT" default:"3s"`
}

// StorageConfig selects the on-device store the cart is persisted in.
type StorageConfig struct {
	Driver string `envconfig:"MINICART_STORAGE_DRIVER" default:"sqlite"`
	Path   string `envconfig:"MINICART_STORAGE_PATH" default:"minicart.db"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"MINICART_METRICS_ENABLED" default:"true"`
	Token   string `envconfig:"MINICART_METRICS_TOKEN"`
}

type TracingConfig struct {
	Enabled bool `envconfig:"MINICART_TRACING_ENABLED" default:"false"`
}

// CatalogConfig is read by the dev inventory service only.
type CatalogConfig struct {
	Port   string `envconfig:"MINICART_CATALOG_PORT" default:"3333"`
	Driver string `envconfig:"MINICART_CATALOG_DRIVER" default:"memory"`
	DSN    string `envconfig:"MINICART_CATALOG_DSN"`
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config: unsupported storage driver %q", c.Storage.Driver)
	}

	c.Catalog.Driver = strings.ToLower(strings.TrimSpace(c.Catalog.Driver))
	switch c.Catalog.Driver {
	case "memory":
	case "postgres":
		if c.Catalog.DSN == "" {
			return errors.New("config: MINICART_CATALOG_DSN is required for the postgres catalog")
		}
	default:
		return fmt.Errorf("config: unsupported catalog driver %q", c.Catalog.Driver)
	}

	if c.Inventory.URL == "" {
		return errors.New("config: MINICART_INVENTORY_URL is required")
	}
	return nil
}
