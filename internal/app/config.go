// Package app holds configuration shared by the stationledger commands.
package app

import (
	"os"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete command configuration, loadable from
// environment variables (STATION_ prefix), flags, or YAML config files.
type Config struct {
	DatabaseURL string `usage:"PostgreSQL connection URL (STATION_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	TaxRate     string `default:"0.06" usage:"Sales tax rate as a decimal fraction" flag:"tax-rate"`
	StationID   string `default:"station-1" usage:"Default station identifier" flag:"station-id"`
	Seed        SeedConfig
}

// SeedConfig controls the sample data generator.
type SeedConfig struct {
	Transactions   int    `default:"25" usage:"Number of sample transactions to generate"`
	PendingPercent int    `default:"50" usage:"Chance (0-100) a service transaction starts pending" flag:"pending-percent"`
	RandSeed       int64  `default:"0" usage:"Seed for the sample data RNG (0 = time-based)" flag:"rand-seed"`
	ProductsFile   string `default:"db/seed/products.json" usage:"Path to products JSON file" flag:"products-file"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform fallbacks.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STATION",
		Files:     []string{"config.yaml", "/etc/stationledger/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STATION_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.TaxRateDecimal(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// TaxRateDecimal parses the configured tax rate. The rate is carried as
// a string so it enters the arithmetic as an exact decimal.
func (c *Config) TaxRateDecimal() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse tax rate %q", c.TaxRate)
	}
	if rate.IsNegative() {
		return decimal.Decimal{}, errors.Errorf("tax rate must not be negative, got %s", c.TaxRate)
	}
	return rate, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// that use standard names like DATABASE_URL to the STATION_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
}
