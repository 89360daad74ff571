// Package config loads the vtrade configuration from a YAML file, a .env file
// and the environment, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/etnz/vtrade"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked up in the working directory
// when none is given.
const DefaultFile = "vtrade.yaml"

// Environment variables overriding the file.
const (
	EnvDataDir         = "VTRADE_DATA_DIR"
	EnvBaseCurrency    = "VTRADE_BASE_CURRENCY"
	EnvStorage         = "VTRADE_STORAGE"
	EnvExchangeRateKey = "EXCHANGERATE_API_KEY"
)

// Config holds every setting of the application.
type Config struct {
	DataDir        string `yaml:"data_dir"`
	BaseCurrency   string `yaml:"base_currency"`
	InitialBalance string `yaml:"initial_balance"` // deposited in new portfolios
	Storage        string `yaml:"storage"`         // json or sqlite

	Rates struct {
		File              string        `yaml:"file"` // relative to DataDir
		TTL               time.Duration `yaml:"ttl"`  // 0 accepts rates of any age
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		CoinGeckoURL      string        `yaml:"coingecko_url"`
		ExchangeRateURL   string        `yaml:"exchangerate_url"`
		ExchangeRateKey   string        `yaml:"exchangerate_key"`
		Schedule          string        `yaml:"schedule"` // cron spec of watch-rates
	} `yaml:"rates"`

	Log struct {
		File string `yaml:"file"` // audit log, relative to DataDir
	} `yaml:"log"`

	initial decimal.Decimal
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	c := &Config{
		DataDir:        "data",
		BaseCurrency:   string(vtrade.USD),
		InitialBalance: "0",
		Storage:        "json",
	}
	c.Rates.File = "rates.json"
	c.Rates.Timeout = 10 * time.Second
	c.Rates.RequestsPerSecond = 1
	c.Rates.CoinGeckoURL = "https://api.coingecko.com/api/v3"
	c.Rates.ExchangeRateURL = "https://v6.exchangerate-api.com/v6"
	c.Rates.Schedule = "*/5 * * * *"
	c.Log.File = filepath.Join("logs", "actions.log")
	return c
}

// Load reads the configuration.
//
// The YAML file at path is required when path is not empty, otherwise
// DefaultFile is read if it exists. Variables from a .env file in the working
// directory are loaded into the environment without overriding it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load .env: %w", err)
	}
	c := Default()
	file, required := path, true
	if file == "" {
		file, required = DefaultFile, false
	}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("cannot parse %s: %w", file, err)
		}
	case required || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	c.overrideWithEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func (c *Config) overrideWithEnv() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvBaseCurrency); v != "" {
		c.BaseCurrency = v
	}
	if v := os.Getenv(EnvStorage); v != "" {
		c.Storage = v
	}
	if v := os.Getenv(EnvExchangeRateKey); v != "" {
		c.Rates.ExchangeRateKey = v
	}
}

// Validate checks and normalizes the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	base, err := vtrade.ParseCode(c.BaseCurrency)
	if err != nil {
		return fmt.Errorf("base_currency: %w", err)
	}
	c.BaseCurrency = string(base)

	initial := decimal.Zero
	if c.InitialBalance != "" {
		if initial, err = decimal.NewFromString(c.InitialBalance); err != nil {
			return fmt.Errorf("initial_balance: %w", err)
		}
	}
	if initial.IsNegative() {
		return fmt.Errorf("initial_balance: %w: %s", vtrade.ErrInvalidAmount, initial)
	}
	c.initial = initial

	switch c.Storage {
	case "json", "sqlite":
	default:
		return fmt.Errorf("storage must be json or sqlite, got %q", c.Storage)
	}
	if c.Rates.TTL < 0 || c.Rates.Timeout < 0 || c.Rates.RequestsPerSecond < 0 {
		return errors.New("rates durations and rate limit must not be negative")
	}
	return nil
}

// Base returns the base currency of new portfolios.
func (c *Config) Base() vtrade.Code { return vtrade.Code(c.BaseCurrency) }

// Initial returns the initial balance of new portfolios.
func (c *Config) Initial() decimal.Decimal { return c.initial }

// RatesFile returns the path of the rates file.
func (c *Config) RatesFile() string { return c.path(c.Rates.File) }

// AuditFile returns the path of the audit log.
func (c *Config) AuditFile() string { return c.path(c.Log.File) }

func (c *Config) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
