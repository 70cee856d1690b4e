package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Market data sources.
const (
	MarketCoinGecko = "coingecko"
	MarketBinance   = "binance"
	MarketBybit     = "bybit"
	MarketStatic    = "static"
)

// Environment overrides, applied after the yaml file.
const (
	EnvDataDir      = "COINLEDGER_DATA_DIR"
	EnvDatabaseURL  = "COINLEDGER_DATABASE_URL"
	EnvStorage      = "COINLEDGER_STORAGE"
	EnvMarketSource = "COINLEDGER_MARKET_SOURCE"
	EnvListenAddr   = "COINLEDGER_LISTEN_ADDR"
)

type Config struct {
	DataDir     string
	Storage     string
	DatabaseURL string
	JournalDir  string

	MarketSource  string
	CoinGeckoURL  string
	VsCurrency    string
	CoinCount     int
	MarketRefresh time.Duration

	ListenAddr string
	LogLevel   string

	SaveRetries       int
	SaveRetryInterval time.Duration
}

type ConfigTmp struct {
	DataDir     string `yaml:"data_dir,omitempty"`
	Storage     string `yaml:"storage,omitempty"`
	DatabaseURL string `yaml:"database_url,omitempty"`
	JournalDir  string `yaml:"journal_dir,omitempty"`

	MarketSource  string        `yaml:"market_source,omitempty"`
	CoinGeckoURL  string        `yaml:"coingecko_url,omitempty"`
	VsCurrency    string        `yaml:"vs_currency,omitempty"`
	CoinCountStr  string        `yaml:"coin_count,omitempty"`
	MarketRefresh time.Duration `yaml:"market_refresh,omitempty"`

	ListenAddr string `yaml:"listen_addr,omitempty"`
	LogLevel   string `yaml:"log_level,omitempty"`

	SaveRetriesStr    string        `yaml:"save_retries,omitempty"`
	SaveRetryInterval time.Duration `yaml:"save_retry_interval,omitempty"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DataDir:           "./data",
		Storage:           StorageFile,
		MarketSource:      MarketCoinGecko,
		VsCurrency:        "AUD",
		CoinCount:         10,
		ListenAddr:        ":8080",
		LogLevel:          "info",
		SaveRetries:       3,
		SaveRetryInterval: 100 * time.Millisecond,
	}
}

// Get loads .env (if present), the yaml file at path (if set) and environment overrides.
func Get(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	tmp := ConfigTmp{}
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(f, &tmp); err != nil {
			return Config{}, fmt.Errorf("incorrect yaml config %s: %w", path, err)
		}
	}

	applyEnv(&tmp)

	return FromTmp(tmp)
}

func applyEnv(tmp *ConfigTmp) {
	overrides := map[string]*string{
		EnvDataDir:      &tmp.DataDir,
		EnvDatabaseURL:  &tmp.DatabaseURL,
		EnvStorage:      &tmp.Storage,
		EnvMarketSource: &tmp.MarketSource,
		EnvListenAddr:   &tmp.ListenAddr,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// FromTmp validates the raw form and fills defaults.
func FromTmp(c ConfigTmp) (Config, error) {
	cfg := Default()

	if c.DataDir != "" {
		cfg.DataDir = c.DataDir
	}
	cfg.JournalDir = c.JournalDir
	if cfg.JournalDir == "" {
		cfg.JournalDir = filepath.Join(cfg.DataDir, "journal")
	}

	if c.Storage != "" {
		cfg.Storage = strings.ToLower(c.Storage)
	}
	switch cfg.Storage {
	case StorageFile:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return Config{}, fmt.Errorf("'database_url' is required for postgres storage")
		}
	default:
		return Config{}, fmt.Errorf("incorrect 'storage' param in yaml config: %s (expected file or postgres)", c.Storage)
	}
	cfg.DatabaseURL = c.DatabaseURL

	if c.MarketSource != "" {
		cfg.MarketSource = strings.ToLower(c.MarketSource)
	}
	switch cfg.MarketSource {
	case MarketCoinGecko, MarketBinance, MarketBybit, MarketStatic:
	default:
		return Config{}, fmt.Errorf("incorrect 'market_source' param in yaml config: %s", c.MarketSource)
	}
	cfg.CoinGeckoURL = c.CoinGeckoURL

	if c.VsCurrency != "" {
		cfg.VsCurrency = strings.ToUpper(c.VsCurrency)
	}

	if c.CoinCountStr != "" {
		n, err := strconv.Atoi(c.CoinCountStr)
		if err != nil || n < 1 || n > 250 {
			return Config{}, fmt.Errorf("incorrect 'coin_count' param in yaml config (must be an integer 1-250): %s", c.CoinCountStr)
		}
		cfg.CoinCount = n
	}
	if c.MarketRefresh < 0 {
		return Config{}, fmt.Errorf("incorrect 'market_refresh' param in yaml config: %s", c.MarketRefresh)
	}
	cfg.MarketRefresh = c.MarketRefresh

	if c.ListenAddr != "" {
		cfg.ListenAddr = c.ListenAddr
	}
	if c.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(c.LogLevel)
	}

	if c.SaveRetriesStr != "" {
		n, err := strconv.Atoi(c.SaveRetriesStr)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("incorrect 'save_retries' param in yaml config (must be a non-negative integer): %s", c.SaveRetriesStr)
		}
		cfg.SaveRetries = n
	}
	if c.SaveRetryInterval > 0 {
		cfg.SaveRetryInterval = c.SaveRetryInterval
	}

	return cfg, nil
}

// Tmp returns the raw form of c, suitable for writing back to yaml.
func (c Config) Tmp() ConfigTmp {
	return ConfigTmp{
		DataDir:           c.DataDir,
		Storage:           c.Storage,
		DatabaseURL:       c.DatabaseURL,
		JournalDir:        c.JournalDir,
		MarketSource:      c.MarketSource,
		CoinGeckoURL:      c.CoinGeckoURL,
		VsCurrency:        c.VsCurrency,
		CoinCountStr:      strconv.Itoa(c.CoinCount),
		MarketRefresh:     c.MarketRefresh,
		ListenAddr:        c.ListenAddr,
		LogLevel:          c.LogLevel,
		SaveRetriesStr:    strconv.Itoa(c.SaveRetries),
		SaveRetryInterval: c.SaveRetryInterval,
	}
}

// Write stores tmp as yaml at path.
func Write(path string, tmp ConfigTmp) error {
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// PortfolioDir directory of the file portfolio store.
func (c Config) PortfolioDir() string {
	return filepath.Join(c.DataDir, "portfolios")
}
