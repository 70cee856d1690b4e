package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{EnvDataDir, EnvDatabaseURL, EnvStorage, EnvMarketSource, EnvListenAddr} {
		t.Setenv(env, "")
	}
}

func TestGet_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Get("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, filepath.Join("./data", "journal"), cfg.JournalDir)
	assert.Equal(t, StorageFile, cfg.Storage)
	assert.Equal(t, MarketCoinGecko, cfg.MarketSource)
	assert.Equal(t, "AUD", cfg.VsCurrency)
	assert.Equal(t, 10, cfg.CoinCount)
	assert.Equal(t, 3, cfg.SaveRetries)
	assert.Equal(t, filepath.Join("./data", "portfolios"), cfg.PortfolioDir())
}

func TestGet_YamlAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/coinledger
market_source: binance
vs_currency: usd
coin_count: "25"
market_refresh: 1m
save_retries: "5"
save_retry_interval: 250ms
`), 0o600))
	t.Setenv(EnvListenAddr, "127.0.0.1:9000")

	cfg, err := Get(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/coinledger", cfg.DataDir)
	assert.Equal(t, "/var/lib/coinledger/journal", cfg.JournalDir)
	assert.Equal(t, MarketBinance, cfg.MarketSource)
	assert.Equal(t, "USD", cfg.VsCurrency)
	assert.Equal(t, 25, cfg.CoinCount)
	assert.Equal(t, time.Minute, cfg.MarketRefresh)
	assert.Equal(t, 5, cfg.SaveRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.SaveRetryInterval)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
}

func TestGet_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("COINLEDGER_STORAGE=postgres\nCOINLEDGER_DATABASE_URL=postgres://localhost/coinledger?sslmode=disable\n"), 0o600))

	cfg, err := Get("")
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, "postgres://localhost/coinledger?sslmode=disable", cfg.DatabaseURL)
}

func TestFromTmp_Invalid(t *testing.T) {
	tests := []struct {
		name string
		tmp  ConfigTmp
	}{
		{"unknown storage", ConfigTmp{Storage: "s3"}},
		{"postgres without url", ConfigTmp{Storage: StoragePostgres}},
		{"unknown market", ConfigTmp{MarketSource: "kraken"}},
		{"coin count not a number", ConfigTmp{CoinCountStr: "ten"}},
		{"coin count too large", ConfigTmp{CoinCountStr: "1000"}},
		{"negative retries", ConfigTmp{SaveRetriesStr: "-1"}},
		{"negative refresh", ConfigTmp{MarketRefresh: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromTmp(tt.tmp)
			assert.Error(t, err)
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	want := Default()
	want.MarketSource = MarketBybit
	want.JournalDir = filepath.Join(dir, "wal")
	want.MarketRefresh = 30 * time.Second

	path := filepath.Join(dir, "config.gen.yaml")
	require.NoError(t, Write(path, want.Tmp()))

	got, err := Get(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
