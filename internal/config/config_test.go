package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, int64(4613), cfg.Chain.ChainID)
	require.Equal(t, uint64(4151713), cfg.Chain.StartBlock)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Chain.FactoryAddress = "not-an-address"
	cfg.Postgres.PoolMinConns = 50

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown mode "trade"`)
	require.Contains(t, err.Error(), `unknown log_level "loud"`)
	require.Contains(t, err.Error(), "factory_address")
	require.Contains(t, err.Error(), "pool_min_conns must not exceed")
}

func TestReplayRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	require.ErrorContains(t, cfg.Validate(), "s3: must be enabled for replay mode")

	cfg.S3.Enabled = true
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "index"
log_level = "debug"

[chain]
start_block = 100
poll_interval = "10s"

[indexer]
strict = true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("MKTIDX_CHAIN_BATCH_SIZE", "50")
	t.Setenv("MKTIDX_SERVER_CORS_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "index", cfg.Mode)
	require.Equal(t, uint64(100), cfg.Chain.StartBlock)
	require.Equal(t, 10*time.Second, cfg.Chain.PollInterval.Duration)
	require.Equal(t, uint64(50), cfg.Chain.BatchSize)
	require.True(t, cfg.Indexer.Strict)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, "full", cfg.Mode)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "secret"
	cfg.Server.APIKey = "key"

	out := RedactedConfig(&cfg)
	require.Equal(t, "***", out.Wallet.PrivateKey)
	require.Equal(t, "***", out.Postgres.Password)
	require.Equal(t, "***", out.Server.APIKey)
	require.Equal(t, "", out.Wallet.KeyPassword)
	require.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)

	out.Server.CORSOrigins[0] = "changed"
	require.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
