package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tronforge.toml")

	cfg, err := Load(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err, "default file must be written")
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "config file must be private")

	require.Equal(t, "http://127.0.0.1:8090", cfg.NodeEndpoint)
	require.Equal(t, filepath.Join(dir, "keystore.json"), cfg.KeystorePath)
	require.Equal(t, "TRONFORGE_KEYSTORE_PASSPHRASE", cfg.PassphraseEnv)
	require.Equal(t, 3*time.Second, cfg.PollInterval())
	require.Equal(t, 40, cfg.PollAttempts)

	// A second load round-trips the file it just wrote.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadAppliesDefaultsToSparseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tronforge.toml")
	doc := `NodeEndpoint = "https://api.shasta.trongrid.io"
NetworkName = "shasta"
FeeCeilingSun = 500000000
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://api.shasta.trongrid.io", cfg.NodeEndpoint, "explicit endpoint must win")
	require.Equal(t, int64(500_000_000), cfg.FeeCeilingSun)
	require.Equal(t, float64(5), cfg.RequestsPerSec)
	require.Equal(t, 10, cfg.RequestBurst)
	require.Equal(t, 4, cfg.MaxInFlight)
	require.Equal(t, int64(3000), cfg.PollIntervalMS)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tronforge.toml")
	require.NoError(t, os.WriteFile(path, []byte("NodeEndpoint = ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestAPIKeyComesFromEnvironment(t *testing.T) {
	cfg := &Config{APIKeyEnv: "TRONFORGE_TEST_API_KEY"}
	t.Setenv("TRONFORGE_TEST_API_KEY", "  secret-key  ")
	require.Equal(t, "secret-key", cfg.APIKey())

	cfg.APIKeyEnv = ""
	require.Empty(t, cfg.APIKey(), "blank env var name must yield no key")
}
