package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, LeaseLocal, cfg.LeaseBackend)
	assert.Equal(t, 10*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 3*time.Second, cfg.Heartbeat)
	assert.Equal(t, 100, cfg.PushBatch)
	assert.Equal(t, 5*time.Second, cfg.PushInterval)
	assert.Equal(t, time.Minute, cfg.PullInterval)
	assert.Equal(t, "USD", cfg.Currency)
	assert.NotEmpty(t, cfg.InstanceID)
	assert.False(t, cfg.ReplicationEnabled())
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		EnvDB:            "/tmp/ledger.db",
		EnvRemoteURL:     "postgres://localhost/ledger",
		EnvInstanceID:    "window-1",
		EnvLeaseBackend:  "Remote",
		EnvLeaseTTL:      "30s",
		EnvHeartbeat:     "5s",
		EnvPushBatch:     "25",
		EnvPushInterval:  "1s",
		EnvPullInterval:  "10m",
		EnvCurrency:      "eur",
		EnvRemotePassword: "secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ledger.db", cfg.DBPath)
	assert.Equal(t, "window-1", cfg.InstanceID)
	assert.Equal(t, LeaseRemote, cfg.LeaseBackend)
	assert.Equal(t, 30*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 25, cfg.PushBatch)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, "secret", cfg.RemotePassword)
	assert.True(t, cfg.ReplicationEnabled())

	settings := cfg.Settings()
	assert.Equal(t, 25, settings.PushBatchSize)
	assert.Equal(t, time.Second, settings.PushInterval)
	assert.Equal(t, 10*time.Minute, settings.PullInterval)
}

func TestFromLookup_ReportsEveryInvalidValue(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		EnvLeaseTTL:  "soon",
		EnvPushBatch: "0",
		EnvCurrency:  "XYZ",
	}))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, EnvLeaseTTL)
	assert.Contains(t, msg, EnvPushBatch)
	assert.Contains(t, msg, EnvCurrency)
}

func TestFromLookup_RemoteLeaseNeedsRemote(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{EnvLeaseBackend: "remote"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvRemoteURL)
}

func TestFromLookup_HeartbeatMustBeShorterThanTTL(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		EnvLeaseTTL:  "3s",
		EnvHeartbeat: "3s",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvHeartbeat)
}

func TestFromLookup_UnknownLeaseBackend(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{EnvLeaseBackend: "etcd"}))
	require.Error(t, err)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FRUGALFLOW_CURRENCY=GBP\n"), 0o644))

	t.Setenv(EnvCurrency, "")
	os.Unsetenv(EnvCurrency)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "GBP", cfg.Currency)
}

func TestLoad_EnvironmentWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FRUGALFLOW_CURRENCY=GBP\n"), 0o644))

	t.Setenv(EnvCurrency, "JPY")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "JPY", cfg.Currency)
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	t.Setenv(EnvCurrency, "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}
