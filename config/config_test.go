package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolatedEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, key := range []string{"SUNO_API_SERVERS", "SUNO_API_SERVER_1", "SUNO_API_SERVER_2", "SUNO_API_SERVER_10", "TELEGRAM_BOT_TOKEN", "BOT_TOKEN", "USER_DAILY_LIMIT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolatedEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("SUNO_API_SERVER_1", "http://a")

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "tok", cfg.BotToken)
	assert.Equal(t, 5, cfg.UserDailyLimit)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.PollTimeout)
	assert.Equal(t, 30*time.Second, cfg.ProgressInterval)
	assert.Equal(t, QuotaBackendMemory, cfg.QuotaBackend)
	assert.False(t, cfg.MinioEnabled())
}

func TestLoadNumberedServersKeepOrder(t *testing.T) {
	isolatedEnv(t)
	t.Setenv("SUNO_API_SERVER_10", "http://ten/")
	t.Setenv("SUNO_API_SERVER_2", "http://two")
	t.Setenv("SUNO_API_SERVER_1", "http://one")

	cfg := Load()
	assert.Equal(t, []string{"http://one", "http://two", "http://ten"}, cfg.SunoServers)
}

func TestLoadServerListWinsOverNumbered(t *testing.T) {
	isolatedEnv(t)
	t.Setenv("SUNO_API_SERVER_1", "http://one")
	t.Setenv("SUNO_API_SERVERS", "http://x, http://y/ ,")

	cfg := Load()
	assert.Equal(t, []string{"http://x", "http://y"}, cfg.SunoServers)
}

func TestValidate(t *testing.T) {
	isolatedEnv(t)

	cfg := Load()
	assert.ErrorIs(t, cfg.Validate(), ErrMissingToken)

	cfg.BotToken = "tok"
	assert.ErrorIs(t, cfg.Validate(), ErrMissingServers)

	cfg.SunoServers = []string{"http://a"}
	cfg.QuotaBackend = "etcd"
	assert.ErrorContains(t, cfg.Validate(), "QUOTA_BACKEND")
}

func TestLoadReadsEnvFile(t *testing.T) {
	isolatedEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("USER_DAILY_LIMIT=7\nBOT_TOKEN=from-file\n"), 0644))
	t.Setenv("ENV_FILE", envFile)

	cfg := Load()
	assert.Equal(t, 7, cfg.UserDailyLimit)
	assert.Equal(t, "from-file", cfg.BotToken)
}

func TestDailyLimitFrom(t *testing.T) {
	n, ok := DailyLimitFrom(map[string]string{"USER_DAILY_LIMIT": " 12 "})
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = DailyLimitFrom(map[string]string{"USER_DAILY_LIMIT": "-1"})
	assert.False(t, ok)

	_, ok = DailyLimitFrom(map[string]string{})
	assert.False(t, ok)
}
