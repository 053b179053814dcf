package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/conecta.yaml")

	cfg := Load()
	require.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:8090", cfg.ServiceURL)
	assert.Equal(t, "chat_media", cfg.MediaBucket)
	assert.Equal(t, 2*time.Second, cfg.Chat.TypingIdle)
	assert.Equal(t, 3*time.Second, cfg.Chat.TypingExpiry)
	assert.Equal(t, 15*time.Second, cfg.Chat.SendConfirmTimeout)
	assert.Equal(t, 10, cfg.DBMaxConnections())
	assert.Equal(t, 10, cfg.WSWriteTimeout)
	assert.Equal(t, 60, cfg.WSPongTimeout)
	assert.Equal(t, 65536, cfg.WSMaxMessageSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/conecta.yaml")
	t.Setenv("SERVICE_URL", "https://api.example.com")
	t.Setenv("MEDIA_BUCKET", "media_test")
	t.Setenv("TYPING_IDLE_MS", "500")
	t.Setenv("TYPING_EXPIRY_MS", "900")
	t.Setenv("SEND_CONFIRM_SECONDS", "5")
	t.Setenv("DB_MAX_CONNECTIONS", "3")
	t.Setenv("WS_PONG_TIMEOUT", "30")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, "https://api.example.com", cfg.ServiceURL)
	assert.Equal(t, "media_test", cfg.MediaBucket)
	assert.Equal(t, 500*time.Millisecond, cfg.Chat.TypingIdle)
	assert.Equal(t, 900*time.Millisecond, cfg.Chat.TypingExpiry)
	assert.Equal(t, 5*time.Second, cfg.Chat.SendConfirmTimeout)
	assert.Equal(t, 3, cfg.DBMaxConnections())
	assert.Equal(t, 30, cfg.WSPongTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/conecta.yaml"
	yaml := "service_url: http://yaml.example\nmedia_bucket: yaml_bucket\ntyping_idle_ms: 1000\n"
	writeFile(t, path, yaml)

	t.Setenv("CONFIG_PATH", path)
	cfg := Load()
	assert.Equal(t, "http://yaml.example", cfg.ServiceURL)
	assert.Equal(t, "yaml_bucket", cfg.MediaBucket)
	assert.Equal(t, time.Second, cfg.Chat.TypingIdle)
}

func TestEnvBeatsYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/conecta.yaml"
	writeFile(t, path, "service_url: http://yaml.example\n")

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVICE_URL", "http://env.example")
	cfg := Load()
	assert.Equal(t, "http://env.example", cfg.ServiceURL)
}

func TestInvalidTimingFallsBackToDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/conecta.yaml")
	t.Setenv("TYPING_IDLE_MS", "-5")
	t.Setenv("SEND_CONFIRM_SECONDS", "not-a-number")

	cfg := Load()
	assert.Equal(t, 2*time.Second, cfg.Chat.TypingIdle)
	assert.Equal(t, 15*time.Second, cfg.Chat.SendConfirmTimeout)
}
