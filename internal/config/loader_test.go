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
	for _, k := range []string{EnvDatabaseURL, EnvWebhookSecret, EnvListenAddr, EnvLogLevel, EnvLogFormat} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadEnvOnlyAppliesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "msghook", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, "json", cfg.Service.LogFormat)
	assert.Equal(t, "127.0.0.1:8000", cfg.HTTP.Listen)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "X-Signature", cfg.Webhook.SignatureHeader)
	assert.False(t, cfg.Ready(), "no database or secret configured")
}

func TestLoadFileWithInterpolation(t *testing.T) {
	clearEnv(t)
	t.Setenv("MSGHOOK_TEST_SECRET", "s3cret")

	path := writeConfig(t, t.TempDir(), `
service:
  log_level: debug
  log_format: text
http:
  listen: ":9000"
  read_timeout: 5s
database:
  url: sqlite:///data/app.db
webhook:
  secret: ${MSGHOOK_TEST_SECRET}
  signature_header: X-Hub-Signature-256
  max_body_size: 64KB
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, "text", cfg.Service.LogFormat)
	assert.Equal(t, ":9000", cfg.HTTP.Listen)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, "s3cret", cfg.Webhook.Secret)
	assert.Equal(t, "data/app.db", cfg.DatabasePath())
	assert.Equal(t, path, cfg.SourcePath)

	size, err := cfg.Webhook.MaxBodyBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(64*1024), size)
	assert.True(t, cfg.Ready())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDatabaseURL, "sqlite:////var/lib/msghook/app.db")
	t.Setenv(EnvWebhookSecret, "from-env")
	t.Setenv(EnvLogLevel, "WARN")

	path := writeConfig(t, t.TempDir(), `
database:
  url: file.db
webhook:
  secret: from-file
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/msghook/app.db", cfg.DatabasePath())
	assert.Equal(t, "from-env", cfg.Webhook.Secret)
	assert.Equal(t, "warn", cfg.Service.LogLevel)
}

func TestLoadDirectoryResolvesConfigYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "service:\n  name: dir-mode\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "dir-mode", cfg.Service.Name)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "log level", body: "service:\n  log_level: loud\n"},
		{name: "log format", body: "service:\n  log_format: xml\n"},
		{name: "body size", body: "webhook:\n  max_body_size: lots\n"},
		{name: "unresolved secret", body: "webhook:\n  secret: ${MSGHOOK_SURELY_UNSET_VAR}\n"},
		{name: "negative timeout", body: "http:\n  idle_timeout: -1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("WEBHOOK_SECRET=dotenv-secret\nDATABASE_URL=dot.db\n"), 0o600))

	// godotenv.Load does not override variables that are already set, even
	// when empty, so unset them for this test.
	require.NoError(t, os.Unsetenv(EnvWebhookSecret))
	require.NoError(t, os.Unsetenv(EnvDatabaseURL))
	t.Cleanup(func() {
		_ = os.Unsetenv(EnvWebhookSecret)
		_ = os.Unsetenv(EnvDatabaseURL)
	})

	require.NoError(t, LoadEnvFile(envPath))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-secret", cfg.Webhook.Secret)
	assert.Equal(t, "dot.db", cfg.DatabasePath())

	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "1048576", want: 1048576},
		{in: "1MB", want: 1 << 20},
		{in: "2kb", want: 2048},
		{in: "1GB", want: 1 << 30},
		{in: "0", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "MB", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseByteSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDatabasePath(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{url: "sqlite:///data/app.db", want: "data/app.db"},
		{url: "sqlite:////abs/app.db", want: "/abs/app.db"},
		{url: "sqlite://rel.db", want: "rel.db"},
		{url: "/plain/path/app.db", want: "/plain/path/app.db"},
		{url: "", want: ""},
	}
	for _, tc := range cases {
		cfg := &Config{Database: DatabaseConfig{URL: tc.url}}
		assert.Equal(t, tc.want, cfg.DatabasePath(), tc.url)
	}
}
