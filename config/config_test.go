package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FileWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  token: file-token
  chat_id: "-100200"
roster:
  backend: xlsx
  xlsx_path: roster.xlsx
sources:
  codechef:
    page_delay: 2s
sync:
  write_max_attempts: 3
`), 0o600))

	t.Setenv("TOKEN", "env-token")
	t.Setenv("SYNC_CONCURRENCY", "4")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "-100200", cfg.Telegram.ChatID)
	assert.Equal(t, RosterXLSX, cfg.Roster.Backend)
	assert.Equal(t, 2*time.Second, cfg.Sources.CodeChef.PageDelay)
	assert.Equal(t, 40, cfg.Sources.CodeChef.MaxPages, "defaults survive partial sections")
	assert.Equal(t, 3, cfg.Sync.WriteMaxAttempts)
	assert.Equal(t, 4, cfg.Sync.Concurrency)
	assert.NoError(t, cfg.Validate(true))
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Setenv("TOKEN", "t")
	t.Setenv("TARGET_CHAT_ID", "@channel")
	t.Setenv("SHEET_NAME", "Roster")
	t.Setenv("SHEET_URL", "https://docs.google.com/spreadsheets/d/abc123/edit")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, RosterSheets, cfg.Roster.Backend)
	assert.Equal(t, 6, cfg.Report.UTCOffsetHours)
	assert.Equal(t, 4000, cfg.Report.MaxMessageLength)
	assert.NoError(t, cfg.Validate(true))
}

func TestLoadConfig_InvalidEnv(t *testing.T) {
	t.Setenv("SCHEDULE_INTERVAL", "daily")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name            string
		mutate          func(*Config)
		requireDelivery bool
		wantMissing     bool
		wantErr         bool
	}{
		{
			name:            "missing delivery credentials",
			mutate:          func(c *Config) { c.Roster.Backend = RosterXLSX; c.Roster.XLSXPath = "r.xlsx" },
			requireDelivery: true,
			wantMissing:     true,
		},
		{
			name:   "dry run skips delivery credentials",
			mutate: func(c *Config) { c.Roster.Backend = RosterXLSX; c.Roster.XLSXPath = "r.xlsx" },
		},
		{
			name:        "postgres without dsn",
			mutate:      func(c *Config) { c.Roster.Backend = RosterPostgres },
			wantMissing: true,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Roster.Backend = "csv" },
			wantErr: true,
		},
		{
			name: "zero write attempts",
			mutate: func(c *Config) {
				c.Roster.Backend = RosterXLSX
				c.Roster.XLSXPath = "r.xlsx"
				c.Sync.WriteMaxAttempts = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate(tt.requireDelivery)
			switch {
			case tt.wantMissing:
				assert.ErrorIs(t, err, ErrMissingSetting)
			case tt.wantErr:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}
