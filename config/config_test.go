package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes body to a temp apguard.yaml and returns its path
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.Detection.AttemptLimit)
	assert.Equal(t, time.Hour, cfg.Detection.BlockDuration)
	assert.Equal(t, 30*time.Second, cfg.Detection.SweepInterval)
	assert.Equal(t, time.Duration(0), cfg.Detection.EpisodeWindow)
	assert.Equal(t, 65536, cfg.Detection.MaxDevices)
	assert.Equal(t, time.Duration(0), cfg.Detection.IdleTTL)
	assert.Equal(t, SourceFile, cfg.Source.Type)
	assert.Equal(t, ACLFormatUCI, cfg.ACL.Format)
	assert.Equal(t, "/etc/config/wireless", cfg.ACL.Path)
	assert.Equal(t, 3, cfg.ACL.ApplyMaxFailures)
	assert.Equal(t, 5*time.Minute, cfg.ACL.ApplyCooldown)
	assert.Len(t, cfg.Detection.FailurePatterns, len(DefaultFailurePatterns()))
	assert.NoError(t, validateConfig(cfg))
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
detection:
  attempt_limit: 5
  block_duration: 2h
  sweep_interval: 10s
  failure_patterns:
    - id: invalid_mic
      match: invalid MIC
    - id: timeout
      match: "handshake.*timeout"
      regex: true
source:
  type: command
  command: logread -f
acl:
  format: denyfile
  path: /tmp/hostapd.deny
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Detection.AttemptLimit)
	assert.Equal(t, 2*time.Hour, cfg.Detection.BlockDuration)
	assert.Equal(t, 10*time.Second, cfg.Detection.SweepInterval)
	require.Len(t, cfg.Detection.FailurePatterns, 2)
	assert.Equal(t, "timeout", cfg.Detection.FailurePatterns[1].ID)
	assert.True(t, cfg.Detection.FailurePatterns[1].Regex)
	assert.Equal(t, SourceCommand, cfg.Source.Type)
	assert.Equal(t, ACLFormatDenyFile, cfg.ACL.Format)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "detection:\n  attempt_limit: 5\n")
	t.Setenv("APGUARD_DETECTION_ATTEMPT_LIMIT", "7")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Detection.AttemptLimit)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero attempt limit", "detection:\n  attempt_limit: 0\n"},
		{"negative attempt limit", "detection:\n  attempt_limit: -2\n"},
		{"negative block duration", "detection:\n  block_duration: -1h\n"},
		{"zero sweep interval", "detection:\n  sweep_interval: 0s\n"},
		{"negative episode window", "detection:\n  episode_window: -5s\n"},
		{"unknown source type", "source:\n  type: socket\n"},
		{"unknown acl format", "acl:\n  format: iptables\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"malformed regex", "detection:\n  failure_patterns:\n    - id: broken\n      match: \"(unclosed\"\n      regex: true\n"},
		{"pattern without id", "detection:\n  failure_patterns:\n    - match: invalid MIC\n"},
		{"duplicate pattern id", "detection:\n  failure_patterns:\n    - id: a\n      match: x\n    - id: a\n      match: y\n"},
		{"empty pattern list", "detection:\n  failure_patterns: []\n"},
		{"command source without command", "source:\n  type: command\n  command: \"  \"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfigInvalid)
		})
	}
}
