package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"apguard/acl"
	"apguard/config"
	"apguard/core"
	"apguard/ingest"
	"apguard/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const failedLine = "wlan0: STA aa:bb:cc:dd:ee:ff WPA: invalid MIC in msg 2/4 of 4-Way Handshake\n"

// testConfig returns a config that tails logPath and writes a deny file
func testConfig(t *testing.T, logPath string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Source.Type = config.SourceFile
	cfg.Source.Path = logPath
	cfg.Source.FromStart = true
	cfg.Source.ReconnectDelay = 10 * time.Millisecond
	cfg.ACL.Format = config.ACLFormatDenyFile
	cfg.ACL.Path = filepath.Join(dir, "hostapd.deny")
	cfg.ACL.ApplyCommand = ""
	cfg.Audit.SQLitePath = filepath.Join(dir, "history.db")
	return cfg
}

func TestApp_BlocksFromTailedLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "hostapd.log")
	require.NoError(t, os.WriteFile(logPath, []byte(strings.Repeat(failedLine, 3)), 0o644))
	cfg := testConfig(t, logPath)

	ctx := context.Background()
	app, err := NewAppWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, app.Start(ctx))
	defer app.Shutdown()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(cfg.ACL.Path)
		return err == nil && strings.Contains(string(data), "aa:bb:cc:dd:ee:ff")
	}, 5*time.Second, 20*time.Millisecond)

	entries, err := app.Audit.Recent(ctx, 10)
	require.NoError(t, err)
	actions := make([]core.AuditAction, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, core.AuditBlock)
	assert.Contains(t, actions, core.AuditApply)
}

func TestApp_ShutdownPolicyEndsRun(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Source.Type = config.SourceCommand
	cfg.Source.Command = "/bin/echo " + strings.TrimSpace(failedLine)
	cfg.Source.OnExhausted = config.OnExhaustedShutdown
	if _, err := os.Stat("/bin/echo"); err != nil {
		t.Skip("/bin/echo not available")
	}

	ctx := context.Background()
	app, err := NewAppWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, app.Start(ctx))
	defer app.Shutdown()

	err = app.WaitForShutdown()
	assert.ErrorIs(t, err, ingest.ErrSourceExhausted)
	assert.Equal(t, uint64(1), app.Engine.Stats().EventsParsed)
}

func TestNewAppWithConfig_BadApplyCommand(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "hostapd.log"))
	cfg.ACL.ApplyCommand = "sh -c reboot"

	_, err := NewAppWithConfig(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrConfigInvalid)
}

func TestOpenSource_UnknownType(t *testing.T) {
	cfg := config.Default()
	cfg.Source.Type = "socket"
	_, err := OpenSource(context.Background(), cfg, false, zap.NewNop().Sugar())
	assert.ErrorIs(t, err, config.ErrConfigInvalid)
}

func TestSuperviseSource_ReconnectsUntilCancel(t *testing.T) {
	// the file does not exist, so every open fails and is retried
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing.log"))
	app, err := NewAppWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer app.closeAudit()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, superviseSource(ctx, cfg, app.Engine, zap.NewNop().Sugar()))
}

func TestInitAuditStore_KeepsCause(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "hostapd.log"))
	cfg.Audit.SQLitePath = "../history.db"

	_, err := InitAuditStore(cfg, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrInvalidDatabasePath))
	assert.Contains(t, err.Error(), "Failed to open block history database")
}

func TestShutdownWait_CoversApplyTimeout(t *testing.T) {
	cfg := config.Default()
	assert.Greater(t, shutdownWait(cfg), cfg.ACL.ApplyTimeout)

	cfg.ACL.ApplyTimeout = 2 * time.Minute
	assert.Equal(t, 2*time.Minute+shutdownMargin, shutdownWait(cfg))

	assert.Greater(t, shutdownWait(nil), acl.DefaultApplyTimeout)
}
