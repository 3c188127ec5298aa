package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"apguard/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAuditStore(t *testing.T) *AuditStore {
	t.Helper()
	store, err := NewAuditStore(filepath.Join(t.TempDir(), "history.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAuditStore_RecordAndRecent(t *testing.T) {
	store := newTestAuditStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, core.AuditEntry{
		At: at, DeviceID: "aa:bb:cc:dd:ee:ff", Action: core.AuditBlock, DecisionID: "d-1", Result: "decided",
	}))
	require.NoError(t, store.Record(ctx, core.AuditEntry{
		At: at.Add(time.Second), DeviceID: "aa:bb:cc:dd:ee:ff", Action: core.AuditApply, DecisionID: "d-1", Result: "applied",
	}))
	require.NoError(t, store.Record(ctx, core.AuditEntry{
		At: at.Add(2 * time.Second), DeviceID: "11:22:33:44:55:66", Action: core.AuditExpire, Result: "forgiven",
	}))

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, core.AuditExpire, recent[0].Action)
	assert.Equal(t, core.AuditApply, recent[1].Action)
	assert.Equal(t, "d-1", recent[1].DecisionID)
	assert.True(t, at.Add(time.Second).Equal(recent[1].At))

	forDevice, err := store.ForDevice(ctx, "aa:bb:cc:dd:ee:ff", 10)
	require.NoError(t, err)
	assert.Len(t, forDevice, 2)
}

func TestAuditStore_RejectsIncompleteEntry(t *testing.T) {
	store := newTestAuditStore(t)
	assert.Error(t, store.Record(context.Background(), core.AuditEntry{Action: core.AuditBlock}))
}

func TestAuditStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := NewAuditStore(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, core.AuditEntry{DeviceID: "aa:bb:cc:dd:ee:ff", Action: core.AuditBlock}))
	require.NoError(t, store.Close())

	store, err = NewAuditStore(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer store.Close()

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestNewAuditStore_InvalidPath(t *testing.T) {
	_, err := NewAuditStore("../history.db", zap.NewNop().Sugar())
	assert.ErrorIs(t, err, ErrInvalidDatabasePath)
}

func TestValidateDatabasePath(t *testing.T) {
	assert.Error(t, validateDatabasePath(""))
	assert.Error(t, validateDatabasePath("../history.db"))
	assert.Error(t, validateDatabasePath("data/\x00.db"))
	assert.NoError(t, validateDatabasePath("/var/lib/apguard/history.db"))
	assert.NoError(t, validateDatabasePath(":memory:"))
	assert.NoError(t, validateDatabasePath("history..db"))
}
