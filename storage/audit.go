package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"apguard/core"

	"go.uber.org/zap"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS block_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	at          TEXT NOT NULL,
	device_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	decision_id TEXT NOT NULL DEFAULT '',
	result      TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_block_history_device ON block_history(device_id, at);
`

// AuditStore is the append-only block history.
type AuditStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewAuditStore opens (or creates) the history database at path.
func NewAuditStore(path string, logger *zap.SugaredLogger) (*AuditStore, error) {
	db, err := openSQLite(path, logger)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(auditSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create block_history table: %w", err)
	}
	return &AuditStore{db: db, logger: logger}, nil
}

// Record appends one entry.
func (s *AuditStore) Record(ctx context.Context, entry core.AuditEntry) error {
	if entry.DeviceID == "" || entry.Action == "" {
		return fmt.Errorf("audit entry requires device and action")
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO block_history (at, device_id, action, decision_id, result, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.At.UTC().Format(time.RFC3339Nano),
		string(entry.DeviceID),
		string(entry.Action),
		entry.DecisionID,
		entry.Result,
		entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert block history: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]core.AuditEntry, error) {
	return s.query(ctx,
		`SELECT at, device_id, action, decision_id, result, detail FROM block_history ORDER BY id DESC LIMIT ?`,
		limit)
}

// ForDevice returns up to limit entries for mac, newest first.
func (s *AuditStore) ForDevice(ctx context.Context, mac core.MacAddress, limit int) ([]core.AuditEntry, error) {
	return s.query(ctx,
		`SELECT at, device_id, action, decision_id, result, detail FROM block_history WHERE device_id = ? ORDER BY id DESC LIMIT ?`,
		string(mac), limit)
}

func (s *AuditStore) query(ctx context.Context, query string, args ...any) ([]core.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query block history: %w", err)
	}
	defer rows.Close()

	var entries []core.AuditEntry
	for rows.Next() {
		var (
			at, device, action string
			entry              core.AuditEntry
		)
		if err := rows.Scan(&at, &device, &action, &entry.DecisionID, &entry.Result, &entry.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan block history: %w", err)
		}
		if entry.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			s.logger.Warnw("Unparseable block history timestamp", "value", at, "error", err)
		}
		entry.DeviceID = core.MacAddress(device)
		entry.Action = core.AuditAction(action)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
