package core

import "time"

// AuditAction names an entry in the block history.
type AuditAction string

const (
	AuditBlock   AuditAction = "block"
	AuditApply   AuditAction = "apply"
	AuditExpire  AuditAction = "expire"
	AuditRelease AuditAction = "release"
)

// AuditEntry is one row of block history.
type AuditEntry struct {
	At         time.Time
	DeviceID   MacAddress
	Action     AuditAction
	DecisionID string
	Result     string
	Detail     string
}
