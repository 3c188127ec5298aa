// Package core defines the domain model shared by the apguard packages.
//
// The core package provides:
//   - MacAddress, the validated device identifier used as the key everywhere
//   - AuthEvent, the typed form of one line from the access point log
//   - DeviceRecord, the per-device correlation and rate-limit state
//   - FailureSignal and BlockDecision, the values passed between detection stages
//
// Types in this package carry no behavior that depends on configuration or
// I/O; parsing, correlation and blocking live in ingest, detect and acl.
package core
