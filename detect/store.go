package detect

import (
	"fmt"
	"sync"
	"time"

	"apguard/core"
	"apguard/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultMaxDevices bounds the number of tracked devices
const DefaultMaxDevices = 65536

// Store owns all per-device correlation state for one engine instance.
//
// Every read or mutation of a DeviceRecord happens under a single store lock,
// so the event path and the expiry sweep never observe a half-updated
// record. Records are created lazily on first event. When the store is full
// the least recently seen device is dropped.
type Store struct {
	mu      sync.Mutex
	devices *lru.Cache[core.MacAddress, *core.DeviceRecord]
	logger  *zap.SugaredLogger

	// removing is set while Remove runs; the cache reports explicit removals
	// through the same callback as capacity evictions.
	removing bool
}

// NewStore creates a store holding at most maxDevices records.
func NewStore(maxDevices int, logger *zap.SugaredLogger) (*Store, error) {
	if maxDevices <= 0 {
		maxDevices = DefaultMaxDevices
	}

	s := &Store{logger: logger}
	cache, err := lru.NewWithEvict(maxDevices, s.onEvicted)
	if err != nil {
		return nil, fmt.Errorf("failed to create device cache: %w", err)
	}
	s.devices = cache
	return s, nil
}

// onEvicted runs when capacity pushes a record out.
func (s *Store) onEvicted(mac core.MacAddress, rec *core.DeviceRecord) {
	if s.removing {
		return
	}
	metrics.DevicesEvicted.WithLabelValues("capacity").Inc()
	if rec.BlockedUntil != nil {
		s.logger.Warnw("Evicted blocked device to make room",
			"mac", mac,
			"blocked_until", *rec.BlockedUntil)
		return
	}
	s.logger.Debugw("Evicted least recently seen device", "mac", mac, "failure_count", rec.FailureCount)
}

// Update runs fn with exclusive access to the record for mac, creating the
// record if it does not exist yet. seen updates the record's LastSeen.
func (s *Store) Update(mac core.MacAddress, seen time.Time, fn func(rec *core.DeviceRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.devices.Get(mac)
	if !ok {
		rec = &core.DeviceRecord{DeviceID: mac, SequenceState: core.SequenceIdle}
		s.devices.Add(mac, rec)
		metrics.TrackedDevices.Set(float64(s.devices.Len()))
	}
	if seen.After(rec.LastSeen) {
		rec.LastSeen = seen
	}
	fn(rec)
}

// Get returns a copy of the record for mac.
func (s *Store) Get(mac core.MacAddress) (core.DeviceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.devices.Peek(mac)
	if !ok {
		return core.DeviceRecord{}, false
	}
	return copyRecord(rec), true
}

// Range calls fn for every record under the store lock without touching
// recency. fn may mutate the record but must not call back into the store.
func (s *Store) Range(fn func(rec *core.DeviceRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mac := range s.devices.Keys() {
		if rec, ok := s.devices.Peek(mac); ok {
			fn(rec)
		}
	}
}

// Remove drops the record for mac.
func (s *Store) Remove(mac core.MacAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removing = true
	ok := s.devices.Remove(mac)
	s.removing = false
	if !ok {
		return false
	}
	metrics.TrackedDevices.Set(float64(s.devices.Len()))
	return true
}

// EvictIdle drops records last seen at least ttl before now. Blocked
// devices are kept until their window has been forgiven.
func (s *Store) EvictIdle(now time.Time, ttl time.Duration) []core.MacAddress {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []core.MacAddress
	s.removing = true
	for _, mac := range s.devices.Keys() {
		rec, ok := s.devices.Peek(mac)
		if !ok || rec.BlockedUntil != nil || now.Sub(rec.LastSeen) < ttl {
			continue
		}
		s.devices.Remove(mac)
		evicted = append(evicted, mac)
	}
	s.removing = false

	if len(evicted) > 0 {
		metrics.DevicesEvicted.WithLabelValues("idle").Add(float64(len(evicted)))
		metrics.TrackedDevices.Set(float64(s.devices.Len()))
	}
	return evicted
}

// Snapshot returns copies of all records.
func (s *Store) Snapshot() []core.DeviceRecord {
	out := make([]core.DeviceRecord, 0, s.Len())
	s.Range(func(rec *core.DeviceRecord) {
		out = append(out, copyRecord(rec))
	})
	return out
}

// Len returns the number of tracked devices.
func (s *Store) Len() int {
	return s.devices.Len()
}

func copyRecord(rec *core.DeviceRecord) core.DeviceRecord {
	out := *rec
	if rec.BlockedUntil != nil {
		until := *rec.BlockedUntil
		out.BlockedUntil = &until
	}
	return out
}
