package core

import "time"

// EventKind classifies a parsed log line.
type EventKind string

const (
	// EventAssociated is an association request or completed association
	EventAssociated EventKind = "associated"
	// EventNotAllowed is an explicit rejection by the access point
	EventNotAllowed EventKind = "not_allowed"
	// EventDisassociated is a disassociation of the station
	EventDisassociated EventKind = "disassociated"
	// EventPatternMatch is a line matching only a configured failure signature
	EventPatternMatch EventKind = "pattern_match"
)

// PatternID names a configured failure signature.
type PatternID string

// AuthEvent is an immutable, typed view of one log line.
//
// PatternMatched is set whenever a failure signature matched the line, even
// when Kind is one of the sequence kinds; a single line can therefore feed
// both detection strategies.
type AuthEvent struct {
	DeviceID       MacAddress
	Kind           EventKind
	PatternMatched *PatternID
	Timestamp      time.Time
}

// HasPattern reports whether a failure signature matched this event.
func (e AuthEvent) HasPattern() bool {
	return e.PatternMatched != nil
}

// Pattern returns the matched signature id or "".
func (e AuthEvent) Pattern() PatternID {
	if e.PatternMatched == nil {
		return ""
	}
	return *e.PatternMatched
}
