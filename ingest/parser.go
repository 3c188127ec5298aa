package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"apguard/core"
)

var (
	disassocPattern   = regexp.MustCompile(`(?i)\bdisassociat(ed|ion)\b`)
	notAllowedPattern = regexp.MustCompile(`(?i)\bnot allowed to (connect|associate|authenticate)\b`)
	assocPattern      = regexp.MustCompile(`(?i)\b(re)?association request\b|\bassociated\b`)

	// hostapd prefixes the station address with "STA"; prefer it over other
	// addresses (BSSID) on the same line.
	staPattern = regexp.MustCompile(`(?i)\bSTA\s+([0-9a-f]{2}(?::[0-9a-f]{2}){5})` + core.MacTokenEnd)
)

// Parser turns raw log lines into AuthEvents. It holds no mutable state and
// is safe for concurrent use.
type Parser struct {
	signatures *SignatureSet
}

// NewParser creates a parser using the given failure signatures.
func NewParser(signatures *SignatureSet) *Parser {
	return &Parser{signatures: signatures}
}

// Parse converts a line into an AuthEvent stamped with at.
//
// It returns (nil, nil) for lines that match no known event, and
// (nil, core.ErrParseMiss) for lines with a recognized keyword or signature
// but no extractable MAC address.
func (p *Parser) Parse(line string, at time.Time) (*core.AuthEvent, error) {
	line = strings.TrimRightFunc(line, isTrailingSpace)
	if line == "" {
		return nil, nil
	}
	lower := strings.ToLower(line)

	kind, keyword := classify(line)
	patternID, matched := p.signatures.Match(line, lower)

	if keyword == "" && !matched {
		return nil, nil
	}
	if keyword == "" {
		kind = core.EventPatternMatch
		keyword = string(patternID)
	}

	mac, ok := extractMAC(line)
	if !ok {
		return nil, fmt.Errorf("%w (%s)", core.ErrParseMiss, keyword)
	}

	event := &core.AuthEvent{
		DeviceID:  mac,
		Kind:      kind,
		Timestamp: at,
	}
	if matched {
		id := patternID
		event.PatternMatched = &id
	}
	return event, nil
}

// classify returns the sequence kind of a line and the keyword that matched.
// Disassociation wins over rejection, rejection over association.
func classify(line string) (core.EventKind, string) {
	switch {
	case disassocPattern.MatchString(line):
		return core.EventDisassociated, "disassociated"
	case notAllowedPattern.MatchString(line):
		return core.EventNotAllowed, "not allowed"
	case assocPattern.MatchString(line):
		return core.EventAssociated, "associated"
	}
	return "", ""
}

func extractMAC(line string) (core.MacAddress, bool) {
	if m := staPattern.FindStringSubmatch(line); m != nil {
		return core.MacAddress(strings.ToLower(m[1])), true
	}
	return core.FindMacAddress(line)
}

func isTrailingSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}
