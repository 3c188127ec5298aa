package ingest

import (
	"fmt"
	"strings"
	"time"

	"apguard/config"
	"apguard/core"
	"apguard/metrics"

	"github.com/dlclark/regexp2"
)

// DefaultRegexTimeout bounds a single signature match so a pathological
// configured pattern cannot stall the event loop.
const DefaultRegexTimeout = 100 * time.Millisecond

// signature is one compiled failure pattern
type signature struct {
	id      core.PatternID
	literal string // lowercased; empty when re is set
	re      *regexp2.Regexp
}

// SignatureSet is an ordered list of compiled failure signatures.
// The first matching signature wins.
type SignatureSet struct {
	sigs []signature
}

// CompileSignatures compiles the configured patterns in order.
func CompileSignatures(patterns []config.FailurePattern, timeout time.Duration) (*SignatureSet, error) {
	if timeout <= 0 {
		timeout = DefaultRegexTimeout
	}

	set := &SignatureSet{sigs: make([]signature, 0, len(patterns))}
	for i, p := range patterns {
		if p.ID == "" || p.Match == "" {
			return nil, fmt.Errorf("%w: failure pattern %d has empty id or match", config.ErrConfigInvalid, i)
		}
		sig := signature{id: core.PatternID(p.ID)}
		if p.Regex {
			if err := checkSignatureComplexity(p.Match); err != nil {
				return nil, fmt.Errorf("%w: failure pattern %q: %v", config.ErrConfigInvalid, p.ID, err)
			}
			re, err := regexp2.Compile(p.Match, regexp2.IgnoreCase)
			if err != nil {
				return nil, fmt.Errorf("%w: failure pattern %q: %v", config.ErrConfigInvalid, p.ID, err)
			}
			re.MatchTimeout = timeout
			sig.re = re
		} else {
			sig.literal = strings.ToLower(p.Match)
		}
		set.sigs = append(set.sigs, sig)
	}
	return set, nil
}

// Match returns the id of the first signature matching line.
// lower must be strings.ToLower(line).
func (s *SignatureSet) Match(line, lower string) (core.PatternID, bool) {
	if s == nil {
		return "", false
	}
	for _, sig := range s.sigs {
		if sig.re == nil {
			if strings.Contains(lower, sig.literal) {
				return sig.id, true
			}
			continue
		}
		ok, err := sig.re.MatchString(line)
		if err != nil {
			// timeout; treat as no match
			metrics.RegexErrors.Inc()
			continue
		}
		if ok {
			return sig.id, true
		}
	}
	return "", false
}

// Len returns the number of signatures.
func (s *SignatureSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.sigs)
}
