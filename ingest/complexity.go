package ingest

import (
	"fmt"
	"strings"
)

// Limits for configured failure signature regexes
const (
	maxSignatureLength       = 500
	maxSignatureAlternations = 50
	maxSignatureNesting      = 5
)

// checkSignatureComplexity rejects regexes likely to backtrack
// catastrophically on long log lines, such as (a+)+ where a quantified
// group itself contains a quantifier. The match timeout still applies to
// everything that passes.
func checkSignatureComplexity(pattern string) error {
	if len(pattern) > maxSignatureLength {
		return fmt.Errorf("pattern length %d exceeds maximum %d", len(pattern), maxSignatureLength)
	}
	if n := strings.Count(pattern, "|"); n > maxSignatureAlternations {
		return fmt.Errorf("%d alternations exceed maximum %d", n, maxSignatureAlternations)
	}

	// one entry per open group: whether it contains a quantifier
	var groups []bool
	markParent := func() {
		if len(groups) > 0 {
			groups[len(groups)-1] = true
		}
	}
	inClass := false

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '(':
			groups = append(groups, false)
			if len(groups) > maxSignatureNesting {
				return fmt.Errorf("group nesting exceeds maximum %d", maxSignatureNesting)
			}
		case c == ')':
			if len(groups) == 0 {
				continue // syntax errors are reported by the compiler
			}
			inner := groups[len(groups)-1]
			groups = groups[:len(groups)-1]
			quantified := i+1 < len(pattern) && isQuantifier(pattern[i+1])
			if quantified && inner {
				return fmt.Errorf("nested quantifier at offset %d", i)
			}
			if quantified || inner {
				markParent()
			}
		case isQuantifier(c):
			// "(?" opens a group modifier, not a quantifier
			if c == '?' && i > 0 && pattern[i-1] == '(' {
				continue
			}
			markParent()
		}
	}
	return nil
}

func isQuantifier(c byte) bool {
	return c == '*' || c == '+' || c == '?' || c == '{'
}
