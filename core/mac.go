package core

import (
	"fmt"
	"regexp"
	"strings"
)

// MacTokenEnd matches what may follow a MAC token: end of input, a
// separator, or a colon that does not start another octet.
const MacTokenEnd = `(?:$|[^0-9a-z_:]|:(?:$|[^0-9a-z_]))`

// macPattern matches six colon separated octets anywhere in a string, but
// not six octets cut out of a longer colon separated run.
var macPattern = regexp.MustCompile(`(?i)(?:^|[^0-9a-z_:])([0-9a-f]{2}(?::[0-9a-f]{2}){5})` + MacTokenEnd)

// MacAddress is a canonical lowercase, colon separated 6-octet address.
// The zero value is not a valid address.
type MacAddress string

// ParseMacAddress validates s and returns its canonical form.
func ParseMacAddress(s string) (MacAddress, error) {
	s = strings.TrimSpace(s)
	if len(s) != 17 || !macPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, s)
	}
	return MacAddress(strings.ToLower(s)), nil
}

// MustParseMacAddress is like ParseMacAddress but panics on error.
// Intended for tests and constants.
func MustParseMacAddress(s string) MacAddress {
	mac, err := ParseMacAddress(s)
	if err != nil {
		panic(err)
	}
	return mac
}

// FindMacAddress extracts the first MAC-shaped token from a line.
func FindMacAddress(line string) (MacAddress, bool) {
	m := macPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return MacAddress(strings.ToLower(m[1])), true
}

// String implements fmt.Stringer.
func (m MacAddress) String() string {
	return string(m)
}
