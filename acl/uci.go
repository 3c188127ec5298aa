package acl

import (
	"fmt"
	"regexp"
	"strings"

	"apguard/core"
)

var (
	uciMaclistLine   = regexp.MustCompile(`^\s*list\s+maclist\s+['"]?([^'"\s]+)['"]?\s*$`)
	uciMacfilterLine = regexp.MustCompile(`^\s*option\s+macfilter\s+`)
)

// UCIList stores blocked devices as `list maclist '<mac>'` entries in an
// OpenWrt wireless config file.
//
// New entries go after the last existing maclist entry, else after the
// `option macfilter` line, else at the end of the file.
type UCIList struct {
	path string
}

// NewUCIList creates a UCI backed list for path.
func NewUCIList(path string) *UCIList {
	return &UCIList{path: path}
}

// Contains implements ListStore.
func (u *UCIList) Contains(mac core.MacAddress) (bool, error) {
	lines, err := readLines(u.path)
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if entry, ok := parseUCIEntry(line); ok && entry == mac {
			return true, nil
		}
	}
	return false, nil
}

// Append implements ListStore.
func (u *UCIList) Append(mac core.MacAddress) error {
	lines, err := readLines(u.path)
	if err != nil {
		return err
	}

	insertAt := len(lines)
	lastMaclist, macfilter := -1, -1
	for i, line := range lines {
		if uciMaclistLine.MatchString(line) {
			lastMaclist = i
		} else if uciMacfilterLine.MatchString(line) {
			macfilter = i
		}
	}
	switch {
	case lastMaclist >= 0:
		insertAt = lastMaclist + 1
	case macfilter >= 0:
		insertAt = macfilter + 1
	}

	entry := fmt.Sprintf("\tlist maclist '%s'", mac)
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insertAt]...)
	out = append(out, entry)
	out = append(out, lines[insertAt:]...)
	return writeLinesAtomic(u.path, out)
}

// Remove implements ListStore.
func (u *UCIList) Remove(mac core.MacAddress) (bool, error) {
	lines, err := readLines(u.path)
	if err != nil {
		return false, err
	}

	out := make([]string, 0, len(lines))
	removed := false
	for _, line := range lines {
		if entry, ok := parseUCIEntry(line); ok && entry == mac {
			removed = true
			continue
		}
		out = append(out, line)
	}
	if !removed {
		return false, nil
	}
	return true, writeLinesAtomic(u.path, out)
}

// List implements ListStore.
func (u *UCIList) List() ([]core.MacAddress, error) {
	lines, err := readLines(u.path)
	if err != nil {
		return nil, err
	}
	var macs []core.MacAddress
	for _, line := range lines {
		if entry, ok := parseUCIEntry(line); ok {
			macs = append(macs, entry)
		}
	}
	return macs, nil
}

func parseUCIEntry(line string) (core.MacAddress, bool) {
	m := uciMaclistLine.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	mac, err := core.ParseMacAddress(m[1])
	if err != nil {
		return "", false
	}
	return mac, true
}

// String returns a description for logs.
func (u *UCIList) String() string {
	return "uci:" + strings.TrimSpace(u.path)
}
