package acl

import (
	"strings"

	"apguard/core"
)

// DenyFile stores blocked devices one per line, the format hostapd reads
// through deny_mac_file. Blank lines and # comments are preserved.
type DenyFile struct {
	path string
}

// NewDenyFile creates a deny-file backed list for path.
func NewDenyFile(path string) *DenyFile {
	return &DenyFile{path: path}
}

// Contains implements ListStore.
func (d *DenyFile) Contains(mac core.MacAddress) (bool, error) {
	macs, err := d.List()
	if err != nil {
		return false, err
	}
	for _, m := range macs {
		if m == mac {
			return true, nil
		}
	}
	return false, nil
}

// Append implements ListStore.
func (d *DenyFile) Append(mac core.MacAddress) error {
	lines, err := readLines(d.path)
	if err != nil {
		return err
	}
	return writeLinesAtomic(d.path, append(lines, mac.String()))
}

// Remove implements ListStore.
func (d *DenyFile) Remove(mac core.MacAddress) (bool, error) {
	lines, err := readLines(d.path)
	if err != nil {
		return false, err
	}

	out := make([]string, 0, len(lines))
	removed := false
	for _, line := range lines {
		if entry, ok := parseDenyEntry(line); ok && entry == mac {
			removed = true
			continue
		}
		out = append(out, line)
	}
	if !removed {
		return false, nil
	}
	return true, writeLinesAtomic(d.path, out)
}

// List implements ListStore.
func (d *DenyFile) List() ([]core.MacAddress, error) {
	lines, err := readLines(d.path)
	if err != nil {
		return nil, err
	}
	var macs []core.MacAddress
	for _, line := range lines {
		if mac, ok := parseDenyEntry(line); ok {
			macs = append(macs, mac)
		}
	}
	return macs, nil
}

func parseDenyEntry(line string) (core.MacAddress, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	mac, err := core.ParseMacAddress(line)
	if err != nil {
		return "", false
	}
	return mac, true
}

// String returns a description for logs.
func (d *DenyFile) String() string {
	return "denyfile:" + d.path
}
