package bootstrap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsIgnoreCase(t *testing.T) {
	tests := []struct {
		s, substr string
		want      bool
	}{
		{"Permission Denied", "permission denied", true},
		{"read-only file system", "READ-ONLY", true},
		{"anything", "", true},
		{"short", "longer substring", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, containsIgnoreCase(tt.s, tt.substr), "%q in %q", tt.substr, tt.s)
	}
}

func TestClassifyACLError(t *testing.T) {
	assert.Empty(t, ClassifyACLError(nil, "/etc/config/wireless"))

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"permission", errors.New("open /etc/config/wireless: permission denied"), "Run apguard as root"},
		{"read-only", errors.New("rename: read-only file system"), "read-only file system"},
		{"missing dir", errors.New("open /x/y: no such file or directory"), "mkdir -p"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, ClassifyACLError(tt.err, "/etc/config/wireless"), tt.want)
		})
	}
}

func TestClassifySQLiteError(t *testing.T) {
	assert.Empty(t, ClassifySQLiteError(nil, "history.db"))

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"permission", errors.New("unable to open database file: permission denied"), "Permission denied opening"},
		{"locked", errors.New("database is locked (SQLITE_BUSY)"), "locked by another process"},
		{"full", errors.New("SQLITE_FULL: database or disk is full"), "Disk full"},
		{"read-only", errors.New("attempt to write a readonly database: read-only"), "read-only file system"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, ClassifySQLiteError(tt.err, "history.db"), tt.want)
		})
	}
}
