package bootstrap

import (
	"path/filepath"
	"strings"
)

// remediation pairs error text fragments with operator guidance.
// {path} and {dir} in summary and hints expand to the absolute path and
// its parent directory.
type remediation struct {
	markers []string
	summary string
	hints   []string
}

var aclRemediations = []remediation{
	{
		markers: []string{"permission denied"},
		summary: "Permission denied writing access control list {path}.",
		hints:   []string{"Run apguard as root on the access point", "Check file permissions: ls -la {path}"},
	},
	{
		markers: []string{"read-only"},
		summary: "Access control list {path} is on a read-only file system.",
		hints: []string{
			"On OpenWrt, /etc/config lives on the overlay; check that it is mounted read-write",
			"Point acl.path at a writable deny file",
		},
	},
	{
		markers: []string{"no such file or directory"},
		summary: "Directory for access control list {path} does not exist.",
		hints:   []string{"Create the parent directory: mkdir -p {dir}"},
	},
}

var sqliteRemediations = []remediation{
	{
		markers: []string{"permission denied", "access denied"},
		summary: "Permission denied opening block history database {path}.",
		hints:   []string{"Check file permissions: ls -la {path}", "Check directory permissions: ls -la {dir}"},
	},
	{
		markers: []string{"database is locked", "SQLITE_BUSY"},
		summary: "Block history database {path} is locked by another process.",
		hints:   []string{"Check for another running apguard: ps | grep apguard"},
	},
	{
		markers: []string{"disk full", "no space", "SQLITE_FULL"},
		summary: "Disk full, block history database {path} cannot grow.",
		hints:   []string{"Check available space: df -h {dir}", "Move audit.sqlite_path to external storage"},
	},
	{
		markers: []string{"read-only"},
		summary: "Block history database {path} is on a read-only file system.",
		hints:   []string{"Move the database to a writable location via audit.sqlite_path"},
	},
}

// ClassifyACLError turns an ACL sink setup or write failure into an
// actionable message.
func ClassifyACLError(err error, path string) string {
	return classify(err, path, aclRemediations, "Access control list {path} failed: ")
}

// ClassifySQLiteError turns a block history database failure into an
// actionable message.
func ClassifySQLiteError(err error, dbPath string) string {
	return classify(err, dbPath, sqliteRemediations, "Failed to open block history database {path}: ")
}

func classify(err error, path string, table []remediation, fallback string) string {
	if err == nil {
		return ""
	}
	absPath, _ := filepath.Abs(path)
	expand := strings.NewReplacer("{path}", absPath, "{dir}", filepath.Dir(absPath)).Replace
	msg := err.Error()

	for _, r := range table {
		for _, marker := range r.markers {
			if !containsIgnoreCase(msg, marker) {
				continue
			}
			var b strings.Builder
			b.WriteString(expand(r.summary))
			b.WriteString("\n  Remediation:")
			for _, hint := range r.hints {
				b.WriteString("\n  - ")
				b.WriteString(expand(hint))
			}
			return b.String()
		}
	}
	return expand(fallback) + msg
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
