package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// unixUserRegex validates Unix usernames
	// Standard POSIX username rules
	// Length: 1-32 characters
	unixUserRegex = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

	// hostRegex validates hostnames and IPv4 literals
	hostRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]{0,251}[a-zA-Z0-9])?$`)

	// sensitiveLogPatterns are assignment prefixes whose values get masked
	sensitiveLogPatterns = []string{
		"PASSWORD=",
		"PASSWD=",
		"SECRET=",
		"TOKEN=",
		"API_KEY=",
	}
)

// ValidateUnixUser validates a Unix username
func ValidateUnixUser(user string) error {
	if user == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(user) > 32 {
		return fmt.Errorf("username too long (max 32 characters)")
	}
	if !unixUserRegex.MatchString(user) {
		return fmt.Errorf("username must start with a lowercase letter or underscore, followed by lowercase letters, numbers, underscores, or hyphens")
	}
	return nil
}

// ValidateHost validates a hostname, IPv4 or IPv6 literal
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if len(host) > 253 {
		return fmt.Errorf("host too long (max 253 characters)")
	}
	// IPv6 literals are left to the dialer
	if strings.Contains(host, ":") {
		return nil
	}
	if !hostRegex.MatchString(host) {
		return fmt.Errorf("host contains invalid characters: %s", host)
	}
	return nil
}

// ValidateRemotePath rejects remote paths that cannot be passed safely to
// scp or sftp.
func ValidateRemotePath(path string) error {
	if path == "" {
		return fmt.Errorf("remote path cannot be empty")
	}
	if strings.ContainsAny(path, "\x00\n\r") {
		return fmt.Errorf("remote path contains control characters")
	}
	return nil
}

// ShellEscape escapes a string for safe use in shell commands by wrapping it
// in single quotes. An internal single quote closes the quoting, is escaped
// with a backslash, and reopens it (the POSIX pattern).
func ShellEscape(s string) string {
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// SanitizeCommandForLog masks sensitive values in commands before logging.
// This prevents secrets from leaking into verbose output or log files.
func SanitizeCommandForLog(cmd string) string {
	result := cmd

	for _, pattern := range sensitiveLogPatterns {
		searchFrom := 0
		for {
			idx := strings.Index(strings.ToUpper(result[searchFrom:]), pattern)
			if idx == -1 {
				break
			}
			valueStart := searchFrom + idx + len(pattern)
			valueEnd := findValueEnd(result, valueStart)
			masked := "****"
			result = result[:valueStart] + masked + result[valueEnd:]
			searchFrom = valueStart + len(masked)
		}
	}

	return maskPasswordFlag(result)
}

// findValueEnd finds where a shell value ends (handles quoted and unquoted values)
func findValueEnd(s string, start int) int {
	if start >= len(s) {
		return start
	}

	if s[start] == '\'' || s[start] == '"' {
		end := strings.IndexByte(s[start+1:], s[start])
		if end == -1 {
			return len(s)
		}
		return start + end + 2
	}

	for i := start; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' || s[i] == '\n' {
			return i
		}
	}
	return len(s)
}

// maskPasswordFlag masks the argument following sshpass-style "-p <password>"
// and "--password <password>" flags.
func maskPasswordFlag(cmd string) string {
	fields := strings.Fields(cmd)
	changed := false
	for i := 0; i < len(fields)-1; i++ {
		if fields[i] == "-p" || fields[i] == "--password" {
			fields[i+1] = "****"
			changed = true
			i++
		}
	}
	if !changed {
		return cmd
	}
	return strings.Join(fields, " ")
}
