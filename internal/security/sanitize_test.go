package security

import (
	"strings"
	"testing"
)

func TestValidateUnixUser(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"root", "root", false},
		{"underscore start", "_svc", false},
		{"with digits", "deploy01", false},
		{"empty", "", true},
		{"uppercase", "Root", true},
		{"digit start", "1user", true},
		{"injection", "root;id", true},
		{"too long", strings.Repeat("a", 33), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUnixUser(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUnixUser(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"hostname", "web1.example.com", false},
		{"ipv4", "10.0.0.1", false},
		{"ipv6", "::1", false},
		{"localhost", "localhost", false},
		{"empty", "", true},
		{"space", "web 1", true},
		{"injection", "web1;rm -rf /", true},
		{"leading dot", ".web1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHost(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHost(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRemotePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"absolute", "/var/log/syslog", false},
		{"relative", "notes.txt", false},
		{"with spaces", "/tmp/my file", false},
		{"empty", "", true},
		{"newline", "/tmp/a\nb", true},
		{"nul", "/tmp/a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRemotePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRemotePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestShellEscape(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "'simple'"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
		{"$(id)", "'$(id)'"},
	}

	for _, tt := range tests {
		got := ShellEscape(tt.input)
		if got != tt.expected {
			t.Errorf("ShellEscape(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSanitizeCommandForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		mustHide string
		mustKeep string
	}{
		{
			name:     "env assignment",
			input:    "DB_PASSWORD=hunter2 ./migrate",
			mustHide: "hunter2",
			mustKeep: "./migrate",
		},
		{
			name:     "quoted value",
			input:    "export API_TOKEN='abc def' && run",
			mustHide: "abc def",
			mustKeep: "&& run",
		},
		{
			name:     "lowercase key",
			input:    "secret=xyz echo ok",
			mustHide: "xyz",
			mustKeep: "echo ok",
		},
		{
			name:     "sshpass flag",
			input:    "sshpass -p s3cret ssh host",
			mustHide: "s3cret",
			mustKeep: "ssh host",
		},
		{
			name:     "nothing sensitive",
			input:    "uptime",
			mustKeep: "uptime",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeCommandForLog(tt.input)
			if tt.mustHide != "" && strings.Contains(got, tt.mustHide) {
				t.Errorf("SanitizeCommandForLog(%q) = %q, leaked %q", tt.input, got, tt.mustHide)
			}
			if !strings.Contains(got, tt.mustKeep) {
				t.Errorf("SanitizeCommandForLog(%q) = %q, lost %q", tt.input, got, tt.mustKeep)
			}
		})
	}
}
