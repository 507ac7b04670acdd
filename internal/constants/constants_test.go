package constants

import "testing"

func TestHostKey(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		expected string
	}{
		{"hostname", "web1", 22, "web1:22"},
		{"ipv4", "10.0.0.5", 2222, "10.0.0.5:2222"},
		{"ipv6", "::1", 22, "[::1]:22"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HostKey(tt.host, tt.port)
			if got != tt.expected {
				t.Errorf("HostKey(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.expected)
			}
		})
	}
}

func TestSplitHostKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		wantHost string
		wantPort int
	}{
		{"with port", "web1:2222", "web1", 2222},
		{"bare host", "web1", "web1", 22},
		{"ipv6 with port", "[::1]:8022", "::1", 8022},
		{"invalid port", "web1:abc", "web1", 22},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port := SplitHostKey(tt.key, DefaultPort)
			if host != tt.wantHost || port != tt.wantPort {
				t.Errorf("SplitHostKey(%q) = (%q, %d), want (%q, %d)", tt.key, host, port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestDefaultKeyNamesOrder(t *testing.T) {
	if len(DefaultKeyNames) == 0 || DefaultKeyNames[0] != "id_rsa" {
		t.Errorf("expected id_rsa to be tried first, got %v", DefaultKeyNames)
	}
}
