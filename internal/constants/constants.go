package constants

import (
	"net"
	"strconv"
	"time"
)

// Connection defaults
const (
	DefaultPort = 22
	DefaultUser = "root"
)

// Fan-out defaults
const (
	DefaultBatchSize = 100
	// SentinelStatus marks results synthesized locally for timeouts and
	// transport failures. It is never a genuine remote exit code.
	SentinelStatus = -1
)

// Transfer defaults
const (
	DefaultFileMode  = 0o644
	TransferOKMarker = "Ok"
)

// Shell defaults
const (
	TerminalType   = "xterm"
	TerminalRows   = 24
	TerminalCols   = 80
	ShellCloseWait = 30 * time.Second
)

// DefaultKeyNames lists the private keys tried during default key discovery,
// in order.
var DefaultKeyNames = []string{"id_rsa", "id_ed25519", "id_ecdsa", "id_dsa"}

// HostKey returns the identity of a host within a fleet.
func HostKey(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// SplitHostKey splits a host identity back into its host and port parts.
// A bare host yields fallbackPort.
func SplitHostKey(key string, fallbackPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(key)
	if err != nil {
		return key, fallbackPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return host, fallbackPort
	}
	return host, port
}
