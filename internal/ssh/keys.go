package ssh

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
)

// SSHKeyInfo contains information about an SSH key
type SSHKeyInfo struct {
	Path        string // Full path to the key file
	Name        string // Key filename (e.g., "id_ed25519")
	Type        string // Key type (e.g., "ed25519", "rsa", "ecdsa")
	IsEncrypted bool   // True if key is passphrase-protected
}

// DiscoverSSHKeys returns the default private keys present in sshDir, in the
// order they are offered during authentication: id_rsa, id_ed25519, id_ecdsa,
// id_dsa. An empty sshDir means ~/.ssh.
func DiscoverSSHKeys(sshDir string) ([]SSHKeyInfo, error) {
	if sshDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		sshDir = filepath.Join(homeDir, ".ssh")
	}

	var keys []SSHKeyInfo
	for _, name := range constants.DefaultKeyNames {
		keyPath := filepath.Join(sshDir, name)
		if _, err := os.Stat(keyPath); err != nil {
			continue
		}
		keyInfo, err := ValidateSSHKey(keyPath)
		if err != nil {
			// Skip invalid key files
			continue
		}
		keys = append(keys, *keyInfo)
	}
	return keys, nil
}

// ValidateSSHKey validates a key file and returns its info
func ValidateSSHKey(path string) (*SSHKeyInfo, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	keyInfo := &SSHKeyInfo{
		Path: path,
		Name: filepath.Base(path),
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		if isPassphraseError(err) {
			keyInfo.IsEncrypted = true
			keyInfo.Type = detectKeyType(data)
			return keyInfo, nil
		}
		return nil, fmt.Errorf("invalid SSH key: %w", err)
	}

	keyInfo.Type = keyTypeName(signer.PublicKey().Type())
	return keyInfo, nil
}

// LoadPrivateKey parses the key at path. Encrypted keys are unlocked with
// passphrase, or with fallback when passphrase is empty.
func LoadPrivateKey(path, passphrase, fallback string) (ssh.Signer, error) {
	data, err := os.ReadFile(expandHome(path)) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer, nil
	}
	if !isPassphraseError(err) {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	secret := passphrase
	if secret == "" {
		secret = fallback
	}
	if secret == "" {
		return nil, fmt.Errorf("private key %s is encrypted and no passphrase was given", path)
	}
	signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}
	return signer, nil
}

// defaultKeySigners loads every unencrypted default key. Encrypted keys are
// tried with the password when one is set, and skipped otherwise.
func defaultKeySigners(sshDir, password string, log zerolog.Logger) []ssh.Signer {
	keys, err := DiscoverSSHKeys(sshDir)
	if err != nil {
		log.Debug().Err(err).Msg("default key discovery failed")
		return nil
	}

	var signers []ssh.Signer
	for _, key := range keys {
		if key.IsEncrypted && password == "" {
			log.Debug().Str("key", key.Path).Msg("skipping encrypted default key")
			continue
		}
		signer, err := LoadPrivateKey(key.Path, "", password)
		if err != nil {
			log.Debug().Err(err).Str("key", key.Path).Msg("skipping default key")
			continue
		}
		signers = append(signers, signer)
	}
	return signers
}

// isPassphraseError checks if the error indicates a passphrase-protected key
func isPassphraseError(err error) bool {
	var missing *ssh.PassphraseMissingError
	return errors.As(err, &missing)
}

// detectKeyType guesses the key type of an encrypted key from its PEM header
func detectKeyType(data []byte) string {
	content := string(data)

	switch {
	case strings.Contains(content, "RSA PRIVATE KEY"):
		return "rsa"
	case strings.Contains(content, "EC PRIVATE KEY"):
		return "ecdsa"
	case strings.Contains(content, "DSA PRIVATE KEY"):
		return "dsa"
	case strings.Contains(content, "OPENSSH PRIVATE KEY"):
		// The OpenSSH envelope hides the type once encrypted
		return "openssh"
	}
	return "unknown"
}

// keyTypeName maps an SSH public key algorithm to a short type name
func keyTypeName(algo string) string {
	switch {
	case algo == ssh.KeyAlgoED25519:
		return "ed25519"
	case algo == ssh.KeyAlgoRSA:
		return "rsa"
	case strings.HasPrefix(algo, "ecdsa-"):
		return "ecdsa"
	case algo == ssh.KeyAlgoDSA: //nolint:staticcheck // DSA keys are still discovered.
		return "dsa"
	}
	return algo
}

// expandHome expands a leading ~/ in path
func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
